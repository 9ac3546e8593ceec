// Package mqtt publishes LEAP device state to an MQTT broker using Home
// Assistant's discovery topic layout.
package mqtt

import (
	"errors"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

type service struct {
	client pahomqtt.Client
}

// New wraps a configured MQTT client.
func New(client pahomqtt.Client) *service {
	return &service{client: client}
}

// Connect establishes the broker session.
func (s *service) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt: unable to connect in time")
	}
	return token.Error()
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt: publish timed out")
	}
	return token.Error()
}
