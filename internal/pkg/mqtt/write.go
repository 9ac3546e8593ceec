package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gosimple/slug"

	"github.com/lutron-community/leap-go/internal/pkg/model"
)

type registerMessage struct {
	Tilda      string         `json:"~"`
	Name       string         `json:"name"`
	ID         string         `json:"unique_id"`
	StateTopic string         `json:"state_topic"`
	Device     registerDevice `json:"device"`
}

type registerDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type stateMessage struct {
	State    string          `json:"state"`
	Level    int             `json:"level"`
	FanSpeed *model.FanSpeed `json:"fan_speed,omitempty"`
	Tilt     *int            `json:"tilt,omitempty"`
}

var configuredDevices sync.Map

// RegisterDevice announces the device on its discovery config topic. The
// config message is retained so consumers joining later still see it.
func (s *service) RegisterDevice(device *model.Device) error {
	identifier := slugIdentifier(device)
	if _, exists := configuredDevices.Load(identifier); exists {
		return nil
	}

	payload, err := json.Marshal(defaultRegisterMsg(device, identifier))
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("homeassistant/%s/%s/config", component(device), identifier)
	if err := s.publish(topic, 1, true, payload); err != nil {
		return err
	}
	configuredDevices.Store(identifier, struct{}{})
	return nil
}

// PublishState writes the device's current state to its state topic.
func (s *service) PublishState(_ context.Context, device *model.Device) error {
	identifier := slugIdentifier(device)

	msg := stateMessage{Level: device.CurrentState, Tilt: device.Tilt}
	if device.IsOn() {
		msg.State = "ON"
	} else {
		msg.State = "OFF"
	}
	if device.FanSpeed != "" {
		speed := device.FanSpeed
		msg.FanSpeed = &speed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("homeassistant/%s/%s/state", component(device), identifier)
	return s.publish(topic, 0, false, payload)
}

func defaultRegisterMsg(device *model.Device, identifier string) registerMessage {
	name := device.DeviceName
	if name == "" {
		name = device.Name
	}
	return registerMessage{
		Tilda:      fmt.Sprintf("homeassistant/%s/%s", component(device), identifier),
		Name:       name,
		ID:         strings.ToLower(identifier),
		StateTopic: "~/state",
		Device: registerDevice{
			Name:         name,
			Identifiers:  []string{identifier},
			Model:        device.Model,
			Manufacturer: "Lutron",
		},
	}
}

// component maps a device domain onto a Home Assistant component.
func component(device *model.Device) string {
	switch device.Domain() {
	case model.DomainLight:
		return "light"
	case model.DomainSwitch:
		return "switch"
	case model.DomainFan:
		return "fan"
	case model.DomainCover:
		return "cover"
	default:
		return "sensor"
	}
}

func slugIdentifier(device *model.Device) string {
	name := device.Name
	if name == "" {
		name = device.ID
	}
	return strings.ReplaceAll(slug.Make(name), "-", "_") + "_" + device.ID
}
