package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lutron-community/leap-go/internal/pkg/model"
)

func TestComponentMapping(t *testing.T) {
	tests := []struct {
		deviceType string
		component  string
	}{
		{"WallDimmer", "light"},
		{"WallSwitch", "switch"},
		{"CasetaFanSpeedController", "fan"},
		{"SerenaRollerShade", "cover"},
		{"Pico3ButtonRaiseLower", "sensor"},
	}
	for _, tc := range tests {
		device := &model.Device{Type: tc.deviceType}
		assert.Equal(t, tc.component, component(device), tc.deviceType)
	}
}

func TestSlugIdentifier(t *testing.T) {
	device := &model.Device{ID: "2", Name: "Kitchen/Kitchen Lights"}
	assert.Equal(t, "kitchen_kitchen_lights_2", slugIdentifier(device))
}

func TestDefaultRegisterMsg(t *testing.T) {
	device := &model.Device{
		ID:         "2",
		Name:       "Kitchen/Kitchen Lights",
		DeviceName: "Lights",
		Type:       "WallDimmer",
		Model:      "PD-6WCL-WH",
	}
	identifier := slugIdentifier(device)
	msg := defaultRegisterMsg(device, identifier)

	assert.Equal(t, "homeassistant/light/kitchen_kitchen_lights_2", msg.Tilda)
	assert.Equal(t, "Lights", msg.Name)
	assert.Equal(t, "~/state", msg.StateTopic)
	assert.Equal(t, "Lutron", msg.Device.Manufacturer)
	assert.Equal(t, []string{identifier}, msg.Device.Identifiers)
}
