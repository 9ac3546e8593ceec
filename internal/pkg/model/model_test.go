package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		id   string
	}{
		{"/device/12", "12"},
		{"/zone/3", "3"},
		{"/area/5/status", "5"},
		{"/device/8/buttongroup/2/button/12/status/event", "12"},
		{"/occupancygroup/7", "7"},
	}
	for _, tc := range tests {
		id, err := IDFromHref(tc.href)
		require.NoError(t, err, tc.href)
		assert.Equal(t, tc.id, id, tc.href)
	}

	_, err := IDFromHref("/project")
	assert.Error(t, err)
}

func TestDomainForType(t *testing.T) {
	assert.Equal(t, DomainLight, DomainForType("WallDimmer"))
	assert.Equal(t, DomainSwitch, DomainForType("WallSwitch"))
	assert.Equal(t, DomainCover, DomainForType("SerenaRollerShade"))
	assert.Equal(t, DomainFan, DomainForType("CasetaFanSpeedController"))
	assert.Equal(t, DomainSensor, DomainForType("Pico3ButtonRaiseLower"))
	assert.Equal(t, DomainKeypad, DomainForType("SunnataKeypad"))
	assert.Equal(t, DomainNone, DomainForType("SomethingNew"))
}

func TestTypesForDomain(t *testing.T) {
	types := TypesForDomain(DomainFan)
	assert.ElementsMatch(t, []string{"CasetaFanSpeedController", "MaestroFanSpeedController", "FanSpeed"}, types)
}

func TestStripDeviceName(t *testing.T) {
	tests := []struct {
		area, leaf, want string
	}{
		{"Kitchen", "Kitchen Pendants", "Pendants"},
		{"Living Room", "Living Room_Main Lights", "Main Lights"},
		{"Kitchen", "Pendants", "Pendants"},
		{"", "Pendants", "Pendants"},
		{"Kitchen", "Kitchen", "Kitchen"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StripDeviceName(tc.area, tc.leaf), "%s / %s", tc.area, tc.leaf)
	}
}

func TestDeviceIsOn(t *testing.T) {
	d := &Device{CurrentState: 0}
	assert.False(t, d.IsOn())
	d.CurrentState = 50
	assert.True(t, d.IsOn())
	fan := &Device{CurrentState: 0, FanSpeed: FanHigh}
	assert.True(t, fan.IsOn())
	fan.FanSpeed = FanOff
	assert.False(t, fan.IsOn())
}

func TestZoneStatusDecoding(t *testing.T) {
	raw := []byte(`{"ZoneStatus":{"Level":50,"Zone":{"href":"/zone/1"},"StatusAccuracy":"Good"}}`)
	body := OneZoneStatus{}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.NotNil(t, body.ZoneStatus.Level)
	assert.Equal(t, 50, *body.ZoneStatus.Level)
	assert.Equal(t, "/zone/1", body.ZoneStatus.Zone.Href)
	assert.Nil(t, body.ZoneStatus.FanSpeed)
}

func TestProjectFlavor(t *testing.T) {
	caseta := ProjectDefinition{}
	caseta.Project.ProductType = "Lutron Caseta Project"
	assert.False(t, caseta.IsProcessorProduct())

	ra3 := ProjectDefinition{}
	ra3.Project.ProductType = "Lutron RadioRA 3 Project"
	assert.True(t, ra3.IsProcessorProduct())

	qsx := ProjectDefinition{}
	qsx.Project.ProductType = "Lutron HWQS Project"
	assert.True(t, qsx.IsProcessorProduct())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:02", FormatDuration(2*time.Second))
	assert.Equal(t, "00:01:30", FormatDuration(90*time.Second))
	assert.Equal(t, "01:00:05", FormatDuration(time.Hour+5*time.Second))
}

func TestCommandEncoding(t *testing.T) {
	body := CommandBody{Command: Command{
		CommandType: "GoToLevel",
		Parameter:   []CommandParameter{{Type: "Level", Value: 100}},
	}}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Command":{"CommandType":"GoToLevel","Parameter":[{"Type":"Level","Value":100}]}}`, string(data))

	stop := CommandBody{Command: Command{CommandType: "Stop"}}
	data, err = json.Marshal(stop)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Command":{"CommandType":"Stop"}}`, string(data))
}
