package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Href points at another resource.
type Href struct {
	Href string `json:"href"`
}

// ProjectDefinition is the body of /project.
type ProjectDefinition struct {
	Project struct {
		Name        string `json:"Name"`
		ProductType string `json:"ProductType"`
	} `json:"Project"`
}

// IsProcessorProduct reports whether the product string names an RA3 or
// HomeWorks QSX processor rather than a Caseta-style bridge.
func (p *ProjectDefinition) IsProcessorProduct() bool {
	switch p.Project.ProductType {
	case "Lutron RadioRA 3 Project", "Lutron HWQS Project":
		return true
	}
	return false
}

// OccupancyGroupRef links an area to one of its occupancy groups; the href
// position varies by firmware.
type OccupancyGroupRef struct {
	OccupancyGroup *Href  `json:"OccupancyGroup,omitempty"`
	Href           string `json:"href,omitempty"`
}

// AreaDefinition is one entry of the /area body.
type AreaDefinition struct {
	Href                      string              `json:"href"`
	Name                      string              `json:"Name"`
	Parent                    *Href               `json:"Parent,omitempty"`
	IsLeaf                    bool                `json:"IsLeaf"`
	AssociatedOccupancyGroups []OccupancyGroupRef `json:"AssociatedOccupancyGroups,omitempty"`
}

// MultipleAreaDefinition is the body of /area.
type MultipleAreaDefinition struct {
	Areas []AreaDefinition `json:"Areas"`
}

// DeviceDefinition is one entry of the /device body.
type DeviceDefinition struct {
	Href               string      `json:"href"`
	Name               string      `json:"Name"`
	FullyQualifiedName []string    `json:"FullyQualifiedName"`
	Parent             *Href       `json:"Parent,omitempty"`
	ModelNumber        string      `json:"ModelNumber"`
	SerialNumber       json.Number `json:"SerialNumber,omitempty"`
	DeviceType         string      `json:"DeviceType"`
	AssociatedArea     *Href       `json:"AssociatedArea,omitempty"`
	LocalZones         []Href      `json:"LocalZones,omitempty"`
	ButtonGroups       []Href      `json:"ButtonGroups,omitempty"`
	OccupancySensors   []Href      `json:"OccupancySensors,omitempty"`
	IsThisDevice       bool        `json:"IsThisDevice,omitempty"`
}

// MultipleDeviceDefinition is the body of /device.
type MultipleDeviceDefinition struct {
	Devices []DeviceDefinition `json:"Devices"`
}

// OneDeviceDefinition is the body of /device/<id>.
type OneDeviceDefinition struct {
	Device DeviceDefinition `json:"Device"`
}

// ZoneDefinition is one entry of /area/<id>/associatedzone on
// Processor-style bridges.
type ZoneDefinition struct {
	Href           string    `json:"href"`
	Name           string    `json:"Name"`
	ControlType    string    `json:"ControlType"`
	Level          *int      `json:"Level,omitempty"`
	FanSpeed       *FanSpeed `json:"FanSpeed,omitempty"`
	AssociatedArea *Href     `json:"AssociatedArea,omitempty"`
}

// MultipleZoneDefinition is the body of /area/<id>/associatedzone.
type MultipleZoneDefinition struct {
	Zones []ZoneDefinition `json:"Zones"`
}

// ZoneStatus is the live state of one zone.
type ZoneStatus struct {
	Href          string    `json:"href,omitempty"`
	Zone          Href      `json:"Zone"`
	Level         *int      `json:"Level,omitempty"`
	FanSpeed      *FanSpeed `json:"FanSpeed,omitempty"`
	Tilt          *int      `json:"Tilt,omitempty"`
	CurrentState  *int      `json:"CurrentState,omitempty"`
	SwitchedLevel string    `json:"SwitchedLevel,omitempty"`
}

// OneZoneStatus is the body of /zone/<id>/status messages.
type OneZoneStatus struct {
	ZoneStatus ZoneStatus `json:"ZoneStatus"`
}

// MultipleZoneStatus is the body of /zone/status messages on
// Processor-style bridges.
type MultipleZoneStatus struct {
	ZoneStatuses []ZoneStatus `json:"ZoneStatuses"`
}

// Engraving is custom button label text.
type Engraving struct {
	Text string `json:"Text"`
}

// ButtonDefinition is one entry of the /button body.
type ButtonDefinition struct {
	Href          string     `json:"href"`
	Name          string     `json:"Name,omitempty"`
	Parent        *Href      `json:"Parent,omitempty"`
	ButtonNumber  int        `json:"ButtonNumber"`
	Engraving     *Engraving `json:"Engraving,omitempty"`
	AssociatedLED *Href      `json:"AssociatedLED,omitempty"`
}

// MultipleButtonDefinition is the body of /button.
type MultipleButtonDefinition struct {
	Buttons []ButtonDefinition `json:"Buttons"`
}

// ButtonGroupExpanded is one entry of /device/<id>/buttongroup/expanded.
type ButtonGroupExpanded struct {
	Href    string             `json:"href"`
	Parent  *Href              `json:"Parent,omitempty"`
	Buttons []ButtonDefinition `json:"Buttons,omitempty"`
}

// MultipleButtonGroupExpanded is the body of
// /device/<id>/buttongroup/expanded.
type MultipleButtonGroupExpanded struct {
	ButtonGroupsExpanded []ButtonGroupExpanded `json:"ButtonGroupsExpanded"`
}

// ButtonEventBody carries just the event type; some firmwares send it bare
// with the button id only in the URL.
type ButtonEventBody struct {
	EventType ButtonEventType `json:"EventType"`
}

// ButtonStatus names the button an event belongs to.
type ButtonStatus struct {
	Button      Href            `json:"Button"`
	ButtonEvent ButtonEventBody `json:"ButtonEvent"`
}

// ButtonStatusEvent is the body of /button/<id>/status/event messages.
type ButtonStatusEvent struct {
	ButtonStatus *ButtonStatus    `json:"ButtonStatus,omitempty"`
	ButtonEvent  *ButtonEventBody `json:"ButtonEvent,omitempty"`
}

// SensorRef names one occupancy sensor in a group.
type SensorRef struct {
	OccupancySensor Href `json:"OccupancySensor"`
}

// AreaRef names one area associated with a group.
type AreaRef struct {
	Area Href `json:"Area"`
}

// OccupancyGroupDefinition is one entry of /occupancygroup.
type OccupancyGroupDefinition struct {
	Href              string      `json:"href"`
	AssociatedSensors []SensorRef `json:"AssociatedSensors,omitempty"`
	AssociatedAreas   []AreaRef   `json:"AssociatedAreas,omitempty"`
}

// MultipleOccupancyGroupDefinition is the body of /occupancygroup.
type MultipleOccupancyGroupDefinition struct {
	OccupancyGroups []OccupancyGroupDefinition `json:"OccupancyGroups"`
}

// OccupancyGroupStatus is one entry of /occupancygroup/status bodies.
type OccupancyGroupStatus struct {
	OccupancyGroup  Href            `json:"OccupancyGroup"`
	OccupancyStatus OccupancyStatus `json:"OccupancyStatus"`
}

// MultipleOccupancyGroupStatus is the body of /occupancygroup/status.
type MultipleOccupancyGroupStatus struct {
	OccupancyGroupStatuses []OccupancyGroupStatus `json:"OccupancyGroupStatuses"`
}

// AreaStatus is one entry of /area/status bodies on Processor-style
// bridges; occupancy arrives keyed by area.
type AreaStatus struct {
	Href            string          `json:"href"`
	OccupancyStatus OccupancyStatus `json:"OccupancyStatus,omitempty"`
	CurrentScene    *Href           `json:"CurrentScene,omitempty"`
}

// MultipleAreaStatus is the body of /area/status.
type MultipleAreaStatus struct {
	AreaStatuses []AreaStatus `json:"AreaStatuses"`
}

// GangedDevice is one device mounted in a control station.
type GangedDevice struct {
	Device struct {
		Href       string `json:"href"`
		DeviceType string `json:"DeviceType"`
	} `json:"Device"`
}

// ControlStationDefinition is one entry of
// /area/<id>/associatedcontrolstation.
type ControlStationDefinition struct {
	Href                    string         `json:"href"`
	Name                    string         `json:"Name"`
	AssociatedGangedDevices []GangedDevice `json:"AssociatedGangedDevices,omitempty"`
}

// MultipleControlStationDefinition is the body of
// /area/<id>/associatedcontrolstation.
type MultipleControlStationDefinition struct {
	ControlStations []ControlStationDefinition `json:"ControlStations"`
}

// VirtualButtonDefinition is one entry of /virtualbutton.
type VirtualButtonDefinition struct {
	Href         string `json:"href"`
	Name         string `json:"Name,omitempty"`
	IsProgrammed bool   `json:"IsProgrammed"`
}

// MultipleVirtualButtonDefinition is the body of /virtualbutton.
type MultipleVirtualButtonDefinition struct {
	VirtualButtons []VirtualButtonDefinition `json:"VirtualButtons"`
}

// PingResponseDefinition is the body of /server/1/status/ping.
type PingResponseDefinition struct {
	PingResponse struct {
		LEAPVersion json.Number `json:"LEAPVersion"`
	} `json:"PingResponse"`
}

// LEDStatus is the body of /led/<id>/status messages.
type LEDStatus struct {
	LEDStatus struct {
		LED   Href   `json:"LED"`
		State string `json:"State"`
	} `json:"LEDStatus"`
}

// CommandParameter is one positional parameter of a zone command.
type CommandParameter struct {
	Type  string `json:"Type"`
	Value any    `json:"Value"`
}

// Command is the payload written to a commandprocessor URL.
type Command struct {
	CommandType           string             `json:"CommandType"`
	Parameter             []CommandParameter `json:"Parameter,omitempty"`
	FanSpeedParameters    *FanSpeedParams    `json:"FanSpeedParameters,omitempty"`
	TiltParameters        *TiltParams        `json:"TiltParameters,omitempty"`
	DimmedLevelParameters *DimmedLevelParams `json:"DimmedLevelParameters,omitempty"`
}

// CommandBody wraps a Command for transmission.
type CommandBody struct {
	Command Command `json:"Command"`
}

// FanSpeedParams carries a GoToFanSpeed target.
type FanSpeedParams struct {
	FanSpeed FanSpeed `json:"FanSpeed"`
}

// TiltParams carries a GoToTilt target.
type TiltParams struct {
	Tilt int `json:"Tilt"`
}

// DimmedLevelParams carries a GoToDimmedLevel target with a fade.
type DimmedLevelParams struct {
	Level    int    `json:"Level"`
	FadeTime string `json:"FadeTime"`
}

// FormatDuration renders a fade time in the hh:mm:ss form the bridge
// expects.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
