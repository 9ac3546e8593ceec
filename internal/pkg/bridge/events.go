package bridge

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/leap"
	"github.com/lutron-community/leap-go/internal/pkg/model"
)

// handleZoneMessage routes single and multi zone status bodies. Both the
// initial subscription response and later notifications land here.
func (b *Bridge) handleZoneMessage(msg *leap.Message) {
	if len(msg.Body) == 0 {
		return
	}
	switch msg.Header.MessageBodyType {
	case "MultipleZoneStatus":
		body := model.MultipleZoneStatus{}
		if err := msg.DecodeBody(&body); err != nil {
			b.logger.Warn("undecodable multi zone status", zap.Error(err))
			return
		}
		for _, status := range body.ZoneStatuses {
			b.applyZoneStatus(status)
		}
	default:
		body := model.OneZoneStatus{}
		if err := msg.DecodeBody(&body); err != nil || body.ZoneStatus.Zone.Href == "" {
			// Not every /zone message is a status.
			return
		}
		b.applyZoneStatus(body.ZoneStatus)
	}
}

func (b *Bridge) applyZoneStatus(status model.ZoneStatus) {
	zoneID, err := model.IDFromHref(status.Zone.Href)
	if err != nil {
		b.logger.Warn("zone status with unusable href", zap.String("href", status.Zone.Href))
		return
	}

	b.mu.Lock()
	zone := b.zones[zoneID]
	if zone == nil {
		b.mu.Unlock()
		b.logger.Debug("status for unknown zone", zap.String("zone", zoneID))
		return
	}
	device := b.devices[zone.DeviceID]
	if device == nil {
		b.mu.Unlock()
		return
	}
	if status.Level != nil {
		device.CurrentState = *status.Level
	}
	if status.CurrentState != nil {
		device.CurrentState = *status.CurrentState
	}
	switch status.SwitchedLevel {
	case "On":
		device.CurrentState = 100
	case "Off":
		device.CurrentState = 0
	}
	if status.FanSpeed != nil {
		device.FanSpeed = *status.FanSpeed
	}
	if status.Tilt != nil {
		tilt := *status.Tilt
		device.Tilt = &tilt
	}
	deviceID := device.ID
	b.mu.Unlock()

	b.logger.Debug("zone status",
		zap.String("zone", zoneID), zap.String("device", deviceID))
	for _, fn := range b.deviceSubs.get(deviceID) {
		b.safeCall(fn)
	}
}

// handleButtonMessage handles button events in either observed shape: a
// ButtonStatus body naming the button, or a bare ButtonEvent whose button
// id only appears in the URL.
func (b *Bridge) handleButtonMessage(msg *leap.Message) {
	if len(msg.Body) == 0 || !strings.HasSuffix(msg.Header.Url, "/status/event") {
		return
	}
	body := model.ButtonStatusEvent{}
	if err := msg.DecodeBody(&body); err != nil {
		b.logger.Warn("undecodable button event", zap.Error(err))
		return
	}

	var buttonID string
	var event model.ButtonEventType
	switch {
	case body.ButtonStatus != nil:
		id, err := model.IDFromHref(body.ButtonStatus.Button.Href)
		if err != nil {
			return
		}
		buttonID = id
		event = body.ButtonStatus.ButtonEvent.EventType
	case body.ButtonEvent != nil:
		buttonID = buttonIDFromURL(msg.Header.Url)
		event = body.ButtonEvent.EventType
	}
	if buttonID == "" || event == "" {
		return
	}

	b.mu.Lock()
	button := b.buttons[buttonID]
	var parentID string
	if button != nil {
		button.CurrentState = event
		parentID = button.ParentDeviceID
	}
	b.mu.Unlock()
	if button == nil {
		b.logger.Debug("event for unknown button", zap.String("button", buttonID))
		return
	}

	b.logger.Debug("button event",
		zap.String("button", buttonID), zap.String("event", string(event)))
	for _, fn := range b.buttonSubs.get(buttonID) {
		fn := fn
		b.safeCall(func() {
			fn(event, buttonID)
		})
	}
	// Keypad holders observing the parent device also hear about it.
	for _, fn := range b.deviceSubs.get(parentID) {
		b.safeCall(fn)
	}
}

// buttonIDFromURL pulls the id out of URLs like
// /device/8/buttongroup/2/button/12/status/event.
func buttonIDFromURL(url string) string {
	segments := strings.Split(url, "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "button" {
			return segments[i+1]
		}
	}
	return ""
}

// handleOccupancyGroupMessage applies /occupancygroup/status bodies.
func (b *Bridge) handleOccupancyGroupMessage(msg *leap.Message) {
	if len(msg.Body) == 0 {
		return
	}
	body := model.MultipleOccupancyGroupStatus{}
	if err := msg.DecodeBody(&body); err != nil {
		b.logger.Warn("undecodable occupancy status", zap.Error(err))
		return
	}
	for _, status := range body.OccupancyGroupStatuses {
		groupID, err := model.IDFromHref(status.OccupancyGroup.Href)
		if err != nil {
			continue
		}
		b.applyOccupancyStatus(groupID, status.OccupancyStatus)
	}
}

// handleAreaStatusMessage applies /area/status bodies, where processors
// report occupancy keyed by area.
func (b *Bridge) handleAreaStatusMessage(msg *leap.Message) {
	if len(msg.Body) == 0 {
		return
	}
	body := model.MultipleAreaStatus{}
	if err := msg.DecodeBody(&body); err != nil {
		b.logger.Warn("undecodable area status", zap.Error(err))
		return
	}
	for _, status := range body.AreaStatuses {
		if status.OccupancyStatus == "" {
			continue
		}
		areaID, err := model.IDFromHref(status.Href)
		if err != nil {
			continue
		}
		b.applyOccupancyStatus(areaID, status.OccupancyStatus)
	}
}

func (b *Bridge) applyOccupancyStatus(groupID string, status model.OccupancyStatus) {
	b.mu.Lock()
	group := b.occupancyGroups[groupID]
	if group == nil {
		b.mu.Unlock()
		if status != model.OccupancyUnknown {
			b.logger.Warn("occupancy status for group with no sensors",
				zap.String("group", groupID))
		}
		return
	}
	group.Status = status
	if area := b.areas[group.AreaID]; area != nil {
		area.Occupancy = status
	}
	b.mu.Unlock()

	b.logger.Debug("occupancy status",
		zap.String("group", groupID), zap.String("status", string(status)))
	for _, fn := range b.occupancySubs.get(groupID) {
		b.safeCall(fn)
	}
}

// handleLEDMessage applies /led/<id>/status bodies onto the owning keypad
// device.
func (b *Bridge) handleLEDMessage(msg *leap.Message) {
	if len(msg.Body) == 0 || !strings.Contains(msg.Header.Url, "/led/") {
		return
	}
	body := model.LEDStatus{}
	if err := msg.DecodeBody(&body); err != nil || body.LEDStatus.LED.Href == "" {
		return
	}
	ledID, err := model.IDFromHref(body.LEDStatus.LED.Href)
	if err != nil {
		return
	}

	b.mu.Lock()
	ownerID, ok := b.ledOwners[ledID]
	if ok {
		if device := b.devices[ownerID]; device != nil {
			device.TypeExtras["led_"+ledID] = body.LEDStatus.State
		}
	}
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("status for unknown led", zap.String("led", ledID))
		return
	}

	for _, fn := range b.deviceSubs.get(ownerID) {
		b.safeCall(fn)
	}
}
