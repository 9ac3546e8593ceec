package bridge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/leap"
	"github.com/lutron-community/leap-go/internal/pkg/model"
)

type flavor int

const (
	// flavorCaseta covers the Caseta bridges and RA2 Select repeaters.
	flavorCaseta flavor = iota
	// flavorProcessor covers RA3 and HomeWorks QSX processors.
	flavorProcessor
)

// areaPageSize is the page length used when a bridge reports more areas
// than fit one response.
const areaPageSize = 100

// seenSet tracks which ids a bootstrap produced so stale entries can be
// pruned afterwards. Each category is only pruned when its enumeration
// step completed; a failed step must not wipe known-good state.
type seenSet struct {
	areas           map[string]struct{}
	devices         map[string]struct{}
	zones           map[string]struct{}
	buttonGroups    map[string]struct{}
	buttons         map[string]struct{}
	occupancyGroups map[string]struct{}
	scenes          map[string]struct{}

	areasComplete     bool
	devicesComplete   bool
	buttonsComplete   bool
	occupancyComplete bool
	scenesComplete    bool
}

func newSeenSet() *seenSet {
	return &seenSet{
		areas:           make(map[string]struct{}),
		devices:         make(map[string]struct{}),
		zones:           make(map[string]struct{}),
		buttonGroups:    make(map[string]struct{}),
		buttons:         make(map[string]struct{}),
		occupancyGroups: make(map[string]struct{}),
		scenes:          make(map[string]struct{}),
	}
}

// bootstrap populates the model from scratch on a fresh session. Only the
// flavor probe is fatal; every other step logs and continues so a bridge
// with a missing feature (no occupancy hardware, no scenes) still comes up.
func (b *Bridge) bootstrap(ctx context.Context, requester *leap.Requester) error {
	seen := newSeenSet()

	flv, err := b.readFlavor(ctx)
	if err != nil {
		return fmt.Errorf("probe bridge type: %w", err)
	}
	b.mu.Lock()
	b.flavor = flv
	b.mu.Unlock()

	if err := b.loadAreas(ctx, seen); err != nil {
		b.logger.Warn("loading areas failed", zap.Error(err))
	} else {
		seen.areasComplete = true
	}

	// Unsolicited zone and button updates can use several URL shapes
	// depending on firmware; register the broad routes up front so early
	// messages are not dropped.
	requester.AddHandler("/zone/", true, b.handleZoneMessage)
	requester.AddHandler("/device/", true, b.handleButtonMessage)
	requester.AddHandler("/led/", true, b.handleLEDMessage)

	if flv == flavorProcessor {
		b.bootstrapProcessor(ctx, requester, seen)
	} else {
		b.bootstrapCaseta(ctx, requester, seen)
	}

	b.subscribeOccupancy(ctx, requester)
	b.prune(seen)
	return nil
}

func (b *Bridge) bootstrapCaseta(ctx context.Context, requester *leap.Requester, seen *seenSet) {
	if err := b.loadDevices(ctx, seen); err != nil {
		b.logger.Warn("loading devices failed", zap.Error(err))
	} else {
		seen.devicesComplete = true
	}
	if err := b.loadButtons(ctx, requester, seen); err != nil {
		b.logger.Warn("loading buttons failed", zap.Error(err))
	} else {
		seen.buttonsComplete = true
	}
	if err := b.loadScenes(ctx, seen); err != nil {
		b.logger.Warn("loading scenes failed", zap.Error(err))
	} else {
		seen.scenesComplete = true
	}
	if err := b.loadOccupancyGroups(ctx, seen); err != nil {
		b.logger.Warn("loading occupancy groups failed", zap.Error(err))
	} else {
		seen.occupancyComplete = true
	}
	b.readInitialZoneStatus(ctx)
}

func (b *Bridge) bootstrapProcessor(ctx context.Context, requester *leap.Requester, seen *seenSet) {
	if err := b.loadProcessorDevice(ctx, seen); err != nil {
		b.logger.Warn("loading processor device failed", zap.Error(err))
	}
	b.mu.RLock()
	areas := make([]*model.Area, 0, len(b.areas))
	for _, area := range b.areas {
		areas = append(areas, area)
	}
	b.mu.RUnlock()
	complete := true
	for _, area := range areas {
		if err := b.loadControlStations(ctx, requester, area, seen); err != nil {
			complete = false
			b.logger.Warn("loading control stations failed",
				zap.String("area", area.ID), zap.Error(err))
		}
		if err := b.loadAreaZones(ctx, area, seen); err != nil {
			complete = false
			b.logger.Warn("loading zones failed",
				zap.String("area", area.ID), zap.Error(err))
		}
	}
	seen.devicesComplete = complete
	seen.buttonsComplete = complete
	if err := b.loadProcessorOccupancy(ctx, seen); err != nil {
		b.logger.Warn("loading occupancy sensors failed", zap.Error(err))
	} else {
		seen.occupancyComplete = true
	}
	if err := b.loadScenes(ctx, seen); err != nil {
		b.logger.Warn("loading scenes failed", zap.Error(err))
	} else {
		seen.scenesComplete = true
	}
	// The broad /zone/ route is already registered; only the subscription
	// itself is needed here, or updates would dispatch twice.
	if msg, err := b.request(ctx, leap.SubscribeRequest, "/zone/status", nil); err != nil {
		b.logger.Warn("zone status subscription failed", zap.Error(err))
	} else {
		b.handleZoneMessage(msg)
	}
}

// readFlavor reads /project to decide which family of URL shapes the
// bridge speaks.
func (b *Bridge) readFlavor(ctx context.Context) (flavor, error) {
	msg, err := b.request(ctx, leap.ReadRequest, "/project", nil)
	if err != nil {
		return flavorCaseta, err
	}
	project := model.ProjectDefinition{}
	if err := msg.DecodeBody(&project); err != nil {
		return flavorCaseta, err
	}
	if project.IsProcessorProduct() {
		b.logger.Debug("processor-style bridge detected",
			zap.String("product_type", project.Project.ProductType))
		return flavorProcessor, nil
	}
	b.logger.Debug("caseta-style bridge detected",
		zap.String("product_type", project.Project.ProductType))
	return flavorCaseta, nil
}

// loadAreas enumerates /area, paging when a bridge reports a full page.
func (b *Bridge) loadAreas(ctx context.Context, seen *seenSet) error {
	offset := 0
	for {
		url := "/area"
		if offset > 0 {
			url = fmt.Sprintf("/area?PagingOffset=%d", offset)
		}
		msg, err := b.request(ctx, leap.ReadRequest, url, nil)
		if err != nil {
			if offset > 0 {
				// Firmware without paging support answered the first
				// page with everything it has.
				return nil
			}
			return err
		}
		body := model.MultipleAreaDefinition{}
		if err := msg.DecodeBody(&body); err != nil {
			return err
		}
		if len(body.Areas) == 0 {
			return nil
		}
		for _, def := range body.Areas {
			b.applyAreaDefinition(def, seen)
		}
		if len(body.Areas) < areaPageSize {
			return nil
		}
		offset += len(body.Areas)
	}
}

func (b *Bridge) applyAreaDefinition(def model.AreaDefinition, seen *seenSet) {
	id, err := model.IDFromHref(def.Href)
	if err != nil {
		b.logger.Warn("area with unusable href", zap.String("href", def.Href))
		return
	}
	seen.areas[id] = struct{}{}

	b.mu.Lock()
	defer b.mu.Unlock()

	area := b.areas[id]
	if area == nil {
		area = &model.Area{ID: id, Children: make(map[string]struct{}), Occupancy: model.OccupancyUnknown}
		b.areas[id] = area
	}
	area.Name = def.Name
	area.ParentID = ""
	if def.Parent != nil {
		if parentID, err := model.IDFromHref(def.Parent.Href); err == nil {
			area.ParentID = parentID
		}
	}
	if area.ParentID == "" {
		b.rootAreaID = id
	}
	area.OccupancyGroupID = ""
	for _, assoc := range def.AssociatedOccupancyGroups {
		href := assoc.Href
		if assoc.OccupancyGroup != nil {
			href = assoc.OccupancyGroup.Href
		}
		if groupID, err := model.IDFromHref(href); err == nil {
			area.OccupancyGroupID = groupID
			break
		}
	}

	for _, other := range b.areas {
		if area.ParentID != "" && other.ID == area.ParentID {
			other.Children[id] = struct{}{}
		}
		if other.ParentID == id {
			area.Children[other.ID] = struct{}{}
		}
	}
}

// loadDevices runs the flat /device read and derives zones and names.
func (b *Bridge) loadDevices(ctx context.Context, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/device", nil)
	if err != nil {
		return err
	}
	body := model.MultipleDeviceDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	for _, def := range body.Devices {
		b.applyDeviceDefinition(def, seen)
	}
	return nil
}

func (b *Bridge) applyDeviceDefinition(def model.DeviceDefinition, seen *seenSet) {
	id, err := model.IDFromHref(def.Href)
	if err != nil {
		b.logger.Warn("device with unusable href", zap.String("href", def.Href))
		return
	}
	seen.devices[id] = struct{}{}

	b.mu.Lock()
	defer b.mu.Unlock()

	device := b.ensureDeviceLocked(id)
	device.Type = def.DeviceType
	device.Model = def.ModelNumber
	device.Serial = def.SerialNumber.String()
	device.Name = strings.Join(def.FullyQualifiedName, "/")
	if device.Name == "" {
		device.Name = def.Name
	}

	leaf := def.Name
	if n := len(def.FullyQualifiedName); n > 0 {
		leaf = def.FullyQualifiedName[n-1]
	}

	device.AreaID = ""
	if def.AssociatedArea != nil {
		if areaID, err := model.IDFromHref(def.AssociatedArea.Href); err == nil {
			device.AreaID = areaID
		}
	}
	areaName := ""
	if n := len(def.FullyQualifiedName); n > 1 {
		areaName = def.FullyQualifiedName[0]
	}
	if device.AreaID == "" && areaName != "" {
		for _, area := range b.areas {
			if area.Name == areaName {
				device.AreaID = area.ID
				break
			}
		}
	}
	if device.AreaID != "" {
		if area := b.areas[device.AreaID]; area != nil {
			areaName = area.Name
		}
	}
	device.DeviceName = model.StripDeviceName(areaName, leaf)

	device.ZoneID = ""
	if len(def.LocalZones) > 0 {
		if zoneID, err := model.IDFromHref(def.LocalZones[0].Href); err == nil {
			device.ZoneID = zoneID
			zone := b.zones[zoneID]
			if zone == nil {
				zone = &model.Zone{ID: zoneID}
				b.zones[zoneID] = zone
			}
			zone.DeviceID = id
			seen.zones[zoneID] = struct{}{}
		}
	}

	device.ButtonGroupIDs = device.ButtonGroupIDs[:0]
	for _, group := range def.ButtonGroups {
		if groupID, err := model.IDFromHref(group.Href); err == nil {
			device.ButtonGroupIDs = append(device.ButtonGroupIDs, groupID)
		}
	}
	device.OccupancySensorIDs = device.OccupancySensorIDs[:0]
	for _, sensor := range def.OccupancySensors {
		if sensorID, err := model.IDFromHref(sensor.Href); err == nil {
			device.OccupancySensorIDs = append(device.OccupancySensorIDs, sensorID)
		}
	}
}

func (b *Bridge) ensureDeviceLocked(id string) *model.Device {
	device := b.devices[id]
	if device == nil {
		device = &model.Device{
			ID:           id,
			CurrentState: model.LevelUnknown,
			TypeExtras:   make(map[string]string),
		}
		b.devices[id] = device
	}
	return device
}

// readInitialZoneStatus primes levels on Caseta-style bridges, which do
// not answer a multi-zone subscription.
func (b *Bridge) readInitialZoneStatus(ctx context.Context) {
	b.mu.RLock()
	zoneIDs := make([]string, 0, len(b.zones))
	for id := range b.zones {
		zoneIDs = append(zoneIDs, id)
	}
	b.mu.RUnlock()

	for _, zoneID := range zoneIDs {
		msg, err := b.request(ctx, leap.ReadRequest, fmt.Sprintf("/zone/%s/status", zoneID), nil)
		if err != nil {
			b.logger.Debug("initial zone status read failed",
				zap.String("zone", zoneID), zap.Error(err))
			continue
		}
		b.handleZoneMessage(msg)
	}
}

// loadButtons enumerates /button and subscribes to each button's events.
func (b *Bridge) loadButtons(ctx context.Context, requester *leap.Requester, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/button", nil)
	if err != nil {
		return err
	}
	body := model.MultipleButtonDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	b.mu.Lock()
	groupOwners := make(map[string]string)
	for _, device := range b.devices {
		for _, groupID := range device.ButtonGroupIDs {
			groupOwners[groupID] = device.ID
		}
	}
	b.mu.Unlock()

	for _, def := range body.Buttons {
		groupID := ""
		if def.Parent != nil {
			groupID, _ = model.IDFromHref(def.Parent.Href)
		}
		ownerID, ok := groupOwners[groupID]
		if !ok {
			b.logger.Warn("button belongs to unknown button group",
				zap.String("button", def.Href), zap.String("group", groupID))
			continue
		}
		buttonID := b.applyButtonDefinition(def, groupID, ownerID, seen)
		if buttonID == "" {
			continue
		}
		b.subscribeButton(ctx, requester, buttonID)
	}
	return nil
}

func (b *Bridge) applyButtonDefinition(def model.ButtonDefinition, groupID, ownerID string, seen *seenSet) string {
	id, err := model.IDFromHref(def.Href)
	if err != nil {
		return ""
	}
	seen.buttons[id] = struct{}{}
	seen.buttonGroups[groupID] = struct{}{}

	b.mu.Lock()
	defer b.mu.Unlock()

	group := b.buttonGroups[groupID]
	if group == nil {
		group = &model.ButtonGroup{ID: groupID}
		b.buttonGroups[groupID] = group
	}
	group.ParentDeviceID = ownerID
	found := false
	for _, existing := range group.ButtonIDs {
		if existing == id {
			found = true
			break
		}
	}
	if !found {
		group.ButtonIDs = append(group.ButtonIDs, id)
	}

	button := b.buttons[id]
	if button == nil {
		button = &model.Button{ID: id, CurrentState: model.ButtonRelease}
		b.buttons[id] = button
	}
	button.ParentDeviceID = ownerID
	button.Number = def.ButtonNumber
	button.Name = def.Name
	if def.Engraving != nil && def.Engraving.Text != "" {
		button.Engraving = strings.ReplaceAll(def.Engraving.Text, "\n", " ")
		button.Name = button.Engraving
	}
	if def.AssociatedLED != nil {
		if ledID, err := model.IDFromHref(def.AssociatedLED.Href); err == nil {
			button.LEDID = ledID
			b.ledOwners[ledID] = ownerID
			owner := b.devices[ownerID]
			if owner != nil {
				present := false
				for _, existing := range owner.ButtonLEDIDs {
					if existing == ledID {
						present = true
						break
					}
				}
				if !present {
					owner.ButtonLEDIDs = append(owner.ButtonLEDIDs, ledID)
				}
			}
		}
	}
	return id
}

func (b *Bridge) subscribeButton(ctx context.Context, requester *leap.Requester, buttonID string) {
	url := fmt.Sprintf("/button/%s/status/event", buttonID)
	msg, err := requester.Subscribe(ctx, url, false, b.handleButtonMessage)
	if err != nil {
		b.logger.Warn("button event subscription failed",
			zap.String("button", buttonID), zap.Error(err))
		return
	}
	b.handleButtonMessage(msg)
}

// loadScenes reads /virtualbutton; only programmed, named buttons are
// surfaced as scenes.
func (b *Bridge) loadScenes(ctx context.Context, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/virtualbutton", nil)
	if err != nil {
		return err
	}
	body := model.MultipleVirtualButtonDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, def := range body.VirtualButtons {
		if !def.IsProgrammed || def.Name == "" {
			continue
		}
		id, err := model.IDFromHref(def.Href)
		if err != nil {
			continue
		}
		seen.scenes[id] = struct{}{}
		scene := b.scenes[id]
		if scene == nil {
			scene = &model.Scene{ID: id}
			b.scenes[id] = scene
		}
		scene.Name = def.Name
	}
	return nil
}

// loadOccupancyGroups reads /occupancygroup. Bridges without occupancy
// hardware return nothing; that is not an error.
func (b *Bridge) loadOccupancyGroups(ctx context.Context, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/occupancygroup", nil)
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	body := model.MultipleOccupancyGroupDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, def := range body.OccupancyGroups {
		if len(def.AssociatedSensors) == 0 {
			continue
		}
		id, err := model.IDFromHref(def.Href)
		if err != nil {
			continue
		}
		seen.occupancyGroups[id] = struct{}{}
		group := b.occupancyGroups[id]
		if group == nil {
			group = &model.OccupancyGroup{ID: id, Status: model.OccupancyUnknown}
			b.occupancyGroups[id] = group
		}
		group.SensorIDs = group.SensorIDs[:0]
		for _, sensor := range def.AssociatedSensors {
			if sensorID, err := model.IDFromHref(sensor.OccupancySensor.Href); err == nil {
				group.SensorIDs = append(group.SensorIDs, sensorID)
			}
		}
		group.AreaID = ""
		if len(def.AssociatedAreas) > 0 {
			if areaID, err := model.IDFromHref(def.AssociatedAreas[0].Area.Href); err == nil {
				group.AreaID = areaID
				if area := b.areas[areaID]; area != nil {
					area.OccupancyGroupID = id
					area.SensorIDs = append(area.SensorIDs[:0], group.SensorIDs...)
				}
			}
		}
	}
	return nil
}

// subscribeOccupancy probes both occupancy shapes: group status on Caseta
// bridges, area status on processors. Firmwares vary, so both are tried
// and the results unioned.
func (b *Bridge) subscribeOccupancy(ctx context.Context, requester *leap.Requester) {
	if msg, err := requester.Subscribe(ctx, "/occupancygroup/status", false, b.handleOccupancyGroupMessage); err != nil {
		b.logger.Debug("occupancy group subscription failed", zap.Error(err))
	} else {
		b.handleOccupancyGroupMessage(msg)
	}
	if msg, err := requester.Subscribe(ctx, "/area/status", false, b.handleAreaStatusMessage); err != nil {
		b.logger.Debug("area status subscription failed", zap.Error(err))
	} else {
		b.handleAreaStatusMessage(msg)
	}
}

// loadProcessorDevice inserts the processor itself as device 1.
func (b *Bridge) loadProcessorDevice(ctx context.Context, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/device?where=IsThisDevice:true", nil)
	if err != nil {
		return err
	}
	body := model.MultipleDeviceDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	if len(body.Devices) == 0 {
		return nil
	}
	def := body.Devices[0]
	seen.devices["1"] = struct{}{}

	b.mu.Lock()
	defer b.mu.Unlock()
	device := b.ensureDeviceLocked("1")
	device.Type = def.DeviceType
	device.Model = def.ModelNumber
	device.Serial = def.SerialNumber.String()
	device.DeviceName = def.Name
	areaName := ""
	if def.AssociatedArea != nil {
		if areaID, err := model.IDFromHref(def.AssociatedArea.Href); err == nil {
			device.AreaID = areaID
			if area := b.areas[areaID]; area != nil {
				areaName = area.Name
			}
		}
	}
	device.Name = strings.Join([]string{areaName, def.Name, def.DeviceType}, "/")
	return nil
}

// loadControlStations walks an area's keypads and their buttons.
func (b *Bridge) loadControlStations(ctx context.Context, requester *leap.Requester, area *model.Area, seen *seenSet) error {
	url := fmt.Sprintf("/area/%s/associatedcontrolstation", area.ID)
	msg, err := b.request(ctx, leap.ReadRequest, url, nil)
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	body := model.MultipleControlStationDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	for _, station := range body.ControlStations {
		if stationID, err := model.IDFromHref(station.Href); err == nil {
			b.mu.Lock()
			found := false
			for _, existing := range area.ControlStationIDs {
				if existing == stationID {
					found = true
					break
				}
			}
			if !found {
				area.ControlStationIDs = append(area.ControlStationIDs, stationID)
			}
			b.mu.Unlock()
		}
		for _, ganged := range station.AssociatedGangedDevices {
			if model.DomainForType(ganged.Device.DeviceType) != model.DomainKeypad {
				continue
			}
			deviceID, err := model.IDFromHref(ganged.Device.Href)
			if err != nil {
				continue
			}
			if err := b.loadKeypad(ctx, requester, area, deviceID, seen); err != nil {
				b.logger.Warn("loading keypad failed",
					zap.String("device", deviceID), zap.Error(err))
			}
		}
	}
	return nil
}

func (b *Bridge) loadKeypad(ctx context.Context, requester *leap.Requester, area *model.Area, deviceID string, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, fmt.Sprintf("/device/%s", deviceID), nil)
	if err != nil {
		return err
	}
	one := model.OneDeviceDefinition{}
	if err := msg.DecodeBody(&one); err != nil {
		return err
	}
	def := one.Device
	seen.devices[deviceID] = struct{}{}

	b.mu.Lock()
	device := b.ensureDeviceLocked(deviceID)
	device.Type = def.DeviceType
	device.Model = def.ModelNumber
	device.Serial = def.SerialNumber.String()
	device.AreaID = area.ID
	device.DeviceName = model.StripDeviceName(area.Name, def.Name)
	device.Name = area.Name + "/" + device.DeviceName
	b.mu.Unlock()

	groupMsg, err := b.request(ctx, leap.ReadRequest, fmt.Sprintf("/device/%s/buttongroup/expanded", deviceID), nil)
	if err != nil {
		return err
	}
	if len(groupMsg.Body) == 0 {
		return nil
	}
	groups := model.MultipleButtonGroupExpanded{}
	if err := groupMsg.DecodeBody(&groups); err != nil {
		return err
	}

	b.mu.Lock()
	device.ButtonGroupIDs = device.ButtonGroupIDs[:0]
	b.mu.Unlock()
	for _, group := range groups.ButtonGroupsExpanded {
		groupID, err := model.IDFromHref(group.Href)
		if err != nil {
			continue
		}
		b.mu.Lock()
		device.ButtonGroupIDs = append(device.ButtonGroupIDs, groupID)
		b.mu.Unlock()
		for _, buttonDef := range group.Buttons {
			buttonID := b.applyButtonDefinition(buttonDef, groupID, deviceID, seen)
			if buttonID == "" {
				continue
			}
			b.subscribeButton(ctx, requester, buttonID)
			b.mu.RLock()
			ledID := b.buttons[buttonID].LEDID
			b.mu.RUnlock()
			if ledID != "" {
				b.subscribeLED(ctx, requester, ledID)
			}
		}
	}
	return nil
}

func (b *Bridge) subscribeLED(ctx context.Context, requester *leap.Requester, ledID string) {
	url := fmt.Sprintf("/led/%s/status", ledID)
	msg, err := requester.Subscribe(ctx, url, false, b.handleLEDMessage)
	if err != nil {
		b.logger.Warn("led status subscription failed",
			zap.String("led", ledID), zap.Error(err))
		return
	}
	b.handleLEDMessage(msg)
}

// loadAreaZones surfaces a processor area's zones as devices, the way the
// flat /device read does on Caseta bridges.
func (b *Bridge) loadAreaZones(ctx context.Context, area *model.Area, seen *seenSet) error {
	url := fmt.Sprintf("/area/%s/associatedzone", area.ID)
	msg, err := b.request(ctx, leap.ReadRequest, url, nil)
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	body := model.MultipleZoneDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, def := range body.Zones {
		zoneID, err := model.IDFromHref(def.Href)
		if err != nil {
			continue
		}
		seen.devices[zoneID] = struct{}{}
		seen.zones[zoneID] = struct{}{}

		device := b.ensureDeviceLocked(zoneID)
		device.Type = def.ControlType
		device.AreaID = area.ID
		device.ZoneID = zoneID
		device.DeviceName = model.StripDeviceName(area.Name, def.Name)
		device.Name = area.Name + "/" + device.DeviceName
		if def.Level != nil {
			device.CurrentState = *def.Level
		}
		if def.FanSpeed != nil {
			device.FanSpeed = *def.FanSpeed
		}

		zone := b.zones[zoneID]
		if zone == nil {
			zone = &model.Zone{ID: zoneID}
			b.zones[zoneID] = zone
		}
		zone.DeviceID = zoneID
	}
	return nil
}

// loadProcessorOccupancy derives occupancy groups from the processor's
// occupancy sensor devices, keyed by area.
func (b *Bridge) loadProcessorOccupancy(ctx context.Context, seen *seenSet) error {
	msg, err := b.request(ctx, leap.ReadRequest, "/device?where=IsThisDevice:false", nil)
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	body := model.MultipleDeviceDefinition{}
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, def := range body.Devices {
		if !model.IsOccupancySensorType(def.DeviceType) {
			continue
		}
		sensorID, err := model.IDFromHref(def.Href)
		if err != nil || def.AssociatedArea == nil {
			continue
		}
		areaID, err := model.IDFromHref(def.AssociatedArea.Href)
		if err != nil {
			continue
		}
		area := b.areas[areaID]
		if area == nil {
			b.logger.Warn("occupancy sensor in unknown area",
				zap.String("sensor", sensorID), zap.String("area", areaID))
			continue
		}
		seen.occupancyGroups[areaID] = struct{}{}
		group := b.occupancyGroups[areaID]
		if group == nil {
			group = &model.OccupancyGroup{ID: areaID, Status: model.OccupancyUnknown}
			b.occupancyGroups[areaID] = group
		}
		group.AreaID = areaID
		found := false
		for _, existing := range group.SensorIDs {
			if existing == sensorID {
				found = true
				break
			}
		}
		if !found {
			group.SensorIDs = append(group.SensorIDs, sensorID)
		}
		area.OccupancyGroupID = group.ID
		area.SensorIDs = append(area.SensorIDs[:0], group.SensorIDs...)
	}
	return nil
}

// prune drops entries the fresh bootstrap no longer reports. Maps are
// mutated in place so holders of the maps' entities keep working.
func (b *Bridge) prune(seen *seenSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seen.areasComplete {
		pruneMap(b.areas, seen.areas)
	}
	if seen.devicesComplete {
		pruneMap(b.devices, seen.devices)
		pruneMap(b.zones, seen.zones)
	}
	if seen.buttonsComplete {
		pruneMap(b.buttonGroups, seen.buttonGroups)
		for id, button := range b.buttons {
			if _, ok := seen.buttons[id]; !ok {
				if button.LEDID != "" {
					delete(b.ledOwners, button.LEDID)
				}
				delete(b.buttons, id)
			}
		}
	}
	if seen.occupancyComplete {
		pruneMap(b.occupancyGroups, seen.occupancyGroups)
	}
	if seen.scenesComplete {
		pruneMap(b.scenes, seen.scenes)
	}
}

func pruneMap[T any](entries map[string]*T, seen map[string]struct{}) {
	for id := range entries {
		if _, ok := seen[id]; !ok {
			delete(entries, id)
		}
	}
}
