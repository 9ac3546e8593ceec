package bridge

import (
	"github.com/samber/lo"

	"github.com/lutron-community/leap-go/internal/pkg/model"
)

// GetDevices returns a snapshot of the device map. The map is a copy; the
// entries are the live entities, whose identity is stable across
// reconnects.
func (b *Bridge) GetDevices() map[string]*model.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Assign(map[string]*model.Device{}, b.devices)
}

// GetDeviceByID looks up one device.
func (b *Bridge) GetDeviceByID(deviceID string) (*model.Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	device, ok := b.devices[deviceID]
	if !ok {
		return nil, &UnknownEntityError{Kind: "device", ID: deviceID}
	}
	return device, nil
}

// GetDeviceByZoneID returns the device owning a zone.
func (b *Bridge) GetDeviceByZoneID(zoneID string) (*model.Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	zone, ok := b.zones[zoneID]
	if !ok {
		return nil, &UnknownEntityError{Kind: "zone", ID: zoneID}
	}
	device, ok := b.devices[zone.DeviceID]
	if !ok {
		return nil, &UnknownEntityError{Kind: "device", ID: zone.DeviceID}
	}
	return device, nil
}

// GetDevicesByDomain returns all devices classified into the domain.
func (b *Bridge) GetDevicesByDomain(domain model.Domain) []*model.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Filter(lo.Values(b.devices), func(d *model.Device, _ int) bool {
		return d.Domain() == domain
	})
}

// GetDevicesByType returns all devices with the given bridge type string.
func (b *Bridge) GetDevicesByType(deviceType string) []*model.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Filter(lo.Values(b.devices), func(d *model.Device, _ int) bool {
		return d.Type == deviceType
	})
}

// GetAreas returns a snapshot of the area map.
func (b *Bridge) GetAreas() map[string]*model.Area {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Assign(map[string]*model.Area{}, b.areas)
}

// GetButtons returns a snapshot of the button map.
func (b *Bridge) GetButtons() map[string]*model.Button {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Assign(map[string]*model.Button{}, b.buttons)
}

// GetOccupancyGroups returns a snapshot of the occupancy group map.
func (b *Bridge) GetOccupancyGroups() map[string]*model.OccupancyGroup {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Assign(map[string]*model.OccupancyGroup{}, b.occupancyGroups)
}

// GetScenes returns a snapshot of the scene map.
func (b *Bridge) GetScenes() map[string]*model.Scene {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Assign(map[string]*model.Scene{}, b.scenes)
}
