// Package publisher fans device state out to pluggable backends. The
// bridge daemon registers one subscriber per device and forwards every
// change here.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

// Publisher is a state sink: an MQTT broker, a database, a log.
type Publisher interface {
	// RegisterDevice announces a device before its first state update.
	RegisterDevice(device *model.Device) error

	// PublishState delivers a device's current state.
	PublishState(ctx context.Context, device *model.Device) error
}

// Registry dispatches to every registered publisher, skipping updates
// whose state has not changed since the last publish.
type Registry struct {
	logger *zap.Logger

	mu         sync.Mutex
	publishers map[string]Publisher
	lastStates map[string]string
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:     logger,
		publishers: make(map[string]Publisher),
		lastStates: make(map[string]string),
	}
}

// Register adds a named publisher.
func (r *Registry) Register(name string, p Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return errAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

// RegisterDevice announces a device to every publisher.
func (r *Registry) RegisterDevice(device *model.Device) {
	r.mu.Lock()
	publishers := r.snapshot()
	r.mu.Unlock()
	for name, p := range publishers {
		if err := p.RegisterDevice(device); err != nil {
			r.logger.Error("failed to register device",
				zap.Error(err), zap.String("publisher", name), zap.String("device", device.ID))
		}
	}
}

// PublishState delivers the device's state to every publisher when it has
// changed since the previous call.
func (r *Registry) PublishState(ctx context.Context, device *model.Device) {
	fingerprint := stateFingerprint(device)
	r.mu.Lock()
	if r.lastStates[device.ID] == fingerprint {
		r.mu.Unlock()
		return
	}
	r.lastStates[device.ID] = fingerprint
	publishers := r.snapshot()
	r.mu.Unlock()

	for name, p := range publishers {
		if err := p.PublishState(ctx, device); err != nil {
			r.logger.Error("failed to publish state",
				zap.Error(err), zap.String("publisher", name), zap.String("device", device.ID))
			continue
		}
	}
	r.logger.Debug("published state",
		zap.String("device", device.ID), zap.String("state", fingerprint))
}

func (r *Registry) snapshot() map[string]Publisher {
	publishers := make(map[string]Publisher, len(r.publishers))
	for name, p := range r.publishers {
		publishers[name] = p
	}
	return publishers
}

func stateFingerprint(device *model.Device) string {
	tilt := -1
	if device.Tilt != nil {
		tilt = *device.Tilt
	}
	return fmt.Sprintf("%d/%s/%d", device.CurrentState, device.FanSpeed, tilt)
}
