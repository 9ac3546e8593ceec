package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/lutron-community/leap-go/internal/pkg/leap"
	"github.com/lutron-community/leap-go/internal/pkg/model"
)

// TurnOn drives a device to full output: level 100 for lights and
// switches, high speed for fans, raised for covers. A non-zero fade only
// applies to dimmable lights.
func (b *Bridge) TurnOn(ctx context.Context, deviceID string, fade time.Duration) error {
	device, err := b.GetDeviceByID(deviceID)
	if err != nil {
		return err
	}
	switch device.Domain() {
	case model.DomainFan:
		return b.SetFanSpeed(ctx, deviceID, model.FanHigh)
	case model.DomainCover:
		return b.RaiseCover(ctx, deviceID)
	default:
		return b.SetValue(ctx, deviceID, 100, fade)
	}
}

// TurnOff drives a device to zero output.
func (b *Bridge) TurnOff(ctx context.Context, deviceID string, fade time.Duration) error {
	device, err := b.GetDeviceByID(deviceID)
	if err != nil {
		return err
	}
	switch device.Domain() {
	case model.DomainFan:
		return b.SetFanSpeed(ctx, deviceID, model.FanOff)
	case model.DomainCover:
		return b.LowerCover(ctx, deviceID)
	default:
		return b.SetValue(ctx, deviceID, 0, fade)
	}
}

// SetValue sets a device's zone to a level between 0 and 100. A non-zero
// fade issues GoToDimmedLevel instead of GoToLevel.
func (b *Bridge) SetValue(ctx context.Context, deviceID string, level int, fade time.Duration) error {
	zoneID, err := b.zoneFor(deviceID)
	if err != nil {
		return err
	}
	var command model.Command
	if fade > 0 {
		command = model.Command{
			CommandType: "GoToDimmedLevel",
			DimmedLevelParameters: &model.DimmedLevelParams{
				Level:    level,
				FadeTime: model.FormatDuration(fade),
			},
		}
	} else {
		command = model.Command{
			CommandType: "GoToLevel",
			Parameter:   []model.CommandParameter{{Type: "Level", Value: level}},
		}
	}
	return b.sendZoneCommand(ctx, zoneID, command)
}

// SetFanSpeed sets a fan zone's speed.
func (b *Bridge) SetFanSpeed(ctx context.Context, deviceID string, speed model.FanSpeed) error {
	zoneID, err := b.zoneFor(deviceID)
	if err != nil {
		return err
	}
	return b.sendZoneCommand(ctx, zoneID, model.Command{
		CommandType:        "GoToFanSpeed",
		FanSpeedParameters: &model.FanSpeedParams{FanSpeed: speed},
	})
}

// SetTilt tilts blinds to a value between 0 and 100.
func (b *Bridge) SetTilt(ctx context.Context, deviceID string, tilt int) error {
	zoneID, err := b.zoneFor(deviceID)
	if err != nil {
		return err
	}
	return b.sendZoneCommand(ctx, zoneID, model.Command{
		CommandType:    "GoToTilt",
		TiltParameters: &model.TiltParams{Tilt: tilt},
	})
}

// RaiseCover starts raising a cover. The bridge sends no level update
// until the cover stops, so the state is set optimistically.
func (b *Bridge) RaiseCover(ctx context.Context, deviceID string) error {
	if err := b.sendSimpleZoneCommand(ctx, deviceID, "Raise"); err != nil {
		return err
	}
	b.setStateOptimistic(deviceID, 100)
	return nil
}

// LowerCover starts lowering a cover.
func (b *Bridge) LowerCover(ctx context.Context, deviceID string) error {
	if err := b.sendSimpleZoneCommand(ctx, deviceID, "Lower"); err != nil {
		return err
	}
	b.setStateOptimistic(deviceID, 0)
	return nil
}

// StopCover stops cover movement.
func (b *Bridge) StopCover(ctx context.Context, deviceID string) error {
	return b.sendSimpleZoneCommand(ctx, deviceID, "Stop")
}

// TapButton sends a press-and-release for a button.
func (b *Bridge) TapButton(ctx context.Context, buttonID string) error {
	b.mu.RLock()
	_, ok := b.buttons[buttonID]
	b.mu.RUnlock()
	if !ok {
		return &UnknownEntityError{Kind: "button", ID: buttonID}
	}
	url := fmt.Sprintf("/button/%s/commandprocessor", buttonID)
	_, err := b.request(ctx, leap.CreateRequest, url, model.CommandBody{
		Command: model.Command{CommandType: "PressAndRelease"},
	})
	return err
}

// ActivateScene presses a scene's virtual button.
func (b *Bridge) ActivateScene(ctx context.Context, sceneID string) error {
	b.mu.RLock()
	_, ok := b.scenes[sceneID]
	b.mu.RUnlock()
	if !ok {
		return &UnknownEntityError{Kind: "scene", ID: sceneID}
	}
	url := fmt.Sprintf("/virtualbutton/%s/commandprocessor", sceneID)
	_, err := b.request(ctx, leap.CreateRequest, url, model.CommandBody{
		Command: model.Command{CommandType: "PressAndRelease"},
	})
	return err
}

// SetButtonLED switches a keypad button LED on or off.
func (b *Bridge) SetButtonLED(ctx context.Context, ledID string, on bool) error {
	b.mu.RLock()
	_, ok := b.ledOwners[ledID]
	b.mu.RUnlock()
	if !ok {
		return &UnknownEntityError{Kind: "led", ID: ledID}
	}
	state := "Off"
	if on {
		state = "On"
	}
	url := fmt.Sprintf("/led/%s/status", ledID)
	body := map[string]any{"LEDStatus": map[string]any{"State": state}}
	_, err := b.request(ctx, leap.UpdateRequest, url, body)
	return err
}

func (b *Bridge) zoneFor(deviceID string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	device, ok := b.devices[deviceID]
	if !ok {
		return "", &UnknownEntityError{Kind: "device", ID: deviceID}
	}
	if device.ZoneID == "" {
		return "", &UnknownEntityError{Kind: "zone for device", ID: deviceID}
	}
	return device.ZoneID, nil
}

func (b *Bridge) sendZoneCommand(ctx context.Context, zoneID string, command model.Command) error {
	url := fmt.Sprintf("/zone/%s/commandprocessor", zoneID)
	_, err := b.request(ctx, leap.CreateRequest, url, model.CommandBody{Command: command})
	return err
}

func (b *Bridge) sendSimpleZoneCommand(ctx context.Context, deviceID, commandType string) error {
	zoneID, err := b.zoneFor(deviceID)
	if err != nil {
		return err
	}
	return b.sendZoneCommand(ctx, zoneID, model.Command{CommandType: commandType})
}

func (b *Bridge) setStateOptimistic(deviceID string, level int) {
	b.mu.Lock()
	if device := b.devices[deviceID]; device != nil {
		device.CurrentState = level
	}
	b.mu.Unlock()
}
