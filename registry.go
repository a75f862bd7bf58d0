package uartbridge

import (
	"context"
	"fmt"
)

// DeviceRegistry resolves (type, index) pairs against the control bus enumeration.
// Nothing is cached; callers resolve once and keep the identifier.
type DeviceRegistry struct {
	manager DeviceManager
	config  Config
}

// NewDeviceRegistry creates a registry backed by the device manager
func NewDeviceRegistry(manager DeviceManager, opts ...Option) (*DeviceRegistry, error) {
	if manager == nil {
		return nil, fmt.Errorf("%w: device manager is required", ErrInvalidConfig)
	}
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &DeviceRegistry{manager: manager, config: config}, nil
}

// Devices returns the raw device enumeration in bus order
func (r *DeviceRegistry) Devices(ctx context.Context) ([]DeviceHandle, error) {
	ctx, cancel := r.config.rpcContext(ctx)
	defer cancel()

	devices, err := r.manager.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Resolve returns the identifier of the index-th device of the given type,
// counting from 0 in enumeration order.
func (r *DeviceRegistry) Resolve(ctx context.Context, deviceType DeviceType, index int) (DeviceIdentifier, error) {
	if index < 0 {
		return 0, fmt.Errorf("%w: %s index %d", ErrDeviceNotFound, deviceType, index)
	}

	devices, err := r.Devices(ctx)
	if err != nil {
		return 0, err
	}

	current := 0
	for _, device := range devices {
		if device.Type != deviceType {
			continue
		}
		if current == index {
			r.config.Logger.Info("device resolved", "type", deviceType.String(), "index", index, "device", device.ID)
			return device.ID, nil
		}
		current++
	}

	return 0, fmt.Errorf("%w: %s index %d (%d present)", ErrDeviceNotFound, deviceType, index, current)
}
