package uartbridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/allbin/go-uartbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fiveDevices() []uartbridge.DeviceHandle {
	return []uartbridge.DeviceHandle{
		{Type: uartbridge.DeviceTypeBase, ID: 1},
		{Type: uartbridge.DeviceTypeActuator, ID: 2},
		{Type: uartbridge.DeviceTypeInterconnect, ID: 13},
		{Type: uartbridge.DeviceTypeActuator, ID: 3},
		{Type: uartbridge.DeviceTypeVision, ID: 14},
	}
}

func TestResolve(t *testing.T) {
	manager := &mockDeviceManager{}
	manager.On("ListDevices", mock.Anything).Return(fiveDevices(), nil)

	registry, err := uartbridge.NewDeviceRegistry(manager)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := registry.Resolve(ctx, uartbridge.DeviceTypeInterconnect, 0)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.DeviceIdentifier(13), id)

	_, err = registry.Resolve(ctx, uartbridge.DeviceTypeInterconnect, 1)
	assert.ErrorIs(t, err, uartbridge.ErrDeviceNotFound)

	id, err = registry.Resolve(ctx, uartbridge.DeviceTypeActuator, 1)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.DeviceIdentifier(3), id)

	_, err = registry.Resolve(ctx, uartbridge.DeviceTypeGripper, 0)
	assert.ErrorIs(t, err, uartbridge.ErrDeviceNotFound)

	// No caching: every resolve queries the bus.
	manager.AssertNumberOfCalls(t, "ListDevices", 4)
}

func TestResolveNegativeIndex(t *testing.T) {
	manager := &mockDeviceManager{}
	registry, err := uartbridge.NewDeviceRegistry(manager)
	require.NoError(t, err)

	_, err = registry.Resolve(context.Background(), uartbridge.DeviceTypeInterconnect, -1)
	assert.ErrorIs(t, err, uartbridge.ErrDeviceNotFound)
	manager.AssertNotCalled(t, "ListDevices", mock.Anything)
}

func TestResolveListError(t *testing.T) {
	busErr := errors.New("router disconnected")
	manager := &mockDeviceManager{}
	manager.On("ListDevices", mock.Anything).Return(nil, busErr)

	registry, err := uartbridge.NewDeviceRegistry(manager)
	require.NoError(t, err)

	_, err = registry.Resolve(context.Background(), uartbridge.DeviceTypeInterconnect, 0)
	assert.ErrorIs(t, err, busErr)
	assert.NotErrorIs(t, err, uartbridge.ErrDeviceNotFound)
}

func TestResolveUsesRPCTimeout(t *testing.T) {
	manager := &mockDeviceManager{}
	manager.On("ListDevices", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(fiveDevices(), nil)

	registry, err := uartbridge.NewDeviceRegistry(manager)
	require.NoError(t, err)

	_, err = registry.Resolve(context.Background(), uartbridge.DeviceTypeInterconnect, 0)
	require.NoError(t, err)
	manager.AssertExpectations(t)
}

func TestParseDeviceType(t *testing.T) {
	got, err := uartbridge.ParseDeviceType("interconnect")
	require.NoError(t, err)
	assert.Equal(t, uartbridge.DeviceTypeInterconnect, got)

	_, err = uartbridge.ParseDeviceType("toaster")
	assert.ErrorIs(t, err, uartbridge.ErrInvalidConfig)
}

func TestNewDeviceRegistryRequiresManager(t *testing.T) {
	_, err := uartbridge.NewDeviceRegistry(nil)
	assert.ErrorIs(t, err, uartbridge.ErrInvalidConfig)
}
