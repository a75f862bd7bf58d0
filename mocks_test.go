package uartbridge_test

import (
	"context"

	"github.com/allbin/go-uartbridge"
	"github.com/stretchr/testify/mock"
)

type mockDeviceManager struct {
	mock.Mock
}

func (m *mockDeviceManager) ListDevices(ctx context.Context) ([]uartbridge.DeviceHandle, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]uartbridge.DeviceHandle)
	return devices, args.Error(1)
}

type mockInterconnectConfig struct {
	mock.Mock
}

func (m *mockInterconnectConfig) SetUARTConfiguration(ctx context.Context, id uartbridge.DeviceIdentifier, params uartbridge.UARTParameters) (uartbridge.ConfigStatus, error) {
	args := m.Called(ctx, id, params)
	return args.Get(0).(uartbridge.ConfigStatus), args.Error(1)
}

type mockBridgeControl struct {
	mock.Mock
}

func (m *mockBridgeControl) EnableBridge(ctx context.Context, cfg uartbridge.BridgeConfig) (uartbridge.BridgeResult, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(uartbridge.BridgeResult), args.Error(1)
}

func (m *mockBridgeControl) GetBridgeConfig(ctx context.Context, id uartbridge.BridgeID) (uartbridge.BridgePortConfig, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(uartbridge.BridgePortConfig), args.Error(1)
}

func (m *mockBridgeControl) DisableBridge(ctx context.Context, id uartbridge.BridgeID) (uartbridge.BridgeStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(uartbridge.BridgeStatus), args.Error(1)
}
