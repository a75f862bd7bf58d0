package uartbridge

import (
	"context"
	"fmt"
)

// DeviceType identifies the kind of sub-device attached to the control bus
type DeviceType int

const (
	DeviceTypeUnspecified DeviceType = iota
	DeviceTypeBase
	DeviceTypeActuator
	DeviceTypeInterconnect
	DeviceTypeVision
	DeviceTypeGripper
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeBase:
		return "base"
	case DeviceTypeActuator:
		return "actuator"
	case DeviceTypeInterconnect:
		return "interconnect"
	case DeviceTypeVision:
		return "vision"
	case DeviceTypeGripper:
		return "gripper"
	default:
		return "unspecified"
	}
}

// ParseDeviceType converts a device type name back to its DeviceType
func ParseDeviceType(name string) (DeviceType, error) {
	for t := DeviceTypeBase; t <= DeviceTypeGripper; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return DeviceTypeUnspecified, fmt.Errorf("%w: unknown device type %q", ErrInvalidConfig, name)
}

// DeviceIdentifier is the opaque handle the control bus assigns to a sub-device
type DeviceIdentifier uint32

// DeviceHandle is one entry of the control bus device enumeration
type DeviceHandle struct {
	Type DeviceType
	ID   DeviceIdentifier
}

// BridgeID is the remote-assigned token for an enabled bridge
type BridgeID uint32

// BridgePort is the TCP port a bridge listens on for the mirrored byte stream
type BridgePort uint16

// BridgeType selects what a bridge mirrors the TCP stream onto
type BridgeType int

const (
	BridgeTypeUnspecified BridgeType = iota
	BridgeTypeUART
	BridgeTypeEthernet
)

func (t BridgeType) String() string {
	switch t {
	case BridgeTypeUART:
		return "uart"
	case BridgeTypeEthernet:
		return "ethernet"
	default:
		return "unspecified"
	}
}

// BridgeStatus is the result code of a bridge-control call
type BridgeStatus int

const (
	BridgeStatusOK BridgeStatus = iota
	BridgeStatusAlreadyExists
	BridgeStatusPortUnavailable
	BridgeStatusDeviceUnavailable
	BridgeStatusUnknown
)

func (s BridgeStatus) String() string {
	switch s {
	case BridgeStatusOK:
		return "ok"
	case BridgeStatusAlreadyExists:
		return "already exists"
	case BridgeStatusPortUnavailable:
		return "port unavailable"
	case BridgeStatusDeviceUnavailable:
		return "device unavailable"
	default:
		return "unknown"
	}
}

// BridgeConfig is the request sent to allocate a bridge
type BridgeConfig struct {
	DeviceID DeviceIdentifier
	Type     BridgeType
}

// BridgeResult is the control bus answer to an enable request
type BridgeResult struct {
	Status BridgeStatus
	ID     BridgeID
}

// BridgePortConfig describes where an enabled bridge can be reached
type BridgePortConfig struct {
	OutPort BridgePort
}

// BridgeHandle is the locally held view of an enabled bridge
type BridgeHandle struct {
	ID           BridgeID
	OutboundPort BridgePort
}

// ConfigStatus is the result code of a configuration call
type ConfigStatus int

const (
	ConfigStatusOK ConfigStatus = iota
	ConfigStatusRejected
)

// DeviceManager enumerates the sub-devices attached to the control bus.
// Enumeration order must be stable for the lifetime of a control bus session.
type DeviceManager interface {
	ListDevices(ctx context.Context) ([]DeviceHandle, error)
}

// BridgeControl allocates and releases bridges on the base
type BridgeControl interface {
	EnableBridge(ctx context.Context, cfg BridgeConfig) (BridgeResult, error)
	GetBridgeConfig(ctx context.Context, id BridgeID) (BridgePortConfig, error)
	DisableBridge(ctx context.Context, id BridgeID) (BridgeStatus, error)
}

// InterconnectConfig pushes UART settings to an interconnect device
type InterconnectConfig interface {
	SetUARTConfiguration(ctx context.Context, id DeviceIdentifier, params UARTParameters) (ConfigStatus, error)
}
