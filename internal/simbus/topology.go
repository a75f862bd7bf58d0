package simbus

import (
	"errors"
	"fmt"
	"os"

	"github.com/allbin/go-uartbridge"
	"gopkg.in/yaml.v3"
)

// ErrInvalidTopology is returned for device files that cannot describe a bus
var ErrInvalidTopology = errors.New("invalid device topology")

// topologyFile is the YAML layout of a simulated device list:
//
//	devices:
//	  - type: base
//	    id: 1
//	  - type: interconnect
//	    id: 8
type topologyFile struct {
	Devices []struct {
		Type string `yaml:"type"`
		ID   uint32 `yaml:"id"`
	} `yaml:"devices"`
}

// LoadDevices reads a device list from a YAML file, in enumeration order.
//
// Returns:
//   - []uartbridge.DeviceHandle: Devices as the bus will report them
//   - error: If the file cannot be read, parsed, or validation fails
func LoadDevices(path string) ([]uartbridge.DeviceHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices decodes a YAML device list. Identifiers must be non-zero and unique.
func ParseDevices(data []byte) ([]uartbridge.DeviceHandle, error) {
	var file topologyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing device file: %w", err)
	}
	if len(file.Devices) == 0 {
		return nil, fmt.Errorf("%w: no devices", ErrInvalidTopology)
	}

	seen := make(map[uint32]bool, len(file.Devices))
	devices := make([]uartbridge.DeviceHandle, 0, len(file.Devices))
	for i, d := range file.Devices {
		t, err := uartbridge.ParseDeviceType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: device %d: %w", ErrInvalidTopology, i, err)
		}
		if d.ID == 0 {
			return nil, fmt.Errorf("%w: device %d: id must be non-zero", ErrInvalidTopology, i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidTopology, d.ID)
		}
		seen[d.ID] = true
		devices = append(devices, uartbridge.DeviceHandle{Type: t, ID: uartbridge.DeviceIdentifier(d.ID)})
	}
	return devices, nil
}
