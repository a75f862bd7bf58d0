package uartbridge

import (
	"context"
	"fmt"
)

// UARTPort selects which physical UART of the interconnect is configured
type UARTPort int

const (
	UARTPortUnspecified UARTPort = iota
	UARTPortExpansion
)

// UARTSpeed is the control bus encoding of a baud rate
type UARTSpeed int

const (
	UARTSpeedUnspecified UARTSpeed = iota
	UARTSpeed9600
	UARTSpeed19200
	UARTSpeed38400
	UARTSpeed57600
	UARTSpeed115200
	UARTSpeed230400
	UARTSpeed460800
	UARTSpeed921600
)

// BaudRate returns the numeric baud rate, or 0 for unknown speeds
func (s UARTSpeed) BaudRate() int {
	switch s {
	case UARTSpeed9600:
		return 9600
	case UARTSpeed19200:
		return 19200
	case UARTSpeed38400:
		return 38400
	case UARTSpeed57600:
		return 57600
	case UARTSpeed115200:
		return 115200
	case UARTSpeed230400:
		return 230400
	case UARTSpeed460800:
		return 460800
	case UARTSpeed921600:
		return 921600
	default:
		return 0
	}
}

// SpeedFromBaud maps a numeric baud rate to its bus encoding.
// Unknown rates map to UARTSpeedUnspecified and are left for the device to reject.
func SpeedFromBaud(baud int) UARTSpeed {
	for s := UARTSpeed9600; s <= UARTSpeed921600; s++ {
		if s.BaudRate() == baud {
			return s
		}
	}
	return UARTSpeedUnspecified
}

// UARTWordLength is the number of data bits per character
type UARTWordLength int

const (
	UARTWordLengthUnspecified UARTWordLength = iota
	UARTWordLength7
	UARTWordLength8
)

// Bits returns the number of data bits, or 0 when unspecified
func (w UARTWordLength) Bits() int {
	switch w {
	case UARTWordLength7:
		return 7
	case UARTWordLength8:
		return 8
	default:
		return 0
	}
}

// UARTStopBits is the number of stop bits per character
type UARTStopBits int

const (
	UARTStopBitsUnspecified UARTStopBits = iota
	UARTStopBits1
	UARTStopBits2
)

// Bits returns the number of stop bits, or 0 when unspecified
func (s UARTStopBits) Bits() int {
	switch s {
	case UARTStopBits1:
		return 1
	case UARTStopBits2:
		return 2
	default:
		return 0
	}
}

// UARTParity is the parity mode of the line
type UARTParity int

const (
	UARTParityUnspecified UARTParity = iota
	UARTParityNone
	UARTParityOdd
	UARTParityEven
)

func (p UARTParity) String() string {
	switch p {
	case UARTParityNone:
		return "none"
	case UARTParityOdd:
		return "odd"
	case UARTParityEven:
		return "even"
	default:
		return "unspecified"
	}
}

// UARTParameters is the full parameter set pushed in a single configuration call.
// Every field is sent; there are no partial updates.
type UARTParameters struct {
	PortID     UARTPort
	Enabled    bool
	Speed      UARTSpeed
	WordLength UARTWordLength
	StopBits   UARTStopBits
	Parity     UARTParity
}

func (p UARTParameters) String() string {
	return fmt.Sprintf("%d-%d%c%d enabled=%t", p.Speed.BaudRate(), p.WordLength.Bits(),
		parityLetter(p.Parity), p.StopBits.Bits(), p.Enabled)
}

func parityLetter(p UARTParity) byte {
	switch p {
	case UARTParityOdd:
		return 'O'
	case UARTParityEven:
		return 'E'
	case UARTParityNone:
		return 'N'
	default:
		return '?'
	}
}

// UARTOption is a functional option for building UART parameters
type UARTOption func(*UARTParameters) error

// DefaultUARTParameters returns the expansion port at 115200 8N1, enabled
func DefaultUARTParameters() UARTParameters {
	return UARTParameters{
		PortID:     UARTPortExpansion,
		Enabled:    true,
		Speed:      UARTSpeed115200,
		WordLength: UARTWordLength8,
		StopBits:   UARTStopBits1,
		Parity:     UARTParityNone,
	}
}

// NewUARTParameters applies opts on top of DefaultUARTParameters
func NewUARTParameters(opts ...UARTOption) (UARTParameters, error) {
	params := DefaultUARTParameters()
	for _, opt := range opts {
		if err := opt(&params); err != nil {
			return UARTParameters{}, err
		}
	}
	return params, nil
}

// WithPort sets the UART port
func WithPort(port UARTPort) UARTOption {
	return func(p *UARTParameters) error {
		p.PortID = port
		return nil
	}
}

// WithEnabled sets whether the UART is enabled
func WithEnabled(enabled bool) UARTOption {
	return func(p *UARTParameters) error {
		p.Enabled = enabled
		return nil
	}
}

// WithSpeed sets the line speed
func WithSpeed(speed UARTSpeed) UARTOption {
	return func(p *UARTParameters) error {
		p.Speed = speed
		return nil
	}
}

// WithWordLength sets the word length
func WithWordLength(w UARTWordLength) UARTOption {
	return func(p *UARTParameters) error {
		p.WordLength = w
		return nil
	}
}

// WithStopBits sets the stop bits
func WithStopBits(s UARTStopBits) UARTOption {
	return func(p *UARTParameters) error {
		p.StopBits = s
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity UARTParity) UARTOption {
	return func(p *UARTParameters) error {
		p.Parity = parity
		return nil
	}
}

// UARTConfigurator applies UART parameter sets to interconnect devices
type UARTConfigurator struct {
	client InterconnectConfig
	config Config
}

// NewUARTConfigurator creates a configurator on top of the interconnect config service
func NewUARTConfigurator(client InterconnectConfig, opts ...Option) (*UARTConfigurator, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: interconnect config client is required", ErrInvalidConfig)
	}
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &UARTConfigurator{client: client, config: config}, nil
}

// Apply sends params to the device in one call. There is no retry and no local
// range check; the device is the authority on what it accepts.
func (c *UARTConfigurator) Apply(ctx context.Context, id DeviceIdentifier, params UARTParameters) error {
	ctx, cancel := c.config.rpcContext(ctx)
	defer cancel()

	status, err := c.client.SetUARTConfiguration(ctx, id, params)
	if err != nil {
		return fmt.Errorf("%w: device %d: %w", ErrConfigurationRejected, id, err)
	}
	if status != ConfigStatusOK {
		return fmt.Errorf("%w: device %d returned status %d", ErrConfigurationRejected, id, status)
	}

	c.config.Logger.Info("UART configured", "device", id, "params", params.String())
	return nil
}
