// Package uart drives a local serial line in raw mode. The simulated control
// bus puts bridged bytes on it and carries whatever the far end answers back
// to the bridge client.
package uart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-uartbridge"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidConfig   = errors.New("invalid serial configuration")
	ErrPortClosed      = errors.New("serial port is closed")
)

// maxReadTimeout is the largest wait VTIME can express (255 tenths)
const maxReadTimeout = 25500 * time.Millisecond

// Port is an open serial line. Read returns 0, nil when the read timeout
// passes without data, so a reader loop can notice Close in between.
type Port interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// Config is the line framing plus the read wait
type Config struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	ReadTimeout time.Duration // rounded down to tenths of a second
}

// Option is a functional option for configuring a port
type Option func(*Config) error

// DefaultConfig returns 115200 8N1 with a 1s read timeout
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		ReadTimeout: time.Second,
	}
}

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

var dataBitsFlags = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, ok := baudRates[rate]; !ok {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if _, ok := dataBitsFlags[bits]; !ok {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		c.Parity = parity
		return nil
	}
}

// WithReadTimeout bounds how long Read waits for the first byte. Zero makes
// Read return immediately when nothing is buffered.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 || d > maxReadTimeout {
			return ErrInvalidConfig
		}
		c.ReadTimeout = d
		return nil
	}
}

// OptionsFromParameters translates control bus UART parameters into port
// options, so a local UART can stand in for the interconnect's line.
func OptionsFromParameters(params uartbridge.UARTParameters) ([]Option, error) {
	baud := params.Speed.BaudRate()
	if baud == 0 {
		return nil, fmt.Errorf("%w: speed %d", ErrInvalidBaudRate, params.Speed)
	}

	var parity Parity
	switch params.Parity {
	case uartbridge.UARTParityNone:
		parity = ParityNone
	case uartbridge.UARTParityOdd:
		parity = ParityOdd
	case uartbridge.UARTParityEven:
		parity = ParityEven
	default:
		return nil, fmt.Errorf("%w: parity %s", ErrInvalidConfig, params.Parity)
	}

	return []Option{
		WithBaudRate(baud),
		WithDataBits(params.WordLength.Bits()),
		WithStopBits(params.StopBits.Bits()),
		WithParity(parity),
	}, nil
}

// makeRaw rewrites t for a raw line with the framing in config
func makeRaw(t *unix.Termios, config Config) error {
	speed, ok := baudRates[config.BaudRate]
	if !ok {
		return ErrInvalidBaudRate
	}
	size, ok := dataBitsFlags[config.DataBits]
	if !ok {
		return ErrInvalidConfig
	}

	cflag := uint32(unix.CREAD|unix.CLOCAL) | speed | size
	if config.StopBits == 2 {
		cflag |= unix.CSTOPB
	}
	switch config.Parity {
	case ParityOdd:
		cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		cflag |= unix.PARENB
	}

	t.Iflag, t.Oflag, t.Lflag = 0, 0, 0
	t.Cflag = cflag
	t.Ispeed, t.Ospeed = speed, speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = uint8(config.ReadTimeout / (100 * time.Millisecond))
	return nil
}

type tty struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

var _ Port = (*tty)(nil)

// Open opens a serial device in raw mode
func Open(device string, opts ...Option) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err == nil {
		if err = makeRaw(termios, config); err == nil {
			err = unix.IoctlSetTermios(fd, unix.TCSETS, termios)
		}
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to configure %s: %w", device, err)
	}

	return &tty{fd: fd}, nil
}

func (p *tty) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	return unix.Close(p.fd)
}

func (p *tty) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	n, err := unix.Read(p.fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (p *tty) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	n, err := unix.Write(p.fd, data)
	if n < 0 {
		n = 0
	}
	return n, err
}
