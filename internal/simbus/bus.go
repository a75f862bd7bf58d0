// Package simbus is an in-process stand-in for the arm's control bus.
//
// It answers device enumeration, UART configuration and bridge control calls,
// and backs every enabled bridge with a real TCP listener whose inbound bytes
// are mirrored onto a sink: an in-memory record, an optional writer, and an
// optional local UART opened with the last configuration the interconnect
// received.
package simbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/allbin/go-uartbridge"
	"github.com/allbin/go-uartbridge/internal/uart"
)

// ErrUnknownBridge is returned for calls naming a bridge that is not enabled
var ErrUnknownBridge = errors.New("unknown bridge")

// uartPollInterval bounds each read on the local UART
const uartPollInterval = 100 * time.Millisecond

// Faults injects failures into the simulated control bus
type Faults struct {
	ListErr          error
	ConfigErr        error
	ConfigStatus     uartbridge.ConfigStatus
	EnableErr        error
	EnableStatus     uartbridge.BridgeStatus
	GetConfigErr     error
	DisableErr       error
	RefuseConnection bool // bridge port reported, but nothing listens on it
}

// Bus is a simulated control bus. It implements uartbridge.DeviceManager,
// uartbridge.BridgeControl and uartbridge.InterconnectConfig.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	listenHost string
	uartDevice string
	echo       bool
	logger     uartbridge.Logger

	mu       sync.Mutex
	devices  []uartbridge.DeviceHandle
	faults   Faults
	nextID   uartbridge.BridgeID
	bridges  map[uartbridge.BridgeID]*bridge
	uartCfg  map[uartbridge.DeviceIdentifier]uartbridge.UARTParameters
	received bytes.Buffer
	sink     io.Writer
	port     uart.Port
	released int
}

var (
	_ uartbridge.DeviceManager      = (*Bus)(nil)
	_ uartbridge.BridgeControl      = (*Bus)(nil)
	_ uartbridge.InterconnectConfig = (*Bus)(nil)
)

// Option configures a Bus
type Option func(*Bus)

// WithDevices replaces the default device list
func WithDevices(devices ...uartbridge.DeviceHandle) Option {
	return func(b *Bus) {
		b.devices = append([]uartbridge.DeviceHandle(nil), devices...)
	}
}

// WithListenHost sets the address bridge listeners bind to
func WithListenHost(host string) Option {
	return func(b *Bus) {
		b.listenHost = host
	}
}

// WithSink mirrors every bridged byte onto w as well. Wrap w in HexLog for a
// readable traffic log.
func WithSink(w io.Writer) Option {
	return func(b *Bus) {
		b.sink = w
	}
}

// WithUARTDevice mirrors bridged bytes onto a local serial device, opened
// with the parameters pushed through SetUARTConfiguration
func WithUARTDevice(path string) Option {
	return func(b *Bus) {
		b.uartDevice = path
	}
}

// WithEcho makes every bridge send received bytes back to the client
func WithEcho() Option {
	return func(b *Bus) {
		b.echo = true
	}
}

// WithLogger sets the logger
func WithLogger(logger uartbridge.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// DefaultDevices is a base with six actuators, an interconnect and a vision module
func DefaultDevices() []uartbridge.DeviceHandle {
	devices := []uartbridge.DeviceHandle{{Type: uartbridge.DeviceTypeBase, ID: 1}}
	for id := uartbridge.DeviceIdentifier(2); id <= 7; id++ {
		devices = append(devices, uartbridge.DeviceHandle{Type: uartbridge.DeviceTypeActuator, ID: id})
	}
	return append(devices,
		uartbridge.DeviceHandle{Type: uartbridge.DeviceTypeInterconnect, ID: 8},
		uartbridge.DeviceHandle{Type: uartbridge.DeviceTypeVision, ID: 9},
	)
}

// New creates a simulated bus
func New(opts ...Option) *Bus {
	b := &Bus{
		listenHost: "127.0.0.1",
		logger:     discard{},
		devices:    DefaultDevices(),
		nextID:     1,
		bridges:    make(map[uartbridge.BridgeID]*bridge),
		uartCfg:    make(map[uartbridge.DeviceIdentifier]uartbridge.UARTParameters),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Host returns the address clients should dial to reach bridge ports
func (b *Bus) Host() string {
	return b.listenHost
}

// SetFaults replaces the injected faults
func (b *Bus) SetFaults(f Faults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = f
}

// ListDevices returns the configured devices in order
func (b *Bus) ListDevices(ctx context.Context) ([]uartbridge.DeviceHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults.ListErr != nil {
		return nil, b.faults.ListErr
	}
	return append([]uartbridge.DeviceHandle(nil), b.devices...), nil
}

// SetUARTConfiguration records params for an interconnect device
func (b *Bus) SetUARTConfiguration(ctx context.Context, id uartbridge.DeviceIdentifier, params uartbridge.UARTParameters) (uartbridge.ConfigStatus, error) {
	if err := ctx.Err(); err != nil {
		return uartbridge.ConfigStatusRejected, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults.ConfigErr != nil {
		return uartbridge.ConfigStatusRejected, b.faults.ConfigErr
	}
	if b.faults.ConfigStatus != uartbridge.ConfigStatusOK {
		return b.faults.ConfigStatus, nil
	}
	if b.deviceType(id) != uartbridge.DeviceTypeInterconnect {
		return uartbridge.ConfigStatusRejected, nil
	}
	if params.Speed.BaudRate() == 0 || params.WordLength.Bits() == 0 || params.StopBits.Bits() == 0 {
		return uartbridge.ConfigStatusRejected, nil
	}

	if b.uartDevice != "" && params.Enabled {
		if err := b.reopenUART(params); err != nil {
			b.logger.Error("failed to open local UART", "device", b.uartDevice, "error", err)
			return uartbridge.ConfigStatusRejected, nil
		}
	}

	b.uartCfg[id] = params
	b.logger.Info("UART configuration stored", "device", id, "params", params.String())
	return uartbridge.ConfigStatusOK, nil
}

// reopenUART must be called with mu held
func (b *Bus) reopenUART(params uartbridge.UARTParameters) error {
	opts, err := uart.OptionsFromParameters(params)
	if err != nil {
		return err
	}
	if b.port != nil {
		b.port.Close()
		b.port = nil
	}
	port, err := uart.Open(b.uartDevice, append(opts, uart.WithReadTimeout(uartPollInterval))...)
	if err != nil {
		return err
	}
	b.attachUART(port)
	return nil
}

// attachUART must be called with mu held. It makes port the mirror target and
// starts relaying what arrives on it to the bridge clients.
func (b *Bus) attachUART(port uart.Port) {
	b.port = port
	go b.relayUART(port)
}

// relayUART forwards bytes read from port to every connected bridge client
// until the port is closed.
func (b *Bus) relayUART(port uart.Port) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			b.broadcast(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, uart.ErrPortClosed) {
				b.logger.Warn("UART read failed", "device", b.uartDevice, "error", err)
			}
			return
		}
	}
}

// broadcast writes data to the clients of every enabled bridge
func (b *Bus) broadcast(data []byte) {
	b.mu.Lock()
	bridges := make([]*bridge, 0, len(b.bridges))
	for _, br := range b.bridges {
		bridges = append(bridges, br)
	}
	b.mu.Unlock()

	for _, br := range bridges {
		br.send(data)
	}
}

// UARTConfiguration returns the last parameters stored for a device
func (b *Bus) UARTConfiguration(id uartbridge.DeviceIdentifier) (uartbridge.UARTParameters, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	params, ok := b.uartCfg[id]
	return params, ok
}

// EnableBridge opens a listener for the device and returns its bridge id
func (b *Bus) EnableBridge(ctx context.Context, cfg uartbridge.BridgeConfig) (uartbridge.BridgeResult, error) {
	if err := ctx.Err(); err != nil {
		return uartbridge.BridgeResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults.EnableErr != nil {
		return uartbridge.BridgeResult{}, b.faults.EnableErr
	}
	if b.faults.EnableStatus != uartbridge.BridgeStatusOK {
		return uartbridge.BridgeResult{Status: b.faults.EnableStatus}, nil
	}
	if b.deviceType(cfg.DeviceID) != uartbridge.DeviceTypeInterconnect || cfg.Type != uartbridge.BridgeTypeUART {
		return uartbridge.BridgeResult{Status: uartbridge.BridgeStatusDeviceUnavailable}, nil
	}
	for _, br := range b.bridges {
		if br.device == cfg.DeviceID {
			return uartbridge.BridgeResult{Status: uartbridge.BridgeStatusAlreadyExists}, nil
		}
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(b.listenHost, "0"))
	if err != nil {
		return uartbridge.BridgeResult{Status: uartbridge.BridgeStatusPortUnavailable}, nil
	}

	id := b.nextID
	b.nextID++

	br := newBridge(id, cfg.DeviceID, ln, b)
	if b.faults.RefuseConnection {
		ln.Close()
	} else {
		go br.serve()
	}
	b.bridges[id] = br

	b.logger.Info("bridge enabled", "bridge", id, "device", cfg.DeviceID, "port", br.port)
	return uartbridge.BridgeResult{Status: uartbridge.BridgeStatusOK, ID: id}, nil
}

// GetBridgeConfig returns the port a bridge listens on
func (b *Bus) GetBridgeConfig(ctx context.Context, id uartbridge.BridgeID) (uartbridge.BridgePortConfig, error) {
	if err := ctx.Err(); err != nil {
		return uartbridge.BridgePortConfig{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults.GetConfigErr != nil {
		return uartbridge.BridgePortConfig{}, b.faults.GetConfigErr
	}
	br, ok := b.bridges[id]
	if !ok {
		return uartbridge.BridgePortConfig{}, fmt.Errorf("%w: %d", ErrUnknownBridge, id)
	}
	return uartbridge.BridgePortConfig{OutPort: br.port}, nil
}

// DisableBridge closes a bridge and its connections. The bridge is released
// even when an injected error is returned, as a device would after a lost reply.
func (b *Bus) DisableBridge(ctx context.Context, id uartbridge.BridgeID) (uartbridge.BridgeStatus, error) {
	b.mu.Lock()
	br, ok := b.bridges[id]
	if ok {
		delete(b.bridges, id)
		b.released++
	}
	fault := b.faults.DisableErr
	b.mu.Unlock()

	if ok {
		br.close()
		b.logger.Info("bridge disabled", "bridge", id)
	}

	if fault != nil {
		return uartbridge.BridgeStatusUnknown, fault
	}
	if err := ctx.Err(); err != nil {
		return uartbridge.BridgeStatusUnknown, err
	}
	if !ok {
		return uartbridge.BridgeStatusUnknown, nil
	}
	return uartbridge.BridgeStatusOK, nil
}

// OutstandingBridges returns the number of bridges currently enabled
func (b *Bus) OutstandingBridges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bridges)
}

// ReleasedBridges returns how many bridges have been disabled so far
func (b *Bus) ReleasedBridges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// ActiveConnections returns the number of client connections across bridges
func (b *Bus) ActiveConnections() int {
	b.mu.Lock()
	bridges := make([]*bridge, 0, len(b.bridges))
	for _, br := range b.bridges {
		bridges = append(bridges, br)
	}
	b.mu.Unlock()

	n := 0
	for _, br := range bridges {
		n += br.connections()
	}
	return n
}

// Received returns a copy of every byte received on any bridge
func (b *Bus) Received() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.received.Bytes())
}

// Close disables all bridges and closes the local UART
func (b *Bus) Close() error {
	b.mu.Lock()
	bridges := b.bridges
	b.bridges = make(map[uartbridge.BridgeID]*bridge)
	port := b.port
	b.port = nil
	b.mu.Unlock()

	for _, br := range bridges {
		br.close()
	}
	if port != nil {
		return port.Close()
	}
	return nil
}

// mirror records data and forwards it to the configured sinks
func (b *Bus) mirror(id uartbridge.BridgeID, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.received.Write(data)
	b.logger.Debug("bridge received", "bridge", id, "data", uartbridge.Render(data))

	if b.sink != nil {
		if _, err := b.sink.Write(data); err != nil {
			b.logger.Warn("sink write failed", "bridge", id, "error", err)
		}
	}
	if b.port != nil {
		if _, err := b.port.Write(data); err != nil {
			b.logger.Warn("UART write failed", "bridge", id, "error", err)
		}
	}
}

// deviceType must be called with mu held
func (b *Bus) deviceType(id uartbridge.DeviceIdentifier) uartbridge.DeviceType {
	for _, d := range b.devices {
		if d.ID == id {
			return d.Type
		}
	}
	return uartbridge.DeviceTypeUnspecified
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
