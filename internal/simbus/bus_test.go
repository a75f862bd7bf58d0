package simbus

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/allbin/go-uartbridge"
	"github.com/allbin/go-uartbridge/internal/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialBridge(t *testing.T, bus *Bus, id uartbridge.BridgeID) net.Conn {
	t.Helper()
	cfg, err := bus.GetBridgeConfig(context.Background(), id)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", net.JoinHostPort(bus.Host(), strconv.Itoa(int(cfg.OutPort))))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBusMirrorsBridgedBytes(t *testing.T) {
	bus := New()
	t.Cleanup(func() { bus.Close() })
	ctx := context.Background()

	res, err := bus.EnableBridge(ctx, uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	require.Equal(t, uartbridge.BridgeStatusOK, res.Status)

	conn := dialBridge(t, bus, res.ID)
	_, err = conn.Write([]byte{0x2B, 0x01, 0x23})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return string(bus.Received()) == "\x2B\x01\x23"
	}, time.Second, 10*time.Millisecond)
}

func TestBusEcho(t *testing.T) {
	bus := New(WithEcho())
	t.Cleanup(func() { bus.Close() })

	res, err := bus.EnableBridge(context.Background(), uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)

	conn := dialBridge(t, bus, res.ID)
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 4)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestBusRejectsSecondBridgeForDevice(t *testing.T) {
	bus := New()
	t.Cleanup(func() { bus.Close() })
	ctx := context.Background()
	cfg := uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART}

	first, err := bus.EnableBridge(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, uartbridge.BridgeStatusOK, first.Status)

	second, err := bus.EnableBridge(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.BridgeStatusAlreadyExists, second.Status)

	status, err := bus.DisableBridge(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.BridgeStatusOK, status)
	assert.Equal(t, 0, bus.OutstandingBridges())
	assert.Equal(t, 1, bus.ReleasedBridges())
}

func TestBusBridgeOnlyForInterconnect(t *testing.T) {
	bus := New()
	t.Cleanup(func() { bus.Close() })

	res, err := bus.EnableBridge(context.Background(), uartbridge.BridgeConfig{DeviceID: 1, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	assert.Equal(t, uartbridge.BridgeStatusDeviceUnavailable, res.Status)
	assert.Equal(t, 0, bus.OutstandingBridges())
}

func TestBusDisableUnknownBridge(t *testing.T) {
	bus := New()

	status, err := bus.DisableBridge(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.BridgeStatusUnknown, status)
}

func TestBusUARTConfiguration(t *testing.T) {
	bus := New()
	ctx := context.Background()
	params := uartbridge.DefaultUARTParameters()

	status, err := bus.SetUARTConfiguration(ctx, 8, params)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.ConfigStatusOK, status)

	got, ok := bus.UARTConfiguration(8)
	require.True(t, ok)
	assert.Equal(t, params, got)

	status, err = bus.SetUARTConfiguration(ctx, 2, params)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.ConfigStatusRejected, status, "actuators have no UART")

	params.Speed = uartbridge.UARTSpeedUnspecified
	status, err = bus.SetUARTConfiguration(ctx, 8, params)
	require.NoError(t, err)
	assert.Equal(t, uartbridge.ConfigStatusRejected, status)
}

func TestBusRefuseConnection(t *testing.T) {
	bus := New()
	t.Cleanup(func() { bus.Close() })
	bus.SetFaults(Faults{RefuseConnection: true})
	ctx := context.Background()

	res, err := bus.EnableBridge(ctx, uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	cfg, err := bus.GetBridgeConfig(ctx, res.ID)
	require.NoError(t, err)

	_, err = net.DialTimeout("tcp", net.JoinHostPort(bus.Host(), strconv.Itoa(int(cfg.OutPort))), time.Second)
	assert.Error(t, err)
}

// fakePort is a local UART whose far end is driven by the test
type fakePort struct {
	replies chan []byte
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakePort() *fakePort {
	return &fakePort{replies: make(chan []byte, 4), done: make(chan struct{})}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case data := <-p.replies:
		return copy(buf, data), nil
	case <-p.done:
		return 0, uart.ErrPortClosed
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(data)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.written.Bytes())
}

func TestBusRelaysUARTBothWays(t *testing.T) {
	bus := New()
	t.Cleanup(func() { bus.Close() })

	port := newFakePort()
	bus.mu.Lock()
	bus.attachUART(port)
	bus.mu.Unlock()

	res, err := bus.EnableBridge(context.Background(), uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	conn := dialBridge(t, bus, res.ID)

	_, err = conn.Write(uartbridge.GripOpen)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return bytes.Equal(port.writtenBytes(), uartbridge.GripOpen)
	}, time.Second, 10*time.Millisecond)

	// The client is registered by now, so the reply has somewhere to go.
	port.replies <- []byte{0x2B, 0x06, 0x23}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 3)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2B, 0x06, 0x23}, buf)
}

func TestBusCloseStopsUARTRelay(t *testing.T) {
	bus := New()

	port := newFakePort()
	bus.mu.Lock()
	bus.attachUART(port)
	bus.mu.Unlock()

	require.NoError(t, bus.Close())
	assert.True(t, port.isClosed())
}

func TestBusHexLogSink(t *testing.T) {
	var log bytes.Buffer
	var mu sync.Mutex
	bus := New(WithSink(HexLog(&lockedWriter{mu: &mu, w: &log})))
	t.Cleanup(func() { bus.Close() })

	res, err := bus.EnableBridge(context.Background(), uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	conn := dialBridge(t, bus, res.ID)

	_, err = conn.Write(uartbridge.GripClose)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return log.String() == "2B 01 0A 01 00 00 23\n"
	}, time.Second, 10*time.Millisecond)
}

func TestHexLogSkipsEmptyWrites(t *testing.T) {
	var log bytes.Buffer
	n, err := HexLog(&log).Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, log.String())
}

func TestBusListenHost(t *testing.T) {
	bus := New(WithListenHost("localhost"))
	t.Cleanup(func() { bus.Close() })
	assert.Equal(t, "localhost", bus.Host())

	res, err := bus.EnableBridge(context.Background(), uartbridge.BridgeConfig{DeviceID: 8, Type: uartbridge.BridgeTypeUART})
	require.NoError(t, err)
	conn := dialBridge(t, bus, res.ID)

	_, err = conn.Write([]byte{0x01})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return bytes.Equal(bus.Received(), []byte{0x01})
	}, time.Second, 10*time.Millisecond)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
