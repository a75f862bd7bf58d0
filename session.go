package uartbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// State is the lifecycle state of a BridgeSession
type State int

const (
	StateIdle State = iota
	StateEnabling
	StateConnected
	StateDisabling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnabling:
		return "enabling"
	case StateConnected:
		return "connected"
	case StateDisabling:
		return "disabling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// validTransitions is the complete transition table. Enabling may fall back to
// Idle directly only when nothing was allocated (bridge rejected).
var validTransitions = map[State][]State{
	StateIdle:      {StateEnabling},
	StateEnabling:  {StateConnected, StateDisabling, StateIdle},
	StateConnected: {StateDisabling},
	StateDisabling: {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionDeps are the collaborators a BridgeSession is built on
type SessionDeps struct {
	Bridges  BridgeControl
	Host     string
	DeviceID DeviceIdentifier
}

// BridgeSession owns one UART bridge: the remote bridge resource and the TCP
// socket connected to it. All four operations are synchronous; teardown is total.
//
// Thread Safety:
//   - The session is driven from one goroutine. Accessors and Read may be called
//     from another goroutine (e.g. an inbound reader).
type BridgeSession struct {
	id       string
	bridges  BridgeControl
	host     string
	deviceID DeviceIdentifier
	config   Config

	mu     sync.Mutex
	state  State
	bridge *BridgeHandle
	conn   net.Conn
}

// NewBridgeSession creates an idle session for the given interconnect
func NewBridgeSession(deps SessionDeps, opts ...Option) (*BridgeSession, error) {
	if deps.Bridges == nil {
		return nil, fmt.Errorf("%w: bridge control is required", ErrInvalidConfig)
	}
	if deps.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	config.Logger = sessionLogger{Logger: config.Logger, id: id}
	return &BridgeSession{
		id:       id,
		bridges:  deps.Bridges,
		host:     deps.Host,
		deviceID: deps.DeviceID,
		config:   config,
		state:    StateIdle,
	}, nil
}

// ID returns the identifier tagged onto every log record of this session
func (s *BridgeSession) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *BridgeSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bridge returns the held bridge, if any
func (s *BridgeSession) Bridge() (BridgeHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return BridgeHandle{}, false
	}
	return *s.bridge, true
}

// Connected reports whether a live socket is held
func (s *BridgeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// transition must be called with mu held
func (s *BridgeSession) transition(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.config.Logger.Debug("bridge session transition", "from", s.state.String(), "to", to.String())
	s.state = to
	return nil
}

// Enable requests a UART bridge for the session's device and connects to it.
// Whatever the session held before is torn down first, so Enable may be retried
// after any failure. A bridge rejected by the device yields ErrBridgeRejected and
// nothing is retained; a connection failure yields ErrTransport after the
// allocated bridge has been released again.
func (s *BridgeSession) Enable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardown(ctx)

	if err := s.transition(StateEnabling); err != nil {
		return err
	}

	result, err := s.enableBridge(ctx)
	if err != nil {
		_ = s.transition(StateIdle)
		return fmt.Errorf("failed to enable bridge: %w", err)
	}
	if result.Status != BridgeStatusOK {
		s.config.Logger.Warn("bridge enable rejected", "device", s.deviceID, "status", result.Status.String())
		_ = s.transition(StateIdle)
		return fmt.Errorf("%w: device %d status %s", ErrBridgeRejected, s.deviceID, result.Status)
	}

	s.bridge = &BridgeHandle{ID: result.ID}

	port, err := s.bridgePort(ctx, result.ID)
	if err != nil {
		s.teardown(ctx)
		return fmt.Errorf("%w: bridge %d config: %w", ErrTransport, result.ID, err)
	}
	s.bridge.OutboundPort = port

	conn, err := s.dial(ctx, port)
	if err != nil {
		s.teardown(ctx)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	s.conn = conn

	if err := s.transition(StateConnected); err != nil {
		s.teardown(ctx)
		return err
	}

	s.config.Logger.Info("UART bridge enabled and socket connected",
		"bridge", result.ID, "address", conn.RemoteAddr().String())
	return nil
}

func (s *BridgeSession) enableBridge(ctx context.Context) (BridgeResult, error) {
	ctx, cancel := s.config.rpcContext(ctx)
	defer cancel()
	return s.bridges.EnableBridge(ctx, BridgeConfig{DeviceID: s.deviceID, Type: BridgeTypeUART})
}

func (s *BridgeSession) bridgePort(ctx context.Context, id BridgeID) (BridgePort, error) {
	ctx, cancel := s.config.rpcContext(ctx)
	defer cancel()
	cfg, err := s.bridges.GetBridgeConfig(ctx, id)
	if err != nil {
		return 0, err
	}
	return cfg.OutPort, nil
}

func (s *BridgeSession) dial(ctx context.Context, port BridgePort) (net.Conn, error) {
	dialer := net.Dialer{Timeout: s.config.ConnectTimeout}
	address := net.JoinHostPort(s.host, strconv.Itoa(int(port)))
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}

// SendHex decodes text and sends the resulting frame
func (s *BridgeSession) SendHex(ctx context.Context, text string) error {
	cmd, err := Encode(text)
	if err != nil {
		return err
	}
	return s.Send(ctx, cmd)
}

// Send writes cmd to the bridge socket exactly as given. A failure is logged
// and returned; it never changes the session state.
func (s *BridgeSession) Send(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		s.config.Logger.Warn("send error", "error", ErrNotConnected.Error())
		return fmt.Errorf("%w: %w", ErrTransport, ErrNotConnected)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	writeDeadline := deadline(s.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && (writeDeadline.IsZero() || d.Before(writeDeadline)) {
		writeDeadline = d
	}
	if err := conn.SetWriteDeadline(writeDeadline); err != nil {
		s.config.Logger.Warn("send error", "error", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	n, err := conn.Write(cmd)
	if err != nil {
		s.config.Logger.Warn("send error", "error", err, "written", n)
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrTransport, n, len(cmd), err)
	}

	s.config.Logger.Info("sent", "data", Render(cmd))
	return nil
}

// Read reads inbound bytes from the bridge, waiting at most the configured
// read timeout. The session does not run a read loop itself.
func (s *BridgeSession) Read(buf []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	if err := conn.SetReadDeadline(deadline(s.config.ReadTimeout)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return conn.Read(buf)
}

// Disable releases the bridge. The socket cannot outlive its bridge, so an open
// socket is closed first. Remote errors are logged and the bridge is forgotten
// regardless.
func (s *BridgeSession) Disable(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown(ctx)
}

// Cleanup closes the socket and releases the bridge if still held. It is safe
// to call in any state and any number of times.
func (s *BridgeSession) Cleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown(ctx)
}

// teardown must be called with mu held. It never fails.
func (s *BridgeSession) teardown(ctx context.Context) {
	if s.conn == nil && s.bridge == nil {
		if s.state != StateIdle {
			s.state = StateIdle
		}
		return
	}

	if s.state != StateDisabling {
		if err := s.transition(StateDisabling); err != nil {
			s.config.Logger.Error("forcing teardown", "error", err)
			s.state = StateDisabling
		}
	}

	if s.conn != nil {
		s.closeConn()
	}
	if s.bridge != nil {
		s.disableBridge(ctx)
	}

	_ = s.transition(StateIdle)
}

func (s *BridgeSession) closeConn() {
	conn := s.conn
	s.conn = nil

	if err := shutdownConn(conn); err != nil {
		s.config.Logger.Warn("socket shutdown error", "error", err)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Warn("socket close error", "error", err)
		return
	}
	s.config.Logger.Info("UART socket closed")
}

func (s *BridgeSession) disableBridge(ctx context.Context) {
	id := s.bridge.ID
	s.bridge = nil

	// Teardown runs on error paths where ctx may already be done.
	ctx, cancel := s.config.rpcContext(context.WithoutCancel(ctx))
	defer cancel()

	status, err := s.bridges.DisableBridge(ctx, id)
	switch {
	case err != nil:
		s.config.Logger.Warn("disable bridge warning (ignored)", "bridge", id, "error", err)
	case status != BridgeStatusOK:
		s.config.Logger.Warn("disable bridge warning (ignored)", "bridge", id, "status", status.String())
	default:
		s.config.Logger.Info("UART bridge disabled", "bridge", id)
	}
}

// shutdownConn shuts down both directions of a socket before it is closed
func shutdownConn(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var shutdownErr error
	if err := raw.Control(func(fd uintptr) {
		shutdownErr = unix.Shutdown(int(fd), unix.SHUT_RDWR)
	}); err != nil {
		return err
	}
	if errors.Is(shutdownErr, unix.ENOTCONN) {
		return nil
	}
	return shutdownErr
}

// IsTimeout reports whether err is a read or write deadline expiry.
// Embedding applications polling Read use it to tell "no data yet" from failure.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sessionLogger prefixes every record with the owning session's id
type sessionLogger struct {
	Logger
	id string
}

func (l sessionLogger) Debug(msg string, keysAndValues ...any) {
	l.Logger.Debug(msg, l.with(keysAndValues)...)
}

func (l sessionLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.Info(msg, l.with(keysAndValues)...)
}

func (l sessionLogger) Warn(msg string, keysAndValues ...any) {
	l.Logger.Warn(msg, l.with(keysAndValues)...)
}

func (l sessionLogger) Error(msg string, keysAndValues ...any) {
	l.Logger.Error(msg, l.with(keysAndValues)...)
}

func (l sessionLogger) with(keysAndValues []any) []any {
	return append([]any{"session", l.id}, keysAndValues...)
}
