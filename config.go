package uartbridge

import (
	"context"
	"time"
)

// Logger is the logging surface used by the bridge components.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config holds timeouts and logging for bridge components.
// A zero timeout means the operation is not bounded locally.
type Config struct {
	RPCTimeout     time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	Logger         Logger
}

// Option is a functional option for configuring bridge components
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		RPCTimeout:     5 * time.Second,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   2 * time.Second,
		ReadTimeout:    250 * time.Millisecond,
		Logger:         nopLogger{},
	}
}

func newConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// WithRPCTimeout bounds each control bus call
func WithRPCTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.RPCTimeout = timeout
		return nil
	}
}

// WithConnectTimeout bounds the TCP connect to the bridge port
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.ConnectTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write deadline applied to each Send
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.WriteTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read deadline applied to each Read
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithLogger sets the logger; nil restores the discarding logger
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			logger = nopLogger{}
		}
		c.Logger = logger
		return nil
	}
}

func (c Config) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.RPCTimeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.RPCTimeout)
}

func deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
