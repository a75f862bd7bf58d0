/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/allbin/go-uartbridge"
	"github.com/allbin/go-uartbridge/internal/simbus"
)

// backend bundles the control bus services a command talks to
type backend struct {
	Devices      uartbridge.DeviceManager
	Bridges      uartbridge.BridgeControl
	Interconnect uartbridge.InterconnectConfig
	Host         string
	close        func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend connects to the control bus named in s. Only the built-in
// simulator ships with this tool; a control bus client for real hardware plugs
// in here by returning the same three services.
func openBackend(s settings, logger *slog.Logger) (*backend, error) {
	switch s.Backend {
	case "sim":
		opts := []simbus.Option{simbus.WithLogger(logger.With("component", "simbus"))}
		if s.SimUARTDevice != "" {
			opts = append(opts, simbus.WithUARTDevice(s.SimUARTDevice))
		}
		if s.SimEcho {
			opts = append(opts, simbus.WithEcho())
		}
		if s.SimDevices != "" {
			devices, err := simbus.LoadDevices(s.SimDevices)
			if err != nil {
				return nil, err
			}
			opts = append(opts, simbus.WithDevices(devices...))
		}
		if s.SimListenHost != "" {
			opts = append(opts, simbus.WithListenHost(s.SimListenHost))
		}

		closeLog := func() error { return nil }
		switch s.SimLog {
		case "":
		case "-":
			opts = append(opts, simbus.WithSink(simbus.HexLog(os.Stderr)))
		default:
			f, err := os.OpenFile(s.SimLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open traffic log: %w", err)
			}
			opts = append(opts, simbus.WithSink(simbus.HexLog(f)))
			closeLog = f.Close
		}

		bus := simbus.New(opts...)
		return &backend{
			Devices:      bus,
			Bridges:      bus,
			Interconnect: bus,
			Host:         bus.Host(),
			close: func() error {
				// The bus stops writing to the log once its bridges are closed.
				return errors.Join(bus.Close(), closeLog())
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", s.Backend)
	}
}

// bridgeRun is an enabled bridge session plus everything it was built on
type bridgeRun struct {
	session *uartbridge.BridgeSession
	backend *backend
	logger  *slog.Logger
}

// startBridge resolves the interconnect, configures its UART and enables a
// bridge session. On failure everything acquired so far is released.
func startBridge(ctx context.Context, s settings, logger *slog.Logger) (*bridgeRun, error) {
	be, err := openBackend(s, logger)
	if err != nil {
		return nil, err
	}

	opts := s.bridgeOptions(logger)

	registry, err := uartbridge.NewDeviceRegistry(be.Devices, opts...)
	if err != nil {
		be.Close()
		return nil, err
	}
	id, err := registry.Resolve(ctx, uartbridge.DeviceTypeInterconnect, s.DeviceIndex)
	if err != nil {
		be.Close()
		return nil, fmt.Errorf("could not find the interconnect: %w", err)
	}

	configurator, err := uartbridge.NewUARTConfigurator(be.Interconnect, opts...)
	if err != nil {
		be.Close()
		return nil, err
	}
	if err := configurator.Apply(ctx, id, s.UART); err != nil {
		be.Close()
		return nil, err
	}

	if err := sleepContext(ctx, s.Settle); err != nil {
		be.Close()
		return nil, err
	}

	session, err := uartbridge.NewBridgeSession(uartbridge.SessionDeps{
		Bridges:  be.Bridges,
		Host:     be.Host,
		DeviceID: id,
	}, opts...)
	if err != nil {
		be.Close()
		return nil, err
	}

	if err := session.Enable(ctx); err != nil {
		session.Cleanup(context.Background())
		be.Close()
		return nil, err
	}

	return &bridgeRun{session: session, backend: be, logger: logger}, nil
}

// Close tears the session down before the control bus goes away
func (r *bridgeRun) Close() {
	r.session.Cleanup(context.Background())
	if err := r.backend.Close(); err != nil {
		r.logger.Warn("backend close failed", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
