// Package uartbridge tunnels a UART byte stream to a robotic arm's interconnect
// board over TCP.
//
// The interconnect exposes its expansion UART through a "bridge": a TCP port on
// the base that mirrors every byte it receives onto the physical UART line. This
// package drives the bridge lifecycle on top of the arm's control bus, which is
// consumed through three small interfaces (DeviceManager, BridgeControl and
// InterconnectConfig) so any control bus client can be plugged in.
//
// # Basic Usage
//
// Resolve the interconnect, configure its UART, then enable a bridge session:
//
//	registry, _ := uartbridge.NewDeviceRegistry(bus)
//	id, err := registry.Resolve(ctx, uartbridge.DeviceTypeInterconnect, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	configurator, _ := uartbridge.NewUARTConfigurator(bus)
//	err = configurator.Apply(ctx, id, uartbridge.DefaultUARTParameters())
//
//	session, _ := uartbridge.NewBridgeSession(uartbridge.SessionDeps{
//	    Bridges:  bus,
//	    Host:     "192.168.1.10",
//	    DeviceID: id,
//	})
//	defer session.Cleanup(context.Background())
//
//	if err := session.Enable(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	err = session.SendHex(ctx, "2B 02 64 00 00 00 23")
//
// # Session Lifecycle
//
// A BridgeSession moves through Idle, Enabling, Connected and Disabling, and
// always comes to rest in Idle after teardown. Enable tears down whatever the
// session held before it allocates a new bridge, so it can be retried after any
// failure without leaking a socket or a device-side bridge. Disable and Cleanup
// never fail: errors from the device or the socket are logged and discarded.
//
// # Commands
//
// Frames are written exactly as supplied. Encode accepts hex text with or
// without separators; Render produces the canonical upper-case form:
//
//	cmd, err := uartbridge.Encode("2b:02:64:00:00:00:23")
//	fmt.Println(cmd) // 2B 02 64 00 00 00 23
//
// GripOpen, GripClose and FingerPositions build the frames understood by the
// gripper controller on the expansion UART.
//
// # Error Handling
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, uartbridge.ErrBridgeRejected) {
//	    // device refused the bridge, nothing is held
//	}
//
// # Default Configuration
//
//   - RPCTimeout: 5 seconds
//   - ConnectTimeout: 5 seconds
//   - WriteTimeout: 2 seconds
//   - ReadTimeout: 250ms
//   - UART: expansion port, 115200 8N1, enabled
package uartbridge
