/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-uartbridge"
	"github.com/allbin/go-uartbridge/internal/logging"
	"github.com/spf13/viper"
)

// settings is the resolved configuration shared by all subcommands
type settings struct {
	Host        string
	Backend     string
	DeviceIndex int

	RPCTimeout     time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Settle         time.Duration

	UART uartbridge.UARTParameters
	Log  logging.Config

	SimUARTDevice string
	SimEcho       bool
	SimDevices    string
	SimLog        string
	SimListenHost string
}

func loadSettings(v *viper.Viper) (settings, error) {
	uart, err := uartParameters(
		v.GetInt("uart.baud"),
		v.GetInt("uart.data-bits"),
		v.GetInt("uart.stop-bits"),
		v.GetString("uart.parity"),
	)
	if err != nil {
		return settings{}, err
	}

	s := settings{
		Host:           v.GetString("host"),
		Backend:        strings.ToLower(v.GetString("backend")),
		DeviceIndex:    v.GetInt("device-index"),
		RPCTimeout:     v.GetDuration("timeouts.rpc"),
		ConnectTimeout: v.GetDuration("timeouts.connect"),
		WriteTimeout:   v.GetDuration("timeouts.write"),
		Settle:         v.GetDuration("settle"),
		UART:           uart,
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: "stderr",
		},
		SimUARTDevice: v.GetString("sim.uart-device"),
		SimEcho:       v.GetBool("sim.echo"),
		SimDevices:    v.GetString("sim.devices"),
		SimLog:        v.GetString("sim.log"),
		SimListenHost: v.GetString("sim.listen-host"),
	}

	if s.Host == "" {
		return settings{}, fmt.Errorf("host must not be empty")
	}
	return s, nil
}

// uartParameters maps user-facing UART settings onto the bus encoding. Values
// the bus has no encoding for are passed through as unspecified and left for
// the device to reject.
func uartParameters(baud, dataBits, stopBits int, parity string) (uartbridge.UARTParameters, error) {
	opts := []uartbridge.UARTOption{
		uartbridge.WithSpeed(uartbridge.SpeedFromBaud(baud)),
	}

	switch dataBits {
	case 7:
		opts = append(opts, uartbridge.WithWordLength(uartbridge.UARTWordLength7))
	case 8:
		opts = append(opts, uartbridge.WithWordLength(uartbridge.UARTWordLength8))
	default:
		opts = append(opts, uartbridge.WithWordLength(uartbridge.UARTWordLengthUnspecified))
	}

	switch stopBits {
	case 1:
		opts = append(opts, uartbridge.WithStopBits(uartbridge.UARTStopBits1))
	case 2:
		opts = append(opts, uartbridge.WithStopBits(uartbridge.UARTStopBits2))
	default:
		opts = append(opts, uartbridge.WithStopBits(uartbridge.UARTStopBitsUnspecified))
	}

	switch strings.ToLower(parity) {
	case "none", "n":
		opts = append(opts, uartbridge.WithParity(uartbridge.UARTParityNone))
	case "odd", "o":
		opts = append(opts, uartbridge.WithParity(uartbridge.UARTParityOdd))
	case "even", "e":
		opts = append(opts, uartbridge.WithParity(uartbridge.UARTParityEven))
	default:
		return uartbridge.UARTParameters{}, fmt.Errorf("unknown parity %q (none, odd, even)", parity)
	}

	return uartbridge.NewUARTParameters(opts...)
}

// bridgeOptions converts settings into library options
func (s settings) bridgeOptions(logger uartbridge.Logger) []uartbridge.Option {
	return []uartbridge.Option{
		uartbridge.WithRPCTimeout(s.RPCTimeout),
		uartbridge.WithConnectTimeout(s.ConnectTimeout),
		uartbridge.WithWriteTimeout(s.WriteTimeout),
		uartbridge.WithLogger(logger),
	}
}
