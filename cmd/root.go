/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "uartbridge",
	Short: "Tunnel UART commands to a robotic arm interconnect over TCP",
	Long: `uartbridge drives the UART bridge of a robotic arm's interconnect board.

It resolves the interconnect on the control bus, configures its expansion UART,
asks the base to open a bridge and connects to it, so that raw UART frames can be
sent from this machine without a serial cable.

Configuration is read from flags, UARTBRIDGE_* environment variables and an
optional YAML file (--config, or ./uartbridge.yaml, or ~/.config/uartbridge.yaml).

Example usage:
  uartbridge devices
  uartbridge console
  uartbridge send "2B 01 0A 02 00 00 23"
  uartbridge gripper fingers 100 50 50 0`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./uartbridge.yaml or ~/.config/uartbridge.yaml)")

	flags.String("host", "192.168.1.10", "Address of the arm base")
	flags.String("backend", "sim", "Control bus backend (sim)")
	flags.Int("device-index", 0, "Ordinal of the interconnect among interconnect devices")

	flags.Duration("rpc-timeout", 5*time.Second, "Timeout for each control bus call (0 disables)")
	flags.Duration("connect-timeout", 5*time.Second, "Timeout for connecting to the bridge port (0 disables)")
	flags.Duration("write-timeout", 2*time.Second, "Timeout for each frame write (0 disables)")
	flags.Duration("settle", time.Second, "Delay between UART configuration and bridge enable")

	flags.IntP("baud", "b", 115200, "UART baud rate")
	flags.Int("data-bits", 8, "UART word length (7 or 8)")
	flags.Int("stop-bits", 1, "UART stop bits (1 or 2)")
	flags.String("parity", "none", "UART parity: none, odd, even")

	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json")

	flags.String("sim-uart-device", "", "Mirror simulated bridge traffic onto this local serial device")
	flags.Bool("sim-echo", false, "Simulated bridges echo received bytes back")
	flags.String("sim-devices", "", "YAML file listing the simulated devices in enumeration order")
	flags.String("sim-log", "", "Append bridged bytes as hex lines to this file (- for stderr)")
	flags.String("sim-listen-host", "127.0.0.1", "Address simulated bridges listen on")

	bindFlags := map[string]string{
		"host":            "host",
		"backend":         "backend",
		"device-index":    "device-index",
		"rpc-timeout":     "timeouts.rpc",
		"connect-timeout": "timeouts.connect",
		"write-timeout":   "timeouts.write",
		"settle":          "settle",
		"baud":            "uart.baud",
		"data-bits":       "uart.data-bits",
		"stop-bits":       "uart.stop-bits",
		"parity":          "uart.parity",
		"log-level":       "log.level",
		"log-format":      "log.format",
		"sim-uart-device": "sim.uart-device",
		"sim-echo":        "sim.echo",
		"sim-devices":     "sim.devices",
		"sim-log":         "sim.log",
		"sim-listen-host": "sim.listen-host",
	}
	for flag, key := range bindFlags {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config")
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("uartbridge")
	}

	viper.SetEnvPrefix("UARTBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}
