/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Open a bridge and display its endpoint details",
	Long: `Configure the interconnect UART, enable a bridge and display where it listens.

This is a quick check that the whole path works: device lookup, UART
configuration, bridge allocation and socket connect. The bridge is torn down
again before the command exits.

Examples:
  uartbridge info
  uartbridge info --device-index 1 --baud 57600`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := setup()
		if err != nil {
			return err
		}

		run, err := startBridge(cmd.Context(), s, logger)
		if err != nil {
			printError(cmd.OutOrStdout(), "%v", err)
			return err
		}
		defer run.Close()

		printInfo(cmd.OutOrStdout(), s, run)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(w io.Writer, s settings, run *bridgeRun) {
	handle, _ := run.session.Bridge()

	fmt.Fprintf(w, "Bridge Information: %s:%d\n\n", run.backend.Host, handle.OutboundPort)
	fmt.Fprintf(w, "  Backend:      %s\n", s.Backend)
	fmt.Fprintf(w, "  Interconnect: index %d\n", s.DeviceIndex)
	fmt.Fprintf(w, "  Bridge ID:    %d\n", handle.ID)
	fmt.Fprintf(w, "  Port:         %d\n", handle.OutboundPort)
	fmt.Fprintf(w, "  State:        %s\n", run.session.State())

	fmt.Fprintln(w, "\nUART Parameters:")
	fmt.Fprintf(w, "  Line:         %s\n", s.UART)
	fmt.Fprintf(w, "  Parity:       %s\n", s.UART.Parity)
}
