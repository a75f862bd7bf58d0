/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/allbin/go-uartbridge"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices attached to the control bus",
	Long: `List every sub-device reported by the control bus, in enumeration order.

The interconnect selected by --device-index is marked, which is the device the
console, send and gripper commands bridge to.

Example usage:
  uartbridge devices
  uartbridge devices --filter interconnect`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := setup()
		if err != nil {
			return err
		}

		filter, _ := cmd.Flags().GetString("filter")
		var filterType uartbridge.DeviceType
		if filter != "" {
			if filterType, err = uartbridge.ParseDeviceType(filter); err != nil {
				return err
			}
		}

		be, err := openBackend(s, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		registry, err := uartbridge.NewDeviceRegistry(be.Devices, s.bridgeOptions(logger)...)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		devices, err := registry.Devices(ctx)
		if err != nil {
			return err
		}

		selected, err := registry.Resolve(ctx, uartbridge.DeviceTypeInterconnect, s.DeviceIndex)
		if err != nil && !errors.Is(err, uartbridge.ErrDeviceNotFound) {
			return err
		}
		hasSelected := err == nil

		renderDevices(cmd.OutOrStdout(), filterDevices(devices, filterType), selected, hasSelected)
		if !hasSelected {
			printWarning(cmd.OutOrStdout(), "no interconnect at index %d", s.DeviceIndex)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringP("filter", "f", "", "Only list devices of this type: base, actuator, interconnect, vision, gripper")
}

// listedDevice is a device together with its position in the bus enumeration
type listedDevice struct {
	Position int
	uartbridge.DeviceHandle
}

// filterDevices keeps devices of the given type, or all of them for
// DeviceTypeUnspecified. Positions always refer to the unfiltered enumeration.
func filterDevices(devices []uartbridge.DeviceHandle, t uartbridge.DeviceType) []listedDevice {
	var listed []listedDevice
	for i, d := range devices {
		if t == uartbridge.DeviceTypeUnspecified || d.Type == t {
			listed = append(listed, listedDevice{Position: i, DeviceHandle: d})
		}
	}
	return listed
}

// renderDevices renders the device list in a styled static table format
func renderDevices(w io.Writer, devices []listedDevice, selected uartbridge.DeviceIdentifier, hasSelected bool) {
	fmt.Fprintf(w, "Found %d device(s):\n\n", len(devices))

	posWidth := 6
	typeWidth := 16
	idWidth := 12

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240"))

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s", posWidth, "#", typeWidth, "Type", idWidth, "Identifier")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, d := range devices {
		row := fmt.Sprintf("%-*d %-*s %-*d", posWidth, d.Position, typeWidth, d.Type, idWidth, d.ID)
		if hasSelected && d.ID == selected && d.Type == uartbridge.DeviceTypeInterconnect {
			row += " " + successStyle.Render("← bridge")
		}
		fmt.Fprintln(w, cellStyle.Render(row))
	}
}

