/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/allbin/go-uartbridge"
	"github.com/spf13/cobra"
)

// gripperCmd represents the gripper command
var gripperCmd = &cobra.Command{
	Use:   "gripper",
	Short: "Send gripper frames over the UART bridge",
	Long: `Send a single gripper command over the UART bridge and disconnect.

Example usage:
  uartbridge gripper open
  uartbridge gripper close
  uartbridge gripper fingers 100 50 50 0`,
}

var gripperOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the gripper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendGripperFrame(cmd, uartbridge.GripOpen)
	},
}

var gripperCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the gripper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendGripperFrame(cmd, uartbridge.GripClose)
	},
}

var gripperFingersCmd = &cobra.Command{
	Use:   "fingers <index> <middle> <thumb> <ring>",
	Short: "Position each finger in percent (0-100)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseFingers(args)
		if err != nil {
			return err
		}
		return sendGripperFrame(cmd, frame)
	},
}

func init() {
	rootCmd.AddCommand(gripperCmd)
	gripperCmd.AddCommand(gripperOpenCmd, gripperCloseCmd, gripperFingersCmd)
}

func sendGripperFrame(cmd *cobra.Command, frame uartbridge.Command) error {
	s, logger, err := setup()
	if err != nil {
		return err
	}
	return sendFrames(cmd.Context(), s, logger, cmd.OutOrStdout(), []uartbridge.Command{frame})
}
