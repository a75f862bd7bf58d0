/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/allbin/go-uartbridge"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [frame]...",
	Short: "Send hex frames over the UART bridge and disconnect",
	Long: `Open a UART bridge, send one or more frames, then tear the bridge down.

Frames can be provided as:
- Command line arguments, one frame each: send "2B 01 0A 02 00 00 23"
- From stdin (pipe), one frame per line: cat frames.txt | uartbridge send

Every frame is validated before the bridge is opened, so a typo never leaves
a half-sent sequence behind.

Example usage:
  uartbridge send "2B 01 0A 02 00 00 23"
  uartbridge send 2B010A01000023 --baud 57600
  echo "2B 02 64 64 64 64 23" | uartbridge send`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := setup()
		if err != nil {
			return err
		}

		inputs := args
		if len(inputs) == 0 {
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				return fmt.Errorf("no frames given")
			}
			if inputs, err = readFrames(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("error reading from stdin: %w", err)
			}
		}

		frames, err := encodeFrames(inputs)
		if err != nil {
			return err
		}

		return sendFrames(cmd.Context(), s, logger, cmd.OutOrStdout(), frames)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

// readFrames reads one frame per non-empty line
func readFrames(r io.Reader) ([]string, error) {
	var frames []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			frames = append(frames, line)
		}
	}
	return frames, scanner.Err()
}

func encodeFrames(inputs []string) ([]uartbridge.Command, error) {
	frames := make([]uartbridge.Command, 0, len(inputs))
	for _, in := range inputs {
		frame, err := uartbridge.Encode(in)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// sendFrames opens a bridge, writes frames in order and tears the bridge down
func sendFrames(ctx context.Context, s settings, logger *slog.Logger, out io.Writer, frames []uartbridge.Command) error {
	fmt.Fprintf(out, "%s Opening UART bridge...\n", infoStyle.Render("⚡"))

	run, err := startBridge(ctx, s, logger)
	if err != nil {
		printError(out, "%v", err)
		return err
	}
	defer run.Close()

	for _, frame := range frames {
		if err := run.session.Send(ctx, frame); err != nil {
			printError(out, "failed to send %s: %v", frame, err)
			return err
		}
		printSuccess(out, "Sent: %s", frame)
	}
	return nil
}
