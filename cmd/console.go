/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/allbin/go-uartbridge"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive prompt sending hex frames over the UART bridge",
	Long: `Open a UART bridge and read commands from the terminal.

Each line is sent as one frame. Accepted input:
- Hex frame: 2B 02 64 00 00 00 23 (spaces, colons and 0x prefixes are ignored)
- open / close: open or close the gripper
- fingers <index> <middle> <thumb> <ring>: finger positions in percent
- exit / quit: tear the bridge down and leave

Bytes arriving from the bridge are printed as they come in. Ctrl-C or Ctrl-D
tears the bridge down the same way as quit.

Example usage:
  uartbridge console
  uartbridge console --baud 57600 --parity even`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Connecting to interconnect %d via %s backend...\n",
			infoStyle.Render("⚡"), s.DeviceIndex, s.Backend)

		run, err := startBridge(ctx, s, logger)
		if err != nil {
			printError(out, "%v", err)
			return err
		}
		defer run.Close()

		handle, _ := run.session.Bridge()
		printSuccess(out, "UART bridge %d enabled and socket connected", handle.ID)
		fmt.Fprintln(out, "Enter hex command (e.g., 2B 02 64 00 00 00 23), or 'exit' to quit.")

		in, consoleOut, closeInput, err := consoleInput(os.Stdin, out)
		if err != nil {
			return err
		}
		defer closeInput()

		return runConsole(ctx, run.session, in, consoleOut)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// lineReader is the console input; *readline.Instance satisfies it
type lineReader interface {
	Readline() (string, error)
}

// consoleInput picks readline for a terminal and plain line scanning for
// piped or redirected input, where there is nobody to edit lines.
func consoleInput(stdin *os.File, out io.Writer) (lineReader, io.Writer, func() error, error) {
	stat, err := stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return newScanLines(stdin), out, func() error { return nil }, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          infoStyle.Render(">> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, rl.Stdout(), rl.Close, nil
}

// scanLines adapts a plain reader, such as a pipe, to lineReader
type scanLines struct {
	scanner *bufio.Scanner
}

func newScanLines(r io.Reader) *scanLines {
	return &scanLines{scanner: bufio.NewScanner(r)}
}

func (s *scanLines) Readline() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// runConsole reads commands from in until exit, EOF, interrupt or ctx is done.
// Send failures are reported and the loop carries on; teardown is left to the caller.
func runConsole(ctx context.Context, session *uartbridge.BridgeSession, in lineReader, out io.Writer) error {
	w := &syncWriter{w: out}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		readInbound(ctx, session, w)
	}()

	// Readline blocks until a line arrives; closing the instance releases it.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.Readline()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, session, strings.TrimSpace(line), w); quit {
				return nil
			}
		}
	}
}

// handleLine executes one console line and reports whether the loop should end
func handleLine(ctx context.Context, session *uartbridge.BridgeSession, line string, w io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var (
		cmd uartbridge.Command
		err error
	)
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true
	case "open":
		cmd = uartbridge.GripOpen
	case "close":
		cmd = uartbridge.GripClose
	case "fingers":
		cmd, err = parseFingers(fields[1:])
	default:
		cmd, err = uartbridge.Encode(line)
	}
	if err != nil {
		printError(w, "%v", err)
		return false
	}

	if err := session.Send(ctx, cmd); err != nil {
		printWarning(w, "send error: %v", err)
		return false
	}
	printSuccess(w, "Sent: %s", cmd)
	return false
}

// readInbound prints bytes coming back over the bridge until ctx is done or
// the connection goes away
func readInbound(ctx context.Context, session *uartbridge.BridgeSession, w io.Writer) {
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := session.Read(buf)
		if n > 0 {
			fmt.Fprintf(w, "\n%s %s\n", rxStyle.Render("<<"), uartbridge.Render(buf[:n]))
		}
		if err == nil || uartbridge.IsTimeout(err) {
			continue
		}
		if ctx.Err() == nil && !errors.Is(err, uartbridge.ErrNotConnected) {
			printWarning(w, "bridge read stopped: %v", err)
		}
		return
	}
}

// parseFingers parses four finger positions in percent
func parseFingers(args []string) (uartbridge.Command, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("fingers needs 4 positions: <index> <middle> <thumb> <ring>")
	}

	var pos [4]uint8
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", uartbridge.ErrInvalidFingerPosition, arg)
		}
		pos[i] = uint8(v)
	}
	return uartbridge.FingerPositions(pos[0], pos[1], pos[2], pos[3])
}
