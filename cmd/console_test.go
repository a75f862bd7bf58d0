package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/allbin/go-uartbridge"
	"github.com/allbin/go-uartbridge/internal/simbus"
	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() settings {
	return settings{
		Host:           "127.0.0.1",
		Backend:        "sim",
		RPCTimeout:     time.Second,
		ConnectTimeout: time.Second,
		WriteTimeout:   time.Second,
		UART:           uartbridge.DefaultUARTParameters(),
	}
}

func connectedSession(t *testing.T, bus *simbus.Bus) *uartbridge.BridgeSession {
	t.Helper()
	session, err := uartbridge.NewBridgeSession(uartbridge.SessionDeps{
		Bridges:  bus,
		Host:     bus.Host(),
		DeviceID: 8,
	}, uartbridge.WithReadTimeout(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, session.Enable(context.Background()))
	t.Cleanup(func() { session.Cleanup(context.Background()) })
	return session
}

func TestRunConsole(t *testing.T) {
	bus := simbus.New()
	t.Cleanup(func() { bus.Close() })
	session := connectedSession(t, bus)

	in := strings.NewReader(strings.Join([]string{
		"2B 02 64 00 00 00 23",
		"",
		"open",
		"2B0",
		"fingers 10 20 30",
		"fingers 10 20 30 40",
		"quit",
		"2B 01 0A 01 00 00 23",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, runConsole(context.Background(), session, newScanLines(in), &out))

	want := []byte{0x2B, 0x02, 0x64, 0x00, 0x00, 0x00, 0x23}
	want = append(want, uartbridge.GripOpen...)
	want = append(want, 0x2B, 0x02, 10, 20, 30, 40, 0x23)
	assert.Eventually(t, func() bool {
		return bytes.Equal(bus.Received(), want)
	}, time.Second, 10*time.Millisecond)

	text := out.String()
	assert.Contains(t, text, "Sent: 2B 02 64 00 00 00 23")
	assert.Contains(t, text, "malformed hex")
	assert.Contains(t, text, "fingers needs 4 positions")
	assert.NotContains(t, text, "2B 01 0A 01 00 00 23", "input after quit must not be sent")

	// The console leaves teardown to its caller.
	assert.Equal(t, uartbridge.StateConnected, session.State())
}

func TestRunConsoleSendFailureContinues(t *testing.T) {
	bus := simbus.New()
	session := connectedSession(t, bus)
	session.Cleanup(context.Background())
	bus.Close()

	in := strings.NewReader("open\nclose\nexit\n")
	var out bytes.Buffer

	require.NoError(t, runConsole(context.Background(), session, newScanLines(in), &out))
	assert.Equal(t, 2, strings.Count(out.String(), "send error"))
}

func TestRunConsoleStopsOnCancel(t *testing.T) {
	bus := simbus.New()
	t.Cleanup(func() { bus.Close() })
	session := connectedSession(t, bus)

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConsole(ctx, session, newScanLines(pr), io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop after cancel")
	}
}

func TestRunConsolePrintsInbound(t *testing.T) {
	bus := simbus.New(simbus.WithEcho())
	t.Cleanup(func() { bus.Close() })
	session := connectedSession(t, bus)

	pr, pw := io.Pipe()
	out := &syncWriter{w: &bytes.Buffer{}}

	done := make(chan error, 1)
	go func() {
		done <- runConsole(context.Background(), session, newScanLines(pr), out)
	}()

	_, err := io.WriteString(pw, "open\n")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		out.mu.Lock()
		defer out.mu.Unlock()
		// once for the Sent line and once for the echoed bytes
		return strings.Count(out.w.(*bytes.Buffer).String(), "2B 01 0A 02 00 00 23") >= 2
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "exit\n")
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestParseFingers(t *testing.T) {
	cmd, err := parseFingers([]string{"100", "0", "50", "25"})
	require.NoError(t, err)
	assert.Equal(t, "2B 02 64 00 32 19 23", cmd.String())

	_, err = parseFingers([]string{"100", "0", "50"})
	assert.Error(t, err)

	_, err = parseFingers([]string{"100", "0", "50", "300"})
	assert.ErrorIs(t, err, uartbridge.ErrInvalidFingerPosition)

	_, err = parseFingers([]string{"100", "0", "50", "101"})
	assert.ErrorIs(t, err, uartbridge.ErrInvalidFingerPosition)
}

func TestSendFrames(t *testing.T) {
	frames, err := encodeFrames([]string{"2B 01 0A 02 00 00 23", "2b010a01000023"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, sendFrames(context.Background(), testSettings(), discardLogger(), &out, frames))

	assert.Contains(t, out.String(), "Sent: 2B 01 0A 02 00 00 23")
	assert.Contains(t, out.String(), "Sent: 2B 01 0A 01 00 00 23")
}

func TestSendFramesMissingInterconnect(t *testing.T) {
	s := testSettings()
	s.DeviceIndex = 3

	var out bytes.Buffer
	err := sendFrames(context.Background(), s, discardLogger(), &out, []uartbridge.Command{uartbridge.GripOpen})
	assert.ErrorIs(t, err, uartbridge.ErrDeviceNotFound)
}

func TestSendFramesRejectedUART(t *testing.T) {
	s := testSettings()
	s.UART.Speed = uartbridge.UARTSpeedUnspecified

	var out bytes.Buffer
	err := sendFrames(context.Background(), s, discardLogger(), &out, []uartbridge.Command{uartbridge.GripOpen})
	assert.ErrorIs(t, err, uartbridge.ErrConfigurationRejected)
}

func TestEncodeFramesRejectsBadInput(t *testing.T) {
	_, err := encodeFrames([]string{"2B 01", "xyz"})
	assert.ErrorIs(t, err, uartbridge.ErrMalformedHex)
}

func TestReadFrames(t *testing.T) {
	frames, err := readFrames(strings.NewReader("2B 01\n\n  23 \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2B 01", "23"}, frames)
}

func TestRenderDevices(t *testing.T) {
	var out bytes.Buffer
	renderDevices(&out, filterDevices(simbus.DefaultDevices(), uartbridge.DeviceTypeUnspecified), 8, true)

	text := out.String()
	assert.Contains(t, text, "Found 9 device(s)")
	assert.Contains(t, text, "interconnect")
	assert.Contains(t, text, "← bridge")
}

func TestRenderFilteredDevicesKeepsPositions(t *testing.T) {
	var out bytes.Buffer
	renderDevices(&out, filterDevices(simbus.DefaultDevices(), uartbridge.DeviceTypeInterconnect), 8, true)

	text := out.String()
	assert.Contains(t, text, "Found 1 device(s)")
	assert.Regexp(t, `(?m)^7\s+interconnect\s+8\b`, text)
}

func TestFilterDevices(t *testing.T) {
	devices := simbus.DefaultDevices()

	assert.Len(t, filterDevices(devices, uartbridge.DeviceTypeUnspecified), len(devices))
	assert.Len(t, filterDevices(devices, uartbridge.DeviceTypeActuator), 6)
	assert.Len(t, filterDevices(devices, uartbridge.DeviceTypeGripper), 0)

	vision := filterDevices(devices, uartbridge.DeviceTypeVision)
	require.Len(t, vision, 1)
	assert.Equal(t, 8, vision[0].Position)
	assert.Equal(t, uartbridge.DeviceIdentifier(9), vision[0].ID)
}

func TestPrintInfo(t *testing.T) {
	s := testSettings()
	run, err := startBridge(context.Background(), s, discardLogger())
	require.NoError(t, err)
	defer run.Close()

	var out bytes.Buffer
	printInfo(&out, s, run)

	handle, ok := run.session.Bridge()
	require.True(t, ok)
	text := out.String()
	assert.Contains(t, text, fmt.Sprintf("Bridge ID:    %d", handle.ID))
	assert.Contains(t, text, "State:        connected")
	assert.Contains(t, text, "115200-8N1 enabled=true")
}

// interruptLines yields its lines and then fails the way readline does on Ctrl-C
type interruptLines struct {
	lines []string
}

func (l *interruptLines) Readline() (string, error) {
	if len(l.lines) == 0 {
		return "", readline.ErrInterrupt
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, nil
}

func TestRunConsoleStopsOnInterrupt(t *testing.T) {
	bus := simbus.New()
	t.Cleanup(func() { bus.Close() })
	session := connectedSession(t, bus)

	var out bytes.Buffer
	require.NoError(t, runConsole(context.Background(), session, &interruptLines{lines: []string{"open"}}, &out))

	assert.Eventually(t, func() bool {
		return bytes.Equal(bus.Received(), uartbridge.GripOpen)
	}, time.Second, 10*time.Millisecond)
}

func TestConsoleInputScansRedirectedStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.txt")
	require.NoError(t, os.WriteFile(path, []byte("open\nexit\n"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	in, w, closeInput, err := consoleInput(f, &out)
	require.NoError(t, err)
	defer closeInput()

	assert.IsType(t, &scanLines{}, in)
	assert.Same(t, &out, w)

	line, err := in.Readline()
	require.NoError(t, err)
	assert.Equal(t, "open", line)
}
