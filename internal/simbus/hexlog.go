package simbus

import (
	"io"

	"github.com/allbin/go-uartbridge"
)

type hexLog struct {
	w io.Writer
}

// HexLog returns a sink that writes each chunk of bridged bytes to w as one
// line of upper-case hex, e.g. "2B 01 0A 02 00 00 23".
func HexLog(w io.Writer) io.Writer {
	return hexLog{w: w}
}

func (h hexLog) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := io.WriteString(h.w, uartbridge.Render(p)+"\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}
