package uartbridge

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Command is one complete frame written to the bridge. Framing bytes are part
// of the command; nothing is added on the way out.
type Command []byte

func (c Command) String() string {
	return Render(c)
}

// isHexSeparator reports the characters frames are commonly split with in logs
// and datasheets. Separators only delimit tokens; they never carry data.
func isHexSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n', ':', ',':
		return true
	}
	return false
}

// Encode decodes hex text into a command. Each token may carry one leading
// 0x or 0X; any other non-hex character is an error.
func Encode(text string) (Command, error) {
	var digits strings.Builder
	for _, token := range strings.FieldsFunc(text, isHexSeparator) {
		body, prefixed := strings.CutPrefix(token, "0x")
		if !prefixed {
			body, prefixed = strings.CutPrefix(token, "0X")
		}
		if prefixed && body == "" {
			return nil, fmt.Errorf("%w: bare prefix in %q", ErrMalformedHex, text)
		}
		digits.WriteString(body)
	}

	cleaned := digits.String()
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex digits in %q", ErrMalformedHex, text)
	}

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return Command(data), nil
}

// Render formats a command as upper-case, space separated hex
func Render(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(data) * 3)
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
