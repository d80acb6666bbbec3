package logging

import (
	"github.com/acarl005/stripansi"
)

// MaxOutputSize bounds captured output written to the event log
const MaxOutputSize = 256 * 1024

// TrimOutput keeps the head and tail of oversized output, strips ANSI escape sequences
// and replaces anything non-printable with '~'.
func TrimOutput(output []byte) string {
	if len(output) > MaxOutputSize {
		half := MaxOutputSize / 2
		trimmed := make([]byte, 0, MaxOutputSize)
		trimmed = append(trimmed, output[:half]...)
		trimmed = append(trimmed, output[len(output)-half:]...)
		output = trimmed
	}

	clean := []byte(stripansi.Strip(string(output)))
	for i, b := range clean {
		if !printable(b) {
			clean[i] = '~'
		}
	}
	return string(clean)
}

// printable matches ASCII letters, digits, punctuation and whitespace
func printable(b byte) bool {
	switch {
	case b >= 0x20 && b <= 0x7e:
		return true
	case b == '\t', b == '\n', b == '\r', b == '\v', b == '\f':
		return true
	}
	return false
}
