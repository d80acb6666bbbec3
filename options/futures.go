package options

import "fmt"

// FuturesMode selects which tests run based on their .future marker
type FuturesMode int

const (
	FuturesSkip       FuturesMode = iota // skip future tests
	FuturesAll                           // run everything
	FuturesOnly                          // run only future tests
	FuturesWithSkipIf                    // run only future tests that also have a .skipif
)

// ParseFuturesMode validates a numeric futures mode
func ParseFuturesMode(n int) (FuturesMode, error) {
	if n < int(FuturesSkip) || n > int(FuturesWithSkipIf) {
		return FuturesSkip, fmt.Errorf("invalid futures mode %d, must be between 0 and 3", n)
	}
	return FuturesMode(n), nil
}

// Exclude returns a skip reason when a test should not run under the mode
func (m FuturesMode) Exclude(isFuture, hasSkipIf bool) (string, bool) {
	switch {
	case m == FuturesSkip && isFuture:
		return "Skipping future test", true
	case m == FuturesOnly && !isFuture:
		return "Skipping non-future test", true
	case m == FuturesWithSkipIf && isFuture && !hasSkipIf:
		return "Skipping future test without a skipif", true
	}
	return "", false
}
