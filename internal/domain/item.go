package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,11}$`)

// WorkItem is one unit of batch work: a ticker symbol plus its parameters.
// Immutable once enqueued.
type WorkItem struct {
	Symbol string
	Force  bool
}

// ParseSymbol normalizes and validates a ticker symbol
func ParseSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("invalid symbol: %q", s)
	}
	return sym, nil
}

// ID returns the stable identity of the item within a run
func (w WorkItem) ID() string {
	return w.Symbol
}
