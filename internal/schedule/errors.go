package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by strict block lookups.
var (
	ErrOutOfRange     = errors.New("not a working day")
	ErrNotCloseEnough = errors.New("not close enough to any block")
)

// ConfigurationError reports an inconsistent block catalog or alphabet.
// A process holding one must not serve traffic.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid schedule configuration: " + strings.Join(e.Problems, "; ")
}

// ValidationError reports a malformed schedule encoding.
type ValidationError struct {
	Encoding string
	// Pos is the rune offset where parsing stopped.
	Pos    int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Encoding == "" {
		return "invalid schedule: " + e.Reason
	}
	return fmt.Sprintf("invalid schedule %q at %d: %s", e.Encoding, e.Pos, e.Reason)
}
