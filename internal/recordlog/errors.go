package recordlog

import (
	"errors"
	"fmt"
)

// Domain-specific errors for log parsing.
var (
	// ErrShortRecord marks a line with fewer than three tab-separated fields.
	// Such lines are skipped; the error is only passed to the skip callback.
	ErrShortRecord = errors.New("recordlog: record has fewer than 3 fields")

	// ErrInvalidTimestamp marks a timestamp field that is not a number.
	ErrInvalidTimestamp = errors.New("recordlog: invalid timestamp")
)

// ParseError describes a fatal problem with a specific line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
