package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrStartupIO matches a *StartupError.
	ErrStartupIO = errors.New("recorder: cannot open output")

	// ErrClosed is returned by Handle after Close.
	ErrClosed = errors.New("recorder: closed")
)

// StartupError reports that the output file could not be created or truncated.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("recorder: cannot open output %q: %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStartupIO) true for any StartupError.
func (e *StartupError) Is(target error) bool {
	return target == ErrStartupIO
}
