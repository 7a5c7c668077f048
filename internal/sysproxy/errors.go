package sysproxy

import (
	"errors"
	"fmt"
)

var (
	ErrStateWrite  = errors.New("sysproxy: failed to write proxy state")
	ErrStateRead   = errors.New("sysproxy: failed to read proxy state")
	ErrUnsupported = errors.New("sysproxy: system proxy is not supported on this platform")
)

// WriteError reports which field could not be written.
type WriteError struct {
	Field string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sysproxy: write %s: %v", e.Field, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrStateWrite, e.Err} }
