package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExecutableNotFound = errors.New("engine: executable not found")
	ErrConfigMissing      = errors.New("engine: configuration file missing")
	ErrLifecycle          = errors.New("engine: process lifecycle failure")
)

// NotFoundError lists the paths that were tried. Unwrap yields either
// ErrExecutableNotFound or ErrConfigMissing.
type NotFoundError struct {
	Kind     error
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v (searched: %s)", e.Kind, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Unwrap() error { return e.Kind }

// LifecycleError is a launch or shutdown failure of the engine process.
type LifecycleError struct {
	Op  string
	PID int
	Err error
}

func (e *LifecycleError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("engine: %s (pid %d): %v", e.Op, e.PID, e.Err)
	}
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() []error { return []error{ErrLifecycle, e.Err} }
