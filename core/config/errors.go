package config

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound  = errors.New("config: configuration file not found")
	ErrInvalidDocument = errors.New("config: invalid configuration document")
)

// NotFoundError carries the path that was looked up.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config: %s does not exist", e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrConfigNotFound }
