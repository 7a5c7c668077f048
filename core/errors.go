package core

import (
	"errors"
	"fmt"
)

var (
	ErrEngineNotRunning = errors.New("core: engine is not running")
	ErrEngineStart      = errors.New("core: engine failed to start")
	ErrProxyWrite       = errors.New("core: system proxy change failed")
)

// ProxyError reports which proxy operation did not take effect.
type ProxyError struct {
	Op string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("core: %s system proxy failed", e.Op)
}

func (e *ProxyError) Unwrap() error { return ErrProxyWrite }
