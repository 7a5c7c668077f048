// Package sysproxy owns the operating system's global proxy setting. It
// snapshots the user's configuration before the first change and puts it
// back on Disable.
package sysproxy

import (
	"context"
	"sync"
	"time"

	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/retry"
)

// Timing groups the settle delays used while switching the proxy.
type Timing struct {
	BeforeWrite retry.Policy // after clearing the enabled flag
	Notify      retry.Policy // repeated change notifications
	Verify      retry.Policy // before reading the state back
}

// DefaultTiming matches what the Windows shell needs to pick up changes.
var DefaultTiming = Timing{
	BeforeWrite: retry.Policy{Attempts: 1, Delay: 200 * time.Millisecond},
	Notify:      retry.Policy{Attempts: 3, Delay: 100 * time.Millisecond},
	Verify:      retry.Policy{Attempts: 1, Delay: 500 * time.Millisecond},
}

// Controller serialises proxy mutations for one Settings backend.
type Controller struct {
	settings Settings
	timing   Timing

	mu       sync.Mutex
	original State
	saved    bool
}

// NewController creates a controller with DefaultTiming.
func NewController(settings Settings) *Controller {
	return NewControllerWithTiming(settings, DefaultTiming)
}

// NewControllerWithTiming creates a controller with custom delays.
func NewControllerWithTiming(settings Settings, timing Timing) *Controller {
	return &Controller{settings: settings, timing: timing}
}

// SaveCurrent captures the current OS state as the original. Only the
// first successful call has an effect.
func (c *Controller) SaveCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Controller) saveLocked() error {
	if c.saved {
		return nil
	}
	st, err := c.settings.Read()
	if err != nil {
		debuglog.WarnLog("saveProxy: failed to read current settings: %v", err)
		return err
	}
	c.original = st
	c.saved = true
	debuglog.InfoLog("saveProxy: saved original proxy state (enabled=%v server=%q)", st.Enabled, st.Server)
	return nil
}

// Saved returns the original snapshot, if one was taken.
func (c *Controller) Saved() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.original, c.saved
}

// Enable points the OS proxy at server. The original state is saved first
// when it has not been yet. It returns true only when reading the state
// back shows the proxy enabled with the requested server.
func (c *Controller) Enable(server, bypass string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.saveLocked(); err != nil {
		debuglog.ErrorLog("enableProxy: refusing to change settings without a snapshot: %v", err)
		return false
	}

	ctx := context.Background()
	if err := c.settings.SetEnabled(false); err != nil {
		debuglog.ErrorLog("enableProxy: %v", &WriteError{Field: "enabled", Err: err})
		return false
	}
	_ = c.timing.BeforeWrite.Pause(ctx)

	if err := c.write(State{Enabled: true, Server: server, Bypass: bypass}); err != nil {
		debuglog.ErrorLog("enableProxy: %v", err)
		return false
	}
	c.notify(ctx)
	_ = c.timing.Verify.Pause(ctx)

	st, err := c.settings.Read()
	if err != nil {
		debuglog.ErrorLog("enableProxy: verification read failed: %v", err)
		return false
	}
	if !st.Enabled || st.Server != server {
		debuglog.ErrorLog("enableProxy: verification mismatch (enabled=%v server=%q, want %q)", st.Enabled, st.Server, server)
		return false
	}
	debuglog.InfoLog("enableProxy: system proxy set to %s", server)
	return true
}

// Disable restores the original state, or the zero state when nothing was
// saved. The snapshot is kept so a failed restore can be retried.
func (c *Controller) Disable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := State{}
	if c.saved {
		target = c.original
	}
	if err := c.write(target); err != nil {
		debuglog.ErrorLog("disableProxy: %v", err)
		return false
	}
	c.notify(context.Background())
	debuglog.InfoLog("disableProxy: restored proxy state (enabled=%v server=%q)", target.Enabled, target.Server)
	return true
}

// ForceDisable clears the enabled flag and leaves server and bypass alone.
// It does not touch the saved snapshot.
func (c *Controller) ForceDisable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.settings.SetEnabled(false); err != nil {
		debuglog.ErrorLog("resetProxy: %v", &WriteError{Field: "enabled", Err: err})
		return false
	}
	c.notify(context.Background())
	return true
}

// CurrentStatus describes the live OS state.
func (c *Controller) CurrentStatus() string {
	st, err := c.settings.Read()
	if err != nil {
		debuglog.DebugLog("proxyStatus: %v", err)
		return "unknown"
	}
	if st.Enabled {
		return "enabled: " + st.Server
	}
	return "not enabled"
}

// Current reads the live OS state.
func (c *Controller) Current() (State, error) {
	return c.settings.Read()
}

// write sets server and bypass before the enabled flag so the OS never sees
// the proxy enabled with a stale server.
func (c *Controller) write(st State) error {
	if err := c.settings.SetServer(st.Server); err != nil {
		return &WriteError{Field: "server", Err: err}
	}
	if err := c.settings.SetBypass(st.Bypass); err != nil {
		return &WriteError{Field: "bypass", Err: err}
	}
	if err := c.settings.SetEnabled(st.Enabled); err != nil {
		return &WriteError{Field: "enabled", Err: err}
	}
	return nil
}

func (c *Controller) notify(ctx context.Context) {
	ok := c.timing.Notify.Each(ctx, func(attempt int) error {
		err := c.settings.Notify()
		if err != nil {
			debuglog.DebugLog("notifyProxy: attempt %d: %v", attempt, err)
		}
		return err
	})
	if ok == 0 {
		debuglog.WarnLog("notifyProxy: no change notification succeeded")
	}
}
