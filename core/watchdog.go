package core

import (
	"context"
	"time"

	"clash-launcher/internal/debuglog"
)

const (
	// restartAttempts is the number of consecutive crash restarts before
	// the watchdog gives up.
	restartAttempts = 3
	// stabilityThreshold is how long the engine must stay up for the crash
	// counter to reset.
	stabilityThreshold = 180 * time.Second
	// WatchdogInterval is the default polling period.
	WatchdogInterval = 2 * time.Second
)

type watchdogState struct {
	crashes   int
	lastStart time.Time
}

// RunWatchdog restarts an engine that died while it was wanted.
func (ac *AppController) RunWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ac.checkEngine(ctx, time.Now())
		}
	}
}

// checkEngine is one watchdog tick.
func (ac *AppController) checkEngine(ctx context.Context, now time.Time) {
	if !ac.opMu.TryLock() {
		// an update or shutdown owns the engine right now
		return
	}
	defer ac.opMu.Unlock()

	if !ac.engineWanted() {
		return
	}
	if ac.Engine.Status().Running {
		ac.stateMu.Lock()
		if ac.watch.crashes > 0 && now.Sub(ac.watch.lastStart) >= stabilityThreshold {
			debuglog.DebugLog("monitorEngine: stable for %v, resetting crash counter from %d", stabilityThreshold, ac.watch.crashes)
			ac.watch.crashes = 0
		}
		ac.stateMu.Unlock()
		return
	}

	ac.stateMu.Lock()
	ac.watch.crashes++
	attempt := ac.watch.crashes
	if attempt > restartAttempts {
		ac.wantEngine = false
		ac.watch.crashes = 0
	}
	ac.watch.lastStart = now
	ac.stateMu.Unlock()

	if attempt > restartAttempts {
		debuglog.ErrorLog("monitorEngine: engine failed to restart after %d attempts, giving up", restartAttempts)
		ac.disableProxyLocked("monitorEngine")
		return
	}

	debuglog.WarnLog("monitorEngine: engine exited, auto-restart (attempt %d/%d)", attempt, restartAttempts)
	ac.setActiveNode("")
	if ok, err := ac.Engine.Start(ctx); err != nil || !ok {
		debuglog.WarnLog("monitorEngine: restart attempt %d failed: %v", attempt, err)
	}
}
