// Package cleanup undoes what a previous, crashed launcher may have left
// behind: a stray engine process, stale DNS entries and an enabled proxy.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"time"

	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/platform"
	"clash-launcher/internal/process"
	"clash-launcher/internal/retry"
)

// Options select the cleanup steps.
type Options struct {
	Enabled     bool
	KillEngine  bool
	FlushDNS    bool
	ResetProxy  bool
	Wait        time.Duration
	ProcessName string
}

// ProxyResetter clears the OS proxy enabled flag.
type ProxyResetter interface {
	ForceDisable() bool
}

// Report summarises what was done.
type Report struct {
	Killed     []int    `json:"killed,omitempty"`
	DNSFlushed bool     `json:"dns_flushed"`
	ProxyReset bool     `json:"proxy_reset"`
	Errors     []string `json:"errors,omitempty"`
}

// Cleaner runs the startup cleanup.
type Cleaner struct {
	opts  Options
	proxy ProxyResetter

	findByName func(name string) ([]process.ProcessInfo, error)
	killPID    func(pid int) error
	flushDNS   func() error
	selfPID    int
}

// New returns a cleaner. proxy may be nil when the platform has no
// system proxy support.
func New(opts Options, proxy ProxyResetter) *Cleaner {
	if opts.ProcessName == "" {
		opts.ProcessName = platform.GetProcessNameForCheck()
	}
	return &Cleaner{
		opts:       opts,
		proxy:      proxy,
		findByName: process.FindByName,
		killPID:    platform.KillProcessByPID,
		flushDNS:   platform.FlushDNS,
		selfPID:    os.Getpid(),
	}
}

// Run executes the enabled steps. Individual failures are collected in
// the report and logged as warnings.
func (c *Cleaner) Run(ctx context.Context) Report {
	var r Report
	if !c.opts.Enabled {
		debuglog.InfoLog("startupCleanup: disabled")
		return r
	}

	if c.opts.KillEngine {
		c.killStale(ctx, &r)
	}
	if c.opts.FlushDNS {
		if err := c.flushDNS(); err != nil {
			c.fail(&r, "flush DNS: %v", err)
		} else {
			r.DNSFlushed = true
			debuglog.InfoLog("startupCleanup: DNS cache flushed")
		}
	}
	if c.opts.ResetProxy && c.proxy != nil {
		if r.ProxyReset = c.proxy.ForceDisable(); !r.ProxyReset {
			c.fail(&r, "reset system proxy failed")
		} else {
			debuglog.InfoLog("startupCleanup: system proxy disabled")
		}
	}

	_ = retry.Policy{Attempts: 1, Delay: c.opts.Wait}.Pause(ctx)
	return r
}

func (c *Cleaner) killStale(ctx context.Context, r *Report) {
	procs, err := c.findByName(c.opts.ProcessName)
	if err != nil {
		c.fail(r, "list processes: %v", err)
		return
	}
	for _, p := range procs {
		if p.PID == c.selfPID {
			continue
		}
		if err := c.killPID(p.PID); err != nil {
			c.fail(r, "kill %s (pid %d): %v", p.Name, p.PID, err)
			continue
		}
		r.Killed = append(r.Killed, p.PID)
		debuglog.InfoLog("startupCleanup: killed stale engine (pid %d)", p.PID)
	}
	if len(r.Killed) > 0 {
		_ = retry.Policy{Attempts: 1, Delay: time.Second}.Pause(ctx)
	}
}

func (c *Cleaner) fail(r *Report, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, msg)
	debuglog.WarnLog("startupCleanup: %s", msg)
}
