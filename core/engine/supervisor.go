// Package engine supervises the external proxy engine process.
package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/platform"
	"clash-launcher/internal/process"
	"clash-launcher/internal/retry"
)

const (
	// DefaultSettle is how long a fresh process must survive to count as started.
	DefaultSettle = 800 * time.Millisecond

	// DefaultStopTimeout is the grace period between the interrupt and Kill.
	DefaultStopTimeout = 3 * time.Second

	// DefaultRestartPause separates Stop and Start in Restart.
	DefaultRestartPause = time.Second
)

// State is the supervisor lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Status is a snapshot of the engine process.
type Status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	State   string `json:"state"`
}

// Options configure where the engine is found and how it is timed.
type Options struct {
	ResourceDir    string
	WorkDir        string
	InstallDir     string
	ExecutableName string
	ConfigPath     string

	Settle       time.Duration
	StopTimeout  time.Duration
	RestartPause time.Duration
}

// Supervisor owns at most one engine process. Start, Stop and Status are
// serialised by one mutex.
type Supervisor struct {
	opts Options

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewSupervisor fills zero timings with defaults.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.RestartPause < 0 {
		opts.RestartPause = 0
	}
	return &Supervisor{opts: opts}
}

// ConfigPath returns the document path passed to the engine.
func (s *Supervisor) ConfigPath() string {
	return s.opts.ConfigPath
}

// Start launches the engine unless it is already running. It returns
// (false, nil) when the process could not be launched or exited within the
// settle interval; missing files are reported as *NotFoundError.
func (s *Supervisor) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()
	if s.cmd != nil {
		debuglog.DebugLog("startEngine: already running (pid %d)", s.cmd.Process.Pid)
		return true, nil
	}

	exe, err := Locate(s.opts)
	if err != nil {
		debuglog.ErrorLog("startEngine: %v", err)
		return false, err
	}
	if info, err := os.Stat(s.opts.ConfigPath); err != nil || info.IsDir() {
		err := &NotFoundError{Kind: ErrConfigMissing, Searched: []string{s.opts.ConfigPath}}
		debuglog.ErrorLog("startEngine: %v", err)
		return false, err
	}

	s.state = StateStarting
	cmd := exec.Command(exe, "-f", s.opts.ConfigPath)
	cmd.Dir = filepath.Dir(exe)
	platform.PrepareCommand(cmd)

	debuglog.InfoLog("startEngine: %s -f %s", exe, s.opts.ConfigPath)
	if err := cmd.Start(); err != nil {
		s.state = StateStopped
		debuglog.ErrorLog("startEngine: %v", &LifecycleError{Op: "launch", Err: err})
		return false, nil
	}

	exited := make(chan struct{})
	go s.reap(cmd, exited)

	pid := cmd.Process.Pid
	timer := time.NewTimer(s.opts.Settle)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
	}

	if !isAlive(pid, exited) {
		s.state = StateStopped
		debuglog.ErrorLog("startEngine: %v", &LifecycleError{Op: "settle", PID: pid, Err: exitError(cmd, exited)})
		return false, nil
	}

	s.cmd = cmd
	s.exited = exited
	s.state = StateRunning
	debuglog.InfoLog("startEngine: engine running (pid %d)", pid)
	return true, nil
}

// reap waits for cmd and drops the handle if it is still the current one.
func (s *Supervisor) reap(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd {
		return
	}
	debuglog.WarnLog("engineMonitor: engine (pid %d) exited: %v", cmd.Process.Pid, err)
	s.cmd = nil
	s.exited = nil
	s.state = StateStopped
}

// reapLocked clears a handle whose process is already gone.
func (s *Supervisor) reapLocked() {
	if s.cmd == nil {
		return
	}
	if !isAlive(s.cmd.Process.Pid, s.exited) {
		s.cmd = nil
		s.exited = nil
		s.state = StateStopped
	}
}

// isAlive checks the reaper first and falls back to the process table.
func isAlive(pid int, exited <-chan struct{}) bool {
	select {
	case <-exited:
		return false
	default:
	}
	if _, found, err := process.FindProcess(pid); err == nil && !found {
		return false
	}
	return true
}

// exitError reads ProcessState only after the reaper has published it.
func exitError(cmd *exec.Cmd, exited <-chan struct{}) error {
	select {
	case <-exited:
	default:
		return errors.New("process disappeared during startup")
	}
	if cmd.ProcessState != nil {
		return errors.New("exited during startup: " + cmd.ProcessState.String())
	}
	return errors.New("exited during startup")
}

// Stop interrupts the engine, waits up to StopTimeout and then kills it.
// The handle is always cleared. Failures are logged, never returned.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	cmd, exited := s.cmd, s.exited
	pid := cmd.Process.Pid
	s.state = StateStopping
	defer func() {
		s.cmd = nil
		s.exited = nil
		s.state = StateStopped
	}()

	if !isAlive(pid, exited) {
		debuglog.InfoLog("stopEngine: engine (pid %d) already exited", pid)
		return nil
	}

	debuglog.InfoLog("stopEngine: stopping engine (pid %d)", pid)
	if err := platform.SendInterrupt(cmd.Process); err != nil {
		debuglog.WarnLog("stopEngine: %v. Forcing kill.", &LifecycleError{Op: "interrupt", PID: pid, Err: err})
	} else if waitExit(exited, s.opts.StopTimeout) {
		debuglog.InfoLog("stopEngine: engine stopped")
		return nil
	} else {
		debuglog.WarnLog("stopEngine: engine did not exit within %v, killing", s.opts.StopTimeout)
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		debuglog.WarnLog("stopEngine: %v", &LifecycleError{Op: "kill", PID: pid, Err: err})
	}
	if !waitExit(exited, s.opts.StopTimeout) {
		debuglog.ErrorLog("stopEngine: engine (pid %d) survived kill, killing process tree", pid)
		debuglog.RunAndLog("stopEngine: kill process tree", func() error {
			return platform.KillProcessByPID(pid)
		})
	}
	return nil
}

func waitExit(exited <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}

// Restart stops the engine, pauses and starts it again.
func (s *Supervisor) Restart(ctx context.Context) (bool, error) {
	_ = s.Stop(ctx)
	_ = retry.Policy{Attempts: 1, Delay: s.opts.RestartPause}.Pause(ctx)
	return s.Start(ctx)
}

// Status never fails.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	st := Status{State: s.state.String()}
	if s.cmd != nil {
		st.Running = true
		st.PID = s.cmd.Process.Pid
	}
	return st
}

// PID returns the tracked process id, or 0.
func (s *Supervisor) PID() int {
	return s.Status().PID
}
