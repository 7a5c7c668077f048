// Package process reads the OS process table for liveness checks and
// stale-engine cleanup.
package process

import (
	"strings"

	"github.com/mitchellh/go-ps"
)

// ProcessInfo is a small struct representing a running process.
type ProcessInfo struct {
	PID  int
	PPID int
	Name string
}

// listProcesses is swapped in tests.
var listProcesses = ps.Processes

// GetProcesses returns the process table in a platform-agnostic format.
func GetProcesses() ([]ProcessInfo, error) {
	procs, err := listProcesses()
	if err != nil {
		return nil, err
	}
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, ProcessInfo{PID: p.Pid(), PPID: p.PPid(), Name: p.Executable()})
	}
	return out, nil
}

// FindProcess looks up a process by PID.
func FindProcess(pid int) (ProcessInfo, bool, error) {
	p, err := ps.FindProcess(pid)
	if err != nil {
		return ProcessInfo{}, false, err
	}
	if p == nil {
		return ProcessInfo{}, false, nil
	}
	return ProcessInfo{PID: p.Pid(), PPID: p.PPid(), Name: p.Executable()}, true, nil
}

// FindByName returns every process whose executable name matches name
// case-insensitively.
func FindByName(name string) ([]ProcessInfo, error) {
	procs, err := GetProcesses()
	if err != nil {
		return nil, err
	}
	var out []ProcessInfo
	for _, p := range procs {
		if strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	return out, nil
}
