//go:build !windows

package platform

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"clash-launcher/internal/constants"
)

// GetExecutableName returns the engine binary file name.
func GetExecutableName() string {
	return constants.EngineProcessNameUnix
}

// GetProcessNameForCheck returns the process name to check for running instances.
func GetProcessNameForCheck() string {
	return constants.EngineProcessNameUnix
}

// PrepareCommand detaches the child into its own process group so terminal
// signals aimed at the launcher do not reach the engine.
func PrepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SendInterrupt asks p to terminate.
func SendInterrupt(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// KillProcess kills a process by name
func KillProcess(processName string) error {
	return exec.Command("killall", processName).Run()
}

// KillProcessByPID kills a process by PID
func KillProcessByPID(pid int) error {
	return exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
}
