//go:build windows

package platform

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"

	"clash-launcher/internal/constants"
)

// GetExecutableName returns the engine binary file name.
func GetExecutableName() string {
	return constants.EngineProcessNameWindows
}

// GetProcessNameForCheck returns the process name to check for running instances.
func GetProcessNameForCheck() string {
	return constants.EngineProcessNameWindows
}

// PrepareCommand hides the console window and puts the child in its own
// process group so CTRL_BREAK can target it.
func PrepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW | windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// SendInterrupt sends CTRL_BREAK_EVENT to the process group of p.
func SendInterrupt(p *os.Process) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

// KillProcess kills every process with the given image name.
func KillProcess(processName string) error {
	cmd := exec.Command("taskkill", "/IM", processName, "/F")
	PrepareCommand(cmd)
	return cmd.Run()
}

// KillProcessByPID kills a process and its children by PID.
func KillProcessByPID(pid int) error {
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	PrepareCommand(cmd)
	return cmd.Run()
}

// FlushDNS clears the resolver cache.
func FlushDNS() error {
	cmd := exec.Command("ipconfig", "/flushdns")
	PrepareCommand(cmd)
	return cmd.Run()
}
