//go:build linux

package platform

import "os/exec"

// FlushDNS clears the systemd-resolved cache when it is present.
func FlushDNS() error {
	return exec.Command("resolvectl", "flush-caches").Run()
}
