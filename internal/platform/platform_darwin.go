//go:build darwin

package platform

import "os/exec"

// FlushDNS clears the directory service cache.
func FlushDNS() error {
	return exec.Command("dscacheutil", "-flushcache").Run()
}
