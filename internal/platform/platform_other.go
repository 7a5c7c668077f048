//go:build !windows && !linux && !darwin

package platform

import "errors"

// FlushDNS is not supported on this platform.
func FlushDNS() error {
	return errors.New("platform: FlushDNS is not supported on this platform")
}
