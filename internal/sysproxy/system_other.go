//go:build !windows && !linux

package sysproxy

// NewSystemSettings returns the Settings backend for this OS.
func NewSystemSettings() (Settings, error) {
	return nil, ErrUnsupported
}
