//go:build windows

package sysproxy

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const internetSettingsPath = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

const (
	internetOptionRefresh         = 37
	internetOptionSettingsChanged = 39
)

var (
	wininet                = windows.NewLazySystemDLL("wininet.dll")
	procInternetSetOptionW = wininet.NewProc("InternetSetOptionW")
)

// registrySettings stores the proxy under the current user's Internet Settings.
type registrySettings struct{}

// NewSystemSettings returns the Settings backend for this OS.
func NewSystemSettings() (Settings, error) {
	if err := procInternetSetOptionW.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return registrySettings{}, nil
}

func (registrySettings) Read() (State, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsPath, registry.QUERY_VALUE)
	if err != nil {
		return State{}, fmt.Errorf("%w: open key: %v", ErrStateRead, err)
	}
	defer k.Close()

	var st State
	enabled, _, err := k.GetIntegerValue("ProxyEnable")
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return State{}, fmt.Errorf("%w: ProxyEnable: %v", ErrStateRead, err)
	}
	st.Enabled = enabled == 1
	if st.Server, err = readString(k, "ProxyServer"); err != nil {
		return State{}, err
	}
	if st.Bypass, err = readString(k, "ProxyOverride"); err != nil {
		return State{}, err
	}
	return st, nil
}

func readString(k registry.Key, name string) (string, error) {
	v, _, err := k.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStateRead, name, err)
	}
	return v, nil
}

func withWritableKey(fn func(k registry.Key) error) error {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsPath, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return fn(k)
}

func (registrySettings) SetEnabled(enabled bool) error {
	var v uint32
	if enabled {
		v = 1
	}
	return withWritableKey(func(k registry.Key) error {
		return k.SetDWordValue("ProxyEnable", v)
	})
}

func (registrySettings) SetServer(server string) error {
	return withWritableKey(func(k registry.Key) error {
		return k.SetStringValue("ProxyServer", server)
	})
}

func (registrySettings) SetBypass(bypass string) error {
	return withWritableKey(func(k registry.Key) error {
		return k.SetStringValue("ProxyOverride", bypass)
	})
}

// Notify broadcasts INTERNET_OPTION_SETTINGS_CHANGED and INTERNET_OPTION_REFRESH.
func (registrySettings) Notify() error {
	for _, opt := range []uintptr{internetOptionSettingsChanged, internetOptionRefresh} {
		r1, _, callErr := procInternetSetOptionW.Call(0, opt, 0, 0)
		if r1 == 0 {
			return fmt.Errorf("InternetSetOptionW(%d): %v", opt, callErr)
		}
	}
	return nil
}
