package sysproxy

import (
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
)

const (
	gnomeProxySchema      = "org.gnome.system.proxy"
	gnomeProxyHTTPSchema  = "org.gnome.system.proxy.http"
	gnomeProxyHTTPSSchema = "org.gnome.system.proxy.https"
)

// runGSettings is replaced in tests.
var runGSettings = func(args ...string) (string, error) {
	out, err := exec.Command("gsettings", args...).Output()
	return strings.TrimSpace(string(out)), err
}

// gsettingsBackend drives the GNOME proxy schema. Bypass uses the same
// semicolon list as the Windows registry and is converted on the way in
// and out.
type gsettingsBackend struct{}

func newGSettings() (Settings, error) {
	if _, err := exec.LookPath("gsettings"); err != nil {
		return nil, fmt.Errorf("%w: gsettings not found", ErrUnsupported)
	}
	return gsettingsBackend{}, nil
}

func (gsettingsBackend) Read() (State, error) {
	mode, err := runGSettings("get", gnomeProxySchema, "mode")
	if err != nil {
		return State{}, fmt.Errorf("%w: mode: %v", ErrStateRead, err)
	}
	host, err := runGSettings("get", gnomeProxyHTTPSchema, "host")
	if err != nil {
		return State{}, fmt.Errorf("%w: host: %v", ErrStateRead, err)
	}
	port, err := runGSettings("get", gnomeProxyHTTPSchema, "port")
	if err != nil {
		return State{}, fmt.Errorf("%w: port: %v", ErrStateRead, err)
	}
	ignore, err := runGSettings("get", gnomeProxySchema, "ignore-hosts")
	if err != nil {
		return State{}, fmt.Errorf("%w: ignore-hosts: %v", ErrStateRead, err)
	}

	st := State{Enabled: unquote(mode) == "manual", Bypass: strings.Join(parseGVariantList(ignore), ";")}
	if h := unquote(host); h != "" {
		st.Server = h
		if p := strings.TrimSpace(port); p != "" && p != "0" {
			st.Server = net.JoinHostPort(h, p)
		}
	}
	return st, nil
}

func (gsettingsBackend) SetEnabled(enabled bool) error {
	mode := "none"
	if enabled {
		mode = "manual"
	}
	_, err := runGSettings("set", gnomeProxySchema, "mode", mode)
	return err
}

func (gsettingsBackend) SetServer(server string) error {
	host, port := server, "0"
	if server != "" {
		h, p, err := net.SplitHostPort(server)
		if err != nil {
			return fmt.Errorf("invalid server %q: %w", server, err)
		}
		if _, err := strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid port in %q", server)
		}
		host, port = h, p
	}
	for _, schema := range []string{gnomeProxyHTTPSchema, gnomeProxyHTTPSSchema} {
		if _, err := runGSettings("set", schema, "host", host); err != nil {
			return err
		}
		if _, err := runGSettings("set", schema, "port", port); err != nil {
			return err
		}
	}
	return nil
}

func (gsettingsBackend) SetBypass(bypass string) error {
	_, err := runGSettings("set", gnomeProxySchema, "ignore-hosts", formatGVariantList(splitBypass(bypass)))
	return err
}

// Notify is a no-op: dconf propagates changes to listeners itself.
func (gsettingsBackend) Notify() error { return nil }

func unquote(v string) string {
	return strings.Trim(strings.TrimSpace(v), "'\"")
}

// parseGVariantList parses the printed form of an "as" value, for example
// "['localhost', '127.0.0.0/8']" or "@as []".
func parseGVariantList(v string) []string {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "@as"))
	v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = unquote(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatGVariantList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, "'"+strings.ReplaceAll(item, "'", "")+"'")
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func splitBypass(bypass string) []string {
	var out []string
	for _, item := range strings.Split(bypass, ";") {
		item = strings.TrimSpace(item)
		if item == "" || item == "<local>" {
			continue
		}
		out = append(out, item)
	}
	return out
}
