// Package settings loads the launcher's own configuration: a JSONC file,
// then a .env file and CLASH_LAUNCHER_* environment variables on top.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/muhammadmuzzammil1998/jsonc"

	"clash-launcher/internal/constants"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CLASH_LAUNCHER"

var ErrInvalidSettings = errors.New("settings: invalid value")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settings: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSettings }

// EngineSettings controls how the engine process is supervised.
type EngineSettings struct {
	ResourceDir    string `json:"resource_dir" split_words:"true"`
	SettleMS       int    `json:"settle_ms" split_words:"true"`
	StopTimeoutMS  int    `json:"stop_timeout_ms" split_words:"true"`
	RestartPauseMS int    `json:"restart_pause_ms" split_words:"true"`
}

// FetchSettings controls subscription downloads.
type FetchSettings struct {
	TimeoutMS int    `json:"timeout_ms" split_words:"true"`
	MaxBytes  int64  `json:"max_bytes" split_words:"true"`
	UserAgent string `json:"user_agent" split_words:"true"`
}

// ProxySettings describes the OS proxy the launcher installs.
type ProxySettings struct {
	Server string `json:"server" split_words:"true"`
	Bypass string `json:"bypass" split_words:"true"`
}

// CleanupSettings mirrors the startup cleanup switches.
type CleanupSettings struct {
	Enabled    bool `json:"enabled" split_words:"true"`
	KillEngine bool `json:"kill_engine" split_words:"true"`
	FlushDNS   bool `json:"flush_dns" split_words:"true"`
	ResetProxy bool `json:"reset_proxy" split_words:"true"`
	WaitMS     int  `json:"wait_ms" split_words:"true"`
}

// Settings is the full launcher configuration.
type Settings struct {
	WorkDir            string   `json:"work_dir" split_words:"true"`
	ListenAddr         string   `json:"listen_addr" split_words:"true"`
	LogLevel           string   `json:"log_level" split_words:"true"`
	Subscriptions      []string `json:"subscriptions" split_words:"true"`
	DatedSources       []string `json:"dated_sources" split_words:"true"`
	MixedPort          int      `json:"mixed_port" split_words:"true"`
	ExternalController string   `json:"external_controller" split_words:"true"`
	Secret             string   `json:"secret" split_words:"true"`
	UpdateCheckMinutes int      `json:"update_check_minutes" split_words:"true"`
	STUNServer         string   `json:"stun_server" split_words:"true"`

	Engine  EngineSettings  `json:"engine" split_words:"true"`
	Fetch   FetchSettings   `json:"fetch" split_words:"true"`
	Proxy   ProxySettings   `json:"proxy" split_words:"true"`
	Cleanup CleanupSettings `json:"cleanup" split_words:"true"`
}

// Default returns the settings used when no file is present.
func Default() *Settings {
	return &Settings{
		ListenAddr:         constants.DefaultListenAddr,
		LogLevel:           "info",
		MixedPort:          constants.DefaultMixedPort,
		ExternalController: constants.DefaultExternalController,
		UpdateCheckMinutes: 60,
		STUNServer:         constants.DefaultSTUNServer,
		Engine: EngineSettings{
			SettleMS:       800,
			StopTimeoutMS:  3000,
			RestartPauseMS: 1000,
		},
		Fetch: FetchSettings{
			TimeoutMS: 10000,
			MaxBytes:  10 * 1024 * 1024,
			UserAgent: "clash-launcher/" + constants.AppVersion,
		},
		Proxy: ProxySettings{
			Bypass: "localhost;127.*;10.*;172.16.*;172.17.*;172.18.*;172.19.*;172.20.*;172.21.*;172.22.*;172.23.*;172.24.*;172.25.*;172.26.*;172.27.*;172.28.*;172.29.*;172.30.*;172.31.*;192.168.*;<local>",
		},
		Cleanup: CleanupSettings{
			Enabled:    true,
			KillEngine: true,
			FlushDNS:   true,
			ResetProxy: true,
			WaitMS:     1000,
		},
	}
}

// Load reads path (missing file means defaults), applies the .env file next
// to it and the environment, then validates the result.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(cleanJSONC(data), s); err != nil {
			return nil, fmt.Errorf("settings: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("settings: load %s: %w", envPath, err)
	}
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, fmt.Errorf("settings: environment: %w", err)
	}

	s.fillDefaults(filepath.Dir(path))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var trailingComma = regexp.MustCompile(`,(\s*[\]\}])`)

// cleanJSONC turns a commented file with trailing commas into plain JSON.
func cleanJSONC(data []byte) []byte {
	return trailingComma.ReplaceAll(jsonc.ToJSON(data), []byte("$1"))
}

func (s *Settings) fillDefaults(baseDir string) {
	def := Default()
	if s.WorkDir == "" {
		s.WorkDir = baseDir
	}
	if s.ListenAddr == "" {
		s.ListenAddr = def.ListenAddr
	}
	if s.MixedPort == 0 {
		s.MixedPort = def.MixedPort
	}
	if s.ExternalController == "" {
		s.ExternalController = def.ExternalController
	}
	if s.Proxy.Server == "" {
		s.Proxy.Server = fmt.Sprintf("127.0.0.1:%d", s.MixedPort)
	}
	if s.Fetch.UserAgent == "" {
		s.Fetch.UserAgent = def.Fetch.UserAgent
	}
	if s.STUNServer == "" {
		s.STUNServer = def.STUNServer
	}
	s.Subscriptions = trimList(s.Subscriptions)
	s.DatedSources = trimList(s.DatedSources)
}

func trimList(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks ranges and URL schemes.
func (s *Settings) Validate() error {
	for _, u := range append(append([]string{}, s.Subscriptions...), s.DatedSources...) {
		if err := ValidateSourceURL(u); err != nil {
			return &ValidationError{Field: "subscriptions", Reason: err.Error()}
		}
	}
	positive := []struct {
		field string
		value int64
	}{
		{"mixed_port", int64(s.MixedPort)},
		{"engine.settle_ms", int64(s.Engine.SettleMS)},
		{"engine.stop_timeout_ms", int64(s.Engine.StopTimeoutMS)},
		{"fetch.timeout_ms", int64(s.Fetch.TimeoutMS)},
		{"fetch.max_bytes", s.Fetch.MaxBytes},
		{"update_check_minutes", int64(s.UpdateCheckMinutes)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ValidationError{Field: p.field, Reason: "must be positive"}
		}
	}
	if s.MixedPort > 65535 {
		return &ValidationError{Field: "mixed_port", Reason: "out of range"}
	}
	if s.Engine.RestartPauseMS < 0 || s.Cleanup.WaitMS < 0 {
		return &ValidationError{Field: "engine.restart_pause_ms", Reason: "must not be negative"}
	}
	return nil
}

// ValidateSourceURL accepts only absolute http and https URLs.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must start with http:// or https://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// ConfigPath returns the engine configuration document path.
func (s *Settings) ConfigPath() string {
	return filepath.Join(s.WorkDir, constants.ConfigDirName, constants.ConfigFileName)
}

// MarkerPath returns the last-update marker path.
func (s *Settings) MarkerPath() string {
	return filepath.Join(s.WorkDir, constants.ConfigDirName, constants.MarkerFileName)
}

// LogPath returns the launcher log file path.
func (s *Settings) LogPath() string {
	return filepath.Join(s.WorkDir, constants.LogsDirName, constants.MainLogFileName)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (e EngineSettings) Settle() time.Duration { return ms(e.SettleMS) }

func (e EngineSettings) StopTimeout() time.Duration { return ms(e.StopTimeoutMS) }

func (e EngineSettings) RestartDelay() time.Duration { return ms(e.RestartPauseMS) }

func (f FetchSettings) Timeout() time.Duration { return ms(f.TimeoutMS) }

func (c CleanupSettings) Wait() time.Duration { return ms(c.WaitMS) }

func (s *Settings) UpdateInterval() time.Duration {
	return time.Duration(s.UpdateCheckMinutes) * time.Minute
}
