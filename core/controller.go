// Package core wires the launcher's components together and applies its
// policies.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clash-launcher/api"
	"clash-launcher/core/cleanup"
	"clash-launcher/core/config"
	"clash-launcher/core/engine"
	"clash-launcher/core/subscription"
	"clash-launcher/core/update"
	"clash-launcher/internal/constants"
	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/diag"
	"clash-launcher/internal/platform"
	"clash-launcher/internal/settings"
	"clash-launcher/internal/sysproxy"
)

const (
	// StatusPollInterval is how often the current node is refreshed.
	StatusPollInterval = 5 * time.Second
	probeTimeout       = 3 * time.Second
)

// Engine is the supervised engine process.
type Engine interface {
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) error
	Restart(ctx context.Context) (bool, error)
	Status() engine.Status
}

// SystemProxy is the OS proxy controller.
type SystemProxy interface {
	Enable(server, bypass string) bool
	Disable() bool
	ForceDisable() bool
	CurrentStatus() string
	Current() (sysproxy.State, error)
}

// NodeAPI is the engine's external controller.
type NodeAPI interface {
	Version(ctx context.Context) (string, error)
	ProxiesInGroup(ctx context.Context, group string) ([]api.ProxyInfo, string, error)
	CurrentProxy(ctx context.Context, group string) (string, error)
	SwitchProxy(ctx context.Context, group, proxy string) error
}

// Updater refreshes subscriptions.
type Updater interface {
	UpdateIfNeeded(ctx context.Context) (bool, error)
	Force(ctx context.Context) (*subscription.MergeResult, error)
	Run(ctx context.Context, interval time.Duration, onUpdated func(ctx context.Context))
}

// SourceMerger merges an explicit list of sources.
type SourceMerger interface {
	Merge(ctx context.Context, sources []subscription.Source) (*subscription.MergeResult, error)
}

// DocumentStore persists the engine configuration.
type DocumentStore interface {
	Save(doc *config.Document) (string, error)
	Exists() bool
}

// Cleaner undoes leftovers of a previous run.
type Cleaner interface {
	Run(ctx context.Context) cleanup.Report
}

// UpdateReport describes a finished subscription update.
type UpdateReport struct {
	Nodes      int                          `json:"nodes"`
	Names      []string                     `json:"names"`
	Skipped    []subscription.SkippedSource `json:"skipped,omitempty"`
	ConfigPath string                       `json:"config_path,omitempty"`
	Restarted  bool                         `json:"restarted"`
}

// ProxyReport is the state of the OS proxy as seen by the launcher.
type ProxyReport struct {
	Supported bool   `json:"supported"`
	Status    string `json:"status"`
	Owned     bool   `json:"owned"`
}

// NodesReport lists the selector group.
type NodesReport struct {
	Group   string          `json:"group"`
	Current string          `json:"current"`
	Nodes   []api.ProxyInfo `json:"nodes"`
}

// SwitchReport is the outcome of a node switch.
type SwitchReport struct {
	Node         string `json:"node"`
	ProxyEnabled bool   `json:"proxy_enabled"`
}

// EngineReport combines the process status with a mixed-port probe.
type EngineReport struct {
	engine.Status
	MixedPort   string `json:"mixed_port"`
	MixedPortOK bool   `json:"mixed_port_ok"`
	ProbeMS     int64  `json:"probe_ms,omitempty"`
	Version     string `json:"version,omitempty"`
	ActiveNode  string `json:"active_node,omitempty"`
}

// AppController wires the launcher together and applies its policies:
// an update turns the system proxy off first, the first successful node
// switch turns it on, and shutdown restores what was there before.
type AppController struct {
	Settings *settings.Settings

	Engine  Engine
	Proxy   SystemProxy // nil when the platform has no proxy support
	API     NodeAPI
	Updater Updater
	Merger  SourceMerger
	Store   DocumentStore
	Cleaner Cleaner

	probe      func(ctx context.Context, addr, target string, timeout time.Duration) (time.Duration, error)
	externalIP func(ctx context.Context, server string) (string, error)

	// opMu serialises updates, switches, toggles and shutdown.
	opMu sync.Mutex

	stateMu    sync.RWMutex
	activeNode string
	proxyOwned bool
	wantEngine bool

	watch watchdogState
}

// NewAppController builds the production wiring from s.
func NewAppController(s *settings.Settings) (*AppController, error) {
	if err := platform.EnsureDirectories(s.WorkDir); err != nil {
		return nil, fmt.Errorf("NewAppController: cannot create directories: %w", err)
	}

	store := config.NewStore(platform.GetConfigDir(s.WorkDir))
	merger := subscription.NewMerger(
		subscription.FetchOptions{Timeout: s.Fetch.Timeout(), MaxBytes: s.Fetch.MaxBytes, UserAgent: s.Fetch.UserAgent},
		config.Options{MixedPort: s.MixedPort, ExternalController: s.ExternalController, Secret: s.Secret},
	)
	sup := engine.NewSupervisor(engine.Options{
		ResourceDir:    s.Engine.ResourceDir,
		WorkDir:        s.WorkDir,
		InstallDir:     engine.InstallDir(),
		ExecutableName: platform.GetExecutableName(),
		ConfigPath:     store.Path(),
		Settle:         s.Engine.Settle(),
		StopTimeout:    s.Engine.StopTimeout(),
		RestartPause:   s.Engine.RestartDelay(),
	})

	ac := &AppController{
		Settings:   s,
		Engine:     sup,
		API:        api.NewClient(s.ExternalController, s.Secret),
		Updater:    update.NewScheduler(merger, store, update.NewNetClock(), s.Subscriptions, s.DatedSources),
		Merger:     merger,
		Store:      store,
		probe:      ProbeMixedPort,
		externalIP: diag.ExternalIP,
	}

	var resetter cleanup.ProxyResetter
	if sys, err := sysproxy.NewSystemSettings(); err != nil {
		debuglog.WarnLog("NewAppController: system proxy unavailable: %v", err)
	} else {
		ctrl := sysproxy.NewController(sys)
		ac.Proxy = ctrl
		resetter = ctrl
	}
	ac.Cleaner = cleanup.New(cleanup.Options{
		Enabled:    s.Cleanup.Enabled,
		KillEngine: s.Cleanup.KillEngine,
		FlushDNS:   s.Cleanup.FlushDNS,
		ResetProxy: s.Cleanup.ResetProxy,
		Wait:       s.Cleanup.Wait(),
	}, resetter)

	debuglog.InfoLog("NewAppController: work dir %s, config %s", s.WorkDir, store.Path())
	return ac, nil
}

// Startup runs the optional cleanup, refreshes subscriptions when the day
// changed and starts the engine if a configuration exists.
func (ac *AppController) Startup(ctx context.Context, runCleanup bool) error {
	if runCleanup && ac.Cleaner != nil {
		ac.Cleaner.Run(ctx)
	}
	if _, err := ac.Updater.UpdateIfNeeded(ctx); err != nil {
		debuglog.WarnLog("startup: subscription update failed: %v", err)
	}
	if !ac.Store.Exists() {
		debuglog.WarnLog("startup: no configuration yet, engine not started")
		return nil
	}
	ok, err := ac.StartEngine(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEngineStart
	}
	return nil
}

// StartEngine starts the engine and keeps the watchdog interested in it.
func (ac *AppController) StartEngine(ctx context.Context) (bool, error) {
	ac.setWantEngine(true)
	return ac.Engine.Start(ctx)
}

// StopEngine stops the engine on request. The system proxy is restored
// first so that traffic never points at a dead port.
func (ac *AppController) StopEngine(ctx context.Context) error {
	ac.opMu.Lock()
	defer ac.opMu.Unlock()
	ac.setWantEngine(false)
	ac.disableProxyLocked("stopEngine")
	return ac.Engine.Stop(ctx)
}

// UpdateSubscriptions refreshes every configured source and restarts the
// engine on success. Nothing is restarted when the merge fails.
func (ac *AppController) UpdateSubscriptions(ctx context.Context) (*UpdateReport, error) {
	ac.opMu.Lock()
	defer ac.opMu.Unlock()

	ac.disableProxyLocked("updateSubscriptions")
	res, err := ac.Updater.Force(ctx)
	if err != nil {
		debuglog.ErrorLog("updateSubscriptions: %v", err)
		return nil, err
	}
	return ac.finishUpdateLocked(ctx, res, ""), nil
}

// UpdateFromURL merges a single subscription, replaces the configuration
// and restarts the engine.
func (ac *AppController) UpdateFromURL(ctx context.Context, rawURL string) (*UpdateReport, error) {
	if err := settings.ValidateSourceURL(rawURL); err != nil {
		return nil, &settings.ValidationError{Field: "url", Reason: err.Error()}
	}

	ac.opMu.Lock()
	defer ac.opMu.Unlock()

	ac.disableProxyLocked("updateFromURL")
	res, err := ac.Merger.Merge(ctx, subscription.SourcesFromURLs([]string{rawURL}))
	if err != nil {
		debuglog.ErrorLog("updateFromURL: %v", err)
		return nil, err
	}
	path, err := ac.Store.Save(res.Document)
	if err != nil {
		debuglog.ErrorLog("updateFromURL: %v", err)
		return nil, err
	}
	return ac.finishUpdateLocked(ctx, res, path), nil
}

func (ac *AppController) finishUpdateLocked(ctx context.Context, res *subscription.MergeResult, path string) *UpdateReport {
	report := &UpdateReport{
		Nodes:      len(res.Names),
		Names:      res.Names,
		Skipped:    res.Skipped,
		ConfigPath: path,
	}
	report.Restarted = ac.restartLocked(ctx, "updateSubscriptions")
	return report
}

func (ac *AppController) restartLocked(ctx context.Context, op string) bool {
	ac.setWantEngine(true)
	ac.setActiveNode("")
	ok, err := ac.Engine.Restart(ctx)
	if err != nil {
		debuglog.ErrorLog("%s: engine restart: %v", op, err)
		return false
	}
	if !ok {
		debuglog.ErrorLog("%s: engine did not come up after restart", op)
	}
	return ok
}

// disableProxyLocked restores the OS proxy if this launcher enabled it.
func (ac *AppController) disableProxyLocked(op string) {
	if ac.Proxy == nil || !ac.ProxyOwned() {
		return
	}
	if ac.Proxy.Disable() {
		ac.setProxyOwned(false)
		debuglog.InfoLog("%s: system proxy restored", op)
	} else {
		debuglog.WarnLog("%s: could not restore system proxy", op)
	}
}

// ProxyStatus reports the OS proxy state.
func (ac *AppController) ProxyStatus() ProxyReport {
	if ac.Proxy == nil {
		return ProxyReport{Status: "unknown"}
	}
	return ProxyReport{Supported: true, Status: ac.Proxy.CurrentStatus(), Owned: ac.ProxyOwned()}
}

// ToggleProxy disables the OS proxy when it is on and enables it when it is
// off. Enabling requires a running engine. It returns the new state.
func (ac *AppController) ToggleProxy(ctx context.Context) (bool, error) {
	if ac.Proxy == nil {
		return false, sysproxy.ErrUnsupported
	}

	ac.opMu.Lock()
	defer ac.opMu.Unlock()

	st, err := ac.Proxy.Current()
	if err != nil {
		return false, err
	}
	if st.Enabled {
		if !ac.Proxy.Disable() {
			return true, &ProxyError{Op: "disable"}
		}
		ac.setProxyOwned(false)
		debuglog.InfoLog("toggleProxy: system proxy disabled")
		return false, nil
	}

	if !ac.Engine.Status().Running {
		return false, ErrEngineNotRunning
	}
	if !ac.enableProxyLocked() {
		return false, &ProxyError{Op: "enable"}
	}
	debuglog.InfoLog("toggleProxy: system proxy enabled (%s)", ac.Settings.Proxy.Server)
	return true, nil
}

func (ac *AppController) enableProxyLocked() bool {
	if !ac.Proxy.Enable(ac.Settings.Proxy.Server, ac.Settings.Proxy.Bypass) {
		return false
	}
	ac.setProxyOwned(true)
	return true
}

// Nodes lists the selector group with last delays.
func (ac *AppController) Nodes(ctx context.Context) (*NodesReport, error) {
	nodes, now, err := ac.API.ProxiesInGroup(ctx, constants.SelectorGroupName)
	if err != nil {
		return nil, err
	}
	ac.setActiveNode(now)
	return &NodesReport{Group: constants.SelectorGroupName, Current: now, Nodes: nodes}, nil
}

// SwitchNode selects name in the selector group. The first successful
// switch also turns on the OS proxy.
func (ac *AppController) SwitchNode(ctx context.Context, name string) (*SwitchReport, error) {
	if name == "" {
		return nil, &settings.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	ac.opMu.Lock()
	defer ac.opMu.Unlock()

	if err := ac.API.SwitchProxy(ctx, constants.SelectorGroupName, name); err != nil {
		debuglog.ErrorLog("switchNode: %v", err)
		return nil, err
	}
	ac.setActiveNode(name)
	debuglog.InfoLog("switchNode: now using %s", name)

	report := &SwitchReport{Node: name, ProxyEnabled: ac.ProxyOwned()}
	if ac.Proxy != nil && !report.ProxyEnabled {
		if report.ProxyEnabled = ac.enableProxyLocked(); !report.ProxyEnabled {
			debuglog.WarnLog("switchNode: system proxy could not be enabled")
		}
	}
	return report, nil
}

// EngineStatus reports the process and, when it runs, probes the mixed
// port and asks the controller for its version.
func (ac *AppController) EngineStatus(ctx context.Context) EngineReport {
	r := EngineReport{
		Status:     ac.Engine.Status(),
		MixedPort:  fmt.Sprintf("127.0.0.1:%d", ac.Settings.MixedPort),
		ActiveNode: ac.ActiveNode(),
	}
	if !r.Running {
		return r
	}
	if ac.probe != nil {
		if d, err := ac.probe(ctx, r.MixedPort, DefaultProbeTarget, probeTimeout); err != nil {
			debuglog.DebugLog("engineStatus: %v", err)
		} else {
			r.MixedPortOK = true
			r.ProbeMS = d.Milliseconds()
		}
	}
	if v, err := ac.API.Version(ctx); err == nil {
		r.Version = v
	}
	return r
}

// ExternalIP asks the configured STUN server for the public address.
func (ac *AppController) ExternalIP(ctx context.Context) (string, error) {
	if ac.externalIP == nil {
		return "", errors.New("core: external IP lookup not configured")
	}
	return ac.externalIP(ctx, ac.Settings.STUNServer)
}

// RunStatusPoller refreshes the active node until ctx is done.
func (ac *AppController) RunStatusPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ac.pollActiveNode(ctx)
		}
	}
}

func (ac *AppController) pollActiveNode(ctx context.Context) {
	if !ac.Engine.Status().Running {
		return
	}
	now, err := ac.API.CurrentProxy(ctx, constants.SelectorGroupName)
	if err != nil {
		debuglog.DebugLog("statusPoller: %v", err)
		return
	}
	if now != ac.ActiveNode() {
		debuglog.InfoLog("statusPoller: active node %s", now)
		ac.setActiveNode(now)
	}
}

// RunUpdateLoop checks for a new network day every UpdateInterval and
// restarts the engine after each refresh. An owned OS proxy is restored
// first since it points at the engine being restarted.
func (ac *AppController) RunUpdateLoop(ctx context.Context) {
	ac.Updater.Run(ctx, ac.Settings.UpdateInterval(), func(ctx context.Context) {
		ac.opMu.Lock()
		defer ac.opMu.Unlock()
		ac.disableProxyLocked("updateLoop")
		ac.restartLocked(ctx, "updateLoop")
	})
}

// Shutdown restores the OS proxy if the launcher changed it and stops the
// engine.
func (ac *AppController) Shutdown(ctx context.Context) error {
	ac.opMu.Lock()
	defer ac.opMu.Unlock()

	debuglog.InfoLog("shutdown: stopping")
	ac.setWantEngine(false)
	ac.disableProxyLocked("shutdown")
	return ac.Engine.Stop(ctx)
}

// ActiveNode returns the last known selected node.
func (ac *AppController) ActiveNode() string {
	ac.stateMu.RLock()
	defer ac.stateMu.RUnlock()
	return ac.activeNode
}

func (ac *AppController) setActiveNode(name string) {
	ac.stateMu.Lock()
	ac.activeNode = name
	ac.stateMu.Unlock()
}

// ProxyOwned reports whether the current OS proxy was set by this launcher.
func (ac *AppController) ProxyOwned() bool {
	ac.stateMu.RLock()
	defer ac.stateMu.RUnlock()
	return ac.proxyOwned
}

func (ac *AppController) setProxyOwned(v bool) {
	ac.stateMu.Lock()
	ac.proxyOwned = v
	ac.stateMu.Unlock()
}

func (ac *AppController) setWantEngine(v bool) {
	ac.stateMu.Lock()
	ac.wantEngine = v
	if !v {
		ac.watch.crashes = 0
	}
	ac.stateMu.Unlock()
}

func (ac *AppController) engineWanted() bool {
	ac.stateMu.RLock()
	defer ac.stateMu.RUnlock()
	return ac.wantEngine
}
