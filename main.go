package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clash-launcher/core"
	"clash-launcher/core/engine"
	"clash-launcher/internal/constants"
	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/httpapi"
	"clash-launcher/internal/settings"
)

const shutdownTimeout = 10 * time.Second

func main() {
	settingsPath := flag.String("settings", defaultSettingsPath(), "path to launcher.jsonc")
	listen := flag.String("listen", "", "HTTP control address (overrides settings)")
	updateOnly := flag.Bool("update-only", false, "refresh subscriptions once and exit")
	diagOnly := flag.Bool("diag", false, "print engine, proxy and external IP status and exit")
	noCleanup := flag.Bool("no-cleanup", false, "skip the startup cleanup")
	flag.Parse()

	if err := run(*settingsPath, *listen, *updateOnly, *diagOnly, *noCleanup); err != nil {
		log.Printf("clash-launcher: %v", err)
		os.Exit(1)
	}
}

func defaultSettingsPath() string {
	return filepath.Join(engine.InstallDir(), constants.SettingsFileName)
}

func run(settingsPath, listen string, updateOnly, diagOnly, noCleanup bool) error {
	s, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	if listen != "" {
		s.ListenAddr = listen
	}
	if os.Getenv("CLASH_LAUNCHER_DEBUG") == "" && s.LogLevel != "" {
		debuglog.GlobalLevel = debuglog.ParseLevel(s.LogLevel)
	}

	logFile, err := debuglog.OpenLogFile(s.LogPath())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer debuglog.CloseWithLog("close log file", logFile)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	debuglog.InfoLog("main: clash-launcher %s starting (settings %s)", constants.AppVersion, settingsPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ac, err := core.NewAppController(s)
	if err != nil {
		return err
	}

	switch {
	case updateOnly:
		res, err := ac.Updater.Force(ctx)
		if err != nil {
			return err
		}
		return printJSON(core.UpdateReport{Nodes: len(res.Names), Names: res.Names, Skipped: res.Skipped})
	case diagOnly:
		return printJSON(diagnostics(ctx, ac))
	}

	if err := ac.Startup(ctx, !noCleanup); err != nil {
		debuglog.ErrorLog("main: startup: %v", err)
	}

	go ac.RunStatusPoller(ctx, core.StatusPollInterval)
	go ac.RunWatchdog(ctx, core.WatchdogInterval)
	go ac.RunUpdateLoop(ctx)

	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           httpapi.New(ac).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	debuglog.InfoLog("main: control API listening on http://%s", s.ListenAddr)

	var serveErr error
	select {
	case <-ctx.Done():
		debuglog.InfoLog("main: shutdown signal received")
	case serveErr = <-errCh:
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		debuglog.WarnLog("main: graceful shutdown failed: %v", err)
		_ = srv.Close()
	}
	debuglog.RunAndLog("main: shutdown", func() error { return ac.Shutdown(shCtx) })

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	debuglog.InfoLog("main: stopped")
	return nil
}

type diagReport struct {
	Engine     core.EngineReport `json:"engine"`
	Proxy      core.ProxyReport  `json:"proxy"`
	ExternalIP string            `json:"external_ip,omitempty"`
	IPError    string            `json:"ip_error,omitempty"`
}

func diagnostics(ctx context.Context, ac *core.AppController) diagReport {
	r := diagReport{Engine: ac.EngineStatus(ctx), Proxy: ac.ProxyStatus()}
	if ip, err := ac.ExternalIP(ctx); err != nil {
		r.IPError = err.Error()
	} else {
		r.ExternalIP = ip
	}
	return r
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
