// Package httpapi exposes the launcher's operations as a small local JSON
// API. Every reply is {"ok": true, "result": ...} or {"ok": false,
// "error": "..."}.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"clash-launcher/api"
	"clash-launcher/core"
	"clash-launcher/core/config"
	"clash-launcher/core/engine"
	"clash-launcher/core/subscription"
	"clash-launcher/internal/debuglog"
	"clash-launcher/internal/diag"
	"clash-launcher/internal/settings"
	"clash-launcher/internal/sysproxy"
)

const maxBodyBytes = 64 << 10

// Launcher is the set of operations served over HTTP.
type Launcher interface {
	UpdateSubscriptions(ctx context.Context) (*core.UpdateReport, error)
	UpdateFromURL(ctx context.Context, rawURL string) (*core.UpdateReport, error)
	ProxyStatus() core.ProxyReport
	ToggleProxy(ctx context.Context) (bool, error)
	Nodes(ctx context.Context) (*core.NodesReport, error)
	SwitchNode(ctx context.Context, name string) (*core.SwitchReport, error)
	EngineStatus(ctx context.Context) core.EngineReport
	ExternalIP(ctx context.Context) (string, error)
}

// Server routes requests to a Launcher.
type Server struct {
	launcher Launcher
}

// New returns a server for l.
func New(l Launcher) *Server {
	return &Server{launcher: l}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/update_subscription", s.handleUpdate)
	mux.HandleFunc("GET /api/proxy_status", s.handleProxyStatus)
	mux.HandleFunc("POST /api/proxy/toggle", s.handleToggle)
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("POST /api/switch_node", s.handleSwitch)
	mux.HandleFunc("GET /api/engine/status", s.handleEngineStatus)
	mux.HandleFunc("GET /api/diag/ip", s.handleExternalIP)
	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		debuglog.DebugLog("httpAPI: %s %s (%v)", r.Method, r.URL.Path, time.Since(started))
	})
}

type updateRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		report *core.UpdateReport
		err    error
	)
	if req.URL != "" {
		report, err = s.launcher.UpdateFromURL(r.Context(), req.URL)
	} else {
		report, err = s.launcher.UpdateSubscriptions(r.Context())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, report)
}

func (s *Server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.launcher.ProxyStatus())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.launcher.ToggleProxy(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, map[string]bool{"enabled": enabled})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.launcher.Nodes(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, nodes)
}

type switchRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.launcher.SwitchNode(r.Context(), req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, report)
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.launcher.EngineStatus(r.Context()))
}

func (s *Server) handleExternalIP(w http.ResponseWriter, r *http.Request) {
	ip, err := s.launcher.ExternalIP(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, map[string]string{"ip": ip})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps the launcher's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, settings.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEngineNotRunning):
		return http.StatusConflict
	case errors.Is(err, sysproxy.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, subscription.ErrEmptyResult), errors.Is(err, api.ErrAPI):
		return http.StatusBadGateway
	case errors.Is(err, diag.ErrSTUNTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrExecutableNotFound),
		errors.Is(err, engine.ErrConfigMissing),
		errors.Is(err, config.ErrConfigNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type envelope struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Result: result})
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		debuglog.ErrorLog("httpAPI: %v", err)
	}
	writeJSON(w, code, envelope{Error: err.Error()})
}
