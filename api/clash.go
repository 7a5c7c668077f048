// Package api is a client for the engine's external controller.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clash-launcher/core/config"
	"clash-launcher/internal/constants"
	"clash-launcher/internal/debuglog"
)

const (
	httpDialTimeout    = 5 * time.Second
	httpRequestTimeout = 20 * time.Second

	// DefaultDelayTimeout is passed to the engine's delay test.
	DefaultDelayTimeout = 5000 * time.Millisecond
)

var (
	ErrAPI           = errors.New("api: engine controller request failed")
	ErrGroupNotFound = errors.New("api: proxy group not found")
)

// StatusError is a non-success reply from the controller.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: unexpected status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrAPI }

// ProxyInfo is one member of a group with its last measured delay.
type ProxyInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Traffic [2]int64 `json:"-"`
	Delay   int64    `json:"delay"`
}

// Client talks to the external controller with a bearer secret.
type Client struct {
	BaseURL string
	Token   string

	http *http.Client
}

// NewClient builds a client for controller (host:port or a full URL).
func NewClient(controller, token string) *Client {
	base := strings.TrimRight(controller, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL: base,
		Token:   token,
		http: &http.Client{
			Timeout: httpRequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: httpDialTimeout}).DialContext,
				Proxy:       nil,
			},
		},
	}
}

// LoadClientConfig reads the controller address and secret from the saved
// configuration document.
func LoadClientConfig(store *config.Store) (*Client, error) {
	doc, err := store.Load()
	if err != nil {
		return nil, err
	}
	controller := doc.ExternalController
	if controller == "" {
		controller = constants.DefaultExternalController
	}
	debuglog.DebugLog("loadAPIConfig: controller %s", controller)
	return NewClient(controller, doc.Secret), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("api: %s: create request: %w", op, err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, 0, fmt.Errorf("api: %s: network timeout: %w", op, err)
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, 0, fmt.Errorf("api: %s: cannot connect to engine controller: %w", op, err)
		}
		return nil, 0, fmt.Errorf("api: %s: %w", op, err)
	}
	defer debuglog.RunAndLog("api: close response body", resp.Body.Close)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("api: %s: read response: %w", op, err)
	}
	return data, resp.StatusCode, nil
}

func statusError(op string, status int, body []byte) error {
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		return &StatusError{Op: op, Status: status, Message: msg.Message}
	}
	return &StatusError{Op: op, Status: status, Message: strings.TrimSpace(string(body))}
}

// Version probes the controller and returns the engine version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	body, status, err := c.do(ctx, "version", http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError("version", status, body)
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("api: version: %w", err)
	}
	return v.Version, nil
}

// ProxiesInGroup lists the members of group in engine order together with
// the member currently selected.
func (c *Client) ProxiesInGroup(ctx context.Context, group string) ([]ProxyInfo, string, error) {
	body, status, err := c.do(ctx, "proxies", http.MethodGet, "/proxies", nil)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, "", statusError("proxies", status, body)
	}

	var raw struct {
		Proxies map[string]map[string]any `json:"proxies"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", fmt.Errorf("api: proxies: %w", err)
	}
	if raw.Proxies == nil {
		return nil, "", fmt.Errorf("api: proxies: 'proxies' key not found in the response: %w", ErrAPI)
	}

	g, ok := raw.Proxies[group]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrGroupNotFound, group)
	}
	members, ok := g["all"].([]any)
	if !ok {
		return nil, "", fmt.Errorf("api: proxies: invalid or missing 'all' field for group %q: %w", group, ErrAPI)
	}
	now, _ := g["now"].(string)

	proxies := make([]ProxyInfo, 0, len(members))
	for _, m := range members {
		name, ok := m.(string)
		if !ok {
			continue
		}
		pi := ProxyInfo{Name: name}
		if node, ok := raw.Proxies[name]; ok {
			pi.Type, _ = node["type"].(string)
			if f, ok := node["up"].(float64); ok {
				pi.Traffic[0] = int64(f)
			}
			if f, ok := node["down"].(float64); ok {
				pi.Traffic[1] = int64(f)
			}
			if history, ok := node["history"].([]any); ok && len(history) > 0 {
				if last, ok := history[len(history)-1].(map[string]any); ok {
					if delay, ok := last["delay"].(float64); ok {
						pi.Delay = int64(delay)
					}
				}
			}
		}
		proxies = append(proxies, pi)
	}
	return proxies, now, nil
}

// CurrentProxy returns the member selected in group.
func (c *Client) CurrentProxy(ctx context.Context, group string) (string, error) {
	_, now, err := c.ProxiesInGroup(ctx, group)
	return now, err
}

// SwitchProxy selects proxy in group. The engine answers 204.
func (c *Client) SwitchProxy(ctx context.Context, group, proxy string) error {
	payload, err := json.Marshal(map[string]string{"name": proxy})
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, "switch", http.MethodPut, "/proxies/"+url.PathEscape(group), strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return statusError("switch", status, body)
	}
	debuglog.InfoLog("switchProxy: group %q now uses %q", group, proxy)
	return nil
}

// Delay asks the engine to measure proxy against testURL.
func (c *Client) Delay(ctx context.Context, proxy, testURL string, timeout time.Duration) (int64, error) {
	if testURL == "" {
		testURL = constants.DelayProbeURL
	}
	if timeout <= 0 {
		timeout = DefaultDelayTimeout
	}
	q := url.Values{}
	q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	q.Set("url", testURL)
	path := "/proxies/" + url.PathEscape(proxy) + "/delay?" + q.Encode()

	body, status, err := c.do(ctx, "delay", http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, statusError("delay", status, body)
	}
	var data struct {
		Delay *float64 `json:"delay"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("api: delay: %w", err)
	}
	if data.Delay == nil {
		return 0, fmt.Errorf("api: delay: 'delay' field missing: %w", ErrAPI)
	}
	return int64(*data.Delay), nil
}
