package subscription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"clash-launcher/internal/constants"
	"clash-launcher/internal/debuglog"
)

// DefaultTimeout bounds a single source download.
const DefaultTimeout = 15 * time.Second

// DefaultMaxBytes caps a subscription body.
const DefaultMaxBytes = 10 * 1024 * 1024

// CreateHTTPClientFunc is set to core.CreateHTTPClient at startup.
var CreateHTTPClientFunc func(timeout time.Duration) *http.Client

// IsNetworkErrorFunc is set to core.IsNetworkError at startup.
var IsNetworkErrorFunc func(err error) bool

// GetNetworkErrorMessageFunc is set to core.GetNetworkErrorMessage at startup.
var GetNetworkErrorMessageFunc func(err error) string

// FetchOptions tune a download. Zero values mean defaults.
type FetchOptions struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = "clash-launcher/" + constants.AppVersion
	}
	return o
}

// FetchSubscription downloads the raw body of url within opts.Timeout.
func FetchSubscription(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var client *http.Client
	if CreateHTTPClientFunc != nil {
		client = CreateHTTPClientFunc(opts.Timeout)
	} else {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	// Aggregators serve Clash YAML only to Clash-like agents.
	req.Header.Set("User-Agent", "clash.meta "+opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if IsNetworkErrorFunc != nil && GetNetworkErrorMessageFunc != nil && IsNetworkErrorFunc(err) {
			return nil, &FetchError{URL: url, Cause: fmt.Errorf("%s: %w", GetNetworkErrorMessageFunc(err), err)}
		}
		return nil, &FetchError{URL: url, Cause: err}
	}
	defer debuglog.RunAndLog("fetchSubscription: close response body", resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(content)) > opts.MaxBytes {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("body exceeds %d bytes", opts.MaxBytes)}
	}
	if len(content) == 0 {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("empty body")}
	}

	debuglog.LogTextFragment("DEBUG", debuglog.LevelVerbose, "fetchSubscription: "+url, string(content), 100)
	return content, nil
}
