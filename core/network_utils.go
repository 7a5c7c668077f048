package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"clash-launcher/core/subscription"
)

const (
	// NetworkDialTimeout bounds establishing a connection.
	NetworkDialTimeout = 5 * time.Second
	// NetworkRequestTimeout bounds one HTTP request.
	NetworkRequestTimeout = 15 * time.Second
)

func init() {
	subscription.CreateHTTPClientFunc = CreateHTTPClient
	subscription.IsNetworkErrorFunc = IsNetworkError
	subscription.GetNetworkErrorMessageFunc = GetNetworkErrorMessage
}

// CreateHTTPClient returns a client with tuned timeouts. Subscription
// downloads go direct: the system proxy may point at the engine that is
// being reconfigured.
func CreateHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: (&net.Dialer{
				Timeout:   NetworkDialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// IsNetworkError reports whether err is a transport failure rather than a
// bad reply.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// GetNetworkErrorMessage returns a short readable description of err.
func GetNetworkErrorMessage(err error) string {
	if err == nil {
		return "Unknown network error"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("DNS error: cannot resolve hostname (%s)", dnsErr.Name)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "Network error: cannot connect to server"
	}
	if errors.Is(err, context.Canceled) {
		return "Request canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout: operation took too long"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network timeout: connection timed out"
	}
	return fmt.Sprintf("Network error: %s", err.Error())
}
