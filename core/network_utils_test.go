package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dns", &net.DNSError{Name: "example.invalid"}, true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkError(tt.err); got != tt.want {
				t.Errorf("IsNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetNetworkErrorMessage(t *testing.T) {
	msg := GetNetworkErrorMessage(fmt.Errorf("get: %w", &net.DNSError{Name: "sub.example"}))
	if !strings.Contains(msg, "sub.example") {
		t.Errorf("message = %q", msg)
	}
	if got := GetNetworkErrorMessage(&net.OpError{Op: "dial", Err: errors.New("x")}); got != "Network error: cannot connect to server" {
		t.Errorf("dial message = %q", got)
	}
	if got := GetNetworkErrorMessage(context.Canceled); got != "Request canceled" {
		t.Errorf("canceled message = %q", got)
	}
}
