package core

import (
	"context"
	"net"
	"testing"
	"time"

	gosocks5 "github.com/armon/go-socks5"
)

func startSOCKS5(t *testing.T) string {
	t.Helper()
	srv, err := gosocks5.New(&gosocks5.Config{})
	if err != nil {
		t.Fatalf("socks5 server: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go srv.Serve(l)
	return l.Addr().String()
}

func startTarget(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return l.Addr().String()
}

func TestProbeMixedPort(t *testing.T) {
	proxy := startSOCKS5(t)
	target := startTarget(t)

	if _, err := ProbeMixedPort(context.Background(), proxy, target, 2*time.Second); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestProbeMixedPortClosed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := ProbeMixedPort(context.Background(), addr, startTarget(t), time.Second); err == nil {
		t.Fatal("expected error for closed port")
	}
}

func TestProbeMixedPortCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A listener that never answers the SOCKS5 greeting.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	if _, err := ProbeMixedPort(ctx, l.Addr().String(), "127.0.0.1:1", time.Second); err == nil {
		t.Fatal("expected error")
	}
}
