package core

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/txthinking/socks5"

	"clash-launcher/internal/debuglog"
)

// DefaultProbeTarget is dialled through the engine's mixed port.
const DefaultProbeTarget = "www.gstatic.com:80"

// ProbeMixedPort performs a SOCKS5 CONNECT to target through the engine's
// mixed port at addr and returns how long the handshake took.
func ProbeMixedPort(ctx context.Context, addr, target string, timeout time.Duration) (time.Duration, error) {
	sec := int(timeout / time.Second)
	if sec < 1 {
		sec = 1
	}
	client, err := socks5.NewClient(addr, "", "", sec, sec)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", addr, err)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		conn, err := client.Dial("tcp", target)
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("probe %s via %s: %w", target, addr, r.err)
		}
		elapsed := time.Since(started)
		debuglog.CloseWithLog("probeMixedPort", r.conn)
		debuglog.DebugLog("probeMixedPort: %s via %s in %v", target, addr, elapsed)
		return elapsed, nil
	}
}
