// Package diag holds network diagnostics exposed by the control surface.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"
)

// DefaultTimeout bounds a STUN exchange when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

var ErrSTUNTimeout = errors.New("diag: STUN request timed out")

// ExternalIP asks serverAddr for our reflexive transport address and
// returns the public IP it reports.
func ExternalIP(ctx context.Context, serverAddr string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", serverAddr)
	if err != nil {
		return "", fmt.Errorf("failed to dial STUN server: %w", err)
	}

	c, err := stun.NewClient(conn)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("failed to create STUN client: %w", err)
	}
	defer c.Close()

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	type result struct {
		ip  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		err := c.Do(message, func(ev stun.Event) {
			if ev.Error != nil {
				res.err = ev.Error
				return
			}
			var xorAddr stun.XORMappedAddress
			if err := xorAddr.GetFrom(ev.Message); err != nil {
				res.err = err
				return
			}
			res.ip = xorAddr.IP.String()
		})
		if err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("STUN request failed: %w", res.err)
		}
		return res.ip, nil
	case <-ctx.Done():
		return "", ErrSTUNTimeout
	}
}
