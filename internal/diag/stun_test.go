package diag

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/stun"
)

func startSTUNServer(t *testing.T, respond bool) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if !respond {
				continue
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}
			resp, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: net.IPv4(203, 0, 113, 7), Port: 4242},
			)
			if err != nil {
				continue
			}
			pc.WriteTo(resp.Raw, addr)
		}
	}()
	return pc.LocalAddr().String()
}

func TestExternalIP(t *testing.T) {
	addr := startSTUNServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ip, err := ExternalIP(ctx, addr)
	if err != nil {
		t.Fatalf("ExternalIP: %v", err)
	}
	if ip != "203.0.113.7" {
		t.Errorf("ip = %s", ip)
	}
}

func TestExternalIPTimeout(t *testing.T) {
	addr := startSTUNServer(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := ExternalIP(ctx, addr)
	if !errors.Is(err, ErrSTUNTimeout) {
		t.Fatalf("err = %v, want ErrSTUNTimeout", err)
	}
}
