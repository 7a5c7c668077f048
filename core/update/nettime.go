package update

import (
	"context"
	"net/http"
	"time"

	"clash-launcher/internal/debuglog"
)

// DefaultTimeSources are queried in order for an HTTP Date header.
var DefaultTimeSources = []string{
	"https://www.google.com",
	"https://www.cloudflare.com",
	"https://www.baidu.com",
}

// Clock reports the current time used to gate refreshes.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// NetClock reads the Date header of well-known sites so a wrong local
// clock does not skip or repeat the daily refresh. It falls back to the
// local UTC clock when no source answers.
type NetClock struct {
	Sources []string
	Timeout time.Duration
	Client  *http.Client

	local func() time.Time
}

// NewNetClock returns a clock over DefaultTimeSources with a 5s timeout each.
func NewNetClock() *NetClock {
	return &NetClock{Sources: DefaultTimeSources, Timeout: 5 * time.Second}
}

// Now returns the first network date found, in UTC.
func (c *NetClock) Now(ctx context.Context) time.Time {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	for _, src := range c.Sources {
		if t, ok := c.fetchDate(ctx, client, src); ok {
			return t
		}
	}
	debuglog.WarnLog("networkTime: no time source answered, using local clock")
	if c.local != nil {
		return c.local().UTC()
	}
	return time.Now().UTC()
}

func (c *NetClock) fetchDate(ctx context.Context, client *http.Client, src string) (time.Time, bool) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, src, nil)
	if err != nil {
		return time.Time{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		debuglog.DebugLog("networkTime: %s: %v", src, err)
		return time.Time{}, false
	}
	debuglog.RunAndLog("networkTime: close response body", resp.Body.Close)

	raw := resp.Header.Get("Date")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		debuglog.DebugLog("networkTime: %s sent unparsable Date %q", src, raw)
		return time.Time{}, false
	}
	return t.UTC(), true
}

// SameDay compares two instants by their UTC calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
