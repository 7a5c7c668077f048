package subscription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clash-launcher/core/config"
)

const yamlAB = `proxies:
  - {name: A, type: ss, server: a.example, port: 443}
  - {name: B, type: vmess, server: b.example, port: 443}
`

func TestParseEntriesYAMLMapping(t *testing.T) {
	entries := ParseEntries([]byte(yamlAB))
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}

func TestParseEntriesTopLevelList(t *testing.T) {
	entries := ParseEntries([]byte("- {name: A, type: ss}\n- {name: B, type: ss}\n"))
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}

func TestParseEntriesStripsTypeTags(t *testing.T) {
	payload := "proxies:\n  - name: !<str> A\n    type: ss\n    password: !<str> 1234\n"
	entries := ParseEntries([]byte(payload))
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	node := entries[0].(map[string]any)
	if node["name"] != "A" {
		t.Errorf("name = %v", node["name"])
	}
}

func TestParseEntriesBase64(t *testing.T) {
	for name, enc := range map[string]*base64.Encoding{
		"std":     base64.StdEncoding,
		"raw-std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw-url": base64.RawURLEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			payload := enc.EncodeToString([]byte(yamlAB))
			if got := ParseEntries([]byte(payload)); len(got) != 2 {
				t.Errorf("entries = %d, want 2", len(got))
			}
		})
	}
}

func TestParseEntriesRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "garbage", "proxies: []", "key: value", "<html>nope</html>"} {
		if got := ParseEntries([]byte(payload)); len(got) != 0 {
			t.Errorf("ParseEntries(%q) = %v, want none", payload, got)
		}
	}
}

func TestDedup(t *testing.T) {
	entries := []any{
		map[string]any{"name": "A", "type": "ss", "server": "first"},
		map[string]any{"type": "ss"},
		map[string]any{"name": "A", "type": "ss", "server": "second"},
		"not-a-mapping",
		map[string]any{"name": "B", "type": "ss"},
	}
	nodes := Dedup(entries)
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name())
	}
	want := []string{"A", "Node-2", "B"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if nodes[0]["server"] != "first" {
		t.Errorf("first occurrence must win, got %v", nodes[0]["server"])
	}
	if _, ok := entries[1].(map[string]any)["name"]; ok {
		t.Error("Dedup must not mutate its input")
	}
}

func TestDedupDropsUnloadableEntries(t *testing.T) {
	entries := ParseEntries([]byte("- vmess://abc\n- {name: A, type: ss}\n- 42\n- {server: x.example}\n- {type: trojan}\n"))
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	nodes := Dedup(entries)
	var names []string
	for _, n := range nodes {
		if n.Type() == "" {
			t.Errorf("node %q has no type", n.Name())
		}
		names = append(names, n.Name())
	}
	// Ordinals keep counting dropped entries.
	if want := []string{"A", "Node-5"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	doc := config.Build(nodes, config.DefaultOptions())
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMergeOnlyScalarsIsEmpty(t *testing.T) {
	m := &Merger{fetch: func(context.Context, string, FetchOptions) ([]byte, error) {
		return []byte("- vmess://abc\n- trojan://def\n"), nil
	}}
	if _, err := m.Merge(context.Background(), SourcesFromURLs([]string{"links"})); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestDedupIsIdempotentOnNames(t *testing.T) {
	first := Dedup([]any{
		map[string]any{"name": "A", "type": "ss"},
		map[string]any{"type": "ss"},
		map[string]any{"name": "A", "type": "ss"},
	})
	again := make([]any, 0, len(first))
	for _, n := range first {
		again = append(again, map[string]any(n))
	}
	second := Dedup(again)
	if len(first) != len(second) {
		t.Fatalf("len %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name() != second[i].Name() {
			t.Errorf("name %d: %q != %q", i, first[i].Name(), second[i].Name())
		}
	}
}

func serve(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMergeEndToEnd(t *testing.T) {
	srv := serve(t, map[string]string{
		"/a":       "proxies:\n  - {name: A, type: ss}\n",
		"/b":       "proxies:\n  - {name: B, type: ss}\n",
		"/garbage": "this is not a subscription",
	})
	m := NewMerger(FetchOptions{Timeout: 2 * time.Second}, config.DefaultOptions())
	res, err := m.Merge(context.Background(), SourcesFromURLs([]string{
		srv.URL + "/a", srv.URL + "/b", srv.URL + "/a", srv.URL + "/garbage",
	}))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !reflect.DeepEqual(res.Names, []string{"A", "B"}) {
		t.Errorf("names = %v", res.Names)
	}
	sel, _ := res.Document.Group("node-select")
	if !reflect.DeepEqual(sel.Proxies, []string{"auto-select", "DIRECT", "A", "B"}) {
		t.Errorf("selector = %v", sel.Proxies)
	}
	if len(res.Skipped) != 1 || !strings.HasSuffix(res.Skipped[0].URL, "/garbage") {
		t.Errorf("skipped = %+v", res.Skipped)
	}
}

func TestMergeOrderIndependentOfCompletion(t *testing.T) {
	m := &Merger{fetch: func(ctx context.Context, url string, _ FetchOptions) ([]byte, error) {
		if url == "slow" {
			time.Sleep(50 * time.Millisecond)
		}
		return []byte(fmt.Sprintf("- {name: %s, type: ss}\n", url)), nil
	}}
	res, err := m.Merge(context.Background(), SourcesFromURLs([]string{"slow", "fast"}))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Names, []string{"slow", "fast"}) {
		t.Errorf("names = %v", res.Names)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	m := NewMerger(FetchOptions{}, config.DefaultOptions())
	_, err := m.Merge(context.Background(), nil)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestMergeAllSourcesFail(t *testing.T) {
	srv := serve(t, nil)
	m := NewMerger(FetchOptions{Timeout: time.Second}, config.DefaultOptions())
	_, err := m.Merge(context.Background(), SourcesFromURLs([]string{srv.URL + "/x", srv.URL + "/y"}))
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
	var empty *EmptyResultError
	if !errors.As(err, &empty) || len(empty.Skipped) != 2 {
		t.Fatalf("err = %#v", err)
	}
	if !strings.Contains(empty.Skipped[0].Reason, "404") {
		t.Errorf("reason = %q", empty.Skipped[0].Reason)
	}
}

func TestMergeSourceTimeoutDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/hang" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		fmt.Fprint(w, "- {name: ok, type: ss}\n")
	}))
	t.Cleanup(srv.Close)

	m := NewMerger(FetchOptions{Timeout: 200 * time.Millisecond}, config.DefaultOptions())
	start := time.Now()
	res, err := m.Merge(context.Background(), SourcesFromURLs([]string{srv.URL + "/hang", srv.URL + "/ok"}))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("hanging source was not bounded by its timeout")
	}
	if !reflect.DeepEqual(res.Names, []string{"ok"}) || len(res.Skipped) != 1 {
		t.Errorf("names = %v skipped = %v", res.Names, res.Skipped)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestFetchSubscriptionRejectsOversizedBody(t *testing.T) {
	srv := serve(t, map[string]string{"/big": strings.Repeat("x", 64)})
	_, err := FetchSubscription(context.Background(), srv.URL+"/big", FetchOptions{MaxBytes: 16})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchSubscriptionSendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		fmt.Fprint(w, yamlAB)
	}))
	t.Cleanup(srv.Close)
	if _, err := FetchSubscription(context.Background(), srv.URL, FetchOptions{UserAgent: "test/1"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ua, "clash") || !strings.Contains(ua, "test/1") {
		t.Errorf("user agent = %q", ua)
	}
}
