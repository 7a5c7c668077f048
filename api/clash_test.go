package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"clash-launcher/core/config"
)

const proxiesBody = `{"proxies":{
  "node-select":{"type":"Selector","now":"B","all":["auto-select","DIRECT","A","B"]},
  "auto-select":{"type":"URLTest","all":["A","B"]},
  "DIRECT":{"type":"Direct"},
  "A":{"type":"Shadowsocks","history":[{"delay":80},{"delay":120}]},
  "B":{"type":"Vmess","history":[]}
}}`

func newEngineAPI(t *testing.T, secret string) (*httptest.Server, *[]string) {
	t.Helper()
	var switched []string
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+secret {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"message":"Unauthorized"}`)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/version", auth(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"v1.18.0"}`)
	}))
	mux.HandleFunc("/proxies", auth(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, proxiesBody)
	}))
	mux.HandleFunc("/proxies/", auth(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/proxies/node-select":
			var body struct{ Name string }
			json.NewDecoder(r.Body).Decode(&body)
			if body.Name == "missing" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"message":"Selector update error: proxy not exist"}`)
				return
			}
			switched = append(switched, body.Name)
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/proxies/A/delay":
			if r.URL.Query().Get("url") == "" || r.URL.Query().Get("timeout") != "5000" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"delay":93}`)
		default:
			http.NotFound(w, r)
		}
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &switched
}

func TestProxiesInGroup(t *testing.T) {
	srv, _ := newEngineAPI(t, "s")
	c := NewClient(srv.URL, "s")
	proxies, now, err := c.ProxiesInGroup(context.Background(), "node-select")
	if err != nil {
		t.Fatal(err)
	}
	if now != "B" {
		t.Errorf("now = %q", now)
	}
	if len(proxies) != 4 || proxies[2].Name != "A" || proxies[2].Delay != 120 {
		t.Errorf("proxies = %+v", proxies)
	}
	if _, _, err := c.ProxiesInGroup(context.Background(), "nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSwitchProxy(t *testing.T) {
	srv, switched := newEngineAPI(t, "s")
	c := NewClient(srv.URL, "s")
	if err := c.SwitchProxy(context.Background(), "node-select", "A"); err != nil {
		t.Fatal(err)
	}
	if len(*switched) != 1 || (*switched)[0] != "A" {
		t.Errorf("switched = %v", *switched)
	}
	err := c.SwitchProxy(context.Background(), "node-select", "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest || se.Message == "" {
		t.Errorf("err = %v", err)
	}
}

func TestDelayAndVersion(t *testing.T) {
	srv, _ := newEngineAPI(t, "s")
	c := NewClient(srv.URL, "s")
	d, err := c.Delay(context.Background(), "A", "", 0)
	if err != nil || d != 93 {
		t.Errorf("Delay = %d, %v", d, err)
	}
	v, err := c.Version(context.Background())
	if err != nil || v != "v1.18.0" {
		t.Errorf("Version = %q, %v", v, err)
	}
}

func TestUnauthorized(t *testing.T) {
	srv, _ := newEngineAPI(t, "right")
	_, err := NewClient(srv.URL, "wrong").Version(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadClientConfig(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config"))
	if _, err := LoadClientConfig(store); !errors.Is(err, config.ErrConfigNotFound) {
		t.Fatalf("err = %v", err)
	}
	doc := config.Build([]config.Node{{"name": "A", "type": "ss"}}, config.Options{ExternalController: "127.0.0.1:9191", Secret: "k"})
	if _, err := store.Save(doc); err != nil {
		t.Fatal(err)
	}
	c, err := LoadClientConfig(store)
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL != "http://127.0.0.1:9191" || c.Token != "k" {
		t.Errorf("client = %s %s", c.BaseURL, c.Token)
	}
}
