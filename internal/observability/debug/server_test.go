package debug

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "feedwatch/pkg/logx"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "feedwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(cfg, Deps{
		Gatherer: reg,
		Status:   func() any { return map[string]any{"queue_len": 3} },
	}, logx.Nop())
	ts := httptest.NewServer(s.Handler(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url, bearer string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{})

	if code, body := get(t, ts.URL+"/healthz", ""); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, body := get(t, ts.URL+"/metrics", ""); code != http.StatusOK || !strings.Contains(body, "feedwatch_test_total 1") {
		t.Fatalf("/metrics = %d %q", code, body)
	}
	code, body := get(t, ts.URL+"/status", "")
	if code != http.StatusOK {
		t.Fatalf("/status = %d", code)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil || m["queue_len"] != float64(3) {
		t.Fatalf("/status body = %q (%v)", body, err)
	}
	if code, _ := get(t, ts.URL+"/debug/pprof/", ""); code != http.StatusNotFound {
		t.Fatalf("/debug/pprof/ without pprof = %d, want 404", code)
	}
}

func TestPprofMounted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{PProf: true})
	if code, _ := get(t, ts.URL+"/debug/pprof/", ""); code != http.StatusOK {
		t.Fatalf("/debug/pprof/ = %d, want 200", code)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{Token: "s3cret"})
	tests := []struct {
		name   string
		url    string
		bearer string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong bearer", "/healthz", "nope", http.StatusUnauthorized},
		{"bearer", "/healthz", "s3cret", http.StatusOK},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"wrong query", "/healthz?token=x", "s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if code, _ := get(t, ts.URL+tt.url, tt.bearer); code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.url, code, tt.want)
			}
		})
	}
}

func TestStartStopLoopback(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server did not bind")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if code, _ := get(t, "http://"+s.Addr()+"/healthz", ""); code != http.StatusOK {
		t.Fatalf("/healthz = %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatalf("Addr() after Stop = %q", s.Addr())
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{":6060", false},
		{"0.0.0.0:6060", false},
		{"10.0.0.5:6060", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
