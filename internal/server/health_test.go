package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubPinger reports a fixed probe outcome under a fixed name.
type stubPinger struct {
	name string
	err  error
}

func (p stubPinger) Ping(context.Context) error { return p.err }
func (p stubPinger) Name() string               { return p.name }

// TestServer_HealthAlwaysOK verifies liveness does not depend on backends.
func TestServer_HealthAlwaysOK(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{
		Pingers: []Pinger{stubPinger{name: "qdrant", err: errors.New("down")}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

// TestServer_ReadyAllHealthy verifies /api/ready reports 200 with per-check
// details when every probe succeeds.
func TestServer_ReadyAllHealthy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{
		Pingers: []Pinger{
			stubPinger{name: "sessions"},
			stubPinger{name: "sources"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[readyResponse](t, w)
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Fatalf("unexpected ready response: %+v", resp)
	}
}

// TestServer_ReadyFailingDependency verifies a failing probe flips the
// endpoint to 503 while still reporting the healthy checks.
func TestServer_ReadyFailingDependency(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{
		Pingers: []Pinger{
			stubPinger{name: "sessions"},
			stubPinger{name: "qdrant", err: errors.New("connection refused")},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	resp := decode[readyResponse](t, w)
	if resp.Ready {
		t.Fatal("expected ready=false")
	}
	var sawFailure bool
	for _, c := range resp.Checks {
		if c.Name == "qdrant" && !c.OK && c.Error != "" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("expected qdrant failure in checks: %+v", resp.Checks)
	}
}

// TestMultiPinger_FirstErrorWins verifies MultiPinger stops at the first
// failing probe and wraps its name.
func TestMultiPinger_FirstErrorWins(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	mp := NewMultiPinger(
		stubPinger{name: "a"},
		stubPinger{name: "b", err: boom},
		stubPinger{name: "c", err: errors.New("never reached")},
	)

	err := mp.Ping(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
