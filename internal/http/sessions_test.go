package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/session"
	"dinners/internal/store"
	"dinners/internal/store/memory"
)

func testRegistry(t *testing.T, limit int, idle time.Duration) (*sessionRegistry, *time.Time) {
	t.Helper()
	st := memory.New(nil)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	reg := newSessionRegistry(func() (*session.Session, error) {
		return session.New(st, testRoster, session.WithLogger(log.Discard()))
	}, limit, idle, log.Discard())
	reg.now = func() time.Time { return now }
	t.Cleanup(reg.close)
	return reg, &now
}

func TestRegistryReusesKnownIDs(t *testing.T) {
	reg, _ := testRegistry(t, 10, time.Hour)
	s1, id, err := reg.get("")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	s2, id2, _ := reg.get(id)
	if s1 != s2 || id != id2 {
		t.Fatal("known id should return the same session")
	}
	_, id3, _ := reg.get("forged")
	if id3 == "forged" || id3 == id {
		t.Fatalf("unknown id must get a fresh one, got %q", id3)
	}
	if !s1.Ready() {
		t.Fatal("session should be started on creation")
	}
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	reg, now := testRegistry(t, 2, time.Hour)
	first, id1, _ := reg.get("")
	*now = now.Add(time.Minute)
	_, id2, _ := reg.get("")
	*now = now.Add(time.Minute)
	reg.get(id1) // touch the first one
	*now = now.Add(time.Minute)
	reg.get("")

	if reg.len() != 2 {
		t.Fatalf("len = %d, want 2", reg.len())
	}
	*now = now.Add(time.Minute)
	if _, again, _ := reg.get(id1); again != id1 {
		t.Fatal("recently used session was evicted")
	}
	if err := first.Start(context.Background()); errors.Is(err, session.ErrClosed) {
		t.Fatal("surviving session must not be closed")
	}
	if _, again, _ := reg.get(id2); again == id2 {
		t.Fatal("least recently used session survived")
	}
}

func TestRegistryClosesIdleSessions(t *testing.T) {
	reg, now := testRegistry(t, 10, 30*time.Minute)
	s, _, _ := reg.get("")
	*now = now.Add(time.Hour)
	if n := reg.cleanupIdle(); n != 1 {
		t.Fatalf("cleanupIdle = %d, want 1", n)
	}
	if err := s.Start(context.Background()); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("idle session should be closed, Start = %v", err)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.stop()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	m := &securityMetrics{}

	if !rl.allow("1.2.3.4", m) || !rl.allow("1.2.3.4", m) {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4", m) {
		t.Fatal("third request in the window should be refused")
	}
	if !rl.allow("5.6.7.8", m) {
		t.Fatal("other clients have their own budget")
	}
	if m.rateLimitHits != 1 {
		t.Fatalf("rateLimitHits = %d", m.rateLimitHits)
	}

	now = now.Add(61 * time.Second)
	if !rl.allow("1.2.3.4", m) {
		t.Fatal("budget should reset after a minute")
	}
	now = now.Add(11 * time.Minute)
	if n := rl.cleanupStaleEntries(); n != 2 {
		t.Fatalf("cleanupStaleEntries = %d, want 2", n)
	}
	rl.stop() // idempotent
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted proxy header ignored", "203.0.113.7:5000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy garbage header", "127.0.0.1:5000", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	m := &securityMetrics{}
	if detectSuspiciousRequest(httptest.NewRequest("GET", "/api/view", nil), m) {
		t.Fatal("plain request flagged")
	}
	if !detectSuspiciousRequest(httptest.NewRequest("GET", "/wp-admin/setup.php", nil), m) {
		t.Fatal("probe not flagged")
	}
	if m.suspiciousRequests != 1 {
		t.Fatalf("suspiciousRequests = %d", m.suspiciousRequests)
	}
}

// flakySubscribe refuses the first n subscriptions.
type flakySubscribe struct {
	*memory.Store
	failures atomic.Int32
}

func (f *flakySubscribe) Subscribe(ctx context.Context, l store.Listener) (store.Subscription, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, core.ErrStoreUnavailable
	}
	return f.Store.Subscribe(ctx, l)
}

func TestFailedSubscribeIsRetriedOnNextRequest(t *testing.T) {
	st := &flakySubscribe{Store: memory.New(seededLedger())}
	st.failures.Store(1)
	srv := newTestServer(t, nil, func(o *Options) { o.Store = st })
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/", nil, true)
	if rr.Code != http.StatusServiceUnavailable || rr.Header().Get("Location") != "" {
		t.Fatalf("expected 503 without redirect, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if c.id != "" || srv.sessions.len() != 0 {
		t.Fatalf("failed session was kept: id=%q sessions=%d", c.id, srv.sessions.len())
	}

	v := decodeView(t, c.do(http.MethodGet, "/api/view", nil, false))
	if v.Loading {
		t.Fatal("retried session should have its first snapshot")
	}
	if srv.sessions.len() != 1 {
		t.Fatalf("sessions = %d, want 1", srv.sessions.len())
	}
}
