package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captureHandler struct {
	called bool
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	w.WriteHeader(http.StatusOK)
}

func newFrozenLimiter(perMin, burst int) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: perMin, Burst: burst})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestNewRateLimiter_DefaultConfig(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{})
	defer rl.Stop()

	if rl.perMin != 20 || rl.burst != 5 {
		t.Errorf("unexpected defaults: perMin=%d burst=%d", rl.perMin, rl.burst)
	}
}

func TestAllow_BurstThenDeny(t *testing.T) {
	t.Parallel()
	rl, _ := newFrozenLimiter(60, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("1.2.3.4")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if remaining != 2-i {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, 2-i)
		}
	}

	allowed, _, retryAfter := rl.Allow("1.2.3.4")
	if allowed {
		t.Fatal("fourth request should be denied")
	}
	if retryAfter <= 0 || retryAfter > time.Second {
		t.Errorf("retryAfter = %v, want within one token interval", retryAfter)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	t.Parallel()
	rl, now := newFrozenLimiter(60, 1)
	defer rl.Stop()

	if allowed, _, _ := rl.Allow("k"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := rl.Allow("k"); allowed {
		t.Fatal("second request should be denied")
	}

	*now = now.Add(time.Second)
	if allowed, _, _ := rl.Allow("k"); !allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestAllow_DifferentKeys_SeparateBuckets(t *testing.T) {
	t.Parallel()
	rl, _ := newFrozenLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("a")
	if allowed, _, _ := rl.Allow("b"); !allowed {
		t.Error("separate key should have its own bucket")
	}
}

func TestAllow_ConcurrentAccess_ThreadSafe(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 6000, Burst: 100})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.Allow("shared")
		}()
	}
	wg.Wait()
}

func TestCleanup_RemovesIdleClients(t *testing.T) {
	t.Parallel()
	rl, now := newFrozenLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("old")
	*now = now.Add(time.Hour)
	rl.Allow("fresh")
	rl.cleanupIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["old"]; ok {
		t.Error("idle client should be evicted")
	}
	if _, ok := rl.clients["fresh"]; !ok {
		t.Error("fresh client should be kept")
	}
}

func TestRateLimitMiddleware_DeniedRequest_Returns429(t *testing.T) {
	t.Parallel()
	rl, _ := newFrozenLimiter(60, 1)
	defer rl.Stop()

	handler := &captureHandler{}
	mw := RateLimit(rl)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		mw(handler).ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("first request: status %d", rr.Code)
	}
	if rr := send(); rr.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("expected X-RateLimit-Limit 60, got %q", rr.Header().Get("X-RateLimit-Limit"))
	}

	handler.called = false
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	if handler.called {
		t.Error("handler should not have been called")
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_KeysOnClientAddress(t *testing.T) {
	t.Parallel()
	rl, _ := newFrozenLimiter(60, 1)
	defer rl.Stop()

	mw := RateLimit(rl)
	handler := &captureHandler{}

	for _, remote := range []string{"10.0.0.1:1", "10.0.0.2:2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", nil)
		req.RemoteAddr = remote
		req = req.WithContext(context.WithValue(req.Context(), ClientAddressKey, "203.0.113.7"))
		rr := httptest.NewRecorder()
		mw(handler).ServeHTTP(rr, req)

		if remote == "10.0.0.2:2" && rr.Code != http.StatusTooManyRequests {
			t.Errorf("same client address behind different sockets should share a bucket, got %d", rr.Code)
		}
	}
}
