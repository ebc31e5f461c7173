package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/refresh", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Second), 5, false)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		if rec := serve(handler, "192.168.1.1:12345"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitBlocksExcessRequests(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(12*time.Second), 2, false)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rec := serve(handler, "10.0.0.1:12345"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := serve(handler, "10.0.0.1:12345")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "too many requests" {
		t.Fatalf("expected 'too many requests', got %q", body["error"])
	}
	if rec.Header().Get("Retry-After") != "12" {
		t.Fatalf("expected Retry-After: 12, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitPerIPIsolation(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Second), 1, false)
	handler := rl.Middleware()(okHandler())

	if rec := serve(handler, "1.1.1.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("IP A first request: expected 200, got %d", rec.Code)
	}
	if rec := serve(handler, "1.1.1.1:5678"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("IP A second request: expected 429, got %d", rec.Code)
	}
	if rec := serve(handler, "2.2.2.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("IP B first request: expected 200, got %d", rec.Code)
	}
}

func TestEvictIdle(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Second), 1, false)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.getLimiter("a")
	now = now.Add(5 * time.Minute)
	rl.getLimiter("b")
	now = now.Add(6 * time.Minute)

	if removed := rl.evictIdle(); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Fatal("recently seen limiter should survive")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")

	if ip := clientIP(req, false); ip != "192.0.2.1" {
		t.Fatalf("untrusted proxy: expected remote addr, got %q", ip)
	}
	if ip := clientIP(req, true); ip != "203.0.113.50" {
		t.Fatalf("trusted proxy: expected first forwarded address, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.10")
	if ip := clientIP(req, true); ip != "198.51.100.10" {
		t.Fatalf("expected X-Real-IP, got %q", ip)
	}

	req.RemoteAddr = "[2001:db8::1]:443"
	if ip := clientIP(req, false); ip != "2001:db8::1" {
		t.Fatalf("expected bare IPv6 host, got %q", ip)
	}
}
