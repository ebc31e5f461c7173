package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminKeyMiddleware(t *testing.T) {
	handler := AdminKeyMiddleware("s3cret")(okHandler())

	tests := []struct {
		name   string
		method string
		key    string
		status int
	}{
		{"missing key", http.MethodPost, "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "nope", http.StatusForbidden},
		{"correct key", http.MethodPost, "s3cret", http.StatusOK},
		{"preflight", http.MethodOptions, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/admin/status", nil)
			if tt.key != "" {
				req.Header.Set("X-Admin-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestAdminKeyMiddlewareOpenWithoutKey(t *testing.T) {
	handler := AdminKeyMiddleware("")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/refresh", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without configured key, got %d", rec.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}

	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("expected caller request id to be kept, got %q", rec.Header().Get("X-Request-ID"))
	}
}
