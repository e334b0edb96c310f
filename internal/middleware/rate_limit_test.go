package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimitByIP_EnforcesLimit verifies the per-IP limit and the 429 format
func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	config := RateLimitConfig{RequestsPerMinute: 5}
	middleware := RateLimitByIP(config)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:42000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}

	// 6th request should be rate limited
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:42000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d (too many requests), got %d", http.StatusTooManyRequests, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
}

// TestRateLimitByIP_IsolatesClientBuckets verifies separate limits per client IP
func TestRateLimitByIP_IsolatesClientBuckets(t *testing.T) {
	config := RateLimitConfig{RequestsPerMinute: 3}
	middleware := RateLimitByIP(config)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Client A exhausts its bucket
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:42000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("client A request %d failed", i+1)
		}
	}

	// Client B is unaffected
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.0.0.3:42000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("client B should have an independent rate limit, got status %d", recorder.Code)
	}
}

func TestDefaultVerifyRateLimit_TighterThanLockoutWindow(t *testing.T) {
	// Sanity check on the defaults: the verify endpoint must throttle
	// before an online guesser can burn through many codes.
	if limit := DefaultVerifyRateLimit(); limit.RequestsPerMinute > 10 {
		t.Errorf("verify rate limit too loose: %d/min", limit.RequestsPerMinute)
	}
	if limit := DefaultAuthRateLimit(); limit.RequestsPerMinute > 5 {
		t.Errorf("auth rate limit too loose: %d/min", limit.RequestsPerMinute)
	}
}
