package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	l := &limiter{visitors: make(map[string]*visitor), rate: 1, burst: 2}
	now := time.Now()

	if !l.allow("10.0.0.1", now) || !l.allow("10.0.0.1", now) {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.allow("10.0.0.1", now) {
		t.Fatal("expected third immediate request to be rejected")
	}

	// One second refills one token at rate 1.
	if !l.allow("10.0.0.1", now.Add(time.Second)) {
		t.Fatal("expected request after refill to be allowed")
	}

	// Other callers have their own bucket.
	if !l.allow("10.0.0.2", now) {
		t.Fatal("expected fresh ip to be allowed")
	}
}

func TestRateLimitRejectsWith429(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeslots", nil)
	req.Header.Set("X-Real-Ip", "203.0.113.7")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}
