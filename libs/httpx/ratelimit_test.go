package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	get := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := get("10.0.0.1:1234"); code != http.StatusNoContent {
			t.Fatalf("request %d should pass, got %d", i+1, code)
		}
	}
	if code := get("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", code)
	}
	// Another client has its own window.
	if code := get("10.0.0.2:1234"); code != http.StatusNoContent {
		t.Fatalf("second client should pass, got %d", code)
	}
}
