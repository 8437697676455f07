package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/54b3r/hrassist-go/internal/logging"
)

// okHandler records that a request got past the middleware under test.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one request from addr through h and returns the recorder.
func hit(h http.Handler, method, path, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rps      float64
		burst    int
		requests int
		wantOK   int
	}{
		{name: "within burst", rps: 100, burst: 5, requests: 5, wantOK: 5},
		{name: "burst exhausted", rps: 0.001, burst: 2, requests: 6, wantOK: 2},
		{name: "single token", rps: 0.001, burst: 1, requests: 3, wantOK: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rl, stop := newRateLimiter(tc.rps, tc.burst, logging.Discard())
			defer stop()
			h := rl.middleware(okHandler)

			ok := 0
			for range tc.requests {
				w := hit(h, http.MethodPost, "/api/ask", "10.0.0.1:9999")
				switch w.Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					if w.Header().Get("Retry-After") == "" {
						t.Error("429 without Retry-After")
					}
					var body errorResponse
					if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
						t.Errorf("429 body = %q, want JSON error", w.Body.String())
					}
				default:
					t.Fatalf("unexpected status %d", w.Code)
				}
			}
			if ok != tc.wantOK {
				t.Errorf("allowed %d of %d, want %d", ok, tc.requests, tc.wantOK)
			}
		})
	}
}

func TestRateLimit_BucketsArePerIP(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, logging.Discard())
	defer stop()
	h := rl.middleware(okHandler)

	for range 3 {
		hit(h, http.MethodPost, "/api/chat", "192.168.1.1:1111")
	}
	if w := hit(h, http.MethodPost, "/api/chat", "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("second client got %d after first exhausted its bucket", w.Code)
	}
	// Port changes do not grant a fresh bucket.
	if w := hit(h, http.MethodPost, "/api/chat", "192.168.1.1:3333"); w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP on new port got %d, want 429", w.Code)
	}
}

func TestRateLimit_RetryAfterReflectsRate(t *testing.T) {
	t.Parallel()

	for rps, want := range map[float64]string{10: "1", 1: "1", 0.5: "2", 0.25: "4"} {
		rl, stop := newRateLimiter(rps, 1, logging.Discard())
		stop()
		if rl.retryAfter != want {
			t.Errorf("rps %v: retryAfter = %q, want %q", rps, rl.retryAfter, want)
		}
	}
}

func TestRateLimit_EvictsIdleIPs(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(10, 5, logging.Discard())
	defer stop()
	rl.allow("10.1.1.1")
	rl.allow("10.1.1.2")
	if rl.size() != 2 {
		t.Fatalf("size = %d, want 2", rl.size())
	}

	rl.evict(time.Now().Add(-time.Hour))
	if rl.size() != 2 {
		t.Errorf("recently seen IPs evicted: size = %d", rl.size())
	}
	rl.evict(time.Now().Add(time.Second))
	if rl.size() != 0 {
		t.Errorf("idle IPs kept: size = %d", rl.size())
	}
}

func TestRateLimit_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, stop := newRateLimiter(1, 1, logging.Discard())
	stop()
	stop()
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]string{
		"127.0.0.1:54321": "127.0.0.1",
		"[::1]:8080":      "::1",
		"[fe80::1]:443":   "fe80::1",
		"unix-socket":     "unix-socket",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}
