package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/hrassist-go/internal/logging"
)

func TestRequestLogger_RequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		// wantEcho means the incoming ID is returned unchanged.
		wantEcho bool
	}{
		{name: "generated when absent"},
		{name: "caller ID echoed", incoming: "req-42", wantEcho: true},
		{name: "oversized ID replaced", incoming: strings.Repeat("a", 65)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			h := requestLogger(logging.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = w.Header().Get(requestIDHeader)
				w.WriteHeader(http.StatusTeapot)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tc.incoming != "" {
				req.Header.Set(requestIDHeader, tc.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got != seen {
				t.Errorf("handler saw %q, response carries %q", seen, got)
			}
			if tc.wantEcho {
				if got != tc.incoming {
					t.Errorf("request ID = %q, want %q", got, tc.incoming)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated request ID %q is not a UUID: %v", got, err)
			}
		})
	}
}

func TestResponseWriter_CapturesFirstStatusAndFlushes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	rw.Flush()

	if rw.status != http.StatusAccepted {
		t.Errorf("status = %d, want first code 202", rw.status)
	}
	if !rec.Flushed {
		t.Error("Flush was not forwarded")
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap does not return the underlying writer")
	}
}
