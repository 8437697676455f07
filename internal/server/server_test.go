package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/pipeline"
	"github.com/54b3r/hrassist-go/internal/rag"
	"github.com/54b3r/hrassist-go/internal/store"
)

// fakeRAG records calls and returns canned results.
type fakeRAG struct {
	mu        sync.Mutex
	answer    *rag.Answer
	answerErr error
	ingestErr error
	status    pipeline.Status
	// entered is closed when Ingest starts; gate, when set, blocks it
	// until closed.
	entered chan struct{}
	gate    chan struct{}

	gotK     int
	gotPaths []string
	gotChunk chunker.Config
}

func (f *fakeRAG) Answer(_ context.Context, _ string, k int) (*rag.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotK = k
	return f.answer, f.answerErr
}

func (f *fakeRAG) Ingest(_ context.Context, paths []string, cfg chunker.Config) (*pipeline.IngestReport, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotPaths = paths
	f.gotChunk = cfg
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &pipeline.IngestReport{
		Documents: len(paths),
		Chunks:    len(paths) * 3,
		Sources:   paths,
		Skipped:   []*rag.LoadError{{Source: "/tmp/notes.xlsx", Err: errors.New("unsupported file type")}},
	}, nil
}

func (f *fakeRAG) Status(context.Context) (pipeline.Status, error) { return f.status, nil }

// fakeQuerier streams chunks and returns their concatenation.
type fakeQuerier struct {
	chunks     []string
	err        error
	gotSession string
}

func (f *fakeQuerier) Query(_ context.Context, session, _ string, w io.Writer) (string, error) {
	f.gotSession = session
	var all strings.Builder
	for _, c := range f.chunks {
		all.WriteString(c)
		if _, err := io.WriteString(w, c); err != nil {
			return "", err
		}
	}
	return all.String(), f.err
}

func groundedAnswer() *rag.Answer {
	return &rag.Answer{
		Text: "Employees get 15 days of vacation [1].",
		Sources: []rag.ScoredChunk{
			{Chunk: rag.Chunk{Source: "handbook.pdf", Page: 3, Text: "15 days of vacation"}, Score: 0.9},
		},
		Grounded: true,
	}
}

// newTestServer builds a Server with an isolated registry and upload dir.
// Callers fill deps; a nil deps.RAG gets a fresh fakeRAG.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, Deps{}, nil)
}

func newTestServerWith(t *testing.T, deps Deps, mutate func(*Config)) *Server {
	t.Helper()
	if deps.RAG == nil {
		deps.RAG = &fakeRAG{answer: groundedAnswer()}
	}
	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		UploadDir:       filepath.Join(t.TempDir(), "uploads"),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RequiresRAG(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, nil); err == nil {
		t.Fatal("expected error for nil RAG service")
	}
}

func TestHandleAsk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		answerErr  error
		wantStatus int
	}{
		{name: "grounded answer", body: askRequest{Question: "How much vacation?", K: 2}, wantStatus: http.StatusOK},
		{name: "blank question", body: askRequest{Question: "  "}, wantStatus: http.StatusBadRequest},
		{name: "negative k", body: askRequest{Question: "q", K: -1}, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: "not an object", wantStatus: http.StatusBadRequest},
		{
			name:       "completion failure",
			body:       askRequest{Question: "q"},
			answerErr:  &rag.GenerationError{Err: errors.New("upstream 500")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "rebuild in progress",
			body:       askRequest{Question: "q"},
			answerErr:  pipeline.ErrIngestInProgress,
			wantStatus: http.StatusConflict,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fr := &fakeRAG{answer: groundedAnswer(), answerErr: tc.answerErr}
			s := newTestServerWith(t, Deps{RAG: fr}, nil)

			w := postJSON(t, s.Handler(), "/api/ask", tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				var e errorResponse
				if err := json.NewDecoder(w.Body).Decode(&e); err != nil || e.Error == "" {
					t.Errorf("error body = %q (%v)", w.Body.String(), err)
				}
				return
			}
			var got rag.Answer
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Grounded || len(got.Sources) != 1 || got.Sources[0].Source != "handbook.pdf" {
				t.Errorf("answer = %+v", got)
			}
			if fr.gotK != 2 {
				t.Errorf("k forwarded = %d, want 2", fr.gotK)
			}
		})
	}
}

func TestHandleAsk_RecordsHistory(t *testing.T) {
	t.Parallel()
	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })
	s := newTestServerWith(t, Deps{History: hist}, nil)

	if w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "How much vacation?", SessionID: "carol"}); w.Code != http.StatusOK {
		t.Fatalf("ask status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?session=carol&limit=5", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", w.Code, w.Body.String())
	}
	var got historyResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != store.RoleUser || got.Messages[1].Content != groundedAnswer().Text {
		t.Errorf("messages = %+v", got.Messages)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	var sessions sessionsResponse
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].ID != "carol" {
		t.Errorf("sessions = %+v", sessions.Sessions)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?session=carol&limit=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestHandleHistory_Disabled(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// multipartBody builds a multipart form with the given files and fields.
func multipartBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleIngest_Uploads(t *testing.T) {
	t.Parallel()
	fr := &fakeRAG{}
	defaultPolicy := filepath.Join(t.TempDir(), "handbook.md")
	s := newTestServerWith(t, Deps{RAG: fr}, func(c *Config) { c.DefaultPolicy = defaultPolicy })

	// A stale file from an earlier rebuild must be cleared.
	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(s.cfg.UploadDir, "old.md")
	if err := os.WriteFile(stale, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	body, ct := multipartBody(t,
		map[string]string{"../../leave.md": "Vacation is 15 days."},
		map[string]string{"use_default": "true", "chunk_size": "300"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp ingestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Documents != 2 || resp.Chunks != 6 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Source != "notes.xlsx" {
		t.Errorf("skipped = %+v", resp.Skipped)
	}

	want := []string{filepath.Join(s.cfg.UploadDir, "leave.md"), defaultPolicy}
	if fmt.Sprint(fr.gotPaths) != fmt.Sprint(want) {
		t.Errorf("paths = %v, want %v", fr.gotPaths, want)
	}
	if fr.gotChunk.Size != 300 || fr.gotChunk.Overlap != chunker.DefaultOverlap {
		t.Errorf("chunk config = %+v", fr.gotChunk)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale upload survived the rebuild: %v", err)
	}
	got, err := os.ReadFile(want[0])
	if err != nil || string(got) != "Vacation is 15 days." {
		t.Errorf("stored upload = %q, %v", got, err)
	}
}

func TestHandleIngest_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		files         map[string]string
		fields        map[string]string
		defaultPolicy string
		ingestErr     error
		wantStatus    int
	}{
		{name: "nothing to ingest", wantStatus: http.StatusBadRequest},
		{name: "default requested but unset", fields: map[string]string{"use_default": "1"}, wantStatus: http.StatusBadRequest},
		{
			name:       "bad chunk size",
			files:      map[string]string{"a.md": "x"},
			fields:     map[string]string{"chunk_size": "big"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nothing loadable",
			files:      map[string]string{"a.xlsx": "x"},
			ingestErr:  &pipeline.StageError{Stage: pipeline.StageLoad, Err: errors.New("no documents")},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "embedding service down",
			files:      map[string]string{"a.md": "x"},
			ingestErr:  &pipeline.StageError{Stage: pipeline.StageEmbed, Err: &rag.EmbeddingError{Err: errors.New("503")}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "invalid chunk config",
			files:      map[string]string{"a.md": "x"},
			ingestErr:  &rag.ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServerWith(t, Deps{RAG: &fakeRAG{ingestErr: tc.ingestErr}}, func(c *Config) {
				c.DefaultPolicy = tc.defaultPolicy
			})
			body, ct := multipartBody(t, tc.files, tc.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleIngest_ExplicitChunkConfigValidated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fields    map[string]string
		wantField string
	}{
		{name: "both zero", fields: map[string]string{"chunk_size": "0", "chunk_overlap": "0"}, wantField: "chunk_size"},
		{name: "negative size", fields: map[string]string{"chunk_size": "-5"}, wantField: "chunk_size"},
		{name: "overlap not below size", fields: map[string]string{"chunk_size": "200", "chunk_overlap": "200"}, wantField: "chunk_overlap"},
		{name: "overlap above default size", fields: map[string]string{"chunk_overlap": "900"}, wantField: "chunk_overlap"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fr := &fakeRAG{}
			s := newTestServerWith(t, Deps{RAG: fr}, nil)

			body, ct := multipartBody(t, map[string]string{"leave.md": "Vacation is 15 days."}, tc.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tc.wantField) {
				t.Errorf("body = %s, want it to name %s", w.Body.String(), tc.wantField)
			}
			if fr.gotPaths != nil {
				t.Errorf("pipeline ingested %v", fr.gotPaths)
			}
			if _, err := os.Stat(s.cfg.UploadDir); !os.IsNotExist(err) {
				t.Errorf("upload dir created for a rejected request: %v", err)
			}
		})
	}
}

func TestChunkConfigFromForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    chunker.Config
		wantErr bool
	}{
		{query: "", want: chunker.Config{}},
		{query: "chunk_size=300", want: chunker.Config{Size: 300, Overlap: chunker.DefaultOverlap}},
		{query: "chunk_size=400&chunk_overlap=0", want: chunker.Config{Size: 400, Overlap: 0}},
		{query: "chunk_size=0&chunk_overlap=0", wantErr: true},
		{query: "chunk_overlap=-1", wantErr: true},
		{query: "chunk_size=ten", wantErr: true},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest?"+tc.query, nil)
		got, err := chunkConfigFromForm(req)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tc.query, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: cfg = %+v, want %+v", tc.query, got, tc.want)
		}
	}
}

func TestHandleIngest_ConcurrentRejected(t *testing.T) {
	t.Parallel()
	fr := &fakeRAG{entered: make(chan struct{}), gate: make(chan struct{})}
	s := newTestServerWith(t, Deps{RAG: fr}, func(c *Config) { c.DefaultPolicy = "handbook.md" })

	form := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("use_default=true"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	done := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, form())
		done <- w.Code
	}()

	<-fr.entered

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, form())
	if w.Code != http.StatusConflict {
		t.Errorf("second ingest status = %d, want 409", w.Code)
	}

	close(fr.gate)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first ingest status = %d, want 200", code)
	}
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()
	fr := &fakeRAG{status: pipeline.Status{State: pipeline.StateReady, Entries: 42, Dimension: 768, Metric: "cosine"}}
	s := newTestServerWith(t, Deps{RAG: fr}, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["state"] != "ready" || got["entries"] != float64(42) {
		t.Errorf("body = %v", got)
	}
}

func TestHandleChat_StreamsEvents(t *testing.T) {
	t.Parallel()
	q := &fakeQuerier{chunks: []string{"You have ", "15 days\nof vacation."}}
	s := newTestServerWith(t, Deps{Agent: q}, nil)

	w := postJSON(t, s.Handler(), "/api/chat", chatRequest{Message: "PTO?", SessionID: "dave"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"data: You have \n\n", "data: 15 days\ndata: of vacation.\n\n", "event: done\ndata: [DONE]\n\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if q.gotSession != "dave" {
		t.Errorf("session = %q", q.gotSession)
	}
}

func TestHandleChat_Errors(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, Deps{Agent: &fakeQuerier{err: errors.New("model unavailable")}}, nil)
	w := postJSON(t, s.Handler(), "/api/chat", chatRequest{Message: "hi"})
	if !strings.Contains(w.Body.String(), "event: error\ndata: model unavailable") {
		t.Errorf("stream = %q", w.Body.String())
	}

	w = postJSON(t, s.Handler(), "/api/chat", chatRequest{Message: " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank message status = %d", w.Code)
	}

	noAgent := newTestServer(t)
	w = postJSON(t, noAgent.Handler(), "/api/chat", chatRequest{Message: "hi"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("no agent status = %d, want 503", w.Code)
	}
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	t.Parallel()
	s := newTestServerWith(t, Deps{}, func(c *Config) { c.APIKey = "s3cret" })

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("ask without key = %d, want 401", w.Code)
	}

	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200 without a key", path, w.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{pipeline.ErrEmptyQuestion, http.StatusBadRequest},
		{&rag.ConfigError{Field: "k"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", pipeline.ErrIngestInProgress), http.StatusConflict},
		{&pipeline.StageError{Stage: pipeline.StageChunk, Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{&pipeline.StageError{Stage: pipeline.StageIndex, Err: errors.New("x")}, http.StatusInternalServerError},
		{&rag.RetrievalError{Err: errors.New("x")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
