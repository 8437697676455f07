package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/pipeline"
)

// multipartMemory is the part of an upload kept in memory before spilling
// to temporary files.
const multipartMemory = 32 << 20

// handleIngest handles POST /api/ingest. It accepts multipart "files" and
// an optional "use_default" flag, replaces the upload directory with the
// new files, and rebuilds the index from them.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	// Held across the upload so a rejected request never touches the
	// directory a running rebuild reads from.
	if !s.ingestMu.TryLock() {
		s.metrics.ingestTotal.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusConflict, pipeline.ErrIngestInProgress.Error())
		return
	}
	defer s.ingestMu.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var files []*multipart.FileHeader
	switch err := r.ParseMultipartForm(multipartMemory); {
	case err == nil:
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		files = r.MultipartForm.File["files"]
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid form body")
			return
		}
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}

	useDefault, _ := strconv.ParseBool(r.FormValue("use_default"))
	if len(files) == 0 && !useDefault {
		writeError(w, r, http.StatusBadRequest, "no files uploaded and use_default not set")
		return
	}
	if useDefault && s.cfg.DefaultPolicy == "" {
		writeError(w, r, http.StatusBadRequest, "no default policy document is configured")
		return
	}
	// Rejected before the upload directory is touched.
	chunkCfg, err := chunkConfigFromForm(r)
	if err != nil {
		s.metrics.ingestTotal.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	paths, err := s.saveUploads(files)
	if err != nil {
		log.Error("ingest: failed to store uploads", slog.Any("error", err))
		s.metrics.ingestTotal.WithLabelValues("error").Inc()
		writeError(w, r, http.StatusInternalServerError, "failed to store uploaded files")
		return
	}
	if useDefault {
		paths = append(paths, s.cfg.DefaultPolicy)
	}

	report, err := s.rag.Ingest(r.Context(), paths, chunkCfg)
	s.metrics.ingestTotal.WithLabelValues(outcomeFor(err)).Inc()
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	s.metrics.indexEntries.Set(float64(report.Chunks))

	resp := ingestResponse{
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Sources:    report.Sources,
		Skipped:    make([]skippedDocument, 0, len(report.Skipped)),
		DurationMS: report.Duration.Milliseconds(),
	}
	for _, le := range report.Skipped {
		resp.Skipped = append(resp.Skipped, skippedDocument{Source: filepath.Base(le.Source), Error: le.Err.Error()})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// saveUploads empties the upload directory and writes files into it,
// returning the stored paths in upload order.
func (s *Server) saveUploads(files []*multipart.FileHeader) ([]string, error) {
	dir := s.cfg.UploadDir
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear upload dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	seen := make(map[string]int, len(files))
	for _, fh := range files {
		// Only the base name is kept so a crafted filename cannot escape dir.
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." {
			continue
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%d-%s", n, name)
		} else {
			seen[name] = 1
		}

		dst := filepath.Join(dir, name)
		if err := copyUpload(fh, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// chunkConfigFromForm reads the optional chunk_size and chunk_overlap
// fields. When neither is present the zero config selects the pipeline
// default; a missing one falls back to the package default. An explicit
// config is validated here, so chunk_size=0 is a *rag.ConfigError rather
// than a request for the default.
func chunkConfigFromForm(r *http.Request) (chunker.Config, error) {
	sizeStr, overlapStr := r.FormValue("chunk_size"), r.FormValue("chunk_overlap")
	if sizeStr == "" && overlapStr == "" {
		return chunker.Config{}, nil
	}
	cfg := chunker.DefaultConfig()
	if sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil {
			return cfg, fmt.Errorf("chunk_size: %q is not an integer", sizeStr)
		}
		cfg.Size = n
	}
	if overlapStr != "" {
		n, err := strconv.Atoi(overlapStr)
		if err != nil {
			return cfg, fmt.Errorf("chunk_overlap: %q is not an integer", overlapStr)
		}
		cfg.Overlap = n
	}
	if err := cfg.Validate(); err != nil {
		return chunker.Config{}, err
	}
	return cfg, nil
}
