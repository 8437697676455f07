// Package loader reads HR policy documents from disk and turns them into
// plain text with page provenance. PDFs are parsed with pdfcpu, markdown with
// goldmark, and HTML pages are converted to markdown first. Plain text is
// read as UTF-8. Source files are never modified.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// pageSeparator is inserted between consecutive pages in Document.Text.
const pageSeparator = "\n\n"

var (
	// ErrUnsupported is returned for files whose extension has no reader.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrNoText is returned when a document contains no extractable text,
	// for example a scanned PDF without a text layer.
	ErrNoText = errors.New("no extractable text")
)

// PageSpan locates one page inside Document.Text as half-open rune offsets.
type PageSpan struct {
	Number int `json:"number"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Document is the raw text of one source file.
type Document struct {
	// Source is the identifier used in citations (the file base name).
	Source string `json:"source"`

	// Path is the file the document was read from.
	Path string `json:"path"`

	// Text is the full document text. Pages are joined by a blank line.
	Text string `json:"text"`

	// Pages lists the page spans within Text. Empty for sources without
	// pagination.
	Pages []PageSpan `json:"pages,omitempty"`
}

// PageAt returns the number of the page containing rune offset off, or 0
// when the document is not paginated. Offsets falling on a page separator
// belong to the preceding page.
func (d Document) PageAt(off int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Start > off {
			break
		}
		page = p.Number
	}
	if page == 0 && len(d.Pages) > 0 {
		return d.Pages[0].Number
	}
	return page
}

// Loader reads documents from file paths.
type Loader struct {
	// log receives per-document warnings.
	log *slog.Logger

	// tempDir is the scratch directory pdfcpu writes extracted page content to.
	tempDir string
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for per-document warnings.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithTempDir overrides the scratch directory used during PDF extraction.
func WithTempDir(dir string) Option {
	return func(l *Loader) {
		if dir != "" {
			l.tempDir = dir
		}
	}
}

// New constructs a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		log:     slog.Default(),
		tempDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// Load reads every path in order. Directories are expanded to the supported
// files they contain, sorted by path. A document that cannot be read yields a
// *rag.LoadError and loading continues with the rest; the returned documents
// keep input order.
func (l *Loader) Load(ctx context.Context, paths []string) ([]Document, []*rag.LoadError) {
	files, loadErrs := l.expand(paths)

	docs := make([]Document, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			loadErrs = append(loadErrs, &rag.LoadError{Source: filepath.Base(path), Err: err})
			continue
		}

		doc, err := l.loadFile(path)
		if err != nil {
			l.log.Warn("loader: skipping document", "path", path, "error", err)
			loadErrs = append(loadErrs, &rag.LoadError{Source: filepath.Base(path), Err: err})
			continue
		}
		l.log.Debug("loader: loaded document",
			"source", doc.Source,
			"pages", len(doc.Pages),
			"chars", utf8.RuneCountInString(doc.Text),
		)
		docs = append(docs, doc)
	}
	return docs, loadErrs
}

// expand resolves directories into their supported files. Missing paths and
// unsupported explicit files become LoadErrors.
func (l *Loader) expand(paths []string) ([]string, []*rag.LoadError) {
	var files []string
	var errs []*rag.LoadError
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, &rag.LoadError{Source: filepath.Base(p), Err: err})
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		walkErr := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if walkErr != nil {
			errs = append(errs, &rag.LoadError{Source: filepath.Base(p), Err: fmt.Errorf("read directory: %w", walkErr)})
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, errs
}

// loadFile dispatches on file extension.
func (l *Loader) loadFile(path string) (Document, error) {
	var (
		doc Document
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err = l.loadPDF(path)
	case ".txt":
		doc, err = loadText(path)
	case ".md", ".markdown":
		doc, err = loadMarkdown(path)
	case ".html", ".htm":
		doc, err = loadHTML(path)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, ErrNoText
	}
	doc.Source = filepath.Base(path)
	doc.Path = path
	return doc, nil
}

// loadText reads a UTF-8 text file. Line endings are normalised to \n.
func loadText(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(raw) {
		return Document{}, fmt.Errorf("file is not valid UTF-8")
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return Document{Text: text}, nil
}

// joinPages concatenates page texts and records their spans. Pages with no
// text are omitted from both.
func joinPages(pages []string) Document {
	var b strings.Builder
	var spans []PageSpan
	offset := 0
	for i, text := range pages {
		if text == "" {
			continue
		}
		if len(spans) > 0 {
			b.WriteString(pageSeparator)
			offset += utf8.RuneCountInString(pageSeparator)
		}
		n := utf8.RuneCountInString(text)
		spans = append(spans, PageSpan{Number: i + 1, Start: offset, End: offset + n})
		b.WriteString(text)
		offset += n
	}
	return Document{Text: b.String(), Pages: spans}
}
