package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func Test_Load_TextAndMarkdown(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	txt := writeFile(t, dir, "leave.txt", "Vacation: 15 days.\r\nSick: 8 days.")
	md := writeFile(t, dir, "remote.md", "# Remote work\n\nAllowed two days a week.")

	docs, errs := New().Load(context.Background(), []string{txt, md})
	if len(errs) != 0 {
		t.Fatalf("unexpected load errors: %v", errs)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d", len(docs))
	}
	if docs[0].Source != "leave.txt" || docs[1].Source != "remote.md" {
		t.Errorf("sources = %q, %q", docs[0].Source, docs[1].Source)
	}
	if docs[0].Text != "Vacation: 15 days.\nSick: 8 days." {
		t.Errorf("line endings not normalised: %q", docs[0].Text)
	}
	if docs[1].Text != "Remote work\n\nAllowed two days a week." {
		t.Errorf("markdown not reduced to text: %q", docs[1].Text)
	}
	if len(docs[0].Pages) != 0 {
		t.Errorf("text files must not carry page spans")
	}
}

func Test_Load_PerDocumentErrorsAreNonFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Bereavement leave is 3 days.")
	bad := writeFile(t, dir, "broken.pdf", "this is not a pdf")
	empty := writeFile(t, dir, "empty.txt", "   \n")
	unsupported := writeFile(t, dir, "sheet.xlsx", "x")
	missing := filepath.Join(dir, "missing.txt")

	docs, errs := New(WithTempDir(dir)).Load(context.Background(), []string{bad, good, empty, unsupported, missing})
	if len(docs) != 1 || docs[0].Source != "good.txt" {
		t.Fatalf("want only good.txt loaded, got %+v", docs)
	}
	if len(errs) != 4 {
		t.Fatalf("want 4 load errors, got %d: %v", len(errs), errs)
	}

	bySource := map[string]error{}
	for _, e := range errs {
		bySource[e.Source] = e
	}
	if !errors.Is(bySource["empty.txt"], ErrNoText) {
		t.Errorf("empty.txt: want ErrNoText, got %v", bySource["empty.txt"])
	}
	if !errors.Is(bySource["sheet.xlsx"], ErrUnsupported) {
		t.Errorf("sheet.xlsx: want ErrUnsupported, got %v", bySource["sheet.xlsx"])
	}
	if !errors.Is(bySource["missing.txt"], os.ErrNotExist) {
		t.Errorf("missing.txt: want not-exist, got %v", bySource["missing.txt"])
	}
	if bySource["broken.pdf"] == nil {
		t.Error("broken.pdf: want a load error")
	}

	raw, err := os.ReadFile(bad)
	if err != nil || string(raw) != "this is not a pdf" {
		t.Error("source file must not be modified")
	}
}

func Test_Load_ExpandsDirectories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "second")
	writeFile(t, dir, "a.txt", "first")
	writeFile(t, dir, "ignored.png", "binary")

	docs, errs := New().Load(context.Background(), []string{dir})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(docs) != 2 || docs[0].Source != "a.txt" || docs[1].Source != "b.md" {
		t.Errorf("want [a.txt b.md], got %+v", docs)
	}
}

func Test_Load_CancelledContext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, errs := New().Load(ctx, []string{p})
	if len(docs) != 0 || len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Errorf("want one cancellation error, got docs=%d errs=%v", len(docs), errs)
	}
}

func Test_JoinPages_AndPageAt(t *testing.T) {
	t.Parallel()
	doc := joinPages([]string{"Page one.", "", "Page três."})
	if doc.Text != "Page one.\n\nPage três." {
		t.Fatalf("Text = %q", doc.Text)
	}
	want := []PageSpan{{Number: 1, Start: 0, End: 9}, {Number: 3, Start: 11, End: 21}}
	if len(doc.Pages) != len(want) {
		t.Fatalf("Pages = %+v", doc.Pages)
	}
	for i := range want {
		if doc.Pages[i] != want[i] {
			t.Errorf("Pages[%d] = %+v, want %+v", i, doc.Pages[i], want[i])
		}
	}

	cases := []struct {
		off  int
		want int
	}{
		{0, 1}, {8, 1}, {10, 1}, {11, 3}, {20, 3},
	}
	for _, tc := range cases {
		if got := doc.PageAt(tc.off); got != tc.want {
			t.Errorf("PageAt(%d) = %d, want %d", tc.off, got, tc.want)
		}
	}
	if got := (Document{Text: "x"}).PageAt(0); got != 0 {
		t.Errorf("unpaginated PageAt = %d, want 0", got)
	}
}

func Test_DecodeContent(t *testing.T) {
	t.Parallel()
	glyphs := map[string]textDecoder{
		"F2": glyphMap{"\x00\x24": "P", "\x00\x4c": "a", "\x00\x51": "y"},
		"F3": noGlyphs{},
	}
	cases := []struct {
		name   string
		stream string
		fonts  map[string]textDecoder
		want   string
	}{
		{
			name:   "simple Tj",
			stream: "BT /F1 12 Tf 72 712 Td (Annual leave policy) Tj ET",
			want:   "Annual leave policy",
		},
		{
			name:   "line moves",
			stream: "BT (Line one) Tj 0 -14 Td (Line two) Tj T* (Line three) Tj ET",
			want:   "Line one\nLine two\nLine three",
		},
		{
			name:   "TJ kerning and word gaps",
			stream: "BT [(Vac) 20 (ation) -250 (days)] TJ ET",
			want:   "Vacation days",
		},
		{
			name:   "escapes and nesting",
			stream: `BT (15 \(fifteen\) days \\ year) Tj (caf\351) Tj ET`,
			want:   `15 (fifteen) days \ yearcafé`,
		},
		{
			name:   "quote operator",
			stream: "BT (First) Tj (Second) ' ET",
			want:   "First\nSecond",
		},
		{
			name:   "hex strings",
			stream: "BT <48522050> Tj <506F6C> Tj ET",
			want:   "HR PPol",
		},
		{
			name:   "two-byte glyph IDs without a font mapping skipped",
			stream: "BT /F1 12 Tf 72 720 Td <0024004C0051> Tj ET",
			want:   "",
		},
		{
			name:   "two-byte glyph IDs through the font mapping",
			stream: "BT /F2 12 Tf 72 720 Td <0024004C0051> Tj ET",
			fonts:  glyphs,
			want:   "Pay",
		},
		{
			name:   "unmappable font skipped, next font read",
			stream: "BT /F3 12 Tf <0024004C> Tj /F1 12 Tf ( policy) Tj ET",
			fonts:  glyphs,
			want:   "policy",
		},
		{
			name:   "WinAnsi punctuation",
			stream: `BT (\223Paid leave\224 \226 15 days\205) Tj <93A99480> Tj ET`,
			want:   "\u201cPaid leave\u201d \u2013 15 days\u2026\u201c\u00a9\u201d\u20ac",
		},
		{
			name:   "undefined WinAnsi bytes dropped",
			stream: `BT (A\201B) Tj ET`,
			want:   "AB",
		},
		{
			name:   "dict and names skipped",
			stream: "/Span << /MCID 0 >> BDC BT (Tagged) Tj ET EMC",
			want:   "Tagged",
		},
		{
			name:   "no text",
			stream: "q 1 0 0 1 0 0 cm 0 0 100 100 re f Q",
			want:   "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := decodeContent([]byte(tc.stream), tc.fonts); got != tc.want {
				t.Errorf("decodeContent = %q, want %q", got, tc.want)
			}
		})
	}
}

// glyphMap decodes two-byte codes like a ToUnicode CMap.
type glyphMap map[string]string

func (g glyphMap) Decode(raw string) string {
	var b strings.Builder
	for i := 0; i+1 < len(raw); i += 2 {
		b.WriteString(g[raw[i:i+2]])
	}
	return b.String()
}
