package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
)

// contentPageRe matches the page number in files written by
// api.ExtractContentFile ("<name>_Content_page_3.txt").
var contentPageRe = regexp.MustCompile(`Content_page_(\d+)`)

// loadPDF extracts the text of every page of the PDF at path. pdfcpu decodes
// each page's content stream to a scratch directory; the text-showing
// operators in those streams are then interpreted by decodeContent through
// the page's fonts as resolved from the same pdfcpu context.
func (l *Loader) loadPDF(path string) (Document, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read pdf: %w", err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return Document{}, ErrNoText
	}

	outDir, err := os.MkdirTemp(l.tempDir, "hrassist-pdf-")
	if err != nil {
		return Document{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return Document{}, fmt.Errorf("extract pdf content: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return Document{}, fmt.Errorf("read extracted content: %w", err)
	}

	fonts := pageFonts(pdfCtx)

	pages := make([]string, pageCount)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := contentPageRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > pageCount {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		if err != nil {
			l.log.Warn("loader: unreadable page content", "path", path, "page", n, "error", err)
			continue
		}
		var pf map[string]textDecoder
		if n <= len(fonts) {
			pf = fonts[n-1]
		}
		pages[n-1] = decodeContent(raw, pf)
	}

	return joinPages(pages), nil
}

// pageFonts returns, per page, a decoder for every font resource keyed by
// its resource name. Pages whose resources cannot be resolved get nil and
// fall back to WinAnsi.
func pageFonts(ctx *model.Context) []map[string]textDecoder {
	fonts := make([]map[string]textDecoder, ctx.PageCount)
	for i := range fonts {
		_, _, attrs, err := ctx.PageDict(i+1, false)
		if err != nil || attrs == nil || attrs.Resources == nil {
			continue
		}
		o, found := attrs.Resources.Find("Font")
		if !found {
			continue
		}
		res, err := ctx.DereferenceDict(o)
		if err != nil || res == nil {
			continue
		}
		m := make(map[string]textDecoder, len(res))
		for name, ref := range res {
			fd, err := ctx.DereferenceDict(ref)
			if err != nil || fd == nil {
				continue
			}
			m[name] = fontDecoder(ctx.XRefTable, fd)
		}
		fonts[i] = m
	}
	return fonts
}

// fontDecoder picks how strings shown in the font fd become text. A
// ToUnicode CMap wins when present. Composite fonts carry glyph IDs and are
// skipped without one; simple fonts use their base encoding.
func fontDecoder(xt *model.XRefTable, fd types.Dict) textDecoder {
	composite := fd.Subtype() != nil && *fd.Subtype() == "Type0"
	codeLen := 1
	if composite {
		codeLen = 2
	}
	if cm := fontCMap(xt, fd, codeLen); cm != nil {
		return cm
	}
	if composite {
		return noGlyphs{}
	}
	return byteText{cm: baseEncoding(xt, fd)}
}

// fontCMap parses the font's ToUnicode stream, or returns nil.
func fontCMap(xt *model.XRefTable, fd types.Dict, codeLen int) *toUnicode {
	o, found := fd.Find("ToUnicode")
	if !found {
		return nil
	}
	sd, _, err := xt.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		return nil
	}
	if err := sd.Decode(); err != nil {
		return nil
	}
	return parseToUnicode(sd.Content, codeLen)
}

// baseEncoding maps a simple font's /Encoding (a name, or a dictionary
// with /BaseEncoding) to a code page. Differences arrays are not applied.
func baseEncoding(xt *model.XRefTable, fd types.Dict) *charmap.Charmap {
	o, found := fd.Find("Encoding")
	if !found {
		return charmap.Windows1252
	}
	o, err := xt.Dereference(o)
	if err != nil {
		return charmap.Windows1252
	}
	var name string
	switch v := o.(type) {
	case types.Name:
		name = v.Value()
	case types.Dict:
		if n := v.NameEntry("BaseEncoding"); n != nil {
			name = *n
		}
	}
	if name == "MacRomanEncoding" {
		return charmap.Macintosh
	}
	return charmap.Windows1252
}
