package loader

import (
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// markdownParser parses policy markdown, including GFM tables.
var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// loadMarkdown reads a markdown file and reduces it to plain text.
func loadMarkdown(path string) (Document, error) {
	doc, err := loadText(path)
	if err != nil {
		return Document{}, err
	}
	doc.Text = markdownToText(doc.Text)
	return doc, nil
}

// loadHTML converts an HTML policy page to markdown, then to plain text, so
// exported intranet pages keep their heading and list structure.
func loadHTML(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read file: %w", err)
	}
	converted, err := md.NewConverter("", true, nil).ConvertString(string(raw))
	if err != nil {
		return Document{}, fmt.Errorf("convert html: %w", err)
	}
	return Document{Text: markdownToText(converted)}, nil
}

// markdownToText renders the text content of a markdown document. Block
// elements end with a newline and headings are followed by a blank line, so
// the chunker's paragraph separators still fall on section boundaries. List
// items keep a "- " marker and table cells are separated by " | ".
func markdownToText(src string) string {
	source := []byte(src)
	r := &textRenderer{source: source}
	doc := markdownParser.Parser().Parse(text.NewReader(source))
	_ = ast.Walk(doc, r.walk)
	return normalizeText(r.out.String())
}

type textRenderer struct {
	source []byte
	out    strings.Builder
}

// endLine terminates the current line unless it is already terminated.
func (r *textRenderer) endLine() {
	if b := r.out.String(); b != "" && !strings.HasSuffix(b, "\n") {
		r.out.WriteByte('\n')
	}
}

// endBlock leaves exactly one blank line after the current block.
func (r *textRenderer) endBlock() {
	r.endLine()
	if b := r.out.String(); b != "" && !strings.HasSuffix(b, "\n\n") {
		r.out.WriteByte('\n')
	}
}

func (r *textRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading, ast.KindParagraph, extast.KindTable, ast.KindThematicBreak:
		if !entering {
			r.endBlock()
		}
	case ast.KindList:
		if !entering {
			if n.Parent() != nil && n.Parent().Kind() == ast.KindDocument {
				r.endBlock()
			} else {
				r.endLine()
			}
		}
	case ast.KindTextBlock, extast.KindTableRow, extast.KindTableHeader:
		if !entering {
			r.endLine()
		}
	case ast.KindListItem:
		if entering {
			r.endLine()
			r.out.WriteString("- ")
		}
	case extast.KindTableCell:
		if !entering && n.NextSibling() != nil {
			r.out.WriteString(" | ")
		}
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.out.Write(t.Segment.Value(r.source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				r.out.WriteByte('\n')
			}
		}
	case ast.KindString:
		if entering {
			r.out.Write(n.(*ast.String).Value)
		}
	case ast.KindAutoLink:
		if entering {
			r.out.Write(n.(*ast.AutoLink).Label(r.source))
		}
	case ast.KindCodeSpan:
		if entering {
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.out.Write(t.Segment.Value(r.source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			lines := n.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				r.out.Write(seg.Value(r.source))
			}
			r.endBlock()
			return ast.WalkSkipChildren, nil
		}
	case ast.KindHTMLBlock, ast.KindRawHTML:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}
