package loader

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// kerningSpace is the TJ displacement (thousandths of text space, negative
// moves right) beyond which a word break is assumed.
const kerningSpace = -200

// operand is one value on the content stream operand stack.
type operand struct {
	text   string    // raw string bytes, decoded at show time
	num    float64   // numeric operand
	isNum  bool      // num is valid
	isStr  bool      // text is valid
	array  []operand // TJ array elements
	isArr  bool      // array is valid
	name   string    // name operand without the slash
	isName bool      // name is valid
}

// textDecoder turns the raw bytes of a shown string into text using the
// font selected by Tf.
type textDecoder interface {
	Decode(raw string) string
}

// byteText decodes single-byte strings through a code page. A string
// containing control bytes is not text in any of them (typically glyph IDs
// from a composite font) and decodes to nothing.
type byteText struct {
	cm *charmap.Charmap
}

// winAnsi is the encoding of the standard Latin fonts and the fallback for
// fonts that declare nothing better.
var winAnsi = byteText{cm: charmap.Windows1252}

func (t byteText) Decode(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return ""
		}
		r := t.cm.DecodeByte(c)
		if (r >= 0x80 && r <= 0x9f) || r == utf8.RuneError {
			// Undefined in the code page.
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// noGlyphs drops every string; used for fonts whose codes cannot be mapped
// to Unicode.
type noGlyphs struct{}

func (noGlyphs) Decode(string) string { return "" }

// decodeContent extracts readable text from a decoded PDF page content
// stream. It interprets the text-showing operators (Tj, TJ, ', ") and
// turns text-positioning operators into line breaks. Strings are decoded
// through fonts[name] for the font selected by Tf; fonts missing from the
// map fall back to winAnsi.
func decodeContent(stream []byte, fonts map[string]textDecoder) string {
	p := &contentParser{src: stream}
	var out strings.Builder
	var stack []operand
	var dec textDecoder = winAnsi
	show := func(raw string) { out.WriteString(dec.Decode(raw)) }

	for {
		tok, op, ok := p.next()
		if !ok {
			break
		}
		if op == "" {
			stack = append(stack, tok)
			continue
		}

		switch op {
		case "Tf":
			dec = winAnsi
			if len(stack) >= 2 && stack[len(stack)-2].isName {
				if d, ok := fonts[stack[len(stack)-2].name]; ok {
					dec = d
				}
			}
		case "Tj":
			if s, ok := lastString(stack); ok {
				show(s)
			}
		case "'":
			out.WriteByte('\n')
			if s, ok := lastString(stack); ok {
				show(s)
			}
		case "\"":
			out.WriteByte('\n')
			if s, ok := lastString(stack); ok {
				show(s)
			}
		case "TJ":
			if len(stack) > 0 && stack[len(stack)-1].isArr {
				for _, el := range stack[len(stack)-1].array {
					switch {
					case el.isStr:
						show(el.text)
					case el.isNum && el.num < kerningSpace:
						out.WriteByte(' ')
					}
				}
			}
		case "Td", "TD":
			if len(stack) >= 2 && stack[len(stack)-1].isNum && stack[len(stack)-1].num != 0 {
				out.WriteByte('\n')
			} else {
				out.WriteByte(' ')
			}
		case "T*", "Tm", "ET":
			out.WriteByte('\n')
		case "ID":
			p.skipInlineImage()
		}
		stack = stack[:0]
	}

	return normalizeText(out.String())
}

// lastString returns the topmost operand if it is a string.
func lastString(stack []operand) (string, bool) {
	if len(stack) == 0 || !stack[len(stack)-1].isStr {
		return "", false
	}
	return stack[len(stack)-1].text, true
}

// normalizeText trims trailing blanks on every line and collapses runs of
// blank lines into one.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, line)
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// contentParser tokenizes a PDF content stream.
type contentParser struct {
	src []byte
	pos int
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// next returns either an operand or an operator name. ok is false at end of
// input.
func (p *contentParser) next() (tok operand, op string, ok bool) {
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return operand{}, "", false
		}
		c := p.src[p.pos]
		switch {
		case c == '%':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
				p.pos++
			}
			continue
		case c == '(':
			return operand{text: p.literal(), isStr: true}, "", true
		case c == '<' && p.peek(1) == '<':
			p.skipDict()
			return operand{}, "", true
		case c == '<':
			s, valid := p.hex()
			return operand{text: s, isStr: valid}, "", true
		case c == '[':
			p.pos++
			return operand{array: p.array(), isArr: true}, "", true
		case c == '/':
			p.pos++
			return operand{name: p.word(), isName: true}, "", true
		case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
			p.pos++
			continue
		}

		w := p.word()
		if w == "" {
			p.pos++
			continue
		}
		if n, err := strconv.ParseFloat(w, 64); err == nil {
			return operand{num: n, isNum: true}, "", true
		}
		return operand{}, w, true
	}
}

func (p *contentParser) peek(off int) byte {
	if p.pos+off < len(p.src) {
		return p.src[p.pos+off]
	}
	return 0
}

func (p *contentParser) skipSpace() {
	for p.pos < len(p.src) && isPDFSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *contentParser) word() string {
	start := p.pos
	for p.pos < len(p.src) && !isPDFSpace(p.src[p.pos]) && !isPDFDelim(p.src[p.pos]) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}

// array parses elements up to the closing bracket.
func (p *contentParser) array() []operand {
	var els []operand
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return els
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return els
		}
		tok, op, ok := p.next()
		if !ok {
			return els
		}
		if op == "" {
			els = append(els, tok)
		}
	}
}

// literal reads a parenthesised string, honouring nesting and escapes. The
// result is the raw byte string; the font decides what it means.
func (p *contentParser) literal() string {
	p.pos++ // (
	depth := 1
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
			b.WriteByte('(')
		case ')':
			depth--
			if depth == 0 {
				return b.String()
			}
			b.WriteByte(')')
		case '\\':
			if p.pos >= len(p.src) {
				return b.String()
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r':
				if p.pos < len(p.src) && p.src[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; i++ {
					v = v*8 + int(p.src[p.pos]-'0')
					p.pos++
				}
				b.WriteByte(byte(v))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// hex reads a <...> string into its raw bytes. valid is false for
// malformed digits.
func (p *contentParser) hex() (string, bool) {
	p.pos++ // <
	var digits []byte
	for p.pos < len(p.src) && p.src[p.pos] != '>' {
		c := p.src[p.pos]
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
		p.pos++
	}
	p.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	raw := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return "", false
		}
		raw = append(raw, byte(v))
	}
	return string(raw), true
}

func (p *contentParser) skipDict() {
	depth := 0
	for p.pos < len(p.src)-1 {
		switch {
		case p.src[p.pos] == '<' && p.src[p.pos+1] == '<':
			depth++
			p.pos += 2
		case p.src[p.pos] == '>' && p.src[p.pos+1] == '>':
			depth--
			p.pos += 2
			if depth == 0 {
				return
			}
		default:
			p.pos++
		}
	}
	p.pos = len(p.src)
}

// skipInlineImage advances past inline image data to the EI operator.
func (p *contentParser) skipInlineImage() {
	for p.pos+2 <= len(p.src) {
		if p.src[p.pos] == 'E' && p.src[p.pos+1] == 'I' &&
			(p.pos == 0 || isPDFSpace(p.src[p.pos-1])) &&
			(p.pos+2 == len(p.src) || isPDFSpace(p.src[p.pos+2])) {
			p.pos += 2
			return
		}
		p.pos++
	}
	p.pos = len(p.src)
}
