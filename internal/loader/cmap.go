package loader

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// utf16BE decodes CMap destination strings.
var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// codeRange is an inclusive range of byte codes of one length.
type codeRange struct {
	lo, hi string
}

// contains reports whether code lies in r byte by byte.
func (r codeRange) contains(code string) bool {
	if len(code) != len(r.lo) {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < r.lo[i] || code[i] > r.hi[i] {
			return false
		}
	}
	return true
}

// bfRange maps consecutive codes lo..hi either onto consecutive text
// starting at base or onto one entry of each.
type bfRange struct {
	codeRange
	base string
	each []string
}

// toUnicode is a parsed ToUnicode CMap. Codes it does not map decode to
// nothing.
type toUnicode struct {
	space      []codeRange
	chars      map[string]string
	ranges     []bfRange
	defaultLen int
}

// parseToUnicode reads the codespace, bfchar, and bfrange sections of a
// ToUnicode CMap program. defaultLen is the code length used when the CMap
// declares no codespace. The result is nil if nothing was mapped.
func parseToUnicode(program []byte, defaultLen int) *toUnicode {
	cm := &toUnicode{chars: make(map[string]string), defaultLen: defaultLen}
	p := &contentParser{src: program}
	var stack []operand
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
		case "endcodespacerange":
			for i := 0; i+1 < len(stack); i += 2 {
				lo, hi := stack[i], stack[i+1]
				if lo.isStr && hi.isStr && len(lo.text) == len(hi.text) && lo.text != "" {
					cm.space = append(cm.space, codeRange{lo: lo.text, hi: hi.text})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(stack); i += 2 {
				src, dst := stack[i], stack[i+1]
				if src.isStr && dst.isStr {
					cm.chars[src.text] = unicodeText(dst.text)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(stack); i += 3 {
				lo, hi, dst := stack[i], stack[i+1], stack[i+2]
				if !lo.isStr || !hi.isStr || len(lo.text) != len(hi.text) {
					continue
				}
				r := bfRange{codeRange: codeRange{lo: lo.text, hi: hi.text}}
				switch {
				case dst.isStr:
					r.base = unicodeText(dst.text)
				case dst.isArr:
					for _, el := range dst.array {
						r.each = append(r.each, unicodeText(el.text))
					}
				default:
					continue
				}
				cm.ranges = append(cm.ranges, r)
			}
		}
		stack = stack[:0]
	}
	if len(cm.chars) == 0 && len(cm.ranges) == 0 {
		return nil
	}
	return cm
}

// unicodeText decodes a UTF-16BE destination string.
func unicodeText(raw string) string {
	s, err := utf16BE.NewDecoder().String(raw)
	if err != nil {
		return ""
	}
	return s
}

// Decode splits raw into codes along the codespace and maps each one.
func (cm *toUnicode) Decode(raw string) string {
	var b strings.Builder
	for len(raw) > 0 {
		n := cm.codeLen(raw)
		code := raw[:n]
		raw = raw[n:]
		b.WriteString(cm.lookup(code))
	}
	return b.String()
}

func (cm *toUnicode) codeLen(raw string) int {
	for _, r := range cm.space {
		if len(r.lo) <= len(raw) && r.contains(raw[:len(r.lo)]) {
			return len(r.lo)
		}
	}
	return min(max(cm.defaultLen, 1), len(raw))
}

func (cm *toUnicode) lookup(code string) string {
	if s, ok := cm.chars[code]; ok {
		return s
	}
	for _, r := range cm.ranges {
		if !r.contains(code) {
			continue
		}
		off := codeValue(code) - codeValue(r.lo)
		if r.each != nil {
			if off < len(r.each) {
				return r.each[off]
			}
			return ""
		}
		if r.base == "" {
			return ""
		}
		// Consecutive codes advance the last character of base.
		last, size := utf8.DecodeLastRuneInString(r.base)
		return r.base[:len(r.base)-size] + string(last+rune(off))
	}
	return ""
}

// codeValue reads code as a big-endian integer.
func codeValue(code string) int {
	v := 0
	for i := 0; i < len(code); i++ {
		v = v<<8 | int(code[i])
	}
	return v
}
