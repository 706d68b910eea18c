package codec

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/oriys/rhaibridge/internal/diag"
)

// Decode parses the canonical Encoded Value text form back into a Dynamic.
// Decoding is strict: malformed input fails with an FFIError carrying a
// "decode error: <detail>" message, and trailing non-whitespace input after
// a complete value is itself an error.
func Decode(text string) (Dynamic, error) {
	p := &decoder{s: text}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return Dynamic{}, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return Dynamic{}, diag.FFI("decode error: trailing data at offset %d", p.pos)
	}
	return v, nil
}

type decoder struct {
	s   string
	pos int
}

func (p *decoder) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *decoder) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *decoder) value(depth int) (Dynamic, error) {
	if depth > maxNestingDepth {
		return Dynamic{}, diag.FFI("decode error: nesting exceeds %d levels", maxNestingDepth)
	}
	p.skipSpace()
	c, ok := p.peek()
	if !ok {
		return Dynamic{}, diag.FFI("decode error: unexpected end of input")
	}
	switch {
	case c == 'n':
		return p.literal("null", Null())
	case c == 't':
		return p.literal("true", Bool(true))
	case c == 'f':
		return p.literal("false", Bool(false))
	case c == '"':
		s, err := p.quotedString()
		if err != nil {
			return Dynamic{}, err
		}
		switch s {
		case tokenPosInf:
			return Float(math.Inf(1)), nil
		case tokenNegInf:
			return Float(math.Inf(-1)), nil
		case tokenNaN:
			return Float(math.NaN()), nil
		default:
			return String(s), nil
		}
	case c == '[':
		return p.array(depth)
	case c == '{':
		return p.object(depth)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return Dynamic{}, diag.FFI("decode error: unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *decoder) literal(lit string, v Dynamic) (Dynamic, error) {
	if !strings.HasPrefix(p.s[p.pos:], lit) {
		return Dynamic{}, diag.FFI("decode error: expected %q at offset %d", lit, p.pos)
	}
	p.pos += len(lit)
	return v, nil
}

func (p *decoder) quotedString() (string, error) {
	if c, ok := p.peek(); !ok || c != '"' {
		return "", diag.FFI("decode error: expected string at offset %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for {
		if p.pos >= len(p.s) {
			return "", diag.FFI("decode error: unterminated string")
		}
		c := p.s[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.s) {
				return "", diag.FFI("decode error: unterminated escape")
			}
			esc := p.s[p.pos]
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, err := p.unicodeEscape()
				if err != nil {
					return "", err
				}
				b.WriteRune(r)
				continue
			default:
				return "", diag.FFI("decode error: invalid escape \\%c at offset %d", esc, p.pos)
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

// unicodeEscape consumes a \uXXXX escape (p.pos at the 'u'), and a trailing
// low surrogate \uXXXX if the first escape was a high surrogate, leaving
// p.pos immediately after the last hex digit consumed.
func (p *decoder) unicodeEscape() (rune, error) {
	hi, err := p.hex4()
	if err != nil {
		return 0, err
	}
	if utf16.IsSurrogate(rune(hi)) {
		if p.pos+1 >= len(p.s) || p.s[p.pos] != '\\' || p.s[p.pos+1] != 'u' {
			return 0, diag.FFI("decode error: unpaired surrogate at offset %d", p.pos)
		}
		p.pos++ // skip '\\'; hex4 skips the 'u'
		lo, err := p.hex4()
		if err != nil {
			return 0, err
		}
		r := utf16.DecodeRune(rune(hi), rune(lo))
		if r == utf8.RuneError {
			return 0, diag.FFI("decode error: invalid surrogate pair at offset %d", p.pos)
		}
		return r, nil
	}
	return rune(hi), nil
}

// hex4 consumes 'u' plus 4 hex digits (p.pos at the 'u' on entry), leaving
// p.pos immediately after the last hex digit.
func (p *decoder) hex4() (uint16, error) {
	p.pos++
	if p.pos+4 > len(p.s) {
		return 0, diag.FFI("decode error: truncated unicode escape")
	}
	v, err := strconv.ParseUint(p.s[p.pos:p.pos+4], 16, 32)
	if err != nil {
		return 0, diag.FFI("decode error: invalid unicode escape %q", p.s[p.pos:p.pos+4])
	}
	p.pos += 4
	return uint16(v), nil
}

func (p *decoder) number() (Dynamic, error) {
	start := p.pos
	if c, _ := p.peek(); c == '-' {
		p.pos++
	}
	if p.pos >= len(p.s) || p.s[p.pos] < '0' || p.s[p.pos] > '9' {
		return Dynamic{}, diag.FFI("decode error: invalid number at offset %d", start)
	}
	intStart := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.s[intStart] == '0' && p.pos-intStart > 1 {
		return Dynamic{}, diag.FFI("decode error: leading zero in number at offset %d", start)
	}
	isFloat := false
	if p.pos < len(p.s) && p.s[p.pos] == '.' {
		isFloat = true
		p.pos++
		if p.pos >= len(p.s) || p.s[p.pos] < '0' || p.s[p.pos] > '9' {
			return Dynamic{}, diag.FFI("decode error: invalid number at offset %d", start)
		}
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	if p.pos < len(p.s) && (p.s[p.pos] == 'e' || p.s[p.pos] == 'E') {
		isFloat = true
		p.pos++
		if p.pos < len(p.s) && (p.s[p.pos] == '+' || p.s[p.pos] == '-') {
			p.pos++
		}
		if p.pos >= len(p.s) || p.s[p.pos] < '0' || p.s[p.pos] > '9' {
			return Dynamic{}, diag.FFI("decode error: invalid number exponent at offset %d", start)
		}
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	lit := p.s[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Dynamic{}, diag.FFI("decode error: %v", err)
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return Dynamic{}, diag.FFI("decode error: %v", err)
	}
	return Int(i), nil
}

func (p *decoder) array(depth int) (Dynamic, error) {
	p.pos++ // consume '['
	p.skipSpace()
	items := []Dynamic{}
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return ArrayOf(items...), nil
	}
	for {
		v, err := p.value(depth + 1)
		if err != nil {
			return Dynamic{}, err
		}
		items = append(items, v)
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return Dynamic{}, diag.FFI("decode error: unterminated array")
		}
		if c == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		if c == ']' {
			p.pos++
			return ArrayOf(items...), nil
		}
		return Dynamic{}, diag.FFI("decode error: expected ',' or ']' at offset %d", p.pos)
	}
}

func (p *decoder) object(depth int) (Dynamic, error) {
	p.pos++ // consume '{'
	p.skipSpace()
	obj := NewObject()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return ObjectOf(obj), nil
	}
	for {
		p.skipSpace()
		key, err := p.quotedString()
		if err != nil {
			return Dynamic{}, diag.FFI("decode error: object key must be a string")
		}
		p.skipSpace()
		if c, ok := p.peek(); !ok || c != ':' {
			return Dynamic{}, diag.FFI("decode error: expected ':' at offset %d", p.pos)
		}
		p.pos++
		v, err := p.value(depth + 1)
		if err != nil {
			return Dynamic{}, err
		}
		obj.Set(key, v)
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return Dynamic{}, diag.FFI("decode error: unterminated object")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == '}' {
			p.pos++
			return ObjectOf(obj), nil
		}
		return Dynamic{}, diag.FFI("decode error: expected ',' or '}' at offset %d", p.pos)
	}
}
