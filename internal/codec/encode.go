package codec

import (
	"math"
	"strconv"
	"strings"

	"github.com/oriys/rhaibridge/internal/diag"
)

const maxNestingDepth = 64

// Special non-finite float tokens. These are plain JSON string literals in
// the encoded text; Decode recognizes them and yields the corresponding
// float rather than a String value.
const (
	tokenPosInf = "__INFINITY__"
	tokenNegInf = "__NEG_INFINITY__"
	tokenNaN    = "__NAN__"
)

// Encode renders d as the canonical Encoded Value text form. It fails with
// an FFIError if d contains a KindUnsupported value anywhere in its tree, or
// if the tree is a cyclic graph (detected via Array/Object pointer
// identity).
func Encode(d Dynamic) (string, error) {
	var b strings.Builder
	visiting := map[any]bool{}
	if err := encodeInto(&b, d, visiting, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeInto(b *strings.Builder, d Dynamic, visiting map[any]bool, depth int) error {
	if depth > maxNestingDepth {
		return diag.FFI("value nesting exceeds %d levels", maxNestingDepth)
	}
	switch d.Kind {
	case KindNull:
		b.WriteString("null")
	case KindInt:
		b.WriteString(strconv.FormatInt(d.I, 10))
	case KindFloat:
		encodeFloat(b, d.F)
	case KindBool:
		if d.B {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindString:
		encodeString(b, d.S)
	case KindArray:
		if visiting[d.A] {
			return diag.FFI("cycle detected")
		}
		visiting[d.A] = true
		defer delete(visiting, d.A)

		b.WriteByte('[')
		for i, item := range d.A.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeInto(b, item, visiting, depth+1); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case KindObject:
		if visiting[d.O] {
			return diag.FFI("cycle detected")
		}
		visiting[d.O] = true
		defer delete(visiting, d.O)

		b.WriteByte('{')
		for i, k := range d.O.Keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, k)
			b.WriteByte(':')
			v, _ := d.O.Get(k)
			if err := encodeInto(b, v, visiting, depth+1); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case KindUnsupported:
		return diag.FFI("type not convertible: %s", d.TypeName)
	default:
		return diag.FFI("unknown value kind %d", d.Kind)
	}
	return nil
}

func encodeFloat(b *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		encodeString(b, tokenNaN)
	case math.IsInf(f, 1):
		encodeString(b, tokenPosInf)
	case math.IsInf(f, -1):
		encodeString(b, tokenNegInf)
	default:
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			// Keep integral floats distinguishable from Int on decode.
			s += ".0"
		}
		b.WriteString(s)
	}
}

func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u`)
				const hex = "0123456789abcdef"
				b.WriteByte(hex[(r>>12)&0xf])
				b.WriteByte(hex[(r>>8)&0xf])
				b.WriteByte(hex[(r>>4)&0xf])
				b.WriteByte(hex[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// CoerceKey renders a non-string key (produced when the evaluator yields a
// non-string object key) into its canonical string form: ints render as
// decimal text, floats use the same round-trip-safe formatting as Float
// values, bools render as the boolean tokens, and null renders as the null
// token.
func CoerceKey(d Dynamic) string {
	switch d.Kind {
	case KindString:
		return d.S
	case KindInt:
		return strconv.FormatInt(d.I, 10)
	case KindFloat:
		var b strings.Builder
		encodeFloat(&b, d.F)
		return strings.Trim(b.String(), `"`)
	case KindBool:
		if d.B {
			return "true"
		}
		return "false"
	case KindNull:
		return "null"
	default:
		return "?"
	}
}
