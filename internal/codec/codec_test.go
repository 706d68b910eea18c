package codec

import (
	"math"
	"strings"
	"testing"
)

func roundTrip(t *testing.T, d Dynamic) {
	t.Helper()
	enc, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode(%+v): %v", d, err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode(%q): %v", enc, err)
	}
	if !d.Equal(dec) {
		t.Fatalf("round trip mismatch: %+v -> %q -> %+v", d, enc, dec)
	}
}

func TestRoundTripPrimitives(t *testing.T) {
	cases := map[string]Dynamic{
		"null":    Null(),
		"int":     Int(42),
		"negint":  Int(-9223372036854775808),
		"float":   Float(3.14),
		"bool_t":  Bool(true),
		"bool_f":  Bool(false),
		"string":  String("hello, world"),
		"unicode": String("héllo 日本語 🎉"),
		"empty":   String(""),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			roundTrip(t, v)
		})
	}
}

func TestRoundTripNonFiniteFloats(t *testing.T) {
	t.Run("positive infinity", func(t *testing.T) { roundTrip(t, Float(math.Inf(1))) })
	t.Run("negative infinity", func(t *testing.T) { roundTrip(t, Float(math.Inf(-1))) })
	t.Run("nan", func(t *testing.T) { roundTrip(t, Float(math.NaN())) })
}

func TestRoundTripContainers(t *testing.T) {
	obj := NewObject()
	obj.Set("a", Int(1))
	obj.Set("b", String("x"))

	t.Run("empty array", func(t *testing.T) { roundTrip(t, ArrayOf()) })
	t.Run("empty object", func(t *testing.T) { roundTrip(t, ObjectOf(NewObject())) })
	t.Run("array", func(t *testing.T) { roundTrip(t, ArrayOf(Int(1), Int(2), Int(3))) })
	t.Run("object", func(t *testing.T) { roundTrip(t, ObjectOf(obj)) })

	t.Run("nested 5 levels", func(t *testing.T) {
		inner := NewObject()
		inner.Set("b", ArrayOf(Int(1)))
		outer := NewObject()
		outer.Set("a", ArrayOf(ObjectOf(inner)))
		roundTrip(t, ObjectOf(outer))
	})

	t.Run("32 levels of nesting", func(t *testing.T) {
		v := Int(0)
		for i := 0; i < 32; i++ {
			v = ArrayOf(v)
		}
		roundTrip(t, v)
	})
}

func TestEncodeUnsupportedFails(t *testing.T) {
	_, err := Encode(Unsupported("closure"))
	if err == nil {
		t.Fatal("expected error encoding an unsupported type")
	}
	if !strings.Contains(err.Error(), "type not convertible") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncodeDetectsCycle(t *testing.T) {
	arr := &Array{}
	arr.Items = []Dynamic{{Kind: KindArray, A: arr}}
	_, err := Encode(Dynamic{Kind: KindArray, A: arr})
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
	if !strings.Contains(err.Error(), "cycle detected") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"{",
		"[1,2",
		`{"a":}`,
		"tru",
		`"unterminated`,
		"[1,]",
		"01",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			if _, err := Decode(in); err == nil {
				t.Fatalf("expected decode error for %q", in)
			}
		})
	}
}

func TestDecodeRecognizesSpecialFloatTokens(t *testing.T) {
	v, err := Decode(`"__INFINITY__"`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindFloat || !math.IsInf(v.F, 1) {
		t.Fatalf("expected +Inf float, got %+v", v)
	}
}

func TestCoerceKey(t *testing.T) {
	cases := []struct {
		v    Dynamic
		want string
	}{
		{Int(7), "7"},
		{Bool(true), "true"},
		{Null(), "null"},
		{String("x"), "x"},
	}
	for _, c := range cases {
		if got := CoerceKey(c.v); got != c.want {
			t.Errorf("CoerceKey(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
