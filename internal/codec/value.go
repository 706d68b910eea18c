// Package codec implements the bidirectional value marshaling protocol
// between the evaluator's native dynamic value and the canonical Encoded
// Value text form that crosses the C ABI.
package codec

import "fmt"

// Kind identifies which arm of the Value grammar a Dynamic currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
	KindObject
	// KindUnsupported marks an evaluator-native value with no counterpart in
	// the wire grammar (an opaque handle, a closure, any host-only object).
	// The codec must fail encoding such a value rather than silently
	// stringifying it.
	KindUnsupported
)

// Array is a pointer-identified container so that Encode can detect a
// script constructing a self-referential array. Two Dynamics built from the
// same *Array share identity.
type Array struct {
	Items []Dynamic
}

// Object is the Object-arm counterpart to Array, preserving insertion order
// for encoding even though Go maps do not.
type Object struct {
	Keys []string
	M    map[string]Dynamic
}

// NewObject returns an empty, ready-to-use Object.
func NewObject() *Object {
	return &Object{M: make(map[string]Dynamic)}
}

// Set inserts or overwrites key, preserving first-insertion order.
func (o *Object) Set(key string, v Dynamic) {
	if _, exists := o.M[key]; !exists {
		o.Keys = append(o.Keys, key)
	}
	o.M[key] = v
}

// Get returns the value at key and whether it was present.
func (o *Object) Get(key string) (Dynamic, bool) {
	v, ok := o.M[key]
	return v, ok
}

// Dynamic is the evaluator-native value representation shared by
// internal/script and internal/codec: a tagged union over the wire value
// grammar, plus an Unsupported arm for values the evaluator produced that
// the grammar cannot express.
type Dynamic struct {
	Kind Kind
	I    int64
	F    float64
	B    bool
	S    string
	A    *Array
	O    *Object
	// TypeName is populated only for KindUnsupported, naming the
	// evaluator-internal type that could not be converted.
	TypeName string
}

func Null() Dynamic              { return Dynamic{Kind: KindNull} }
func Int(v int64) Dynamic        { return Dynamic{Kind: KindInt, I: v} }
func Float(v float64) Dynamic    { return Dynamic{Kind: KindFloat, F: v} }
func Bool(v bool) Dynamic        { return Dynamic{Kind: KindBool, B: v} }
func String(v string) Dynamic    { return Dynamic{Kind: KindString, S: v} }
func ArrayOf(items ...Dynamic) Dynamic {
	return Dynamic{Kind: KindArray, A: &Array{Items: items}}
}
func ObjectOf(o *Object) Dynamic { return Dynamic{Kind: KindObject, O: o} }
func Unsupported(typeName string) Dynamic {
	return Dynamic{Kind: KindUnsupported, TypeName: typeName}
}

// Equal reports deep structural equality, used by tests asserting the
// encode/decode round-trip guarantee.
func (d Dynamic) Equal(o Dynamic) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case KindNull:
		return true
	case KindInt:
		return d.I == o.I
	case KindFloat:
		if isNaN(d.F) && isNaN(o.F) {
			return true
		}
		return d.F == o.F
	case KindBool:
		return d.B == o.B
	case KindString:
		return d.S == o.S
	case KindArray:
		if len(d.A.Items) != len(o.A.Items) {
			return false
		}
		for i := range d.A.Items {
			if !d.A.Items[i].Equal(o.A.Items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(d.O.M) != len(o.O.M) {
			return false
		}
		for k, v := range d.O.M {
			ov, ok := o.O.Get(k)
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNaN(f float64) bool { return f != f }

func (d Dynamic) String() string {
	enc, err := Encode(d)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return enc
}
