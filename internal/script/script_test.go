package script

import (
	"testing"
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
)

func run(t *testing.T, src string) codec.Dynamic {
	t.Helper()
	m := &Machine{}
	res, err := m.Run(src)
	if err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	return res.Value
}

func TestArithmetic(t *testing.T) {
	cases := map[string]codec.Dynamic{
		"1 + 2 * 3":    codec.Int(7),
		"(1 + 2) * 3":  codec.Int(9),
		"10 % 3":       codec.Int(1),
		"7 / 2":        codec.Int(3),
		"7.0 / 2":      codec.Float(3.5),
		"-5 + 2":       codec.Int(-3),
		"\"a\" + \"b\"": codec.String("ab"),
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			got := run(t, src)
			if !got.Equal(want) {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestComparisonAndLogic(t *testing.T) {
	cases := map[string]bool{
		"1 < 2":            true,
		"2 <= 2":           true,
		"1 == 1.0":         false,
		"1 != 2":           true,
		"true && false":    false,
		"true || false":    true,
		"!true":            false,
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			got := run(t, src)
			if got.Kind != codec.KindBool || got.B != want {
				t.Fatalf("got %+v, want bool %v", got, want)
			}
		})
	}
}

func TestLetAndAssign(t *testing.T) {
	got := run(t, `let x = 1; x = x + 41; x`)
	if !got.Equal(codec.Int(42)) {
		t.Fatalf("got %+v", got)
	}
}

func TestIfElse(t *testing.T) {
	got := run(t, `let x = 5; if x > 3 { "big" } else { "small" }`)
	if !got.Equal(codec.String("big")) {
		t.Fatalf("got %+v", got)
	}
}

func TestWhileAndBreak(t *testing.T) {
	got := run(t, `
		let i = 0;
		let sum = 0;
		while i < 10 {
			sum = sum + i;
			i = i + 1;
			if i == 5 { break }
		}
		sum
	`)
	if !got.Equal(codec.Int(10)) {
		t.Fatalf("got %+v", got)
	}
}

func TestArrayAndObjectLiterals(t *testing.T) {
	got := run(t, `let a = [1, 2, 3]; a[1]`)
	if !got.Equal(codec.Int(2)) {
		t.Fatalf("got %+v", got)
	}
	got = run(t, `let o = #{"a": 1, "b": 2}; o["b"]`)
	if !got.Equal(codec.Int(2)) {
		t.Fatalf("got %+v", got)
	}
}

func TestBuiltins(t *testing.T) {
	if got := run(t, `len([1,2,3])`); !got.Equal(codec.Int(3)) {
		t.Fatalf("len: got %+v", got)
	}
	if got := run(t, `type_of(1.5)`); !got.Equal(codec.String("float")) {
		t.Fatalf("type_of: got %+v", got)
	}
	if got := run(t, `to_string(42)`); !got.Equal(codec.String("42")) {
		t.Fatalf("to_string: got %+v", got)
	}
	if got := run(t, `abs(-7)`); !got.Equal(codec.Int(7)) {
		t.Fatalf("abs: got %+v", got)
	}
}

func TestHostCallDispatch(t *testing.T) {
	m := &Machine{
		Call: func(name string, args []codec.Dynamic) (codec.Dynamic, error) {
			if name == "double" {
				return codec.Int(args[0].I * 2), nil
			}
			return codec.Dynamic{}, nil
		},
	}
	res, err := m.Run(`double(21)`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Value.Equal(codec.Int(42)) {
		t.Fatalf("got %+v", res.Value)
	}
}

func TestUnknownFunctionFails(t *testing.T) {
	m := &Machine{}
	if _, err := m.Run(`nonexistent()`); err == nil {
		t.Fatal("expected error for unknown function")
	}
}

func TestOperationLimitExceeded(t *testing.T) {
	m := &Machine{Limits: Limits{MaxOperations: 3}}
	_, err := m.Run(`let x = 0; while true { x = x + 1 }`)
	if err == nil {
		t.Fatal("expected operation limit error")
	}
}

func TestStackDepthLimit(t *testing.T) {
	m := &Machine{
		Limits: Limits{MaxStackDepth: 1},
		Call: func(name string, args []codec.Dynamic) (codec.Dynamic, error) {
			return codec.Int(1), nil
		},
	}
	if _, err := m.Run(`f(g())`); err == nil {
		t.Fatal("expected stack depth error")
	}
}

func TestStringLengthLimit(t *testing.T) {
	m := &Machine{Limits: Limits{MaxStringLength: 3}}
	if _, err := m.Run(`"abcd"`); err == nil {
		t.Fatal("expected string length error")
	}
}

func TestDeadlineExceeded(t *testing.T) {
	m := &Machine{Limits: Limits{Deadline: time.Now().Add(-time.Second)}}
	if _, err := m.Run(`1 + 1`); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestSandboxDisablesFileIO(t *testing.T) {
	m := &Machine{Sandbox: Sandbox{DisableFileIO: true}}
	_, err := m.Run(`open_file("x")`)
	if err == nil {
		t.Fatal("expected sandbox violation")
	}
}

func TestAnalyzeCatchesSyntaxErrorWithoutExecuting(t *testing.T) {
	if err := Analyze(`let x = `); err == nil {
		t.Fatal("expected syntax error")
	}
	if err := Analyze(`let x = 1 + 2`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDivisionByZero(t *testing.T) {
	m := &Machine{}
	if _, err := m.Run(`1 / 0`); err == nil {
		t.Fatal("expected division by zero error")
	}
}
