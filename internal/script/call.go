package script

import (
	"math"
	"strconv"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
)

// sandboxed names never do anything useful in this language (there is no
// real file I/O, nested eval, or module loader behind it); they exist so a
// script that probes for them observes a sandbox violation when the
// corresponding EngineConfig flag is set, and an "unsupported operation"
// RuntimeError otherwise, rather than silently resolving to a host
// callback of the same name.
var sandboxedNames = map[string]func(s Sandbox) bool{
	"open_file":  func(s Sandbox) bool { return s.DisableFileIO },
	"write_file": func(s Sandbox) bool { return s.DisableFileIO },
	"eval":       func(s Sandbox) bool { return s.DisableEval },
	"import":     func(s Sandbox) bool { return s.DisableModules },
}

func (m *Machine) evalCall(ex *CallExpr, scope *env) (codec.Dynamic, error) {
	if err := m.tick(ex.Line); err != nil {
		return codec.Dynamic{}, err
	}
	if disabled, known := sandboxedNames[ex.Name]; known {
		if disabled(m.Sandbox) {
			return codec.Dynamic{}, diag.Runtime("%q is disabled by sandbox configuration at line %d", ex.Name, ex.Line)
		}
		return codec.Dynamic{}, diag.Runtime("%q is not a supported operation at line %d", ex.Name, ex.Line)
	}

	// Depth is tracked around the whole call, including argument evaluation,
	// so that a deeply nested call expression like f(g(h(i(...)))) is
	// bounded the same way real function-call recursion would be.
	m.depth++
	defer func() { m.depth-- }()
	if m.Limits.MaxStackDepth > 0 && m.depth > m.Limits.MaxStackDepth {
		return codec.Dynamic{}, diag.Runtime("call stack depth exceeds %d at line %d", m.Limits.MaxStackDepth, ex.Line)
	}

	args := make([]codec.Dynamic, 0, len(ex.Args))
	for _, a := range ex.Args {
		v, err := m.eval(a, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		args = append(args, v)
	}

	if fn, ok := builtins[ex.Name]; ok {
		return fn(m, ex, args)
	}

	if m.Call == nil {
		return codec.Dynamic{}, diag.Runtime("unknown function %q at line %d", ex.Name, ex.Line)
	}

	v, err := m.Call(ex.Name, args)
	if err != nil {
		if de, ok := diag.AsDiag(err); ok {
			return codec.Dynamic{}, de
		}
		return codec.Dynamic{}, diag.Runtime("%s", err.Error())
	}
	return v, nil
}

type builtinFn func(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error)

var builtins = map[string]builtinFn{
	"len":       builtinLen,
	"type_of":   builtinTypeOf,
	"to_string": builtinToString,
	"to_int":    builtinToInt,
	"to_float":  builtinToFloat,
	"abs":       builtinAbs,
}

func builtinLen(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("len() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	switch args[0].Kind {
	case codec.KindString:
		return codec.Int(int64(len([]rune(args[0].S)))), nil
	case codec.KindArray:
		return codec.Int(int64(len(args[0].A.Items))), nil
	case codec.KindObject:
		return codec.Int(int64(len(args[0].O.Keys))), nil
	default:
		return codec.Dynamic{}, diag.Runtime("len() does not support %s at line %d", kindName(args[0]), ex.Line)
	}
}

func builtinTypeOf(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("type_of() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	return codec.String(kindName(args[0])), nil
}

func builtinToString(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("to_string() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	a := args[0]
	var s string
	switch a.Kind {
	case codec.KindString:
		s = a.S
	case codec.KindInt:
		s = strconv.FormatInt(a.I, 10)
	case codec.KindFloat:
		s = strconv.FormatFloat(a.F, 'g', -1, 64)
	case codec.KindBool:
		s = strconv.FormatBool(a.B)
	case codec.KindNull:
		s = "null"
	default:
		s = a.String()
	}
	if err := m.checkStringLength(len(s)); err != nil {
		return codec.Dynamic{}, err
	}
	return codec.String(s), nil
}

func builtinToInt(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("to_int() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	switch a := args[0]; a.Kind {
	case codec.KindInt:
		return a, nil
	case codec.KindFloat:
		return codec.Int(int64(a.F)), nil
	case codec.KindString:
		v, err := strconv.ParseInt(a.S, 10, 64)
		if err != nil {
			return codec.Dynamic{}, diag.Runtime("cannot convert %q to int at line %d", a.S, ex.Line)
		}
		return codec.Int(v), nil
	case codec.KindBool:
		if a.B {
			return codec.Int(1), nil
		}
		return codec.Int(0), nil
	default:
		return codec.Dynamic{}, diag.Runtime("cannot convert %s to int at line %d", kindName(a), ex.Line)
	}
}

func builtinToFloat(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("to_float() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	switch a := args[0]; a.Kind {
	case codec.KindFloat:
		return a, nil
	case codec.KindInt:
		return codec.Float(float64(a.I)), nil
	case codec.KindString:
		v, err := strconv.ParseFloat(a.S, 64)
		if err != nil {
			return codec.Dynamic{}, diag.Runtime("cannot convert %q to float at line %d", a.S, ex.Line)
		}
		return codec.Float(v), nil
	default:
		return codec.Dynamic{}, diag.Runtime("cannot convert %s to float at line %d", kindName(a), ex.Line)
	}
}

func builtinAbs(m *Machine, ex *CallExpr, args []codec.Dynamic) (codec.Dynamic, error) {
	if len(args) != 1 {
		return codec.Dynamic{}, diag.Runtime("abs() takes 1 argument, got %d at line %d", len(args), ex.Line)
	}
	switch a := args[0]; a.Kind {
	case codec.KindInt:
		if a.I < 0 {
			return codec.Int(-a.I), nil
		}
		return a, nil
	case codec.KindFloat:
		return codec.Float(math.Abs(a.F)), nil
	default:
		return codec.Dynamic{}, diag.Runtime("abs() does not support %s at line %d", kindName(a), ex.Line)
	}
}
