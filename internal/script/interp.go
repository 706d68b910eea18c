package script

import (
	"time"

	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
)

// HostCall resolves a function call that is not one of the language's
// builtins to a host-registered callback, returning the Dynamic it
// produced. The dispatcher behind this function pointer is responsible for
// flagging diag.MarkAsyncDetected when it observes a pending-status
// response on the synchronous path; the interpreter just forwards the
// result.
type HostCall func(name string, args []codec.Dynamic) (codec.Dynamic, error)

// Sandbox toggles the operations a running script is permitted to reach
// for. None of these are implemented (there is no real filesystem or module
// loader behind this language), but the flags are still honored: disabled
// operations fail with a sandbox-violation RuntimeError rather than a
// generic "unknown function" one, and builtins the script never needed are
// never wired regardless of the flag.
type Sandbox struct {
	DisableFileIO  bool
	DisableEval    bool
	DisableModules bool
}

// Limits bounds the resources a single evaluation may consume. A zero
// value in any field other than Deadline means "unlimited".
type Limits struct {
	MaxOperations   int64
	MaxStackDepth   int
	MaxStringLength int
	Deadline        time.Time
}

// Machine executes a parsed Program against a set of Limits, a Sandbox, and
// a HostCall hook, and is the single source of truth for the operation
// counter an engine accumulates into engine_stats.
type Machine struct {
	Limits  Limits
	Sandbox Sandbox
	Call    HostCall

	// Globals seeds the top-level scope for RunProgram: the engine's
	// default scope accumulated across set_var/set_constant calls.
	Globals map[string]codec.Dynamic
	// Consts names the subset of Globals that set_constant bound; an
	// assignment to one of these names fails rather than silently
	// mutating it.
	Consts map[string]bool

	ops   int64
	depth int
}

// Result carries an evaluation's value plus the operation count spent
// producing it. A run that fails during execution still reports the
// operations it spent, with a zero Value.
type Result struct {
	Value codec.Dynamic
	Ops   int64
}

// Run parses and executes src, accumulating operations and call depth
// against m's Limits.
func (m *Machine) Run(src string) (Result, error) {
	prog, err := Parse(src)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			return Result{}, diag.Syntax("%s", se.Error())
		}
		return Result{}, diag.Syntax("%s", err.Error())
	}
	return m.RunProgram(prog)
}

// RunProgram executes an already-parsed Program against m's Globals (the
// engine's persistent default scope set by set_var/set_constant).
func (m *Machine) RunProgram(prog *Program) (Result, error) {
	env := newEnv(nil)
	for name, v := range m.Globals {
		env.define(name, v)
	}
	v, _, err := m.execBlock(prog.Stmts, env)
	if err != nil {
		return Result{Ops: m.ops}, err
	}
	return Result{Value: v, Ops: m.ops}, nil
}

// Analyze parses src without executing it, surfacing only syntax errors.
// This is the engine's analyze operation: a dry run that exercises the
// lexer and parser so a host can validate a script before committing to an
// evaluation budget.
func Analyze(src string) error {
	_, err := Parse(src)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			return diag.Syntax("%s", se.Error())
		}
		return diag.Syntax("%s", err.Error())
	}
	return nil
}

type flowKind int

const (
	flowNone flowKind = iota
	flowBreak
	flowContinue
)

type env struct {
	parent *env
	vars   map[string]codec.Dynamic
}

func newEnv(parent *env) *env {
	return &env{parent: parent, vars: make(map[string]codec.Dynamic)}
}

func (e *env) define(name string, v codec.Dynamic) { e.vars[name] = v }

func (e *env) get(name string) (codec.Dynamic, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return codec.Dynamic{}, false
}

func (e *env) assign(name string, v codec.Dynamic) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return true
		}
	}
	return false
}

func (m *Machine) tick(line int) error {
	m.ops++
	if m.Limits.MaxOperations > 0 && m.ops > m.Limits.MaxOperations {
		return diag.Runtime("operation limit of %d exceeded at line %d", m.Limits.MaxOperations, line)
	}
	if !m.Limits.Deadline.IsZero() && time.Now().After(m.Limits.Deadline) {
		return diag.Runtime("evaluation timed out at line %d", line)
	}
	return nil
}

// execBlock runs stmts in a child scope of parent, returning the value of
// the last statement executed (Null for let, assignment and loops, or for an
// empty block), any loop-control signal that
// should propagate to an enclosing loop, and an error.
func (m *Machine) execBlock(stmts []Stmt, parent *env) (codec.Dynamic, flowKind, error) {
	scope := newEnv(parent)
	result := codec.Null()
	for _, s := range stmts {
		v, flow, err := m.execStmt(s, scope)
		if err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		if flow != flowNone {
			return result, flow, nil
		}
		result = v
	}
	return result, flowNone, nil
}

func (m *Machine) execStmt(s Stmt, scope *env) (codec.Dynamic, flowKind, error) {
	switch st := s.(type) {
	case *LetStmt:
		if err := m.tick(st.Line); err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		v, err := m.eval(st.Value, scope)
		if err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		scope.define(st.Name, v)
		return codec.Null(), flowNone, nil
	case *AssignStmt:
		if err := m.tick(st.Line); err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		if m.Consts[st.Name] {
			return codec.Dynamic{}, flowNone, diag.Runtime("cannot assign to constant %q at line %d", st.Name, st.Line)
		}
		v, err := m.eval(st.Value, scope)
		if err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		if !scope.assign(st.Name, v) {
			return codec.Dynamic{}, flowNone, diag.Runtime("assignment to undeclared variable %q at line %d", st.Name, st.Line)
		}
		return codec.Null(), flowNone, nil
	case *ExprStmt:
		v, err := m.eval(st.Expr, scope)
		if err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		return v, flowNone, nil
	case *IfStmt:
		if err := m.tick(0); err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		cond, err := m.eval(st.Cond, scope)
		if err != nil {
			return codec.Dynamic{}, flowNone, err
		}
		if truthy(cond) {
			return m.execBlock(st.Then, scope)
		}
		if st.Else != nil {
			return m.execBlock(st.Else, scope)
		}
		return codec.Null(), flowNone, nil
	case *WhileStmt:
		for {
			if err := m.tick(0); err != nil {
				return codec.Dynamic{}, flowNone, err
			}
			cond, err := m.eval(st.Cond, scope)
			if err != nil {
				return codec.Dynamic{}, flowNone, err
			}
			if !truthy(cond) {
				return codec.Null(), flowNone, nil
			}
			_, flow, err := m.execBlock(st.Body, scope)
			if err != nil {
				return codec.Dynamic{}, flowNone, err
			}
			if flow == flowBreak {
				return codec.Null(), flowNone, nil
			}
		}
	case *LoopStmt:
		for {
			if err := m.tick(0); err != nil {
				return codec.Dynamic{}, flowNone, err
			}
			_, flow, err := m.execBlock(st.Body, scope)
			if err != nil {
				return codec.Dynamic{}, flowNone, err
			}
			if flow == flowBreak {
				return codec.Null(), flowNone, nil
			}
		}
	case *BreakStmt:
		return codec.Null(), flowBreak, nil
	case *ContinueStmt:
		return codec.Null(), flowContinue, nil
	default:
		return codec.Dynamic{}, flowNone, diag.Runtime("unhandled statement type %T", s)
	}
}

func truthy(d codec.Dynamic) bool {
	switch d.Kind {
	case codec.KindBool:
		return d.B
	case codec.KindNull:
		return false
	default:
		return true
	}
}
