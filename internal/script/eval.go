package script

import (
	"github.com/oriys/rhaibridge/internal/codec"
	"github.com/oriys/rhaibridge/internal/diag"
)

func (m *Machine) eval(e Expr, scope *env) (codec.Dynamic, error) {
	switch ex := e.(type) {
	case *NullLit:
		return codec.Null(), nil
	case *IntLit:
		return codec.Int(ex.Value), nil
	case *FloatLit:
		return codec.Float(ex.Value), nil
	case *BoolLit:
		return codec.Bool(ex.Value), nil
	case *StringLit:
		if err := m.checkStringLength(len(ex.Value)); err != nil {
			return codec.Dynamic{}, err
		}
		return codec.String(ex.Value), nil
	case *Ident:
		if err := m.tick(ex.Line); err != nil {
			return codec.Dynamic{}, err
		}
		v, ok := scope.get(ex.Name)
		if !ok {
			return codec.Dynamic{}, diag.Runtime("undefined variable %q at line %d", ex.Name, ex.Line)
		}
		return v, nil
	case *ArrayLit:
		return m.evalArrayLit(ex, scope)
	case *ObjectLit:
		return m.evalObjectLit(ex, scope)
	case *UnaryExpr:
		return m.evalUnary(ex, scope)
	case *BinaryExpr:
		return m.evalBinary(ex, scope)
	case *IndexExpr:
		return m.evalIndex(ex, scope)
	case *CallExpr:
		return m.evalCall(ex, scope)
	default:
		return codec.Dynamic{}, diag.Runtime("unhandled expression type %T", e)
	}
}

func (m *Machine) checkStringLength(n int) error {
	if m.Limits.MaxStringLength > 0 && n > m.Limits.MaxStringLength {
		return diag.Runtime("string length %d exceeds limit of %d", n, m.Limits.MaxStringLength)
	}
	return nil
}

func (m *Machine) evalArrayLit(ex *ArrayLit, scope *env) (codec.Dynamic, error) {
	if err := m.tick(0); err != nil {
		return codec.Dynamic{}, err
	}
	items := make([]codec.Dynamic, 0, len(ex.Items))
	for _, item := range ex.Items {
		v, err := m.eval(item, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		items = append(items, v)
	}
	return codec.ArrayOf(items...), nil
}

func (m *Machine) evalObjectLit(ex *ObjectLit, scope *env) (codec.Dynamic, error) {
	if err := m.tick(0); err != nil {
		return codec.Dynamic{}, err
	}
	obj := codec.NewObject()
	for _, entry := range ex.Entries {
		v, err := m.eval(entry.Value, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		obj.Set(entry.Key, v)
	}
	return codec.ObjectOf(obj), nil
}

func (m *Machine) evalUnary(ex *UnaryExpr, scope *env) (codec.Dynamic, error) {
	if err := m.tick(ex.Line); err != nil {
		return codec.Dynamic{}, err
	}
	v, err := m.eval(ex.Operand, scope)
	if err != nil {
		return codec.Dynamic{}, err
	}
	switch ex.Op {
	case "-":
		switch v.Kind {
		case codec.KindInt:
			return codec.Int(-v.I), nil
		case codec.KindFloat:
			return codec.Float(-v.F), nil
		default:
			return codec.Dynamic{}, diag.Runtime("cannot negate a %s at line %d", kindName(v), ex.Line)
		}
	case "!":
		return codec.Bool(!truthy(v)), nil
	default:
		return codec.Dynamic{}, diag.Runtime("unknown unary operator %q", ex.Op)
	}
}

func (m *Machine) evalBinary(ex *BinaryExpr, scope *env) (codec.Dynamic, error) {
	if err := m.tick(ex.Line); err != nil {
		return codec.Dynamic{}, err
	}
	if ex.Op == "&&" {
		left, err := m.eval(ex.Left, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		if !truthy(left) {
			return codec.Bool(false), nil
		}
		right, err := m.eval(ex.Right, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		return codec.Bool(truthy(right)), nil
	}
	if ex.Op == "||" {
		left, err := m.eval(ex.Left, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		if truthy(left) {
			return codec.Bool(true), nil
		}
		right, err := m.eval(ex.Right, scope)
		if err != nil {
			return codec.Dynamic{}, err
		}
		return codec.Bool(truthy(right)), nil
	}

	left, err := m.eval(ex.Left, scope)
	if err != nil {
		return codec.Dynamic{}, err
	}
	right, err := m.eval(ex.Right, scope)
	if err != nil {
		return codec.Dynamic{}, err
	}

	switch ex.Op {
	case "==":
		return codec.Bool(left.Equal(right)), nil
	case "!=":
		return codec.Bool(!left.Equal(right)), nil
	case "+":
		if left.Kind == codec.KindString || right.Kind == codec.KindString {
			s := stringify(left) + stringify(right)
			if err := m.checkStringLength(len(s)); err != nil {
				return codec.Dynamic{}, err
			}
			return codec.String(s), nil
		}
		return m.arith(ex, left, right)
	case "-", "*", "/", "%":
		return m.arith(ex, left, right)
	case "<", ">", "<=", ">=":
		return m.compare(ex, left, right)
	default:
		return codec.Dynamic{}, diag.Runtime("unknown binary operator %q", ex.Op)
	}
}

func (m *Machine) arith(ex *BinaryExpr, left, right codec.Dynamic) (codec.Dynamic, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return codec.Dynamic{}, diag.Runtime("arithmetic on non-numeric operand at line %d", ex.Line)
	}
	if left.Kind == codec.KindInt && right.Kind == codec.KindInt {
		li, ri := left.I, right.I
		switch ex.Op {
		case "+":
			return codec.Int(li + ri), nil
		case "-":
			return codec.Int(li - ri), nil
		case "*":
			return codec.Int(li * ri), nil
		case "/":
			if ri == 0 {
				return codec.Dynamic{}, diag.Runtime("division by zero at line %d", ex.Line)
			}
			return codec.Int(li / ri), nil
		case "%":
			if ri == 0 {
				return codec.Dynamic{}, diag.Runtime("division by zero at line %d", ex.Line)
			}
			return codec.Int(li % ri), nil
		}
	}
	switch ex.Op {
	case "+":
		return codec.Float(lf + rf), nil
	case "-":
		return codec.Float(lf - rf), nil
	case "*":
		return codec.Float(lf * rf), nil
	case "/":
		return codec.Float(lf / rf), nil
	case "%":
		return codec.Dynamic{}, diag.Runtime("'%%' requires integer operands at line %d", ex.Line)
	}
	return codec.Dynamic{}, diag.Runtime("unreachable arithmetic operator %q", ex.Op)
}

func (m *Machine) compare(ex *BinaryExpr, left, right codec.Dynamic) (codec.Dynamic, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return codec.Dynamic{}, diag.Runtime("comparison on non-numeric operand at line %d", ex.Line)
	}
	switch ex.Op {
	case "<":
		return codec.Bool(lf < rf), nil
	case ">":
		return codec.Bool(lf > rf), nil
	case "<=":
		return codec.Bool(lf <= rf), nil
	case ">=":
		return codec.Bool(lf >= rf), nil
	}
	return codec.Dynamic{}, diag.Runtime("unreachable comparison operator %q", ex.Op)
}

func asFloat(d codec.Dynamic) (float64, bool) {
	switch d.Kind {
	case codec.KindInt:
		return float64(d.I), true
	case codec.KindFloat:
		return d.F, true
	default:
		return 0, false
	}
}

func stringify(d codec.Dynamic) string {
	if d.Kind == codec.KindString {
		return d.S
	}
	return d.String()
}

func kindName(d codec.Dynamic) string {
	switch d.Kind {
	case codec.KindNull:
		return "null"
	case codec.KindInt:
		return "int"
	case codec.KindFloat:
		return "float"
	case codec.KindBool:
		return "bool"
	case codec.KindString:
		return "string"
	case codec.KindArray:
		return "array"
	case codec.KindObject:
		return "object"
	default:
		return "unsupported"
	}
}

func (m *Machine) evalIndex(ex *IndexExpr, scope *env) (codec.Dynamic, error) {
	if err := m.tick(ex.Line); err != nil {
		return codec.Dynamic{}, err
	}
	target, err := m.eval(ex.Target, scope)
	if err != nil {
		return codec.Dynamic{}, err
	}
	idx, err := m.eval(ex.Index, scope)
	if err != nil {
		return codec.Dynamic{}, err
	}
	switch target.Kind {
	case codec.KindArray:
		i, ok := asFloat(idx)
		if !ok {
			return codec.Dynamic{}, diag.Runtime("array index must be numeric at line %d", ex.Line)
		}
		n := int(i)
		if n < 0 || n >= len(target.A.Items) {
			return codec.Dynamic{}, diag.Runtime("array index %d out of bounds at line %d", n, ex.Line)
		}
		return target.A.Items[n], nil
	case codec.KindObject:
		key := codec.CoerceKey(idx)
		v, ok := target.O.Get(key)
		if !ok {
			return codec.Dynamic{}, diag.Runtime("object has no property %q at line %d", key, ex.Line)
		}
		return v, nil
	default:
		return codec.Dynamic{}, diag.Runtime("cannot index a %s at line %d", kindName(target), ex.Line)
	}
}
