package script

import "strconv"

func parseIntLit(t Token) (Expr, error) {
	v, err := strconv.ParseInt(t.Text, 10, 64)
	if err != nil {
		return nil, &SyntaxError{Line: t.Line, Detail: "invalid integer literal " + t.Text}
	}
	return &IntLit{Value: v}, nil
}

func parseFloatLit(t Token) (Expr, error) {
	v, err := strconv.ParseFloat(t.Text, 64)
	if err != nil {
		return nil, &SyntaxError{Line: t.Line, Detail: "invalid float literal " + t.Text}
	}
	return &FloatLit{Value: v}, nil
}
