// Package boolexp parses the condition of an if/elseif line into a tree of
// binary boolean operations.
//
// Two forms are accepted. A flat triple "operand operator operand" such as
// "$x is 1", and a parenthesized form in which groups are combined by the
// operator written between them:
//
//	($x is 1) or ($y is 2)
//	(is($x,1)) or (is($y,2))
//
// The call form op(a,b) is a group with a leading operator and a top-level
// comma. Operators are not checked here; an unknown operator fails when the
// expression is evaluated.
package boolexp

import (
	"fmt"
	"strings"

	"github.com/zurustar/stcr/pkg/value"
)

// ParseError reports a malformed boolean expression.
type ParseError struct {
	Input   string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid boolean expression %q at offset %d: %s", e.Input, e.Pos, e.Message)
}

// Parse builds a BoolExp from a trimmed condition string.
func Parse(s string) (*value.BoolExp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ParseError{Input: s, Message: "empty condition"}
	}

	if fields := value.Fields(s); isTriple(fields) {
		return value.NewBoolExp(fields[0], fields[2], fields[1]), nil
	}
	if !strings.ContainsAny(s, "()") {
		return nil, &ParseError{
			Input:   s,
			Message: fmt.Sprintf("expected 'operand operator operand', got %d tokens", len(value.Fields(s))),
		}
	}
	return parseGroups(s)
}

// isTriple reports whether the fields form "a op b" with a bare operator and
// no grouped operands.
func isTriple(fields []string) bool {
	if len(fields) != 3 {
		return false
	}
	if strings.ContainsAny(fields[1], "()\"") {
		return false
	}
	return plainOperand(fields[0]) && plainOperand(fields[2])
}

// plainOperand reports whether a token can stand alone as an operand.
// Parentheses are only allowed inside external calls and quoted literals.
func plainOperand(tok string) bool {
	if value.IsExternal(tok) || value.IsQuoted(tok) {
		return true
	}
	return !strings.ContainsAny(tok, "()")
}

func parseGroups(s string) (*value.BoolExp, error) {
	var (
		acc *value.BoolExp
		op  string
		pos int
	)

	for pos < len(s) {
		if s[pos] == ' ' || s[pos] == '\t' {
			pos++
			continue
		}

		if s[pos] != '(' {
			open := value.IndexOpen(s, pos)
			if open < 0 {
				return nil, &ParseError{Input: s, Pos: pos, Message: fmt.Sprintf("expected '(' after %q", strings.TrimSpace(s[pos:]))}
			}
			if i := strings.IndexByte(s[pos:open], ')'); i >= 0 {
				return nil, &ParseError{Input: s, Pos: pos + i, Message: "unmatched ')'"}
			}
			op = strings.TrimSpace(s[pos:open])
			pos = open
			continue
		}

		end := value.MatchParen(s, pos)
		if end < 0 {
			return nil, &ParseError{Input: s, Pos: pos, Message: "unmatched '('"}
		}
		inside := s[pos+1 : end]

		var (
			expr *value.BoolExp
			err  error
		)
		if op != "" && acc == nil && value.HasTopLevel(inside, ',') {
			expr, err = parseCall(op, inside)
			op = ""
		} else {
			expr, err = Parse(inside)
		}
		if err != nil {
			return nil, wrap(s, pos+1, err)
		}

		switch {
		case acc == nil && op != "":
			return nil, &ParseError{Input: s, Pos: pos, Message: fmt.Sprintf("operator %q has no left operand", op)}
		case acc == nil:
			acc = expr
		case op == "":
			return nil, &ParseError{Input: s, Pos: pos, Message: "missing operator between groups"}
		default:
			acc = value.Combine(acc, expr, op)
		}
		op = ""
		pos = end + 1
	}

	if acc == nil {
		return nil, &ParseError{Input: s, Message: "no expression"}
	}
	return acc, nil
}

// parseCall builds op(a,b).
func parseCall(op, inside string) (*value.BoolExp, error) {
	args := value.Split(inside, ',')
	if len(args) != 2 {
		return nil, &ParseError{Input: inside, Message: fmt.Sprintf("%s expects 2 operands, got %d", op, len(args))}
	}

	operands := make([]value.Value, 2)
	for i, arg := range args {
		v, err := operand(arg)
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}
	return &value.BoolExp{Left: operands[0], Right: operands[1], Operator: op}, nil
}

// operand wraps one call argument. Nested groups and nested op(...) calls
// become operations; anything else is a plain value.
func operand(arg string) (value.Value, error) {
	if arg == "" {
		return value.Value{}, &ParseError{Input: arg, Message: "empty operand"}
	}
	nested := strings.HasPrefix(arg, "(") ||
		(!value.IsExternal(arg) && !value.IsQuoted(arg) && value.IndexOpen(arg, 0) > 0)
	if !nested {
		return value.New(arg), nil
	}
	expr, err := Parse(arg)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewOperation(expr), nil
}

// wrap rebases a nested error onto the outer input.
func wrap(s string, offset int, err error) error {
	if pe, ok := err.(*ParseError); ok {
		return &ParseError{Input: s, Pos: offset + max(pe.Pos, 0), Message: pe.Message}
	}
	return err
}
