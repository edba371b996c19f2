// Package value defines the tagged datum shared by the STCR compiler and VM.
// A Value is either a static literal, a variable reference, an external-call
// reference, an array of strings, or a boolean-operation node.
package value

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Sigils recognised at the start of a token.
const (
	VariableSigil = '$'
	ExternalSigil = '@'
	KeywordSigil  = '&'
	StringQuote   = '"'

	// Null is the literal that denotes absence.
	Null = "NULL"
)

// Kind identifies what a Value holds.
type Kind int

const (
	// Static is a literal string, number or bool.
	Static Kind = iota
	// Variable is a name beginning with '$', resolved at use time.
	Variable
	// External is a call expression beginning with '@'.
	External
	// Array is an ordered sequence of strings used for multi-argument commands.
	Array
	// Operation is a boolean-expression node. It is never a legal standalone value.
	Operation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Static:
		return "Static"
	case Variable:
		return "Variable"
	case External:
		return "External"
	case Array:
		return "Array"
	case Operation:
		return "Operation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is an immutable tagged datum.
//
// Data holds nil (absence), a bool or a string for compiled values. Values
// produced at run time by external functions may carry any Go value.
type Value struct {
	Kind  Kind     `cbor:"1,keyasint"`
	Data  any      `cbor:"2,keyasint"`
	Items []string `cbor:"3,keyasint,omitempty"`
	Expr  *BoolExp `cbor:"4,keyasint,omitempty"`
}

// New wraps a source token. The literal NULL becomes the absence-value, a
// token parseable as a bool becomes a bool, and anything else keeps its
// original representation with its kind chosen by the leading sigil.
func New(token string) Value {
	if token == Null {
		return Value{Kind: Static}
	}
	if b, ok := parseBool(token); ok {
		return Value{Kind: Static, Data: b}
	}
	return Value{Kind: kindOf(token), Data: token}
}

// NewArray wraps several tokens as an Array value.
func NewArray(items []string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{Kind: Array, Items: cp}
}

// NewOperation wraps a boolean expression.
func NewOperation(expr *BoolExp) Value {
	return Value{Kind: Operation, Expr: expr}
}

// Of converts an arbitrary run-time result into a Value. Strings go through
// the same normalisation as source tokens.
func Of(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case *Value:
		if x == nil {
			return Value{Kind: Static}
		}
		return *x
	case nil:
		return Value{Kind: Static}
	case string:
		return New(x)
	case []string:
		return NewArray(x)
	case *BoolExp:
		return NewOperation(x)
	default:
		return Value{Kind: Static, Data: x}
	}
}

// Datum wraps a run-time result as a Static value. Strings are normalised
// like source literals but are never reinterpreted as references, so a
// stored "$name" stays a plain string.
func Datum(v any) Value {
	if s, ok := v.(string); ok {
		d := New(s)
		d.Kind = Static
		return d
	}
	return Of(v)
}

// IsNull reports whether the value is the absence-value.
func (v Value) IsNull() bool {
	return v.Kind == Static && v.Data == nil
}

// Raw returns the underlying datum: nil, a bool, a string, a []string for
// arrays, or the *BoolExp for operations.
func (v Value) Raw() any {
	switch v.Kind {
	case Array:
		return v.Items
	case Operation:
		return v.Expr
	default:
		return v.Data
	}
}

// String stringifies the underlying datum. The absence-value renders as NULL.
func (v Value) String() string {
	switch v.Kind {
	case Array:
		return strings.Join(v.Items, " ")
	case Operation:
		if v.Expr == nil {
			return ""
		}
		return v.Expr.String()
	default:
		return Format(v.Data)
	}
}

// Equal compares underlying data structurally; node identity is irrelevant.
func (v Value) Equal(other Value) bool {
	if v.Kind == Array || other.Kind == Array {
		if v.Kind != other.Kind || len(v.Items) != len(other.Items) {
			return false
		}
		for i := range v.Items {
			if v.Items[i] != other.Items[i] {
				return false
			}
		}
		return true
	}
	if v.Kind == Operation || other.Kind == Operation {
		return v.Kind == other.Kind && v.Expr.Equal(other.Expr)
	}
	return Equal(v.Data, other.Data)
}

// Equal compares two run-time data structurally.
func Equal(a, b any) bool {
	if va, ok := a.(Value); ok {
		a = va.Raw()
	}
	if vb, ok := b.(Value); ok {
		b = vb.Raw()
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case []string:
		y, ok := b.([]string)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case *BoolExp:
		y, ok := b.(*BoolExp)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

// Format stringifies a run-time datum the way command arguments see it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case Value:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Unquote strips one pair of surrounding double quotes.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == StringQuote && s[len(s)-1] == StringQuote {
		return s[1 : len(s)-1]
	}
	return s
}

// IsVariable reports whether the token names a variable.
func IsVariable(s string) bool { return len(s) > 0 && s[0] == VariableSigil }

// IsExternal reports whether the token is an external-call reference.
func IsExternal(s string) bool { return len(s) > 0 && s[0] == ExternalSigil }

// IsKeyword reports whether the token is an event-only keyword.
func IsKeyword(s string) bool { return len(s) > 0 && s[0] == KeywordSigil }

// IsQuoted reports whether the token is a quoted literal.
func IsQuoted(s string) bool { return len(s) > 0 && s[0] == StringQuote }

func kindOf(token string) Kind {
	switch {
	case IsVariable(token):
		return Variable
	case IsExternal(token):
		return External
	default:
		return Static
	}
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// ParseBool coerces a run-time datum to bool. Only bools and the strings
// true/false (any case) are accepted.
func ParseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		return parseBool(x)
	case Value:
		return ParseBool(x.Raw())
	}
	return false, false
}
