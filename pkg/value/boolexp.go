package value

import "fmt"

// BoolExp is a node of a boolean-expression tree. Leaves are literal,
// variable or external operands; internal nodes are nested expressions
// carried as Operation values. Evaluation always yields a bool.
type BoolExp struct {
	Left     Value  `cbor:"1,keyasint"`
	Right    Value  `cbor:"2,keyasint"`
	Operator string `cbor:"3,keyasint"`
}

// NewBoolExp builds a node from two operand tokens. Operands are wrapped as
// values and resolved lazily at evaluation time.
func NewBoolExp(left, right, operator string) *BoolExp {
	return &BoolExp{Left: New(left), Right: New(right), Operator: operator}
}

// Combine joins two expressions under an operator.
func Combine(left, right *BoolExp, operator string) *BoolExp {
	return &BoolExp{Left: NewOperation(left), Right: NewOperation(right), Operator: operator}
}

// Equal compares two trees structurally.
func (e *BoolExp) Equal(other *BoolExp) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Operator == other.Operator && e.Left.Equal(other.Left) && e.Right.Equal(other.Right)
}

// Depth returns the height of the tree; a single comparison has depth 1.
func (e *BoolExp) Depth() int {
	if e == nil {
		return 0
	}
	l, r := 0, 0
	if e.Left.Kind == Operation {
		l = e.Left.Expr.Depth()
	}
	if e.Right.Kind == Operation {
		r = e.Right.Expr.Depth()
	}
	return 1 + max(l, r)
}

func (e *BoolExp) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("(%s %s %s)", operandString(e.Left), e.Operator, operandString(e.Right))
}

func operandString(v Value) string {
	if v.Kind == Operation {
		return v.Expr.String()
	}
	return v.String()
}
