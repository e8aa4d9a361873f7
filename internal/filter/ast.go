// Package filter defines the SCIM filter expression tree and its parser.
// The planner in internal/plan consumes the tree; this package knows
// nothing about the store.
package filter

// Operator is a SCIM comparison operator.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpCo Operator = "co"
	OpSw Operator = "sw"
	OpGt Operator = "gt"
	OpGe Operator = "ge"
	OpLt Operator = "lt"
	OpLe Operator = "le"
	// OpPr is the unary "present" operator; Compare.Value is nil.
	OpPr Operator = "pr"
)

// Expression is a node of a boolean filter tree.
type Expression interface {
	isExpression()
}

// And is the conjunction of its operands.
type And struct {
	Operands []Expression
}

// Or is the disjunction of its operands.
type Or struct {
	Operands []Expression
}

// Not negates its operand.
type Not struct {
	Operand Expression
}

// Compare is a leaf: attribute path, operator, literal.
// Value is a string, float64, or bool; nil for OpPr.
type Compare struct {
	Path  string
	Op    Operator
	Value any
}

func (And) isExpression()     {}
func (Or) isExpression()      {}
func (Not) isExpression()     {}
func (Compare) isExpression() {}
