package ast

import "github.com/lbliii/kida/internal/token"

// -----------------------------------------------------------------------------
// Literals
// -----------------------------------------------------------------------------

// StrLit represents a string literal.
// Examples: "hello", 'world'
type StrLit struct {
	BaseExpr
	Value string // Unescaped string value
}

// NumLit represents a numeric literal. Integers and floats are kept
// apart so that integer arithmetic and range bounds stay exact.
// Examples: 42, 3.14, 1e10
type NumLit struct {
	BaseExpr
	IsInt bool
	Int   int64
	Float float64
	Raw   string // Original source text
}

// BoolLit represents true or false.
type BoolLit struct {
	BaseExpr
	Value bool
}

// NoneLit represents the none literal.
type NoneLit struct {
	BaseExpr
}

// ListLit represents a list literal.
// Example: [1, "two", x]
type ListLit struct {
	BaseExpr
	Elems []Expr
}

// MapLit represents a map literal with ordered entries.
// Example: {"a": 1, "b": 2}
type MapLit struct {
	BaseExpr
	Keys   []Expr
	Values []Expr
}

// RangeLit represents a range literal with inclusive (..) or exclusive
// (...) end, plus an optional step.
// Examples: 1..5, 1...n, 0..10 step 2
type RangeLit struct {
	BaseExpr
	Start     Expr
	Stop      Expr
	Step      Expr // nil means step 1
	Exclusive bool // true for a...b
}

// -----------------------------------------------------------------------------
// References
// -----------------------------------------------------------------------------

// Ident represents a variable reference.
// Examples: page, loop, site
type Ident struct {
	BaseExpr
	Name string
}

// AttrExpr represents attribute access, plain or optional.
// Examples: page.title, user?.profile
type AttrExpr struct {
	BaseExpr
	Target   Expr
	Name     string
	Optional bool // true for ?.
}

// IndexExpr represents subscript access, plain or optional.
// Examples: items[0], data?["key"]
type IndexExpr struct {
	BaseExpr
	Target   Expr
	Index    Expr
	Optional bool // true for ?[
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// BinaryExpr represents a binary operation.
// Examples: a + b, x == y, n and m, s ~ t, v in items
type BinaryExpr struct {
	BaseExpr
	Left  Expr
	Op    token.Token
	Right Expr
}

// UnaryExpr represents a unary operation.
// Examples: -x, not flag
type UnaryExpr struct {
	BaseExpr
	Op   token.Token // SUB or NOT
	Expr Expr
}

// CoalesceExpr represents null-coalescing.
// Example: x ?? "fallback"
// Only a missing or none left side selects the right side; falsy values
// (0, "", false, empty collections) are preserved.
type CoalesceExpr struct {
	BaseExpr
	Left  Expr
	Right Expr
}

// TernaryExpr represents a conditional expression.
// Example: cond ? a : b
type TernaryExpr struct {
	BaseExpr
	Cond Expr
	Then Expr
	Else Expr
}

// GroupExpr represents a parenthesized expression.
type GroupExpr struct {
	BaseExpr
	Expr Expr
}

// -----------------------------------------------------------------------------
// Calls
// -----------------------------------------------------------------------------

// CallExpr represents a call of a function, macro or callable value.
// Example: range(1, 10), header(title="x")
type CallExpr struct {
	BaseExpr
	Callee Expr
	Args   []Expr
}

// FilterExpr represents a filter application via pipe syntax.
// Examples: name | upper, items | join(", ")
type FilterExpr struct {
	BaseExpr
	Value Expr
	Name  string
	Args  []Expr

	// Inlined is set by the filter-inlining pass when the call is known
	// to resolve to the builtin implementation, letting the compiler
	// apply it directly instead of going through the registry.
	Inlined bool
}

// -----------------------------------------------------------------------------
// Compile-time checks
// -----------------------------------------------------------------------------

var (
	_ Expr = (*StrLit)(nil)
	_ Expr = (*NumLit)(nil)
	_ Expr = (*BoolLit)(nil)
	_ Expr = (*NoneLit)(nil)
	_ Expr = (*ListLit)(nil)
	_ Expr = (*MapLit)(nil)
	_ Expr = (*RangeLit)(nil)
	_ Expr = (*Ident)(nil)
	_ Expr = (*AttrExpr)(nil)
	_ Expr = (*IndexExpr)(nil)
	_ Expr = (*BinaryExpr)(nil)
	_ Expr = (*UnaryExpr)(nil)
	_ Expr = (*CoalesceExpr)(nil)
	_ Expr = (*TernaryExpr)(nil)
	_ Expr = (*GroupExpr)(nil)
	_ Expr = (*CallExpr)(nil)
	_ Expr = (*FilterExpr)(nil)
)

// IsLiteral reports whether the expression is a scalar literal whose
// value is known at compile time. Used by the constant folding and
// dead-code passes.
func IsLiteral(e Expr) bool {
	switch e.(type) {
	case *StrLit, *NumLit, *BoolLit, *NoneLit:
		return true
	default:
		return false
	}
}
