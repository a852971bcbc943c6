// Package ast defines the abstract syntax tree for Kida templates.
//
// The AST is a closed set of node variants behind sealed interfaces:
// optimizer and compiler traversal is exhaustive type switching, so a
// new variant surfaces as a missed case at review time rather than a
// silent runtime fallthrough.
//
// Node hierarchy:
//
//	Node (interface)
//	├── Expr (interface) - expressions that produce values
//	│   ├── StrLit, NumLit, BoolLit, NoneLit, ListLit, MapLit, RangeLit
//	│   ├── Ident, AttrExpr, IndexExpr - references
//	│   ├── BinaryExpr, UnaryExpr, TernaryExpr, CoalesceExpr - operations
//	│   └── CallExpr, FilterExpr, GroupExpr - calls and grouping
//	└── Stmt (interface) - statements that render output or control flow
//	    ├── TextStmt, OutputStmt, RawStmt - emission
//	    ├── IfStmt, ForStmt, MatchStmt - control
//	    ├── BlockStmt, ExtendsStmt, IncludeStmt, EmbedStmt - composition
//	    └── SetStmt, MacroStmt, BreakStmt, ContinueStmt, SpacelessStmt
//
// Nodes are never mutated after construction. Optimizer passes build new
// nodes when a rewrite applies and return the original (same pointer)
// otherwise; untouched subtrees are shared between old and new trees.
package ast

import "github.com/lbliii/kida/internal/token"

// Node is the interface implemented by all AST nodes.
type Node interface {
	// Pos returns the position of the first character belonging to this node.
	Pos() token.Position

	// End returns the position of the first character immediately after this node.
	End() token.Position
}

// Expr is the interface for all expression nodes.
type Expr interface {
	Node
	exprNode() // marker method to prevent external implementations
}

// Stmt is the interface for all statement nodes.
type Stmt interface {
	Node
	stmtNode() // marker method to prevent external implementations
}

// BaseExpr provides common fields for all expression nodes.
// Embedded in concrete expression types for position tracking.
type BaseExpr struct {
	StartPos token.Position // Position of first token
	EndPos   token.Position // Position after last token
}

func (b *BaseExpr) Pos() token.Position { return b.StartPos }
func (b *BaseExpr) End() token.Position { return b.EndPos }
func (b *BaseExpr) exprNode()           {}

// BaseStmt provides common fields for all statement nodes.
type BaseStmt struct {
	StartPos token.Position
	EndPos   token.Position
}

func (b *BaseStmt) Pos() token.Position { return b.StartPos }
func (b *BaseStmt) End() token.Position { return b.EndPos }
func (b *BaseStmt) stmtNode()           {}

// MakeBaseExpr creates a BaseExpr with the given positions.
func MakeBaseExpr(start, end token.Position) BaseExpr {
	return BaseExpr{StartPos: start, EndPos: end}
}

// MakeBaseStmt creates a BaseStmt with the given positions.
func MakeBaseStmt(start, end token.Position) BaseStmt {
	return BaseStmt{StartPos: start, EndPos: end}
}

// Template is the root of a parsed template.
type Template struct {
	Name  string
	Nodes []Stmt

	// Extends is set when the template opens with an extends statement.
	// The remaining top-level nodes are then restricted to blocks, sets
	// and whitespace text.
	Extends *ExtendsStmt
}
