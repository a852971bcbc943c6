package ast

// -----------------------------------------------------------------------------
// Emission statements
// -----------------------------------------------------------------------------

// TextStmt represents a run of literal template text.
type TextStmt struct {
	BaseStmt
	Text string
}

// OutputStmt represents {{ expression }}.
type OutputStmt struct {
	BaseStmt
	Expr Expr

	// RawSafe is set by the filter-inlining pass when the expression is
	// statically known to produce already-safe output, letting the
	// compiler skip the autoescape check.
	RawSafe bool
}

// RawStmt represents a {% raw %} ... {% endraw %} region.
// The content is emitted verbatim, including any delimiter sequences.
type RawStmt struct {
	BaseStmt
	Text string
}

// -----------------------------------------------------------------------------
// Control statements
// -----------------------------------------------------------------------------

// IfStmt represents an if/elif/else chain. An elif is parsed as an
// IfStmt in the Else slot. unless is sugar: the parser emits an IfStmt
// with a negated condition, there is no separate node kind.
type IfStmt struct {
	BaseStmt
	Cond Expr
	Then []Stmt
	Else []Stmt // nil if no else; a single nested IfStmt for elif chains
}

// ForStmt represents a for loop.
//
//	{% for x in items %} ... {% end %}
//	{% for k, v in mapping %} ... {% end %}
//	{% for x in items if x.visible %} ... {% empty %} ... {% end %}
//	{% for n in tree recursive %} ... {% end %}
//
// Filter holds the inline predicate; it is attached here rather than
// desugared into a nested if so the empty clause can see how many
// elements survived filtering.
type ForStmt struct {
	BaseStmt
	Var       string
	KeyVar    string // second loop variable, "" if absent
	Iter      Expr
	Filter    Expr   // inline if predicate, nil if absent
	Body      []Stmt
	Empty     []Stmt // empty clause, nil if absent
	Recursive bool
}

// MatchStmt represents a match statement over a subject expression.
//
//	{% match status %}{% case "draft" %}...{% case "live", "new" %}...{% else %}...{% end %}
type MatchStmt struct {
	BaseStmt
	Subject Expr
	Cases   []MatchCase
	Else    []Stmt // nil if absent
}

// MatchCase is one case arm of a MatchStmt. A value list matches when
// any value equals the subject.
type MatchCase struct {
	Values []Expr
	Body   []Stmt
}

// BreakStmt exits the innermost enclosing loop.
type BreakStmt struct {
	BaseStmt
}

// ContinueStmt advances the innermost enclosing loop.
type ContinueStmt struct {
	BaseStmt
}

// -----------------------------------------------------------------------------
// Composition statements
// -----------------------------------------------------------------------------

// BlockStmt represents a named, overridable block.
type BlockStmt struct {
	BaseStmt
	Name string
	Body []Stmt
}

// ExtendsStmt declares the parent template for inheritance.
type ExtendsStmt struct {
	BaseStmt
	Name Expr // parent template name, usually a StrLit
}

// IncludeStmt renders another template in place.
type IncludeStmt struct {
	BaseStmt
	Name Expr // template name expression
}

// EmbedStmt renders another template with a transient override of its
// named blocks, scoped to that single render.
type EmbedStmt struct {
	BaseStmt
	Name      Expr
	Overrides []*BlockStmt
}

// -----------------------------------------------------------------------------
// Other statements
// -----------------------------------------------------------------------------

// SetStmt assigns a value in the current render scope.
// Example: {% set total = items | length %}
type SetStmt struct {
	BaseStmt
	Name  string
	Value Expr
}

// MacroStmt defines a reusable render fragment callable as a function.
// Example: {% macro badge(label, kind) %} ... {% end %}
type MacroStmt struct {
	BaseStmt
	Name     string
	Params   []string
	Defaults []Expr // parallel to Params; nil entries mean required
	Body     []Stmt
}

// SpacelessStmt removes whitespace between adjacent tags in its body.
// Textual whitespace inside element content is untouched.
type SpacelessStmt struct {
	BaseStmt
	Body []Stmt
}

// -----------------------------------------------------------------------------
// Compile-time checks
// -----------------------------------------------------------------------------

var (
	_ Stmt = (*TextStmt)(nil)
	_ Stmt = (*OutputStmt)(nil)
	_ Stmt = (*RawStmt)(nil)
	_ Stmt = (*IfStmt)(nil)
	_ Stmt = (*ForStmt)(nil)
	_ Stmt = (*MatchStmt)(nil)
	_ Stmt = (*BreakStmt)(nil)
	_ Stmt = (*ContinueStmt)(nil)
	_ Stmt = (*BlockStmt)(nil)
	_ Stmt = (*ExtendsStmt)(nil)
	_ Stmt = (*IncludeStmt)(nil)
	_ Stmt = (*EmbedStmt)(nil)
	_ Stmt = (*SetStmt)(nil)
	_ Stmt = (*MacroStmt)(nil)
	_ Stmt = (*SpacelessStmt)(nil)
)
