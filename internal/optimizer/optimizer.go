// Package optimizer rewrites parsed templates before compilation.
//
// Each pass is an AST to AST transformation that preserves render
// semantics exactly. Passes that cannot analyze a node leave it alone
// and count the skip, so a pass that understands nothing is visible in
// the stats instead of silently doing no work.
package optimizer

import "github.com/lbliii/kida/internal/ast"

// Options selects which passes run. The zero value disables
// everything; use DefaultOptions for the standard pipeline.
type Options struct {
	Fold     bool
	DeadCode bool
	Inline   bool
	Coalesce bool
	SizeHint bool

	// InlineNames is the filter allow-list for the inline pass, already
	// reduced by the caller to names not overridden in its registry. A
	// nil map disables inlining regardless of Inline.
	InlineNames map[string]struct{}
}

// DefaultOptions enables every pass with the stock inlining allow-list.
func DefaultOptions() Options {
	return Options{
		Fold:        true,
		DeadCode:    true,
		Inline:      true,
		Coalesce:    true,
		SizeHint:    true,
		InlineNames: defaultInlineNames(),
	}
}

func defaultInlineNames() map[string]struct{} {
	return map[string]struct{}{
		"upper":      {},
		"lower":      {},
		"title":      {},
		"capitalize": {},
		"trim":       {},
		"safe":       {},
	}
}

// PassStats records what one pass did.
type PassStats struct {
	// Changes counts rewrites the pass performed.
	Changes int
	// Skips counts nodes the pass saw but could not analyze.
	Skips int
}

// Result is the optimized template plus per-pass accounting.
type Result struct {
	Template *ast.Template
	Stats    map[string]PassStats

	// SizeHint estimates the rendered output size in bytes. When
	// SizeExact is false the hint is a lower bound: some loop iterates
	// an input of unknown length.
	SizeHint  int
	SizeExact bool
}

// Optimize runs the enabled passes in a fixed order. Rewrites build
// new nodes; untouched subtrees are shared with the input, and a pass
// that changes nothing returns the input slice unchanged.
func Optimize(tmpl *ast.Template, opts Options) *Result {
	res := &Result{
		Template:  tmpl,
		Stats:     make(map[string]PassStats),
		SizeExact: true,
	}

	if opts.Fold {
		p := &foldPass{}
		tmpl.Nodes = p.stmts(tmpl.Nodes)
		res.Stats["fold"] = p.stats
	}
	if opts.DeadCode {
		p := &deadcodePass{}
		tmpl.Nodes = p.stmts(tmpl.Nodes)
		res.Stats["deadcode"] = p.stats
	}
	if opts.Inline && opts.InlineNames != nil {
		p := &inlinePass{allow: opts.InlineNames}
		tmpl.Nodes = p.stmts(tmpl.Nodes)
		res.Stats["inline"] = p.stats
	}
	if opts.Coalesce {
		p := &coalescePass{}
		tmpl.Nodes = p.stmts(tmpl.Nodes)
		res.Stats["coalesce"] = p.stats
	}
	if opts.SizeHint {
		p := &sizehintPass{exact: true}
		hint := p.stmts(tmpl.Nodes)
		res.Stats["sizehint"] = p.stats
		res.SizeHint = hint
		res.SizeExact = p.exact
	}

	return res
}
