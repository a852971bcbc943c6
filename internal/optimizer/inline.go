package optimizer

import "github.com/lbliii/kida/internal/ast"

// inlinePass marks allow-listed argument-free filter calls for direct
// application, skipping registry dispatch at render time. The caller
// supplies the allow-list already intersected with the non-overridden
// builtin names: a user override of, say, upper must reach the user's
// implementation, so its name never appears here.
type inlinePass struct {
	allow map[string]struct{}
	stats PassStats
}

func (p *inlinePass) stmts(list []ast.Stmt) []ast.Stmt {
	return spliceStmts(list, p.stmt)
}

func (p *inlinePass) stmt(s ast.Stmt) ([]ast.Stmt, bool) {
	if out, ok := rawSafeOutput(s, p.allow); ok {
		p.stats.Changes++
		value, _ := rewriteExpr(out.Expr, p.expr)
		return []ast.Stmt{&ast.OutputStmt{BaseStmt: out.BaseStmt, Expr: value, RawSafe: true}}, true
	}
	ns, exprChanged := applyToStmtExprs(s, p.expr)
	ns2, bodyChanged := applyToBodies(ns, p.stmts)
	if exprChanged || bodyChanged {
		return []ast.Stmt{ns2}, true
	}
	return nil, false
}

// rawSafeOutput matches an output whose outermost filter is a bare
// safe. Marking already happens here: the filter only tags its value,
// so the output can write the inner expression directly.
func rawSafeOutput(s ast.Stmt, allow map[string]struct{}) (*ast.OutputStmt, bool) {
	out, ok := s.(*ast.OutputStmt)
	if !ok || out.RawSafe {
		return nil, false
	}
	fe, ok := out.Expr.(*ast.FilterExpr)
	if !ok || fe.Name != "safe" || fe.Inlined || len(fe.Args) > 0 {
		return nil, false
	}
	if _, ok := allow["safe"]; !ok {
		return nil, false
	}
	return &ast.OutputStmt{BaseStmt: out.BaseStmt, Expr: fe.Value}, true
}

func (p *inlinePass) expr(e ast.Expr) (ast.Expr, bool) {
	fe, ok := e.(*ast.FilterExpr)
	if !ok || fe.Inlined {
		return nil, false
	}
	if _, ok := p.allow[fe.Name]; !ok {
		return nil, false
	}
	if len(fe.Args) > 0 {
		// An allow-listed name called with arguments is not the pure
		// zero-argument form this pass understands.
		p.stats.Skips++
		return nil, false
	}
	p.stats.Changes++
	return &ast.FilterExpr{
		BaseExpr: fe.BaseExpr,
		Value:    fe.Value,
		Name:     fe.Name,
		Inlined:  true,
	}, true
}
