package optimizer

import (
	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/runtime"
)

// deadcodePass removes statements that can never contribute output:
// branches with a literal-false condition, dead bodies of loops over
// empty literal iterables, match statements decided at compile time,
// and empty text runs.
type deadcodePass struct {
	stats PassStats
}

func (p *deadcodePass) stmts(list []ast.Stmt) []ast.Stmt {
	return spliceStmts(list, p.stmt)
}

func (p *deadcodePass) stmt(s ast.Stmt) ([]ast.Stmt, bool) {
	switch st := s.(type) {
	case *ast.TextStmt:
		if st.Text == "" {
			p.stats.Changes++
			return nil, true
		}

	case *ast.IfStmt:
		then := p.stmts(st.Then)
		els := p.stmts(st.Else)
		if v, ok := literalValue(st.Cond); ok {
			p.stats.Changes++
			if runtime.Truth(v) {
				return then, true
			}
			return els, true
		}
		if !sameStmts(then, st.Then) || !sameStmts(els, st.Else) {
			return []ast.Stmt{&ast.IfStmt{BaseStmt: st.BaseStmt, Cond: st.Cond, Then: then, Else: els}}, true
		}

	case *ast.ForStmt:
		if emptyLiteralIterable(st.Iter) {
			empty := p.stmts(st.Empty)
			if len(empty) == 0 {
				p.stats.Changes++
				return nil, true
			}
			// The empty clause runs inside the loop's own scope, so it
			// cannot be spliced into the enclosing body: a set inside
			// it must not leak. Keep the loop and drop the dead body.
			if len(st.Body) > 0 || st.Filter != nil || !sameStmts(empty, st.Empty) {
				p.stats.Changes++
				return []ast.Stmt{&ast.ForStmt{
					BaseStmt: st.BaseStmt, Var: st.Var, KeyVar: st.KeyVar,
					Iter: st.Iter, Empty: empty,
				}}, true
			}
		}

	case *ast.MatchStmt:
		if repl, ok := p.decideMatch(st); ok {
			return repl, true
		}
	}

	if ns, ok := applyToBodies(s, p.stmts); ok {
		return []ast.Stmt{ns}, true
	}
	return nil, false
}

// emptyLiteralIterable reports whether the expression is statically an
// iterable with no elements.
func emptyLiteralIterable(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.ListLit:
		return len(x.Elems) == 0
	case *ast.MapLit:
		return len(x.Keys) == 0
	case *ast.NoneLit:
		return true
	}
	return false
}

// decideMatch resolves a match whose subject and every case value are
// literals, leaving only the reachable arm. A match with a literal
// subject but a non-literal case value is counted as a skip: one
// unanalyzable value makes the whole statement undecidable.
func (p *deadcodePass) decideMatch(st *ast.MatchStmt) ([]ast.Stmt, bool) {
	subject, ok := literalValue(st.Subject)
	if !ok {
		return nil, false
	}
	for _, c := range st.Cases {
		for _, v := range c.Values {
			cv, ok := literalValue(v)
			if !ok {
				p.stats.Skips++
				return nil, false
			}
			if runtime.Equal(subject, cv) {
				p.stats.Changes++
				return p.stmts(c.Body), true
			}
		}
	}
	p.stats.Changes++
	return p.stmts(st.Else), true
}
