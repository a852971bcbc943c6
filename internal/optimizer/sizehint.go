package optimizer

import (
	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/runtime"
)

// sizehintPass estimates the rendered output size in bytes. The walk
// keeps the estimate a safe lower bound: wherever the real size depends
// on render-time data the pass adds the smallest possible contribution
// and clears the exact flag, so buffer pre-allocation never over-trusts
// the number.
type sizehintPass struct {
	stats PassStats
	exact bool
}

// defaultExprSize is the assumed output size of an expression whose
// value is unknown at compile time.
const defaultExprSize = 8

func (p *sizehintPass) stmts(list []ast.Stmt) int {
	total := 0
	for _, s := range list {
		total += p.stmt(s)
	}
	return total
}

func (p *sizehintPass) stmt(s ast.Stmt) int {
	switch st := s.(type) {
	case *ast.TextStmt:
		return len(st.Text)

	case *ast.RawStmt:
		return len(st.Text)

	case *ast.OutputStmt:
		if v, ok := literalValue(st.Expr); ok {
			return len(runtime.Str(v))
		}
		p.exact = false
		return defaultExprSize

	case *ast.IfStmt:
		then := p.stmts(st.Then)
		els := p.stmts(st.Else)
		if then != els {
			p.exact = false
		}
		return min(then, els)

	case *ast.ForStmt:
		body := p.stmts(st.Body)
		empty := p.stmts(st.Empty)
		n, known := staticIterLen(st.Iter)
		if known && n == 0 {
			return empty
		}
		if hasLoopControl(st.Body) {
			// A break or continue can cut any iteration short before
			// its output, so no per-iteration amount is guaranteed.
			p.exact = false
			return 0
		}
		if !known || st.Filter != nil {
			// Unknown trip count, or a filter that may reject every
			// element: either the body runs at least once or the empty
			// clause renders, whichever is smaller bounds from below.
			p.exact = false
			return min(body, empty)
		}
		return n * body

	case *ast.MatchStmt:
		p.exact = false
		low := p.stmts(st.Else)
		for _, c := range st.Cases {
			low = min(low, p.stmts(c.Body))
		}
		return low

	case *ast.BlockStmt:
		// A derived template may override the block with anything.
		p.exact = false
		p.stmts(st.Body)
		return 0

	case *ast.SpacelessStmt:
		// Whitespace collapse only shrinks output.
		p.exact = false
		p.stmts(st.Body)
		return 0

	case *ast.IncludeStmt, *ast.EmbedStmt, *ast.ExtendsStmt:
		// Opaque to a single-template walk.
		p.stats.Skips++
		p.exact = false
		return 0

	case *ast.MacroStmt, *ast.SetStmt, *ast.BreakStmt, *ast.ContinueStmt:
		return 0
	}
	p.stats.Skips++
	return 0
}

// hasLoopControl reports whether the statements contain a break or
// continue binding to the enclosing loop. Nested loops bind their own
// control statements, and macro bodies cannot reference an outer loop.
func hasLoopControl(list []ast.Stmt) bool {
	for _, s := range list {
		switch st := s.(type) {
		case *ast.BreakStmt, *ast.ContinueStmt:
			return true
		case *ast.IfStmt:
			if hasLoopControl(st.Then) || hasLoopControl(st.Else) {
				return true
			}
		case *ast.MatchStmt:
			for _, c := range st.Cases {
				if hasLoopControl(c.Body) {
					return true
				}
			}
			if hasLoopControl(st.Else) {
				return true
			}
		case *ast.BlockStmt:
			if hasLoopControl(st.Body) {
				return true
			}
		case *ast.SpacelessStmt:
			if hasLoopControl(st.Body) {
				return true
			}
		}
	}
	return false
}

// staticIterLen returns the element count of a statically-sized
// iterable expression.
func staticIterLen(e ast.Expr) (int, bool) {
	switch x := e.(type) {
	case *ast.ListLit:
		return len(x.Elems), true
	case *ast.MapLit:
		return len(x.Keys), true
	case *ast.RangeLit:
		start, sok := literalInt(x.Start)
		stop, pok := literalInt(x.Stop)
		step := int64(1)
		if x.Step != nil {
			var ok bool
			step, ok = literalInt(x.Step)
			if !ok {
				return 0, false
			}
		}
		if !sok || !pok || step == 0 {
			return 0, false
		}
		elems, err := runtime.MakeRange(start, stop, step, x.Exclusive)
		if err != nil {
			return 0, false
		}
		return len(elems), true
	}
	return 0, false
}

func literalInt(e ast.Expr) (int64, bool) {
	n, ok := e.(*ast.NumLit)
	if !ok || !n.IsInt {
		return 0, false
	}
	return n.Int, true
}
