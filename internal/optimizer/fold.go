package optimizer

import (
	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/runtime"
	"github.com/lbliii/kida/internal/token"
)

// foldPass evaluates operations over literal operands at compile time.
// Folding reuses the runtime value operations so folded results match
// what rendering the unfolded tree would have produced.
type foldPass struct {
	stats PassStats
}

// literalValue extracts the runtime value of a scalar literal node.
func literalValue(e ast.Expr) (any, bool) {
	switch lit := e.(type) {
	case *ast.StrLit:
		return lit.Value, true
	case *ast.NumLit:
		if lit.IsInt {
			return lit.Int, true
		}
		return lit.Float, true
	case *ast.BoolLit:
		return lit.Value, true
	case *ast.NoneLit:
		return nil, true
	}
	return nil, false
}

// literalNode builds the literal node for a folded value, spanning the
// positions of the expression it replaces.
func literalNode(v any, start, end token.Position) (ast.Expr, bool) {
	base := ast.MakeBaseExpr(start, end)
	switch x := v.(type) {
	case nil:
		return &ast.NoneLit{BaseExpr: base}, true
	case bool:
		return &ast.BoolLit{BaseExpr: base, Value: x}, true
	case string:
		return &ast.StrLit{BaseExpr: base, Value: x}, true
	case int64:
		return &ast.NumLit{BaseExpr: base, IsInt: true, Int: x}, true
	case float64:
		return &ast.NumLit{BaseExpr: base, Float: x}, true
	}
	return nil, false
}

func (p *foldPass) stmts(list []ast.Stmt) []ast.Stmt {
	var out []ast.Stmt
	changed := false
	for i, s := range list {
		repl, ok := p.stmt(s)
		if ok && !changed {
			out = append(out, list[:i]...)
			changed = true
		}
		if !changed {
			continue
		}
		if ok {
			out = append(out, repl...)
		} else {
			out = append(out, s)
		}
	}
	if !changed {
		return list
	}
	return out
}

// stmt folds a single statement. It returns the replacement list and
// true when anything changed; an if over a literal condition collapses
// to the live branch, which may be several statements or none.
func (p *foldPass) stmt(s ast.Stmt) ([]ast.Stmt, bool) {
	switch st := s.(type) {
	case *ast.OutputStmt:
		if e, ok := p.expr(st.Expr); ok {
			return []ast.Stmt{&ast.OutputStmt{BaseStmt: st.BaseStmt, Expr: e, RawSafe: st.RawSafe}}, true
		}

	case *ast.SetStmt:
		if e, ok := p.expr(st.Value); ok {
			return []ast.Stmt{&ast.SetStmt{BaseStmt: st.BaseStmt, Name: st.Name, Value: e}}, true
		}

	case *ast.IfStmt:
		cond, condChanged := p.expr(st.Cond)
		if !condChanged {
			cond = st.Cond
		}
		then := p.stmts(st.Then)
		els := p.stmts(st.Else)
		if v, ok := literalValue(cond); ok {
			p.stats.Changes++
			if runtime.Truth(v) {
				return then, true
			}
			return els, true
		}
		if condChanged || !sameStmts(then, st.Then) || !sameStmts(els, st.Else) {
			return []ast.Stmt{&ast.IfStmt{BaseStmt: st.BaseStmt, Cond: cond, Then: then, Else: els}}, true
		}

	case *ast.ForStmt:
		iter, iterChanged := p.expr(st.Iter)
		if !iterChanged {
			iter = st.Iter
		}
		filter := st.Filter
		filterChanged := false
		if st.Filter != nil {
			filter, filterChanged = p.expr(st.Filter)
			if !filterChanged {
				filter = st.Filter
			}
		}
		body := p.stmts(st.Body)
		empty := p.stmts(st.Empty)
		if iterChanged || filterChanged || !sameStmts(body, st.Body) || !sameStmts(empty, st.Empty) {
			return []ast.Stmt{&ast.ForStmt{
				BaseStmt: st.BaseStmt, Var: st.Var, KeyVar: st.KeyVar,
				Iter: iter, Filter: filter, Body: body, Empty: empty,
				Recursive: st.Recursive,
			}}, true
		}

	case *ast.MatchStmt:
		subject, subjChanged := p.expr(st.Subject)
		if !subjChanged {
			subject = st.Subject
		}
		casesChanged := false
		cases := st.Cases
		for i, c := range st.Cases {
			values := c.Values
			valuesChanged := false
			for j, v := range c.Values {
				if nv, ok := p.expr(v); ok {
					if !valuesChanged {
						values = append([]ast.Expr(nil), c.Values...)
						valuesChanged = true
					}
					values[j] = nv
				}
			}
			body := p.stmts(c.Body)
			if valuesChanged || !sameStmts(body, c.Body) {
				if !casesChanged {
					cases = append([]ast.MatchCase(nil), st.Cases...)
					casesChanged = true
				}
				cases[i] = ast.MatchCase{Values: values, Body: body}
			}
		}
		els := p.stmts(st.Else)
		if subjChanged || casesChanged || !sameStmts(els, st.Else) {
			return []ast.Stmt{&ast.MatchStmt{BaseStmt: st.BaseStmt, Subject: subject, Cases: cases, Else: els}}, true
		}

	case *ast.BlockStmt:
		if body := p.stmts(st.Body); !sameStmts(body, st.Body) {
			return []ast.Stmt{&ast.BlockStmt{BaseStmt: st.BaseStmt, Name: st.Name, Body: body}}, true
		}

	case *ast.MacroStmt:
		defaults := st.Defaults
		defaultsChanged := false
		for i, d := range st.Defaults {
			if d == nil {
				continue
			}
			if nd, ok := p.expr(d); ok {
				if !defaultsChanged {
					defaults = append([]ast.Expr(nil), st.Defaults...)
					defaultsChanged = true
				}
				defaults[i] = nd
			}
		}
		body := p.stmts(st.Body)
		if defaultsChanged || !sameStmts(body, st.Body) {
			return []ast.Stmt{&ast.MacroStmt{
				BaseStmt: st.BaseStmt, Name: st.Name, Params: st.Params,
				Defaults: defaults, Body: body,
			}}, true
		}

	case *ast.SpacelessStmt:
		if body := p.stmts(st.Body); !sameStmts(body, st.Body) {
			return []ast.Stmt{&ast.SpacelessStmt{BaseStmt: st.BaseStmt, Body: body}}, true
		}

	case *ast.IncludeStmt:
		if e, ok := p.expr(st.Name); ok {
			return []ast.Stmt{&ast.IncludeStmt{BaseStmt: st.BaseStmt, Name: e}}, true
		}

	case *ast.EmbedStmt:
		name, nameChanged := p.expr(st.Name)
		if !nameChanged {
			name = st.Name
		}
		overrides := st.Overrides
		overridesChanged := false
		for i, b := range st.Overrides {
			if body := p.stmts(b.Body); !sameStmts(body, b.Body) {
				if !overridesChanged {
					overrides = append([]*ast.BlockStmt(nil), st.Overrides...)
					overridesChanged = true
				}
				overrides[i] = &ast.BlockStmt{BaseStmt: b.BaseStmt, Name: b.Name, Body: body}
			}
		}
		if nameChanged || overridesChanged {
			return []ast.Stmt{&ast.EmbedStmt{BaseStmt: st.BaseStmt, Name: name, Overrides: overrides}}, true
		}
	}
	return nil, false
}

// sameStmts reports whether two statement slices are the identical
// slice, the passes' no-change signal.
func sameStmts(a, b []ast.Stmt) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// expr folds an expression bottom-up. The second result reports
// whether a new node was built.
func (p *foldPass) expr(e ast.Expr) (ast.Expr, bool) {
	switch x := e.(type) {
	case *ast.GroupExpr:
		inner, changed := p.expr(x.Expr)
		if !changed {
			inner = x.Expr
		}
		if ast.IsLiteral(inner) {
			p.stats.Changes++
			return inner, true
		}
		if changed {
			return &ast.GroupExpr{BaseExpr: x.BaseExpr, Expr: inner}, true
		}

	case *ast.UnaryExpr:
		operand, changed := p.expr(x.Expr)
		if !changed {
			operand = x.Expr
		}
		if v, ok := literalValue(operand); ok {
			if folded, ok := p.foldUnary(x.Op, v, x); ok {
				return folded, true
			}
		}
		if changed {
			return &ast.UnaryExpr{BaseExpr: x.BaseExpr, Op: x.Op, Expr: operand}, true
		}

	case *ast.BinaryExpr:
		left, lc := p.expr(x.Left)
		if !lc {
			left = x.Left
		}
		right, rc := p.expr(x.Right)
		if !rc {
			right = x.Right
		}
		if folded, ok := p.foldBinary(x.Op, left, right, x); ok {
			return folded, true
		}
		if lc || rc {
			return &ast.BinaryExpr{BaseExpr: x.BaseExpr, Left: left, Op: x.Op, Right: right}, true
		}

	case *ast.CoalesceExpr:
		left, lc := p.expr(x.Left)
		if !lc {
			left = x.Left
		}
		right, rc := p.expr(x.Right)
		if !rc {
			right = x.Right
		}
		if v, ok := literalValue(left); ok {
			p.stats.Changes++
			if v == nil {
				return right, true
			}
			return left, true
		}
		if lc || rc {
			return &ast.CoalesceExpr{BaseExpr: x.BaseExpr, Left: left, Right: right}, true
		}

	case *ast.TernaryExpr:
		cond, cc := p.expr(x.Cond)
		if !cc {
			cond = x.Cond
		}
		then, tc := p.expr(x.Then)
		if !tc {
			then = x.Then
		}
		els, ec := p.expr(x.Else)
		if !ec {
			els = x.Else
		}
		if v, ok := literalValue(cond); ok {
			p.stats.Changes++
			if runtime.Truth(v) {
				return then, true
			}
			return els, true
		}
		if cc || tc || ec {
			return &ast.TernaryExpr{BaseExpr: x.BaseExpr, Cond: cond, Then: then, Else: els}, true
		}

	case *ast.ListLit:
		elems := x.Elems
		changed := false
		for i, el := range x.Elems {
			if ne, ok := p.expr(el); ok {
				if !changed {
					elems = append([]ast.Expr(nil), x.Elems...)
					changed = true
				}
				elems[i] = ne
			}
		}
		if changed {
			return &ast.ListLit{BaseExpr: x.BaseExpr, Elems: elems}, true
		}

	case *ast.MapLit:
		keys, values := x.Keys, x.Values
		changed := false
		for i := range x.Keys {
			nk, kc := p.expr(x.Keys[i])
			nv, vc := p.expr(x.Values[i])
			if kc || vc {
				if !changed {
					keys = append([]ast.Expr(nil), x.Keys...)
					values = append([]ast.Expr(nil), x.Values...)
					changed = true
				}
				if kc {
					keys[i] = nk
				}
				if vc {
					values[i] = nv
				}
			}
		}
		if changed {
			return &ast.MapLit{BaseExpr: x.BaseExpr, Keys: keys, Values: values}, true
		}

	case *ast.RangeLit:
		start, sc := p.expr(x.Start)
		if !sc {
			start = x.Start
		}
		stop, pc := p.expr(x.Stop)
		if !pc {
			stop = x.Stop
		}
		step := x.Step
		stc := false
		if x.Step != nil {
			step, stc = p.expr(x.Step)
			if !stc {
				step = x.Step
			}
		}
		if sc || pc || stc {
			return &ast.RangeLit{BaseExpr: x.BaseExpr, Start: start, Stop: stop, Step: step, Exclusive: x.Exclusive}, true
		}

	case *ast.AttrExpr:
		if target, ok := p.expr(x.Target); ok {
			return &ast.AttrExpr{BaseExpr: x.BaseExpr, Target: target, Name: x.Name, Optional: x.Optional}, true
		}

	case *ast.IndexExpr:
		target, tc := p.expr(x.Target)
		if !tc {
			target = x.Target
		}
		index, ic := p.expr(x.Index)
		if !ic {
			index = x.Index
		}
		if tc || ic {
			return &ast.IndexExpr{BaseExpr: x.BaseExpr, Target: target, Index: index, Optional: x.Optional}, true
		}

	case *ast.CallExpr:
		callee, cc := p.expr(x.Callee)
		if !cc {
			callee = x.Callee
		}
		args := x.Args
		argsChanged := false
		for i, a := range x.Args {
			if na, ok := p.expr(a); ok {
				if !argsChanged {
					args = append([]ast.Expr(nil), x.Args...)
					argsChanged = true
				}
				args[i] = na
			}
		}
		if cc || argsChanged {
			return &ast.CallExpr{BaseExpr: x.BaseExpr, Callee: callee, Args: args}, true
		}

	case *ast.FilterExpr:
		value, vc := p.expr(x.Value)
		if !vc {
			value = x.Value
		}
		args := x.Args
		argsChanged := false
		for i, a := range x.Args {
			if na, ok := p.expr(a); ok {
				if !argsChanged {
					args = append([]ast.Expr(nil), x.Args...)
					argsChanged = true
				}
				args[i] = na
			}
		}
		if vc || argsChanged {
			return &ast.FilterExpr{BaseExpr: x.BaseExpr, Value: value, Name: x.Name, Args: args, Inlined: x.Inlined}, true
		}
	}
	return nil, false
}

func (p *foldPass) foldUnary(op token.Token, v any, orig *ast.UnaryExpr) (ast.Expr, bool) {
	var folded any
	switch op {
	case token.SUB:
		neg, err := runtime.Neg(v)
		if err != nil {
			p.stats.Skips++
			return nil, false
		}
		folded = neg
	case token.NOT:
		folded = !runtime.Truth(v)
	default:
		return nil, false
	}
	node, ok := literalNode(folded, orig.Pos(), orig.End())
	if !ok {
		p.stats.Skips++
		return nil, false
	}
	p.stats.Changes++
	return node, true
}

// foldBinary folds binary operations. and/or need only a literal left
// side: the fold picks either the left literal or the right expression,
// matching the short-circuit value semantics.
func (p *foldPass) foldBinary(op token.Token, left, right ast.Expr, orig *ast.BinaryExpr) (ast.Expr, bool) {
	lv, lok := literalValue(left)

	switch op {
	case token.AND:
		if !lok {
			return nil, false
		}
		p.stats.Changes++
		if !runtime.Truth(lv) {
			return left, true
		}
		return right, true
	case token.OR:
		if !lok {
			return nil, false
		}
		p.stats.Changes++
		if runtime.Truth(lv) {
			return left, true
		}
		return right, true
	}

	rv, rok := literalValue(right)
	if !lok || !rok {
		return nil, false
	}

	var folded any
	var err error
	switch op {
	case token.ADD:
		folded, err = runtime.Add(lv, rv)
	case token.SUB:
		folded, err = runtime.Sub(lv, rv)
	case token.MUL:
		folded, err = runtime.Mul(lv, rv)
	case token.DIV:
		folded, err = runtime.Div(lv, rv)
	case token.MOD:
		folded, err = runtime.Mod(lv, rv)
	case token.TILDE:
		folded = runtime.Concat(lv, rv)
	case token.EQUALS:
		folded = runtime.Equal(lv, rv)
	case token.NOT_EQUALS:
		folded = !runtime.Equal(lv, rv)
	case token.LESS, token.LTE, token.GREATER, token.GTE:
		var cmp int
		cmp, err = runtime.Compare(lv, rv)
		if err == nil {
			switch op {
			case token.LESS:
				folded = cmp < 0
			case token.LTE:
				folded = cmp <= 0
			case token.GREATER:
				folded = cmp > 0
			case token.GTE:
				folded = cmp >= 0
			}
		}
	case token.IN:
		folded, err = runtime.Contains(lv, rv)
	default:
		return nil, false
	}
	if err != nil {
		p.stats.Skips++
		return nil, false
	}
	node, ok := literalNode(folded, orig.Pos(), orig.End())
	if !ok {
		p.stats.Skips++
		return nil, false
	}
	p.stats.Changes++
	return node, true
}
