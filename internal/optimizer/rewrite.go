package optimizer

import "github.com/lbliii/kida/internal/ast"

// Traversal helpers shared by the passes. Everything here follows the
// same no-change contract as the passes themselves: the input node or
// slice comes back untouched when nothing below it changed.

// spliceStmts maps f over a statement list, splicing in replacements.
// f returns the replacement statements and true when it changed
// anything; a nil replacement with true drops the statement.
func spliceStmts(list []ast.Stmt, f func(ast.Stmt) ([]ast.Stmt, bool)) []ast.Stmt {
	var out []ast.Stmt
	changed := false
	for i, s := range list {
		repl, ok := f(s)
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

// applyToBodies rebuilds s with every nested statement list passed
// through f. f must return its input slice when it changes nothing.
func applyToBodies(s ast.Stmt, f func([]ast.Stmt) []ast.Stmt) (ast.Stmt, bool) {
	switch st := s.(type) {
	case *ast.IfStmt:
		then, els := f(st.Then), f(st.Else)
		if sameStmts(then, st.Then) && sameStmts(els, st.Else) {
			return s, false
		}
		return &ast.IfStmt{BaseStmt: st.BaseStmt, Cond: st.Cond, Then: then, Else: els}, true

	case *ast.ForStmt:
		body, empty := f(st.Body), f(st.Empty)
		if sameStmts(body, st.Body) && sameStmts(empty, st.Empty) {
			return s, false
		}
		return &ast.ForStmt{
			BaseStmt: st.BaseStmt, Var: st.Var, KeyVar: st.KeyVar,
			Iter: st.Iter, Filter: st.Filter, Body: body, Empty: empty,
			Recursive: st.Recursive,
		}, true

	case *ast.MatchStmt:
		cases := st.Cases
		changed := false
		for i, c := range st.Cases {
			body := f(c.Body)
			if sameStmts(body, c.Body) {
				continue
			}
			if !changed {
				cases = append([]ast.MatchCase(nil), st.Cases...)
				changed = true
			}
			cases[i] = ast.MatchCase{Values: c.Values, Body: body}
		}
		els := f(st.Else)
		if !changed && sameStmts(els, st.Else) {
			return s, false
		}
		return &ast.MatchStmt{BaseStmt: st.BaseStmt, Subject: st.Subject, Cases: cases, Else: els}, true

	case *ast.BlockStmt:
		body := f(st.Body)
		if sameStmts(body, st.Body) {
			return s, false
		}
		return &ast.BlockStmt{BaseStmt: st.BaseStmt, Name: st.Name, Body: body}, true

	case *ast.MacroStmt:
		body := f(st.Body)
		if sameStmts(body, st.Body) {
			return s, false
		}
		return &ast.MacroStmt{
			BaseStmt: st.BaseStmt, Name: st.Name, Params: st.Params,
			Defaults: st.Defaults, Body: body,
		}, true

	case *ast.SpacelessStmt:
		body := f(st.Body)
		if sameStmts(body, st.Body) {
			return s, false
		}
		return &ast.SpacelessStmt{BaseStmt: st.BaseStmt, Body: body}, true

	case *ast.EmbedStmt:
		overrides := st.Overrides
		changed := false
		for i, b := range st.Overrides {
			body := f(b.Body)
			if sameStmts(body, b.Body) {
				continue
			}
			if !changed {
				overrides = append([]*ast.BlockStmt(nil), st.Overrides...)
				changed = true
			}
			overrides[i] = &ast.BlockStmt{BaseStmt: b.BaseStmt, Name: b.Name, Body: body}
		}
		if !changed {
			return s, false
		}
		return &ast.EmbedStmt{BaseStmt: st.BaseStmt, Name: st.Name, Overrides: overrides}, true
	}
	return s, false
}

// rewriteExpr applies f bottom-up over the expression tree.
func rewriteExpr(e ast.Expr, f func(ast.Expr) (ast.Expr, bool)) (ast.Expr, bool) {
	rewritten, childChanged := rewriteExprChildren(e, f)
	final, selfChanged := f(rewritten)
	if selfChanged {
		return final, true
	}
	return rewritten, childChanged
}

func rewriteExprChildren(e ast.Expr, f func(ast.Expr) (ast.Expr, bool)) (ast.Expr, bool) {
	sub := func(c ast.Expr) (ast.Expr, bool) { return rewriteExpr(c, f) }
	subList := func(list []ast.Expr) ([]ast.Expr, bool) {
		out := list
		changed := false
		for i, el := range list {
			if el == nil {
				continue
			}
			ne, ok := sub(el)
			if !ok {
				continue
			}
			if !changed {
				out = append([]ast.Expr(nil), list...)
				changed = true
			}
			out[i] = ne
		}
		return out, changed
	}

	switch x := e.(type) {
	case *ast.GroupExpr:
		if inner, ok := sub(x.Expr); ok {
			return &ast.GroupExpr{BaseExpr: x.BaseExpr, Expr: inner}, true
		}
	case *ast.UnaryExpr:
		if operand, ok := sub(x.Expr); ok {
			return &ast.UnaryExpr{BaseExpr: x.BaseExpr, Op: x.Op, Expr: operand}, true
		}
	case *ast.BinaryExpr:
		left, lc := sub(x.Left)
		right, rc := sub(x.Right)
		if lc || rc {
			if !lc {
				left = x.Left
			}
			if !rc {
				right = x.Right
			}
			return &ast.BinaryExpr{BaseExpr: x.BaseExpr, Left: left, Op: x.Op, Right: right}, true
		}
	case *ast.CoalesceExpr:
		left, lc := sub(x.Left)
		right, rc := sub(x.Right)
		if lc || rc {
			if !lc {
				left = x.Left
			}
			if !rc {
				right = x.Right
			}
			return &ast.CoalesceExpr{BaseExpr: x.BaseExpr, Left: left, Right: right}, true
		}
	case *ast.TernaryExpr:
		cond, cc := sub(x.Cond)
		then, tc := sub(x.Then)
		els, ec := sub(x.Else)
		if cc || tc || ec {
			if !cc {
				cond = x.Cond
			}
			if !tc {
				then = x.Then
			}
			if !ec {
				els = x.Else
			}
			return &ast.TernaryExpr{BaseExpr: x.BaseExpr, Cond: cond, Then: then, Else: els}, true
		}
	case *ast.AttrExpr:
		if target, ok := sub(x.Target); ok {
			return &ast.AttrExpr{BaseExpr: x.BaseExpr, Target: target, Name: x.Name, Optional: x.Optional}, true
		}
	case *ast.IndexExpr:
		target, tc := sub(x.Target)
		index, ic := sub(x.Index)
		if tc || ic {
			if !tc {
				target = x.Target
			}
			if !ic {
				index = x.Index
			}
			return &ast.IndexExpr{BaseExpr: x.BaseExpr, Target: target, Index: index, Optional: x.Optional}, true
		}
	case *ast.ListLit:
		if elems, ok := subList(x.Elems); ok {
			return &ast.ListLit{BaseExpr: x.BaseExpr, Elems: elems}, true
		}
	case *ast.MapLit:
		keys, kc := subList(x.Keys)
		values, vc := subList(x.Values)
		if kc || vc {
			if !kc {
				keys = x.Keys
			}
			if !vc {
				values = x.Values
			}
			return &ast.MapLit{BaseExpr: x.BaseExpr, Keys: keys, Values: values}, true
		}
	case *ast.RangeLit:
		start, sc := sub(x.Start)
		stop, pc := sub(x.Stop)
		step := x.Step
		stc := false
		if x.Step != nil {
			step, stc = sub(x.Step)
		}
		if sc || pc || stc {
			if !sc {
				start = x.Start
			}
			if !pc {
				stop = x.Stop
			}
			if !stc {
				step = x.Step
			}
			return &ast.RangeLit{BaseExpr: x.BaseExpr, Start: start, Stop: stop, Step: step, Exclusive: x.Exclusive}, true
		}
	case *ast.CallExpr:
		callee, cc := sub(x.Callee)
		args, ac := subList(x.Args)
		if cc || ac {
			if !cc {
				callee = x.Callee
			}
			if !ac {
				args = x.Args
			}
			return &ast.CallExpr{BaseExpr: x.BaseExpr, Callee: callee, Args: args}, true
		}
	case *ast.FilterExpr:
		value, vc := sub(x.Value)
		args, ac := subList(x.Args)
		if vc || ac {
			if !vc {
				value = x.Value
			}
			if !ac {
				args = x.Args
			}
			return &ast.FilterExpr{BaseExpr: x.BaseExpr, Value: value, Name: x.Name, Args: args, Inlined: x.Inlined}, true
		}
	}
	return e, false
}

// applyToStmtExprs rebuilds s with every expression it holds passed
// through rewriteExpr(f). Nested statement bodies are not descended
// into; callers combine this with applyToBodies.
func applyToStmtExprs(s ast.Stmt, f func(ast.Expr) (ast.Expr, bool)) (ast.Stmt, bool) {
	sub := func(e ast.Expr) (ast.Expr, bool) {
		if e == nil {
			return nil, false
		}
		return rewriteExpr(e, f)
	}

	switch st := s.(type) {
	case *ast.OutputStmt:
		if e, ok := sub(st.Expr); ok {
			return &ast.OutputStmt{BaseStmt: st.BaseStmt, Expr: e, RawSafe: st.RawSafe}, true
		}
	case *ast.SetStmt:
		if e, ok := sub(st.Value); ok {
			return &ast.SetStmt{BaseStmt: st.BaseStmt, Name: st.Name, Value: e}, true
		}
	case *ast.IfStmt:
		if e, ok := sub(st.Cond); ok {
			return &ast.IfStmt{BaseStmt: st.BaseStmt, Cond: e, Then: st.Then, Else: st.Else}, true
		}
	case *ast.ForStmt:
		iter, ic := sub(st.Iter)
		filter, fc := sub(st.Filter)
		if ic || fc {
			if !ic {
				iter = st.Iter
			}
			if !fc {
				filter = st.Filter
			}
			return &ast.ForStmt{
				BaseStmt: st.BaseStmt, Var: st.Var, KeyVar: st.KeyVar,
				Iter: iter, Filter: filter, Body: st.Body, Empty: st.Empty,
				Recursive: st.Recursive,
			}, true
		}
	case *ast.MatchStmt:
		subject, sc := sub(st.Subject)
		cases := st.Cases
		casesChanged := false
		for i, c := range st.Cases {
			values := c.Values
			valuesChanged := false
			for j, v := range c.Values {
				nv, ok := sub(v)
				if !ok {
					continue
				}
				if !valuesChanged {
					values = append([]ast.Expr(nil), c.Values...)
					valuesChanged = true
				}
				values[j] = nv
			}
			if valuesChanged {
				if !casesChanged {
					cases = append([]ast.MatchCase(nil), st.Cases...)
					casesChanged = true
				}
				cases[i] = ast.MatchCase{Values: values, Body: c.Body}
			}
		}
		if sc || casesChanged {
			if !sc {
				subject = st.Subject
			}
			return &ast.MatchStmt{BaseStmt: st.BaseStmt, Subject: subject, Cases: cases, Else: st.Else}, true
		}
	case *ast.IncludeStmt:
		if e, ok := sub(st.Name); ok {
			return &ast.IncludeStmt{BaseStmt: st.BaseStmt, Name: e}, true
		}
	case *ast.EmbedStmt:
		if e, ok := sub(st.Name); ok {
			return &ast.EmbedStmt{BaseStmt: st.BaseStmt, Name: e, Overrides: st.Overrides}, true
		}
	case *ast.MacroStmt:
		defaults := st.Defaults
		changed := false
		for i, d := range st.Defaults {
			nd, ok := sub(d)
			if !ok {
				continue
			}
			if !changed {
				defaults = append([]ast.Expr(nil), st.Defaults...)
				changed = true
			}
			defaults[i] = nd
		}
		if changed {
			return &ast.MacroStmt{
				BaseStmt: st.BaseStmt, Name: st.Name, Params: st.Params,
				Defaults: defaults, Body: st.Body,
			}, true
		}
	}
	return s, false
}
