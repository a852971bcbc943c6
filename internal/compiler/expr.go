package compiler

import (
	"fmt"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/runtime"
	"github.com/lbliii/kida/internal/token"
)

// expr compiles an expression into a value closure.
func (c *compiler) expr(e ast.Expr) runtime.ValueFn {
	switch x := e.(type) {
	case *ast.StrLit:
		v := x.Value
		return func(*runtime.State) (any, error) { return v, nil }

	case *ast.NumLit:
		if x.IsInt {
			v := x.Int
			return func(*runtime.State) (any, error) { return v, nil }
		}
		v := x.Float
		return func(*runtime.State) (any, error) { return v, nil }

	case *ast.BoolLit:
		v := x.Value
		return func(*runtime.State) (any, error) { return v, nil }

	case *ast.NoneLit:
		return func(*runtime.State) (any, error) { return nil, nil }

	case *ast.ListLit:
		elems := make([]runtime.ValueFn, len(x.Elems))
		for i, el := range x.Elems {
			elems[i] = c.expr(el)
		}
		return func(rt *runtime.State) (any, error) {
			out := make([]any, len(elems))
			for i, fn := range elems {
				v, err := fn(rt)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}

	case *ast.MapLit:
		keys := make([]runtime.ValueFn, len(x.Keys))
		values := make([]runtime.ValueFn, len(x.Values))
		for i := range x.Keys {
			keys[i] = c.expr(x.Keys[i])
			values[i] = c.expr(x.Values[i])
		}
		return func(rt *runtime.State) (any, error) {
			out := make(map[string]any, len(keys))
			for i := range keys {
				k, err := keys[i](rt)
				if err != nil {
					return nil, err
				}
				v, err := values[i](rt)
				if err != nil {
					return nil, err
				}
				out[runtime.Str(k)] = v
			}
			return out, nil
		}

	case *ast.RangeLit:
		return c.rangeLit(x)

	case *ast.Ident:
		return c.ident(x)

	case *ast.AttrExpr:
		return c.attr(x)

	case *ast.IndexExpr:
		return c.index(x)

	case *ast.GroupExpr:
		return c.expr(x.Expr)

	case *ast.UnaryExpr:
		return c.unary(x)

	case *ast.BinaryExpr:
		return c.binary(x)

	case *ast.CoalesceExpr:
		return c.coalesce(x)

	case *ast.TernaryExpr:
		cond := c.expr(x.Cond)
		then := c.expr(x.Then)
		els := c.expr(x.Else)
		return func(rt *runtime.State) (any, error) {
			v, err := cond(rt)
			if err != nil {
				return nil, err
			}
			if runtime.Truth(v) {
				return then(rt)
			}
			return els(rt)
		}

	case *ast.CallExpr:
		return c.call(x)

	case *ast.FilterExpr:
		return c.filter(x)
	}
	c.bail("unhandled expression %T", e)
	return nil
}

func (c *compiler) rangeLit(x *ast.RangeLit) runtime.ValueFn {
	start := c.expr(x.Start)
	stop := c.expr(x.Stop)
	var step runtime.ValueFn
	if x.Step != nil {
		step = c.expr(x.Step)
	}
	exclusive := x.Exclusive
	pos := x.Pos().String()
	return func(rt *runtime.State) (any, error) {
		sv, err := start(rt)
		if err != nil {
			return nil, err
		}
		pv, err := stop(rt)
		if err != nil {
			return nil, err
		}
		si, ok := runtime.AsInt(sv)
		if !ok {
			return nil, fmt.Errorf("%s: range start is not an integer: %s", pos, runtime.TypeName(sv))
		}
		pi, ok := runtime.AsInt(pv)
		if !ok {
			return nil, fmt.Errorf("%s: range stop is not an integer: %s", pos, runtime.TypeName(pv))
		}
		st := int64(1)
		if step != nil {
			tv, err := step(rt)
			if err != nil {
				return nil, err
			}
			st, ok = runtime.AsInt(tv)
			if !ok {
				return nil, fmt.Errorf("%s: range step is not an integer: %s", pos, runtime.TypeName(tv))
			}
		}
		elems, err := runtime.MakeRange(si, pi, st, exclusive)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return elems, nil
	}
}

func (c *compiler) ident(x *ast.Ident) runtime.ValueFn {
	name := x.Name
	pos := x.Pos().String()
	lenient := c.lenient
	return func(rt *runtime.State) (any, error) {
		if v, ok := rt.Lookup(name); ok {
			return v, nil
		}
		if rt.Limits.StrictUndefined && !lenient {
			return nil, fmt.Errorf("%s: undefined variable %q", pos, name)
		}
		return nil, nil
	}
}

func (c *compiler) attr(x *ast.AttrExpr) runtime.ValueFn {
	target := c.expr(x.Target)
	name := x.Name
	optional := x.Optional
	pos := x.Pos().String()
	lenient := c.lenient
	return func(rt *runtime.State) (any, error) {
		tv, err := target(rt)
		if err != nil {
			return nil, err
		}
		if runtime.IsNone(tv) {
			if optional || lenient || !rt.Limits.StrictUndefined {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: attribute %q of none", pos, name)
		}
		v, ok := runtime.Attr(tv, name)
		if !ok {
			if optional || lenient || !rt.Limits.StrictUndefined {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: %s has no attribute %q", pos, runtime.TypeName(tv), name)
		}
		return v, nil
	}
}

func (c *compiler) index(x *ast.IndexExpr) runtime.ValueFn {
	target := c.expr(x.Target)
	index := c.expr(x.Index)
	optional := x.Optional
	pos := x.Pos().String()
	lenient := c.lenient
	return func(rt *runtime.State) (any, error) {
		tv, err := target(rt)
		if err != nil {
			return nil, err
		}
		if runtime.IsNone(tv) {
			if optional || lenient || !rt.Limits.StrictUndefined {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: subscript of none", pos)
		}
		kv, err := index(rt)
		if err != nil {
			return nil, err
		}
		v, ok := runtime.Index(tv, kv)
		if !ok {
			if optional || lenient || !rt.Limits.StrictUndefined {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: %s has no element %s", pos, runtime.TypeName(tv), runtime.Repr(kv))
		}
		return v, nil
	}
}

func (c *compiler) unary(x *ast.UnaryExpr) runtime.ValueFn {
	operand := c.expr(x.Expr)
	pos := x.Pos().String()
	switch x.Op {
	case token.SUB:
		return func(rt *runtime.State) (any, error) {
			v, err := operand(rt)
			if err != nil {
				return nil, err
			}
			n, err := runtime.Neg(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pos, err)
			}
			return n, nil
		}
	case token.NOT:
		return func(rt *runtime.State) (any, error) {
			v, err := operand(rt)
			if err != nil {
				return nil, err
			}
			return !runtime.Truth(v), nil
		}
	}
	c.bail("unary operator %s at %s", x.Op.Name(), x.Pos())
	return nil
}

func (c *compiler) binary(x *ast.BinaryExpr) runtime.ValueFn {
	left := c.expr(x.Left)
	pos := x.Pos().String()

	// and/or short-circuit and yield the deciding operand.
	switch x.Op {
	case token.AND:
		right := c.expr(x.Right)
		return func(rt *runtime.State) (any, error) {
			lv, err := left(rt)
			if err != nil {
				return nil, err
			}
			if !runtime.Truth(lv) {
				return lv, nil
			}
			return right(rt)
		}
	case token.OR:
		right := c.expr(x.Right)
		return func(rt *runtime.State) (any, error) {
			lv, err := left(rt)
			if err != nil {
				return nil, err
			}
			if runtime.Truth(lv) {
				return lv, nil
			}
			return right(rt)
		}
	}

	right := c.expr(x.Right)
	var apply func(a, b any) (any, error)
	switch x.Op {
	case token.ADD:
		apply = runtime.Add
	case token.SUB:
		apply = runtime.Sub
	case token.MUL:
		apply = runtime.Mul
	case token.DIV:
		apply = runtime.Div
	case token.MOD:
		apply = runtime.Mod
	case token.TILDE:
		apply = func(a, b any) (any, error) { return runtime.Concat(a, b), nil }
	case token.EQUALS:
		apply = func(a, b any) (any, error) { return runtime.Equal(a, b), nil }
	case token.NOT_EQUALS:
		apply = func(a, b any) (any, error) { return !runtime.Equal(a, b), nil }
	case token.LESS:
		apply = compareOp(func(cmp int) bool { return cmp < 0 })
	case token.LTE:
		apply = compareOp(func(cmp int) bool { return cmp <= 0 })
	case token.GREATER:
		apply = compareOp(func(cmp int) bool { return cmp > 0 })
	case token.GTE:
		apply = compareOp(func(cmp int) bool { return cmp >= 0 })
	case token.IN:
		apply = func(a, b any) (any, error) { return runtime.Contains(a, b) }
	default:
		c.bail("binary operator %s at %s", x.Op.Name(), x.Pos())
	}

	return func(rt *runtime.State) (any, error) {
		lv, err := left(rt)
		if err != nil {
			return nil, err
		}
		rv, err := right(rt)
		if err != nil {
			return nil, err
		}
		v, err := apply(lv, rv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return v, nil
	}
}

func compareOp(pick func(int) bool) func(a, b any) (any, error) {
	return func(a, b any) (any, error) {
		cmp, err := runtime.Compare(a, b)
		if err != nil {
			return nil, err
		}
		return pick(cmp), nil
	}
}

// coalesce compiles x ?? fallback. The left side is compiled lenient:
// an undefined name there selects the fallback instead of failing
// under strict-undefined. Genuine errors (bad arithmetic, a failing
// filter) still propagate.
func (c *compiler) coalesce(x *ast.CoalesceExpr) runtime.ValueFn {
	wasLenient := c.lenient
	c.lenient = true
	left := c.expr(x.Left)
	c.lenient = wasLenient
	right := c.expr(x.Right)
	return func(rt *runtime.State) (any, error) {
		lv, err := left(rt)
		if err != nil {
			return nil, err
		}
		if runtime.IsNone(lv) {
			return right(rt)
		}
		return lv, nil
	}
}

// call compiles a function, macro or callable-value invocation. Name
// resolution at render time: render-scope values (macros included)
// shadow registered functions.
func (c *compiler) call(x *ast.CallExpr) runtime.ValueFn {
	args := make([]runtime.ValueFn, len(x.Args))
	for i, a := range x.Args {
		args[i] = c.expr(a)
	}
	pos := x.Pos().String()

	evalArgs := func(rt *runtime.State) ([]any, error) {
		vals := make([]any, len(args))
		for i, fn := range args {
			v, err := fn(rt)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	}

	invoke := func(rt *runtime.State, callee any, name string) (any, error) {
		vals, err := evalArgs(rt)
		if err != nil {
			return nil, err
		}
		switch fn := callee.(type) {
		case *runtime.Macro:
			return fn.Call(rt, vals)
		case *runtime.LoopValue:
			if fn.Recurse == nil {
				return nil, fmt.Errorf("%s: loop is not callable outside a recursive for", pos)
			}
			if len(vals) != 1 {
				return nil, fmt.Errorf("%s: loop() takes 1 argument, got %d", pos, len(vals))
			}
			return fn.Recurse(rt, vals[0])
		case runtime.FunctionFn:
			return fn(rt, vals)
		}
		if name != "" {
			return nil, fmt.Errorf("%s: %q is not callable", pos, name)
		}
		return nil, fmt.Errorf("%s: %s is not callable", pos, runtime.TypeName(callee))
	}

	if ident, ok := x.Callee.(*ast.Ident); ok {
		name := ident.Name
		return func(rt *runtime.State) (any, error) {
			if v, ok := rt.Lookup(name); ok {
				return invoke(rt, v, name)
			}
			if fn, ok := rt.Env.Function(name); ok {
				return invoke(rt, fn, name)
			}
			return nil, fmt.Errorf("%s: unknown function %q", pos, name)
		}
	}

	callee := c.expr(x.Callee)
	return func(rt *runtime.State) (any, error) {
		v, err := callee(rt)
		if err != nil {
			return nil, err
		}
		return invoke(rt, v, "")
	}
}

func (c *compiler) filter(x *ast.FilterExpr) runtime.ValueFn {
	value := c.expr(x.Value)
	name := x.Name
	pos := x.Pos().String()

	if x.Inlined {
		return func(rt *runtime.State) (any, error) {
			v, err := value(rt)
			if err != nil {
				return nil, err
			}
			return runtime.InlineFilter(name, v), nil
		}
	}

	args := make([]runtime.ValueFn, len(x.Args))
	for i, a := range x.Args {
		args[i] = c.expr(a)
	}
	return func(rt *runtime.State) (any, error) {
		v, err := value(rt)
		if err != nil {
			return nil, err
		}
		fn, ok := rt.Env.Filter(name)
		if !ok {
			if rt.Limits.StrictFilters {
				return nil, fmt.Errorf("%s: unknown filter %q", pos, name)
			}
			return v, nil
		}
		vals := make([]any, len(args))
		for i, argFn := range args {
			av, err := argFn(rt)
			if err != nil {
				return nil, err
			}
			vals[i] = av
		}
		out, err := fn(rt, v, vals)
		if err != nil {
			if rt.Limits.StrictFilters {
				return nil, fmt.Errorf("%s: filter %q: %w", pos, name, err)
			}
			// Contained failure: the expression yields none.
			return nil, nil
		}
		return out, nil
	}
}
