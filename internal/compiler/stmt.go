package compiler

import (
	"errors"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/runtime"
)

// stmt compiles one statement. A nil return means the statement
// contributes no step in this mode.
func (c *compiler) stmt(s ast.Stmt, mode bodyMode) runtime.Step {
	switch st := s.(type) {
	case *ast.TextStmt:
		if mode == defsOnly {
			return nil
		}
		text := st.Text
		return func(rt *runtime.State) error {
			rt.WriteString(text)
			return nil
		}

	case *ast.RawStmt:
		if mode == defsOnly {
			return nil
		}
		text := st.Text
		return func(rt *runtime.State) error {
			rt.WriteString(text)
			return nil
		}

	case *ast.OutputStmt:
		if mode == defsOnly {
			return nil
		}
		return c.output(st)

	case *ast.SetStmt:
		name := st.Name
		value := c.expr(st.Value)
		return func(rt *runtime.State) error {
			v, err := value(rt)
			if err != nil {
				return err
			}
			rt.Set(name, v)
			return nil
		}

	case *ast.MacroStmt:
		return c.macro(st)

	case *ast.BlockStmt:
		body := c.stmts(st.Body, renderAll)
		if _, dup := c.prog.Blocks[st.Name]; dup {
			c.bail("duplicate block %q at %s", st.Name, st.Pos())
		}
		c.prog.Blocks[st.Name] = body
		if mode == defsOnly {
			return nil
		}
		name := st.Name
		return func(rt *runtime.State) error {
			return rt.RenderBlock(name)
		}

	case *ast.IfStmt:
		if mode == defsOnly {
			return nil
		}
		cond := c.expr(st.Cond)
		then := c.stmts(st.Then, renderAll)
		els := c.stmts(st.Else, renderAll)
		return func(rt *runtime.State) error {
			v, err := cond(rt)
			if err != nil {
				return err
			}
			if runtime.Truth(v) {
				return then(rt)
			}
			return els(rt)
		}

	case *ast.ForStmt:
		if mode == defsOnly {
			return nil
		}
		return c.forLoop(st)

	case *ast.MatchStmt:
		if mode == defsOnly {
			return nil
		}
		return c.match(st)

	case *ast.BreakStmt:
		return func(*runtime.State) error { return runtime.ErrBreak }

	case *ast.ContinueStmt:
		return func(*runtime.State) error { return runtime.ErrContinue }

	case *ast.IncludeStmt:
		if mode == defsOnly {
			return nil
		}
		name := c.expr(st.Name)
		return func(rt *runtime.State) error {
			v, err := name(rt)
			if err != nil {
				return err
			}
			return rt.Include(runtime.Str(v))
		}

	case *ast.EmbedStmt:
		if mode == defsOnly {
			return nil
		}
		return c.embed(st)

	case *ast.SpacelessStmt:
		if mode == defsOnly {
			return nil
		}
		body := c.stmts(st.Body, renderAll)
		return func(rt *runtime.State) error {
			out, err := rt.Capture(body)
			if err != nil {
				return err
			}
			rt.WriteString(runtime.CollapseTagSpace(out))
			return nil
		}

	case *ast.ExtendsStmt:
		// Handled at the template level.
		return nil
	}
	c.bail("unhandled statement %T", s)
	return nil
}

func (c *compiler) output(st *ast.OutputStmt) runtime.Step {
	value := c.expr(st.Expr)
	if st.RawSafe {
		return func(rt *runtime.State) error {
			v, err := value(rt)
			if err != nil {
				return err
			}
			rt.WriteString(runtime.Str(v))
			return nil
		}
	}
	return func(rt *runtime.State) error {
		v, err := value(rt)
		if err != nil {
			return err
		}
		rt.WriteValue(v)
		return nil
	}
}

func (c *compiler) macro(st *ast.MacroStmt) runtime.Step {
	if len(st.Defaults) != len(st.Params) {
		c.bail("macro %q: %d params with %d defaults", st.Name, len(st.Params), len(st.Defaults))
	}
	defaults := make([]runtime.ValueFn, len(st.Defaults))
	for i, d := range st.Defaults {
		if d != nil {
			defaults[i] = c.expr(d)
		}
	}
	body := c.stmts(st.Body, renderAll)
	name := st.Name
	params := st.Params
	return func(rt *runtime.State) error {
		rt.DefineMacro(&runtime.Macro{
			Name:     name,
			Params:   params,
			Defaults: defaults,
			Body:     body,
		})
		return nil
	}
}

func (c *compiler) embed(st *ast.EmbedStmt) runtime.Step {
	name := c.expr(st.Name)
	overrides := make(map[string]runtime.Step, len(st.Overrides))
	for _, b := range st.Overrides {
		if _, dup := overrides[b.Name]; dup {
			c.bail("duplicate embed block %q at %s", b.Name, b.Pos())
		}
		overrides[b.Name] = c.stmts(b.Body, renderAll)
	}
	return func(rt *runtime.State) error {
		v, err := name(rt)
		if err != nil {
			return err
		}
		return rt.Embed(runtime.Str(v), overrides)
	}
}

func (c *compiler) match(st *ast.MatchStmt) runtime.Step {
	subject := c.expr(st.Subject)
	type arm struct {
		values []runtime.ValueFn
		body   runtime.Step
	}
	arms := make([]arm, len(st.Cases))
	for i, cs := range st.Cases {
		values := make([]runtime.ValueFn, len(cs.Values))
		for j, v := range cs.Values {
			values[j] = c.expr(v)
		}
		arms[i] = arm{values: values, body: c.stmts(cs.Body, renderAll)}
	}
	els := c.stmts(st.Else, renderAll)
	return func(rt *runtime.State) error {
		sv, err := subject(rt)
		if err != nil {
			return err
		}
		for _, a := range arms {
			for _, value := range a.values {
				cv, err := value(rt)
				if err != nil {
					return err
				}
				if runtime.Equal(sv, cv) {
					return a.body(rt)
				}
			}
		}
		return els(rt)
	}
}

// forLoop compiles a for statement. Elements are materialized up front
// and the inline filter applied before the body runs, so loop.length
// and loop.last see the surviving element count and the empty clause
// fires when nothing survives.
func (c *compiler) forLoop(st *ast.ForStmt) runtime.Step {
	iter := c.expr(st.Iter)
	var filter runtime.ValueFn
	if st.Filter != nil {
		filter = c.expr(st.Filter)
	}
	body := c.stmts(st.Body, renderAll)
	empty := c.stmts(st.Empty, renderAll)
	keyVar, valVar := st.KeyVar, st.Var
	recursive := st.Recursive

	var run func(rt *runtime.State, iterable any) error
	run = func(rt *runtime.State, iterable any) error {
		pairs, err := runtime.Iter(iterable)
		if err != nil {
			return err
		}

		rt.PushScope()
		defer rt.PopScope()

		if filter != nil {
			kept := pairs[:0:0]
			for _, p := range pairs {
				bindLoopVars(rt, keyVar, valVar, p)
				keep, err := filter(rt)
				if err != nil {
					return err
				}
				if runtime.Truth(keep) {
					kept = append(kept, p)
				}
			}
			pairs = kept
		}

		if len(pairs) == 0 {
			return empty(rt)
		}

		length := int64(len(pairs))
		for i, p := range pairs {
			loop := &runtime.LoopValue{
				Index:  int64(i) + 1,
				Index0: int64(i),
				First:  i == 0,
				Last:   int64(i) == length-1,
				Length: length,
			}
			if recursive {
				loop.Recurse = func(sub *runtime.State, nested any) (any, error) {
					out, err := sub.Capture(func(s2 *runtime.State) error {
						return run(s2, nested)
					})
					if err != nil {
						return nil, err
					}
					return runtime.Safe(out), nil
				}
			}
			bindLoopVars(rt, keyVar, valVar, p)
			rt.SetLocal("loop", loop)
			if err := body(rt); err != nil {
				if errors.Is(err, runtime.ErrBreak) {
					return nil
				}
				if errors.Is(err, runtime.ErrContinue) {
					continue
				}
				return err
			}
		}
		return nil
	}

	return func(rt *runtime.State) error {
		iterable, err := iter(rt)
		if err != nil {
			return err
		}
		return run(rt, iterable)
	}
}

// bindLoopVars assigns the per-iteration variables: the key variable
// receives the element key (index for sequences) when the loop
// declares one, and the value variable always receives the element.
func bindLoopVars(rt *runtime.State, keyVar, valVar string, p runtime.Pair) {
	if keyVar != "" {
		rt.SetLocal(keyVar, p.Key)
	}
	rt.SetLocal(valVar, p.Value)
}
