// Package compiler lowers an optimized template AST into an executable
// runtime.Program: a tree of step closures, each closed over its
// compiled children, run against a per-render State.
package compiler

import (
	"fmt"
	"sort"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/optimizer"
	"github.com/lbliii/kida/internal/runtime"
)

// CompileError reports an internal invariant violation during
// lowering. Seeing one means an optimizer or compiler bug, not bad
// template input: user-visible template problems are caught by the
// lexer and parser.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return e.Message
}

// Meta carries the per-template inputs that are not part of the AST.
type Meta struct {
	Name   string
	Source string
}

// Compile lowers an optimized template into a Program.
func Compile(res *optimizer.Result, meta Meta) (prog *runtime.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*CompileError); ok {
				err = ce
			} else {
				panic(r)
			}
		}
	}()

	prog = &runtime.Program{
		Name:      meta.Name,
		Hash:      runtime.HashSource(meta.Source),
		Blocks:    make(map[string]runtime.Step),
		SizeHint:  res.SizeHint,
		SizeExact: res.SizeExact,
	}

	c := &compiler{
		prog: prog,
		deps: make(map[string]struct{}),
	}

	tmpl := res.Template
	collectStaticDeps(tmpl.Nodes, c.deps)
	if tmpl.Extends != nil {
		switch name := tmpl.Extends.Name.(type) {
		case *ast.StrLit:
			prog.Extends = name.Value
			c.deps[name.Value] = struct{}{}
		default:
			prog.ExtendsDynamic = c.expr(tmpl.Extends.Name)
		}
		// An extending template's own body never renders directly; its
		// root runs definitions so sets and macros are in scope before
		// the base template's body pulls the overridden blocks.
		prog.Root = c.stmts(tmpl.Nodes, defsOnly)
	} else {
		prog.Root = c.stmts(tmpl.Nodes, renderAll)
	}

	prog.Deps = make([]string, 0, len(c.deps))
	for dep := range c.deps {
		prog.Deps = append(prog.Deps, dep)
	}
	sort.Strings(prog.Deps)
	return prog, nil
}

// collectStaticDeps records every statically named include and embed
// target, including ones inside branches that may never execute, so
// cache invalidation can follow the full reference graph.
func collectStaticDeps(nodes []ast.Stmt, deps map[string]struct{}) {
	ast.Walk(nodes, func(n ast.Node) bool {
		var name ast.Expr
		switch x := n.(type) {
		case *ast.IncludeStmt:
			name = x.Name
		case *ast.EmbedStmt:
			name = x.Name
		default:
			return true
		}
		if lit, ok := name.(*ast.StrLit); ok {
			deps[lit.Value] = struct{}{}
		}
		return true
	})
}

// bodyMode selects how a statement list lowers: renderAll emits
// everything, defsOnly runs only definitions and registers blocks
// without rendering them in place.
type bodyMode int

const (
	renderAll bodyMode = iota
	defsOnly
)

type compiler struct {
	prog *runtime.Program
	deps map[string]struct{}

	// lenient suppresses strict-undefined failures while compiling the
	// left side of a coalesce, where a missing name selects the
	// fallback instead of erroring.
	lenient bool
}

// bail aborts compilation with a CompileError.
func (c *compiler) bail(format string, args ...any) {
	panic(&CompileError{Message: fmt.Sprintf(format, args...)})
}

// stmts compiles a statement list into a single step.
func (c *compiler) stmts(list []ast.Stmt, mode bodyMode) runtime.Step {
	steps := make([]runtime.Step, 0, len(list))
	for _, s := range list {
		if step := c.stmt(s, mode); step != nil {
			steps = append(steps, step)
		}
	}
	switch len(steps) {
	case 0:
		return func(*runtime.State) error { return nil }
	case 1:
		return steps[0]
	}
	return func(st *runtime.State) error {
		for _, step := range steps {
			if err := step(st); err != nil {
				return err
			}
		}
		return nil
	}
}
