package runtime

import (
	"fmt"
	"strings"
	"testing"
)

// stubEnv resolves programs from a fixed map and serves the builtin
// filters and functions.
type stubEnv struct {
	programs map[string]*Program
}

func (e *stubEnv) ResolveProgram(name string) (*Program, error) {
	p, ok := e.programs[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return p, nil
}

func (e *stubEnv) Filter(name string) (FilterFn, bool) {
	f, ok := BuiltinFilters()[name]
	return f, ok
}

func (e *stubEnv) Function(name string) (FunctionFn, bool) {
	f, ok := BuiltinFunctions()[name]
	return f, ok
}

func emit(s string) Step {
	return func(st *State) error {
		st.WriteString(s)
		return nil
	}
}

func newTestState(ctx map[string]any) *State {
	return NewState(&stubEnv{programs: map[string]*Program{}}, Limits{}, ctx)
}

func TestWriteValueEscaping(t *testing.T) {
	st := NewState(nil, Limits{AutoEscape: true}, nil)
	st.WriteValue(`<a href="x">`)
	st.WriteValue(Safe("<b>"))
	want := "&lt;a href=&#34;x&#34;&gt;<b>"
	if got := st.Output(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	st = NewState(nil, Limits{AutoEscape: false}, nil)
	st.WriteValue("<raw>")
	if got := st.Output(); got != "<raw>" {
		t.Errorf("got %q, want <raw>", got)
	}
}

func TestScopes(t *testing.T) {
	st := newTestState(map[string]any{"x": int64(1)})

	if v, ok := st.Lookup("x"); !ok || v != int64(1) {
		t.Fatalf("root lookup: got %#v, %v", v, ok)
	}

	st.PushScope()
	st.SetLocal("y", "inner")
	if v, ok := st.Lookup("y"); !ok || v != "inner" {
		t.Errorf("inner lookup: got %#v, %v", v, ok)
	}
	// Set targets the innermost scope that defines the name.
	st.Set("x", int64(2))
	st.PopScope()

	if v, _ := st.Lookup("x"); v != int64(2) {
		t.Errorf("x after inner set: got %#v, want 2", v)
	}
	if _, ok := st.Lookup("y"); ok {
		t.Error("y should not survive PopScope")
	}
}

func TestSetCreatesInCurrentScope(t *testing.T) {
	st := newTestState(nil)
	st.PushScope()
	st.Set("fresh", int64(1))
	st.PopScope()
	if _, ok := st.Lookup("fresh"); ok {
		t.Error("fresh assigned inside scope should not leak out")
	}
}

func TestCapture(t *testing.T) {
	st := newTestState(nil)
	st.WriteString("before ")
	out, err := st.Capture(emit("captured"))
	if err != nil {
		t.Fatal(err)
	}
	if out != "captured" {
		t.Errorf("captured %q", out)
	}
	st.WriteString("after")
	if got := st.Output(); got != "before after" {
		t.Errorf("output %q, want %q", got, "before after")
	}
}

func TestMacroCall(t *testing.T) {
	st := newTestState(nil)
	m := &Macro{
		Name:     "greet",
		Params:   []string{"name", "suffix"},
		Defaults: []ValueFn{nil, func(*State) (any, error) { return "!", nil }},
		Body: func(st *State) error {
			name, _ := st.Lookup("name")
			suffix, _ := st.Lookup("suffix")
			st.WriteString("hi " + Str(name) + Str(suffix))
			return nil
		},
	}

	out, err := m.Call(st, []any{"ada"})
	if err != nil {
		t.Fatal(err)
	}
	if out != Safe("hi ada!") {
		t.Errorf("got %#v", out)
	}

	if _, err := m.Call(st, nil); err == nil {
		t.Error("expected missing required argument error")
	}
	if _, err := m.Call(st, []any{"a", "b", "c"}); err == nil {
		t.Error("expected too many arguments error")
	}
}

func TestExecTemplateInheritance(t *testing.T) {
	base := &Program{
		Name: "base.html",
		Root: func(st *State) error {
			st.WriteString("[")
			if err := st.RenderBlock("content"); err != nil {
				return err
			}
			st.WriteString("]")
			return nil
		},
		Blocks: map[string]Step{"content": emit("base")},
	}
	child := &Program{
		Name:    "child.html",
		Extends: "base.html",
		Root:    func(*State) error { return nil },
		Blocks:  map[string]Step{"content": emit("child")},
	}

	env := &stubEnv{programs: map[string]*Program{"base.html": base, "child.html": child}}
	st := NewState(env, Limits{}, nil)
	if err := st.ExecTemplate(child); err != nil {
		t.Fatal(err)
	}
	if got := st.Output(); got != "[child]" {
		t.Errorf("got %q, want [child]", got)
	}
}

func TestExecTemplateGrandchildWins(t *testing.T) {
	base := &Program{
		Name: "base",
		Root: func(st *State) error { return st.RenderBlock("b") },
		Blocks: map[string]Step{
			"b": emit("base"),
		},
	}
	mid := &Program{
		Name:    "mid",
		Extends: "base",
		Root:    func(*State) error { return nil },
		Blocks:  map[string]Step{"b": emit("mid")},
	}
	leaf := &Program{
		Name:    "leaf",
		Extends: "mid",
		Root:    func(*State) error { return nil },
		Blocks:  map[string]Step{},
	}

	env := &stubEnv{programs: map[string]*Program{"base": base, "mid": mid}}
	st := NewState(env, Limits{}, nil)
	if err := st.ExecTemplate(leaf); err != nil {
		t.Fatal(err)
	}
	// leaf defines no b, so the most derived definition below it wins.
	if got := st.Output(); got != "mid" {
		t.Errorf("got %q, want mid", got)
	}
}

func TestIncludeBlocksAreBarriered(t *testing.T) {
	partial := &Program{
		Name: "partial",
		Root: func(st *State) error {
			// The including template's blocks must not be visible here.
			if st.HasBlock("content") {
				return fmt.Errorf("leaked block")
			}
			st.WriteString("partial")
			return nil
		},
		Blocks: map[string]Step{},
	}
	outer := &Program{
		Name: "outer",
		Root: func(st *State) error {
			return st.Include("partial")
		},
		Blocks: map[string]Step{"content": emit("x")},
	}

	env := &stubEnv{programs: map[string]*Program{"partial": partial}}
	st := NewState(env, Limits{}, nil)
	if err := st.ExecTemplate(outer); err != nil {
		t.Fatal(err)
	}
	if got := st.Output(); got != "partial" {
		t.Errorf("got %q", got)
	}
}

func TestIncludeDepthLimit(t *testing.T) {
	env := &stubEnv{programs: map[string]*Program{}}
	env.programs["self"] = &Program{
		Name:   "self",
		Root:   func(st *State) error { return st.Include("self") },
		Blocks: map[string]Step{},
	}

	st := NewState(env, Limits{MaxIncludeDepth: 4}, nil)
	err := st.Include("self")
	if err == nil {
		t.Fatal("expected nesting limit error")
	}
	if !strings.Contains(err.Error(), "nesting exceeds limit") {
		t.Errorf("unexpected error: %v", err)
	}
	// The message names the whole resolution chain.
	want := "self -> self -> self -> self -> self"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not name the chain %q", err.Error(), want)
	}
}

func TestEmbedOverrides(t *testing.T) {
	card := &Program{
		Name: "card",
		Root: func(st *State) error {
			st.WriteString("<")
			if err := st.RenderBlock("title"); err != nil {
				return err
			}
			st.WriteString(">")
			return nil
		},
		Blocks: map[string]Step{"title": emit("default")},
	}

	env := &stubEnv{programs: map[string]*Program{"card": card}}
	st := NewState(env, Limits{}, nil)
	err := st.Embed("card", map[string]Step{"title": emit("custom")})
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Output(); got != "<custom>" {
		t.Errorf("got %q, want <custom>", got)
	}
	// The override was scoped to the embed.
	if st.HasBlock("title") {
		t.Error("override leaked past the embed")
	}
}

func TestRenderBlockMissing(t *testing.T) {
	st := newTestState(nil)
	if err := st.RenderBlock("nope"); err != nil {
		t.Errorf("missing block should render nothing, got %v", err)
	}
	if st.Output() != "" {
		t.Errorf("output %q, want empty", st.Output())
	}
}
