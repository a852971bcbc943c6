package runtime

import (
	"fmt"
	"strings"
)

// Env supplies the render-time services a State needs beyond its own
// variables: template resolution for include/embed/extends and the
// filter and function registries. The engine implements it.
type Env interface {
	// ResolveProgram returns the compiled program for a template name.
	ResolveProgram(name string) (*Program, error)

	// Filter returns the named filter, or false.
	Filter(name string) (FilterFn, bool)

	// Function returns the named global function, or false.
	Function(name string) (FunctionFn, bool)
}

// FilterFn transforms a piped value. args holds the filter-call
// arguments after the piped value.
type FilterFn func(st *State, value any, args []any) (any, error)

// FunctionFn is a global template function.
type FunctionFn func(st *State, args []any) (any, error)

// Limits are the render-time safety bounds. Zero values select the
// package defaults.
type Limits struct {
	MaxIncludeDepth int
	AutoEscape      bool
	StrictUndefined bool
	StrictFilters   bool
}

// DefaultMaxIncludeDepth bounds nested include/embed/extends chains.
const DefaultMaxIncludeDepth = 16

// blockFrame is one template's merged view of the inheritance chain's
// blocks, plus the parent frame used by super-style lookups.
type blockFrame struct {
	blocks map[string]Step
}

// State carries everything mutable during a single render: the output
// buffer, the variable scope stack, block tables, macro definitions and
// depth accounting. A State serves exactly one render and is not safe
// for concurrent use.
type State struct {
	Env    Env
	Limits Limits

	out    *strings.Builder
	scopes []map[string]any
	macros map[string]*Macro

	// frames is the block-override stack. Rendering a block consults
	// the top frame; embed pushes a fresh frame, include pushes an
	// empty barrier frame.
	frames []blockFrame

	// nesting holds the names of templates currently being resolved
	// via include, embed or extends, outermost first.
	nesting []string
}

// NewState prepares a State with a root variable scope seeded from ctx.
func NewState(env Env, limits Limits, ctx map[string]any) *State {
	if limits.MaxIncludeDepth <= 0 {
		limits.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	root := make(map[string]any, len(ctx))
	for k, v := range ctx {
		root[k] = v
	}
	return &State{
		Env:    env,
		Limits: limits,
		out:    &strings.Builder{},
		scopes: []map[string]any{root},
		macros: make(map[string]*Macro),
		frames: []blockFrame{{}},
	}
}

// Output returns everything written so far.
func (st *State) Output() string { return st.out.String() }

// Grow pre-sizes the output buffer.
func (st *State) Grow(n int) {
	if n > 0 {
		st.out.Grow(n)
	}
}

// WriteString appends raw text to the output.
func (st *State) WriteString(s string) {
	st.out.WriteString(s)
}

// WriteValue stringifies v and appends it, HTML-escaping unless the
// value is Safe or escaping is disabled.
func (st *State) WriteValue(v any) {
	if s, ok := v.(Safe); ok {
		st.out.WriteString(string(s))
		return
	}
	s := Str(v)
	if st.Limits.AutoEscape {
		writeEscapedHTML(st.out, s)
		return
	}
	st.out.WriteString(s)
}

// Capture runs step against a temporary buffer and returns what it
// wrote, restoring the previous buffer afterwards.
func (st *State) Capture(step Step) (string, error) {
	prev := st.out
	st.out = &strings.Builder{}
	err := step(st)
	s := st.out.String()
	st.out = prev
	if err != nil {
		return "", err
	}
	return s, nil
}

// Lookup finds name in the scope stack, innermost first, then among
// defined macros.
func (st *State) Lookup(name string) (any, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if v, ok := st.scopes[i][name]; ok {
			return v, true
		}
	}
	if m, ok := st.macros[name]; ok {
		return m, true
	}
	return nil, false
}

// Set assigns name in the innermost scope that already defines it, or
// the current scope otherwise.
func (st *State) Set(name string, v any) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if _, ok := st.scopes[i][name]; ok {
			st.scopes[i][name] = v
			return
		}
	}
	st.scopes[len(st.scopes)-1][name] = v
}

// SetLocal assigns name in the current innermost scope unconditionally.
func (st *State) SetLocal(name string, v any) {
	st.scopes[len(st.scopes)-1][name] = v
}

// PushScope opens a new variable scope. PopScope closes it.
func (st *State) PushScope() {
	st.scopes = append(st.scopes, make(map[string]any, 4))
}

func (st *State) PopScope() {
	st.scopes = st.scopes[:len(st.scopes)-1]
}

// DefineMacro registers a macro for the rest of the render.
func (st *State) DefineMacro(m *Macro) {
	st.macros[m.Name] = m
}

// topFrame returns the active block table.
func (st *State) topFrame() *blockFrame {
	return &st.frames[len(st.frames)-1]
}

// RenderBlock runs the named block from the active frame. Missing
// blocks render nothing; an inheritance chain already merged every
// definition into the frame, so absence means no ancestor defined it.
func (st *State) RenderBlock(name string) error {
	f := st.topFrame()
	step, ok := f.blocks[name]
	if !ok {
		return nil
	}
	return step(st)
}

// HasBlock reports whether the active frame defines name.
func (st *State) HasBlock(name string) bool {
	_, ok := st.topFrame().blocks[name]
	return ok
}

// enterNested pushes a template onto the resolution stack, enforcing
// the depth bound. The limit error names the whole chain so a cycle is
// readable from the message.
func (st *State) enterNested(name string) error {
	if len(st.nesting) >= st.Limits.MaxIncludeDepth {
		chain := append(append([]string(nil), st.nesting...), name)
		return fmt.Errorf("template nesting exceeds limit of %d: %s",
			st.Limits.MaxIncludeDepth, strings.Join(chain, " -> "))
	}
	st.nesting = append(st.nesting, name)
	return nil
}

func (st *State) leaveNested() { st.nesting = st.nesting[:len(st.nesting)-1] }

// Include renders another template into the current output. The
// included template shares the variable scopes but sees no inherited
// blocks: an empty barrier frame is pushed for its duration.
func (st *State) Include(name string) error {
	if err := st.enterNested(name); err != nil {
		return err
	}
	defer st.leaveNested()

	prog, err := st.Env.ResolveProgram(name)
	if err != nil {
		return err
	}
	st.frames = append(st.frames, blockFrame{})
	err = st.ExecTemplate(prog)
	st.frames = st.frames[:len(st.frames)-1]
	return err
}

// Embed renders another template with the given block overrides
// replacing its blocks where names collide. The embedded template's own
// inheritance chain still applies beneath the overrides.
func (st *State) Embed(name string, overrides map[string]Step) error {
	if err := st.enterNested(name); err != nil {
		return err
	}
	defer st.leaveNested()

	prog, err := st.Env.ResolveProgram(name)
	if err != nil {
		return err
	}
	chain, err := st.resolveChain(prog)
	if err != nil {
		return err
	}
	merged := mergeBlocks(chain)
	for bn, step := range overrides {
		merged[bn] = step
	}

	st.frames = append(st.frames, blockFrame{blocks: merged})
	err = execChain(st, chain)
	st.frames = st.frames[:len(st.frames)-1]
	return err
}

// ExecTemplate renders prog, resolving its extends chain first. This is
// the entry point for both top-level renders and includes.
func (st *State) ExecTemplate(prog *Program) error {
	chain, err := st.resolveChain(prog)
	if err != nil {
		return err
	}
	merged := mergeBlocks(chain)

	st.frames = append(st.frames, blockFrame{blocks: merged})
	err = execChain(st, chain)
	st.frames = st.frames[:len(st.frames)-1]
	return err
}

// resolveChain walks the extends chain from prog to its root ancestor.
// chain[0] is prog itself, chain[len-1] the base template.
func (st *State) resolveChain(prog *Program) ([]*Program, error) {
	chain := []*Program{prog}
	cur := prog
	for {
		parentName := cur.Extends
		if cur.ExtendsDynamic != nil {
			v, err := cur.ExtendsDynamic(st)
			if err != nil {
				return nil, err
			}
			parentName = Str(v)
		}
		if parentName == "" {
			return chain, nil
		}
		if len(chain) > st.Limits.MaxIncludeDepth {
			return nil, fmt.Errorf("inheritance chain exceeds limit of %d at %q", st.Limits.MaxIncludeDepth, parentName)
		}
		parent, err := st.Env.ResolveProgram(parentName)
		if err != nil {
			return nil, fmt.Errorf("resolving parent of %q: %w", cur.Name, err)
		}
		chain = append(chain, parent)
		cur = parent
	}
}

// mergeBlocks builds the effective block table for a chain: the most
// derived definition of each block wins.
func mergeBlocks(chain []*Program) map[string]Step {
	merged := make(map[string]Step)
	for i := len(chain) - 1; i >= 0; i-- {
		for name, step := range chain[i].Blocks {
			merged[name] = step
		}
	}
	return merged
}

// execChain runs the definition roots of every derived template so
// their sets and macros take effect, then renders the base template's
// body, which pulls overridden blocks from the active frame.
func execChain(st *State, chain []*Program) error {
	for i := 0; i < len(chain)-1; i++ {
		if err := chain[i].Root(st); err != nil {
			return err
		}
	}
	return chain[len(chain)-1].Root(st)
}
