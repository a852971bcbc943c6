package kida

import (
	"github.com/lbliii/kida/internal/runtime"
)

// Template is a compiled template bound to the engine that compiled
// it. Templates are immutable and safe for concurrent rendering; each
// Render call runs against an independent state.
type Template struct {
	engine *Engine
	prog   *runtime.Program
}

// Name returns the template's name.
func (t *Template) Name() string { return t.prog.Name }

// Hash returns the hex content hash of the template's source.
func (t *Template) Hash() string { return t.prog.Hash }

// Deps returns the statically-known templates this one references via
// include, embed or extends, sorted.
func (t *Template) Deps() []string {
	out := make([]string, len(t.prog.Deps))
	copy(out, t.prog.Deps)
	return out
}

// Render executes the template against ctx and returns the output.
func (t *Template) Render(ctx map[string]any) (string, error) {
	e := t.engine
	limits := runtime.Limits{
		MaxIncludeDepth: e.cfg.MaxIncludeDepth,
		AutoEscape:      *e.cfg.AutoEscape,
		StrictUndefined: e.cfg.StrictUndefined,
		StrictFilters:   e.cfg.StrictFilters,
	}
	st := runtime.NewState(engineEnv{e: e}, limits, ctx)

	// The size hint is a static lower bound; under the threshold the
	// builder's own growth is cheaper than a speculative allocation.
	if t.prog.SizeHint >= e.cfg.BufferPreallocationThreshold {
		st.Grow(t.prog.SizeHint)
	}

	if err := st.ExecTemplate(t.prog); err != nil {
		if re, ok := err.(*RenderError); ok {
			return "", re
		}
		return "", &RenderError{Template: t.prog.Name, Message: err.Error(), Cause: err}
	}
	return st.Output(), nil
}
