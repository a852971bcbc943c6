package kida

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lbliii/kida/internal/compiler"
	"github.com/lbliii/kida/internal/lexer"
	"github.com/lbliii/kida/internal/optimizer"
	"github.com/lbliii/kida/internal/parser"
	"github.com/lbliii/kida/internal/runtime"
)

// Version is the kida version string.
const Version = "0.1.0"

// Engine compiles and renders templates. It owns the configuration,
// the filter and function registries, the loader and the compiled
// cache; there is no package-level shared state, so independent
// engines never interfere.
//
// An Engine is safe for concurrent use.
type Engine struct {
	cfg    Config
	loader Loader
	log    *slog.Logger

	filters   *runtime.Registry[runtime.FilterFn]
	functions *runtime.Registry[runtime.FunctionFn]

	mu    sync.RWMutex
	cache map[cacheKey]*cacheEntry
	sf    singleflight.Group
}

// cacheKey identifies one compiled form of one template: recompiled
// content gets a new hash and therefore a new entry.
type cacheKey struct {
	name string
	hash string
}

type cacheEntry struct {
	prog     *runtime.Program
	compiled time.Time
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the logger used for cache and watch events.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine. A nil config selects the defaults; loader may
// be nil for engines that only ever render explicit sources.
func New(cfg *Config, loader Loader, opts ...Option) *Engine {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.applyDefaults()
	e := &Engine{
		cfg:       c,
		loader:    loader,
		log:       slog.Default(),
		filters:   runtime.NewRegistry(runtime.BuiltinFilters()),
		functions: runtime.NewRegistry(runtime.BuiltinFunctions()),
		cache:     make(map[cacheKey]*cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterFilter installs a user filter, shadowing any builtin of the
// same name. Registering over an inlinable builtin drops the cache:
// cached programs may have inlined the builtin behavior.
func (e *Engine) RegisterFilter(name string, fn func(value any, args []any) (any, error)) {
	e.filters.Register(name, func(_ *runtime.State, value any, args []any) (any, error) {
		return fn(value, args)
	})
	if _, inlinable := runtime.InlinableFilters[name]; inlinable {
		e.mu.Lock()
		n := len(e.cache)
		e.cache = make(map[cacheKey]*cacheEntry)
		e.mu.Unlock()
		if n > 0 {
			e.log.Debug("cache dropped after filter override", "filter", name, "entries", n)
		}
	}
}

// RegisterFunction installs a user global function, shadowing any
// builtin of the same name.
func (e *Engine) RegisterFunction(name string, fn func(args []any) (any, error)) {
	e.functions.Register(name, func(_ *runtime.State, args []any) (any, error) {
		return fn(args)
	})
}

// Compile compiles source under the given name and caches the result.
func (e *Engine) Compile(name, source string) (*Template, error) {
	prog, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	return &Template{engine: e, prog: prog}, nil
}

// Load resolves a template through the loader and compiles it, using
// the cache when the content is unchanged.
func (e *Engine) Load(name string) (*Template, error) {
	prog, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	return &Template{engine: e, prog: prog}, nil
}

// Render resolves, compiles and renders a template in one call.
func (e *Engine) Render(name string, ctx map[string]any) (string, error) {
	t, err := e.Load(name)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// RenderSource renders one-off source without going through the
// loader. The compiled form is still cached by content hash.
func (e *Engine) RenderSource(name, source string, ctx map[string]any) (string, error) {
	t, err := e.Compile(name, source)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// Invalidate drops cached programs for the named template and for any
// template that depends on it via include, embed or extends.
func (e *Engine) Invalidate(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, entry := range e.cache {
		if key.name == name || dependsOn(entry.prog, name) {
			delete(e.cache, key)
		}
	}
}

// Reclaim drops cache entries compiled longer than maxAge ago and
// returns how many were removed.
func (e *Engine) Reclaim(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key, entry := range e.cache {
		if entry.compiled.Before(cutoff) {
			delete(e.cache, key)
			n++
		}
	}
	return n
}

func dependsOn(prog *runtime.Program, name string) bool {
	for _, dep := range prog.Deps {
		if dep == name {
			return true
		}
	}
	return false
}

// resolve loads a template's current source and returns its compiled
// program, compiling on a cache miss.
func (e *Engine) resolve(name string) (*runtime.Program, error) {
	if e.loader == nil {
		return nil, &RenderError{Template: name, Message: "no loader configured", Cause: ErrTemplateNotFound}
	}
	source, err := e.loader.Load(name)
	if err != nil {
		return nil, &RenderError{Template: name, Message: err.Error(), Cause: err}
	}
	return e.compile(name, source)
}

// compile returns the cached program for this exact source, compiling
// once per key even under concurrent misses.
func (e *Engine) compile(name, source string) (*runtime.Program, error) {
	hash := runtime.HashSource(source)
	key := cacheKey{name: name, hash: hash}

	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return entry.prog, nil
	}

	v, err, _ := e.sf.Do(name+"\x00"+hash, func() (any, error) {
		e.mu.RLock()
		entry, ok := e.cache[key]
		e.mu.RUnlock()
		if ok {
			return entry.prog, nil
		}

		prog, err := e.compileSource(name, source)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.cache[key] = &cacheEntry{prog: prog, compiled: time.Now()}
		e.mu.Unlock()
		return prog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*runtime.Program), nil
}

// compileSource runs the full pipeline, converting internal errors to
// the public taxonomy.
func (e *Engine) compileSource(name, source string) (*runtime.Program, error) {
	toks, err := lexer.Tokenize(name, source, e.cfg.MaxTokens)
	if err != nil {
		var le *lexer.Error
		if errors.As(err, &le) {
			return nil, &LexError{Template: name, Line: le.Pos.Line, Column: le.Pos.Column, Message: le.Message}
		}
		return nil, &LexError{Template: name, Message: err.Error()}
	}

	tmpl, err := parser.ParseTokens(name, toks)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			return nil, &ParseError{Template: name, Line: pe.Pos.Line, Column: pe.Pos.Column, Message: pe.Message}
		}
		return nil, &ParseError{Template: name, Message: err.Error()}
	}

	opts := optimizer.DefaultOptions()
	if !*e.cfg.FilterInlining {
		opts.Inline = false
	} else {
		for _, overridden := range e.filters.Overridden() {
			delete(opts.InlineNames, overridden)
		}
	}
	res := optimizer.Optimize(tmpl, opts)
	for pass, stats := range res.Stats {
		if stats.Skips > 0 {
			e.log.Debug("optimizer pass skipped nodes", "template", name, "pass", pass, "skips", stats.Skips)
		}
	}

	prog, err := compiler.Compile(res, compiler.Meta{Name: name, Source: source})
	if err != nil {
		return nil, &CompileError{Template: name, Message: err.Error()}
	}
	return prog, nil
}

// engineEnv adapts the Engine to the runtime's Env interface without
// exposing the resolution methods on the public type.
type engineEnv struct {
	e *Engine
}

func (v engineEnv) ResolveProgram(name string) (*runtime.Program, error) {
	return v.e.resolve(name)
}

func (v engineEnv) Filter(name string) (runtime.FilterFn, bool) {
	return v.e.filters.Lookup(name)
}

func (v engineEnv) Function(name string) (runtime.FunctionFn, bool) {
	return v.e.functions.Lookup(name)
}
