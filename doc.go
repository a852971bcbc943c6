// Package kida provides a compiled template engine for HTML and text
// output.
//
// Templates use {{ expression }} interpolation and {% tag %} control
// statements, with inheritance (extends/block), composition
// (include/embed), macros, a filter pipeline and automatic HTML
// escaping.
//
// # Quick Start
//
//	engine := kida.New(nil, kida.NewDirLoader("templates"))
//	out, err := engine.Render("page.html", map[string]any{
//	    "title": "Hello",
//	    "items": []any{"a", "b"},
//	})
//
// One-off sources bypass the loader:
//
//	out, err := engine.RenderSource("inline", `{{ name | upper }}`,
//	    map[string]any{"name": "kida"})
//
// # Compilation and caching
//
// Source is lexed, parsed, optimized (constant folding, dead-code
// elimination, filter inlining, text coalescing, buffer sizing) and
// lowered to an executable form. Compiled templates are cached by name
// and content hash; changed content compiles fresh, unchanged content
// never recompiles. [Engine.Watch] keeps the cache in sync with a
// template directory during development.
//
// # Extension
//
// [Engine.RegisterFilter] and [Engine.RegisterFunction] add or shadow
// callables:
//
//	engine.RegisterFilter("shout", func(v any, args []any) (any, error) {
//	    return strings.ToUpper(fmt.Sprint(v)) + "!", nil
//	})
//
// # Error Handling
//
// Errors are returned as specific types for detailed handling:
//   - [LexError]: malformed tokens, token-count cap exceeded
//   - [ParseError]: syntax errors with exact source position
//   - [CompileError]: internal lowering bugs (never user input)
//   - [RenderError]: missing templates, recursion limits, strict-mode
//     violations, failing filters
//
// # Thread Safety
//
// An [Engine] and its compiled [Template] objects are safe for
// concurrent use. Each render runs against an independent state.
package kida
