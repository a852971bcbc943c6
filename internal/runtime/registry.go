package runtime

import "sort"

// Registry holds a named set of callables in two layers: the builtin
// layer installed at construction and a user layer on top. User
// registrations shadow builtins of the same name without removing
// them.
type Registry[T any] struct {
	builtin map[string]T
	user    map[string]T
}

// NewRegistry wraps the builtin set. The map is used as-is.
func NewRegistry[T any](builtin map[string]T) *Registry[T] {
	return &Registry[T]{builtin: builtin, user: make(map[string]T)}
}

// Lookup returns the user entry for name if present, the builtin
// otherwise.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	if v, ok := r.user[name]; ok {
		return v, true
	}
	v, ok := r.builtin[name]
	return v, ok
}

// Register installs a user entry, shadowing any builtin of that name.
func (r *Registry[T]) Register(name string, v T) {
	r.user[name] = v
}

// Overridden lists builtin names currently shadowed by user entries,
// sorted.
func (r *Registry[T]) Overridden() []string {
	var names []string
	for name := range r.user {
		if _, ok := r.builtin[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Names lists every resolvable name, sorted.
func (r *Registry[T]) Names() []string {
	seen := make(map[string]struct{}, len(r.builtin)+len(r.user))
	for name := range r.builtin {
		seen[name] = struct{}{}
	}
	for name := range r.user {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
