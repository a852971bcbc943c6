package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// HashSource returns the hex content hash used in cache keys and
// Program metadata.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Step is one compiled render operation. A compiled template is a tree
// of steps closed over their compiled children; executing the root with
// a State renders the template.
type Step func(*State) error

// ValueFn is a compiled expression.
type ValueFn func(*State) (any, error)

// Loop control sentinels, consumed by the enclosing for-loop step.
var (
	ErrBreak    = errors.New("break")
	ErrContinue = errors.New("continue")
)

// Program is an executable template unit plus metadata. A Program holds
// no per-render state: the same Program may be rendered concurrently
// against independent States.
type Program struct {
	// Name is the source template name.
	Name string

	// Hash is the hex content hash of the source, used in cache keys.
	Hash string

	// Root renders the template body. For extending templates, Root
	// runs only the top-level definitions (set, macro); output comes
	// from the parent chain.
	Root Step

	// Blocks maps block names to their renderers.
	Blocks map[string]Step

	// Extends names the parent template, "" for none. ExtendsDynamic
	// is set instead when the parent name is computed at render time.
	Extends        string
	ExtendsDynamic ValueFn

	// Deps is the set of statically-known templates this one references
	// via include, embed, or extends, for cache invalidation.
	Deps []string

	// SizeHint estimates the output size in bytes. When Exact is
	// false the hint is a lower bound (the template loops over input
	// of unknown length) and only pre-allocation may rely on it.
	SizeHint  int
	SizeExact bool
}

// Macro is a callable render fragment defined by a macro statement.
// Calling it renders the body against bound parameters and returns the
// output as a Safe string.
type Macro struct {
	Name     string
	Params   []string
	Defaults []ValueFn // parallel to Params, nil entries are required
	Body     Step
}

// Call renders the macro with positional arguments.
func (m *Macro) Call(st *State, args []any) (any, error) {
	if len(args) > len(m.Params) {
		return nil, fmt.Errorf("macro %q takes at most %d arguments, got %d", m.Name, len(m.Params), len(args))
	}
	scope := make(map[string]any, len(m.Params))
	for i, param := range m.Params {
		if i < len(args) {
			scope[param] = args[i]
			continue
		}
		if m.Defaults[i] == nil {
			return nil, fmt.Errorf("macro %q missing required argument %q", m.Name, param)
		}
		v, err := m.Defaults[i](st)
		if err != nil {
			return nil, err
		}
		scope[param] = v
	}

	st.scopes = append(st.scopes, scope)
	out, err := st.Capture(m.Body)
	st.scopes = st.scopes[:len(st.scopes)-1]
	if err != nil {
		return nil, err
	}
	return Safe(out), nil
}

func (m *Macro) String() string { return fmt.Sprintf("<macro %s>", m.Name) }

// LoopValue is the loop variable bound inside for bodies.
type LoopValue struct {
	Index  int64 // 1-based
	Index0 int64 // 0-based
	First  bool
	Last   bool
	Length int64

	// Recurse re-renders the loop body over a nested iterable; set only
	// for loops declared recursive, where the loop variable is callable.
	Recurse func(st *State, iterable any) (any, error)
}

func (l *LoopValue) attr(name string) (any, bool) {
	switch name {
	case "index":
		return l.Index, true
	case "index0":
		return l.Index0, true
	case "first":
		return l.First, true
	case "last":
		return l.Last, true
	case "length":
		return l.Length, true
	}
	return nil, false
}

func (l *LoopValue) String() string { return fmt.Sprintf("<loop %d/%d>", l.Index, l.Length) }
