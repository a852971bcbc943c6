package runtime

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
)

// filterRegexCache backs the regex filters. Filters share one
// process-wide cache: patterns are template literals, so the working
// set is small and reuse across engines is free.
var filterRegexCache = NewRegexCache(256)

var tagPattern = "<[^>]*>"

var markdownConverter = goldmark.New()

// BuiltinFilters returns the stock filter set. The returned map is
// fresh on each call so a Registry may take ownership of it.
func BuiltinFilters() map[string]FilterFn {
	return map[string]FilterFn{
		"upper":      filterUpper,
		"lower":      filterLower,
		"title":      filterTitle,
		"capitalize": filterCapitalize,
		"trim":       filterTrim,
		"length":     filterLength,
		"first":      filterFirst,
		"last":       filterLast,
		"join":       filterJoin,
		"default":    filterDefault,
		"abs":        filterAbs,
		"round":      filterRound,
		"replace":    filterReplace,
		"match":      filterMatch,
		"split":      filterSplit,
		"striptags":  filterStriptags,
		"markdown":   filterMarkdown,
		"escape":     filterEscape,
		"safe":       filterSafe,
		"urlencode":  filterURLEncode,
		"truncate":   filterTruncate,
	}
}

// InlinableFilters is the allow-list of pure, argument-free filters the
// optimizer may bypass registry dispatch for.
var InlinableFilters = map[string]struct{}{
	"upper":      {},
	"lower":      {},
	"title":      {},
	"capitalize": {},
	"trim":       {},
	"safe":       {},
}

// InlineFilter applies an allow-listed filter directly, without
// registry lookup. name must be in InlinableFilters.
func InlineFilter(name string, v any) any {
	switch name {
	case "upper":
		return strings.ToUpper(Str(v))
	case "lower":
		return strings.ToLower(Str(v))
	case "title":
		return titleCase(Str(v))
	case "capitalize":
		return capitalize(Str(v))
	case "trim":
		return strings.TrimSpace(Str(v))
	case "safe":
		if s, ok := v.(Safe); ok {
			return s
		}
		return Safe(Str(v))
	}
	return v
}

func wantArgs(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("filter %q takes %d argument(s), got %d", name, min, len(args))
		}
		return fmt.Errorf("filter %q takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func filterUpper(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("upper", args, 0, 0); err != nil {
		return nil, err
	}
	return strings.ToUpper(Str(v)), nil
}

func filterLower(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("lower", args, 0, 0); err != nil {
		return nil, err
	}
	return strings.ToLower(Str(v)), nil
}

// titleCase upper-cases the first letter of each space-separated word
// and lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wordStart := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			wordStart = true
			b.WriteRune(r)
			continue
		}
		if wordStart {
			b.WriteRune(unicode.ToUpper(r))
			wordStart = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func filterTitle(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("title", args, 0, 0); err != nil {
		return nil, err
	}
	return titleCase(Str(v)), nil
}

func filterCapitalize(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("capitalize", args, 0, 0); err != nil {
		return nil, err
	}
	return capitalize(Str(v)), nil
}

func filterTrim(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("trim", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return strings.Trim(Str(v), Str(args[0])), nil
	}
	return strings.TrimSpace(Str(v)), nil
}

func filterLength(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("length", args, 0, 0); err != nil {
		return nil, err
	}
	n, ok := Len(v)
	if !ok {
		return nil, fmt.Errorf("filter \"length\": %s has no length", TypeName(v))
	}
	return int64(n), nil
}

func filterFirst(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("first", args, 0, 0); err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil, nil
		}
		_, size := utf8.DecodeRuneInString(s)
		return s[:size], nil
	}
	pairs, err := Iter(v)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return pairs[0].Value, nil
}

func filterLast(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("last", args, 0, 0); err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil, nil
		}
		_, size := utf8.DecodeLastRuneInString(s)
		return s[len(s)-size:], nil
	}
	pairs, err := Iter(v)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return pairs[len(pairs)-1].Value, nil
}

func filterJoin(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("join", args, 0, 1); err != nil {
		return nil, err
	}
	sep := ""
	if len(args) == 1 {
		sep = Str(args[0])
	}
	pairs, err := Iter(v)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(Str(p.Value))
	}
	return b.String(), nil
}

// filterDefault substitutes the fallback for none or missing values.
// With a second truthy argument it also substitutes for falsy values.
func filterDefault(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("default", args, 1, 2); err != nil {
		return nil, err
	}
	useFalsy := len(args) == 2 && Truth(args[1])
	if IsNone(v) || (useFalsy && !Truth(v)) {
		return args[0], nil
	}
	return v, nil
}

func filterAbs(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("abs", args, 0, 0); err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case int64:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case float64:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	}
	if i, ok := AsInt(v); ok {
		if i < 0 {
			return -i, nil
		}
		return i, nil
	}
	if f, ok := AsFloat(v); ok {
		if f < 0 {
			return -f, nil
		}
		return f, nil
	}
	return nil, fmt.Errorf("filter \"abs\": not a number: %s", TypeName(v))
}

// filterRound rounds half away from zero to the given number of
// decimal places, defaulting to zero places. Decimal arithmetic keeps
// results like 2.675|round(2) at 2.68 instead of the float64 2.67.
func filterRound(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("round", args, 0, 1); err != nil {
		return nil, err
	}
	places := int64(0)
	if len(args) == 1 {
		p, ok := AsInt(args[0])
		if !ok {
			return nil, fmt.Errorf("filter \"round\": places must be an integer, got %s", TypeName(args[0]))
		}
		places = p
	}
	var d decimal.Decimal
	switch n := v.(type) {
	case int64:
		d = decimal.NewFromInt(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case string:
		var err error
		d, err = decimal.NewFromString(n)
		if err != nil {
			return nil, fmt.Errorf("filter \"round\": not a number: %q", n)
		}
	default:
		f, ok := AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("filter \"round\": not a number: %s", TypeName(v))
		}
		d = decimal.NewFromFloat(f)
	}
	rounded := d.Round(int32(places))
	if places <= 0 && rounded.IsInteger() {
		return rounded.IntPart(), nil
	}
	f, _ := rounded.Float64()
	return f, nil
}

// filterReplace substitutes occurrences of a regex pattern. A third
// literal=true argument switches to plain string replacement.
func filterReplace(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("replace", args, 2, 3); err != nil {
		return nil, err
	}
	s := Str(v)
	pat, repl := Str(args[0]), Str(args[1])
	if len(args) == 3 && Truth(args[2]) {
		return strings.ReplaceAll(s, pat, repl), nil
	}
	re, err := filterRegexCache.Get(pat)
	if err != nil {
		return nil, fmt.Errorf("filter \"replace\": bad pattern %q: %w", pat, err)
	}
	return re.ReplaceAllString(s, repl), nil
}

func filterMatch(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("match", args, 1, 1); err != nil {
		return nil, err
	}
	pat := Str(args[0])
	re, err := filterRegexCache.Get(pat)
	if err != nil {
		return nil, fmt.Errorf("filter \"match\": bad pattern %q: %w", pat, err)
	}
	return re.MatchString(Str(v)), nil
}

func filterSplit(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("split", args, 1, 1); err != nil {
		return nil, err
	}
	pat := Str(args[0])
	re, err := filterRegexCache.Get(pat)
	if err != nil {
		return nil, fmt.Errorf("filter \"split\": bad pattern %q: %w", pat, err)
	}
	parts := re.Split(Str(v), -1)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func filterStriptags(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("striptags", args, 0, 0); err != nil {
		return nil, err
	}
	re, err := filterRegexCache.Get(tagPattern)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(re.ReplaceAllString(Str(v), "")), nil
}

// filterMarkdown converts markdown source to HTML. The result is Safe:
// converting and then escaping would defeat the point.
func filterMarkdown(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("markdown", args, 0, 0); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(Str(v)), &buf); err != nil {
		return nil, fmt.Errorf("filter \"markdown\": %w", err)
	}
	return Safe(buf.String()), nil
}

// filterEscape escapes HTML and marks the result Safe so autoescape
// does not escape it again.
func filterEscape(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("escape", args, 0, 0); err != nil {
		return nil, err
	}
	if s, ok := v.(Safe); ok {
		return s, nil
	}
	return Safe(EscapeHTML(Str(v))), nil
}

func filterSafe(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("safe", args, 0, 0); err != nil {
		return nil, err
	}
	if s, ok := v.(Safe); ok {
		return s, nil
	}
	return Safe(Str(v)), nil
}

func filterURLEncode(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("urlencode", args, 0, 0); err != nil {
		return nil, err
	}
	return url.QueryEscape(Str(v)), nil
}

// filterTruncate cuts the value to at most n runes, appending an
// ellipsis when anything was removed. An optional second argument
// overrides the suffix.
func filterTruncate(_ *State, v any, args []any) (any, error) {
	if err := wantArgs("truncate", args, 1, 2); err != nil {
		return nil, err
	}
	n, ok := AsInt(args[0])
	if !ok || n < 0 {
		return nil, fmt.Errorf("filter \"truncate\": length must be a non-negative integer")
	}
	suffix := "..."
	if len(args) == 2 {
		suffix = Str(args[1])
	}
	s := Str(v)
	if int64(utf8.RuneCountInString(s)) <= n {
		return s, nil
	}
	runes := []rune(s)
	return string(runes[:n]) + suffix, nil
}
