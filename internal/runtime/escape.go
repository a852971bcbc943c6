package runtime

import "strings"

// EscapeHTML returns s with HTML metacharacters replaced by entities.
// Already-escaped input is not double-escaped by callers holding Safe
// values; this function itself always escapes.
func EscapeHTML(s string) string {
	if !strings.ContainsAny(s, "&<>\"'") {
		return s
	}
	var b strings.Builder
	writeEscapedHTML(&b, s)
	return b.String()
}

// writeEscapedHTML writes s to b, escaping &, <, >, " and '. The
// common case of text with nothing to escape copies in one write.
func writeEscapedHTML(b *strings.Builder, s string) {
	last := 0
	for i := 0; i < len(s); i++ {
		var esc string
		switch s[i] {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '"':
			esc = "&#34;"
		case '\'':
			esc = "&#39;"
		default:
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(esc)
		last = i + 1
	}
	b.WriteString(s[last:])
}
