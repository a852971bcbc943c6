package runtime

import "strings"

// CollapseTagSpace removes whitespace runs lying strictly between a
// tag close and the next tag open. Whitespace inside element content
// (text that is not purely between > and <) is untouched.
func CollapseTagSpace(s string) string {
	i := strings.IndexByte(s, '>')
	if i < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for i >= 0 && i < len(s) {
		j := i + 1
		for j < len(s) && isSpaceByte(s[j]) {
			j++
		}
		if j > i+1 && j < len(s) && s[j] == '<' {
			b.WriteString(s[last : i+1])
			last = j
		}
		next := strings.IndexByte(s[i+1:], '>')
		if next < 0 {
			break
		}
		i = i + 1 + next
	}
	b.WriteString(s[last:])
	return b.String()
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
