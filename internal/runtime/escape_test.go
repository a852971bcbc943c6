package runtime

import "testing"

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"<b>", "&lt;b&gt;"},
		{`a & "b" & 'c'`, "a &amp; &#34;b&#34; &amp; &#39;c&#39;"},
		{"no specials at all 123", "no specials at all 123"},
	}

	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeHTMLCleanStringIsUnchanged(t *testing.T) {
	// Strings without special characters are returned as-is.
	s := "nothing to do here"
	if got := EscapeHTML(s); got != s {
		t.Errorf("got %q", got)
	}
}

func TestCollapseTagSpace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<a> <b>", "<a><b>"},
		{"<a>\n\t <b>", "<a><b>"},
		{"<p>hello world</p>", "<p>hello world</p>"},
		{"<p> keep inside </p> <p>x</p>", "<p> keep inside </p><p>x</p>"},
		{"no tags  here", "no tags  here"},
		{"", ""},
		{"  <a>", "  <a>"},
	}

	for _, tt := range tests {
		if got := CollapseTagSpace(tt.in); got != tt.want {
			t.Errorf("CollapseTagSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
