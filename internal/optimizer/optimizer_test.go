package optimizer

import (
	"testing"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/parser"
)

func parse(t *testing.T, src string) *ast.Template {
	t.Helper()
	tmpl, err := parser.Parse("test.html", src, 0)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tmpl
}

func optimizeWith(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	return Optimize(parse(t, src), opts)
}

func outputExpr(t *testing.T, res *Result) ast.Expr {
	t.Helper()
	if len(res.Template.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(res.Template.Nodes))
	}
	out, ok := res.Template.Nodes[0].(*ast.OutputStmt)
	if !ok {
		t.Fatalf("expected OutputStmt, got %T", res.Template.Nodes[0])
	}
	return out.Expr
}

func TestFoldArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"{{ 1 + 2 * 3 }}", int64(7)},
		{"{{ 10 - 4 }}", int64(6)},
		{"{{ 7 / 2 }}", 3.5},
		{"{{ 7 % 3 }}", int64(1)},
		{"{{ -(2 + 3) }}", int64(-5)},
		{`{{ "a" ~ "b" ~ 1 }}`, "ab1"},
		{"{{ 1 < 2 }}", true},
		{"{{ 2 >= 3 }}", false},
		{`{{ "a" == "a" }}`, true},
		{"{{ 1 != 1.0 }}", false},
		{"{{ not false }}", true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			res := optimizeWith(t, tt.src, Options{Fold: true})
			e := outputExpr(t, res)
			v, ok := literalValue(e)
			if !ok {
				t.Fatalf("not folded to a literal: %#v", e)
			}
			if v != tt.want {
				t.Errorf("folded to %#v, want %#v", v, tt.want)
			}
		})
	}
}

func TestFoldShortCircuit(t *testing.T) {
	t.Run("false and picks left", func(t *testing.T) {
		res := optimizeWith(t, "{{ false and missing }}", Options{Fold: true})
		b, ok := outputExpr(t, res).(*ast.BoolLit)
		if !ok || b.Value {
			t.Errorf("got %#v, want false literal", outputExpr(t, res))
		}
	})

	t.Run("true and picks right", func(t *testing.T) {
		res := optimizeWith(t, "{{ true and missing }}", Options{Fold: true})
		id, ok := outputExpr(t, res).(*ast.Ident)
		if !ok || id.Name != "missing" {
			t.Errorf("got %#v, want Ident(missing)", outputExpr(t, res))
		}
	})

	t.Run("truthy or picks left", func(t *testing.T) {
		res := optimizeWith(t, `{{ "x" or missing }}`, Options{Fold: true})
		s, ok := outputExpr(t, res).(*ast.StrLit)
		if !ok || s.Value != "x" {
			t.Errorf("got %#v, want x literal", outputExpr(t, res))
		}
	})

	t.Run("non-literal left untouched", func(t *testing.T) {
		res := optimizeWith(t, "{{ a and b }}", Options{Fold: true})
		if _, ok := outputExpr(t, res).(*ast.BinaryExpr); !ok {
			t.Errorf("got %#v, want BinaryExpr", outputExpr(t, res))
		}
	})
}

func TestFoldCoalesce(t *testing.T) {
	res := optimizeWith(t, `{{ none ?? "fb" }}`, Options{Fold: true})
	s, ok := outputExpr(t, res).(*ast.StrLit)
	if !ok || s.Value != "fb" {
		t.Errorf("got %#v, want fb", outputExpr(t, res))
	}

	// A falsy literal left side is preserved, not replaced.
	res = optimizeWith(t, `{{ 0 ?? "fb" }}`, Options{Fold: true})
	n, ok := outputExpr(t, res).(*ast.NumLit)
	if !ok || n.Int != 0 {
		t.Errorf("got %#v, want 0", outputExpr(t, res))
	}
}

func TestFoldTernary(t *testing.T) {
	res := optimizeWith(t, `{{ 1 < 2 ? "yes" : "no" }}`, Options{Fold: true})
	s, ok := outputExpr(t, res).(*ast.StrLit)
	if !ok || s.Value != "yes" {
		t.Errorf("got %#v, want yes", outputExpr(t, res))
	}
}

func TestFoldIfCollapse(t *testing.T) {
	res := optimizeWith(t, "{% if 1 > 2 %}a{% else %}b{% end %}", Options{Fold: true})
	if len(res.Template.Nodes) != 1 {
		t.Fatalf("expected branch splice, got %d nodes", len(res.Template.Nodes))
	}
	text, ok := res.Template.Nodes[0].(*ast.TextStmt)
	if !ok || text.Text != "b" {
		t.Errorf("got %#v, want text b", res.Template.Nodes[0])
	}

	res = optimizeWith(t, "{% if false %}gone{% end %}", Options{Fold: true})
	if len(res.Template.Nodes) != 0 {
		t.Errorf("expected no nodes, got %d", len(res.Template.Nodes))
	}
}

func TestFoldErrorIsSkipped(t *testing.T) {
	res := optimizeWith(t, "{{ 1 / 0 }}", Options{Fold: true})
	// Division by zero stays a render-time error, not a compile failure.
	if _, ok := outputExpr(t, res).(*ast.BinaryExpr); !ok {
		t.Fatalf("got %#v, want untouched BinaryExpr", outputExpr(t, res))
	}
	if res.Stats["fold"].Skips == 0 {
		t.Error("expected a recorded skip")
	}
}

func TestDeadCodeEmptyLoop(t *testing.T) {
	t.Run("no empty clause removes the loop", func(t *testing.T) {
		res := optimizeWith(t, "x{% for x in [] %}a{% end %}y", Options{DeadCode: true})
		for _, n := range res.Template.Nodes {
			if _, ok := n.(*ast.ForStmt); ok {
				t.Fatalf("loop survived: %#v", n)
			}
		}
		if res.Stats["deadcode"].Changes == 0 {
			t.Error("expected a recorded change")
		}
	})

	// The empty clause executes inside the loop's scope, so the loop
	// node survives with its dead body dropped: a set in the clause
	// must not become visible outside.
	t.Run("empty clause keeps the loop scope", func(t *testing.T) {
		res := optimizeWith(t, "{% for x in [] %}a{% empty %}{% set y = 1 %}none{% end %}", Options{DeadCode: true})
		if len(res.Template.Nodes) != 1 {
			t.Fatalf("expected 1 node, got %d", len(res.Template.Nodes))
		}
		loop, ok := res.Template.Nodes[0].(*ast.ForStmt)
		if !ok {
			t.Fatalf("expected ForStmt, got %T", res.Template.Nodes[0])
		}
		if len(loop.Body) != 0 {
			t.Errorf("dead body survived: %#v", loop.Body)
		}
		if len(loop.Empty) != 2 {
			t.Errorf("empty clause = %#v, want set and text", loop.Empty)
		}
	})
}

func TestDeadCodeMatchDecided(t *testing.T) {
	src := `{% match 2 %}{% case 1 %}a{% case 2 %}b{% else %}c{% end %}`
	res := optimizeWith(t, src, Options{DeadCode: true})
	text, ok := res.Template.Nodes[0].(*ast.TextStmt)
	if !ok || text.Text != "b" {
		t.Fatalf("got %#v, want text b", res.Template.Nodes[0])
	}

	// No case matches: the else arm survives.
	src = `{% match 9 %}{% case 1 %}a{% else %}c{% end %}`
	res = optimizeWith(t, src, Options{DeadCode: true})
	text, ok = res.Template.Nodes[0].(*ast.TextStmt)
	if !ok || text.Text != "c" {
		t.Errorf("got %#v, want text c", res.Template.Nodes[0])
	}
}

func TestDeadCodeMatchUndecidable(t *testing.T) {
	// A literal subject with a non-literal case value cannot be decided.
	src := `{% match 1 %}{% case y %}a{% end %}`
	res := optimizeWith(t, src, Options{DeadCode: true})
	if _, ok := res.Template.Nodes[0].(*ast.MatchStmt); !ok {
		t.Fatalf("got %T, want untouched MatchStmt", res.Template.Nodes[0])
	}
	if res.Stats["deadcode"].Skips == 0 {
		t.Error("expected a recorded skip")
	}

	// A non-literal subject is left alone without counting a skip.
	src = `{% match x %}{% case 1 %}a{% end %}`
	res = optimizeWith(t, src, Options{DeadCode: true})
	if _, ok := res.Template.Nodes[0].(*ast.MatchStmt); !ok {
		t.Errorf("got %T, want untouched MatchStmt", res.Template.Nodes[0])
	}
}

func TestInlineAllowedFilter(t *testing.T) {
	opts := Options{Inline: true, InlineNames: defaultInlineNames()}

	res := optimizeWith(t, "{{ name | upper }}", opts)
	fe, ok := outputExpr(t, res).(*ast.FilterExpr)
	if !ok {
		t.Fatalf("got %T", outputExpr(t, res))
	}
	if !fe.Inlined {
		t.Error("expected Inlined")
	}

	// Chained allow-listed filters are each inlined.
	res = optimizeWith(t, "{{ name | trim | lower }}", opts)
	outer := outputExpr(t, res).(*ast.FilterExpr)
	inner := outer.Value.(*ast.FilterExpr)
	if !outer.Inlined || !inner.Inlined {
		t.Errorf("outer=%v inner=%v, want both inlined", outer.Inlined, inner.Inlined)
	}
	if res.Stats["inline"].Changes != 2 {
		t.Errorf("changes = %d, want 2", res.Stats["inline"].Changes)
	}
}

func TestInlineSkipsArgsAndUnknownNames(t *testing.T) {
	opts := Options{Inline: true, InlineNames: defaultInlineNames()}

	// An allow-listed name with arguments must go through the registry.
	res := optimizeWith(t, `{{ s | trim("-") }}`, opts)
	fe := outputExpr(t, res).(*ast.FilterExpr)
	if fe.Inlined {
		t.Error("trim with argument must not be inlined")
	}
	if res.Stats["inline"].Skips != 1 {
		t.Errorf("skips = %d, want 1", res.Stats["inline"].Skips)
	}

	// Names outside the allow-list are untouched and not counted.
	res = optimizeWith(t, `{{ xs | join(",") }}`, opts)
	fe = outputExpr(t, res).(*ast.FilterExpr)
	if fe.Inlined {
		t.Error("join must not be inlined")
	}
	if s := res.Stats["inline"]; s.Changes != 0 || s.Skips != 0 {
		t.Errorf("stats = %+v, want zero", s)
	}
}

func TestInlineRespectsReducedAllowList(t *testing.T) {
	// The caller removes overridden names before invoking the pass.
	allow := defaultInlineNames()
	delete(allow, "upper")
	res := optimizeWith(t, "{{ a | upper }}{{ b | lower }}", Options{Inline: true, InlineNames: allow})

	first := res.Template.Nodes[0].(*ast.OutputStmt).Expr.(*ast.FilterExpr)
	second := res.Template.Nodes[1].(*ast.OutputStmt).Expr.(*ast.FilterExpr)
	if first.Inlined {
		t.Error("upper was removed from the allow-list")
	}
	if !second.Inlined {
		t.Error("lower should still inline")
	}
}

func TestInlineSafeOutput(t *testing.T) {
	t.Run("bare safe marks the output raw", func(t *testing.T) {
		res := optimizeWith(t, "{{ v | safe }}", Options{Inline: true, InlineNames: defaultInlineNames()})
		out := res.Template.Nodes[0].(*ast.OutputStmt)
		if !out.RawSafe {
			t.Fatal("expected RawSafe output")
		}
		if _, ok := out.Expr.(*ast.Ident); !ok {
			t.Errorf("expected unwrapped Ident, got %T", out.Expr)
		}
	})

	t.Run("inner filters still inline", func(t *testing.T) {
		res := optimizeWith(t, "{{ v | upper | safe }}", Options{Inline: true, InlineNames: defaultInlineNames()})
		out := res.Template.Nodes[0].(*ast.OutputStmt)
		if !out.RawSafe {
			t.Fatal("expected RawSafe output")
		}
		fe, ok := out.Expr.(*ast.FilterExpr)
		if !ok || fe.Name != "upper" || !fe.Inlined {
			t.Errorf("expected inlined upper underneath, got %#v", out.Expr)
		}
	})

	t.Run("overridden safe is left alone", func(t *testing.T) {
		allow := defaultInlineNames()
		delete(allow, "safe")
		res := optimizeWith(t, "{{ v | safe }}", Options{Inline: true, InlineNames: allow})
		out := res.Template.Nodes[0].(*ast.OutputStmt)
		if out.RawSafe {
			t.Error("removed name must not mark outputs raw")
		}
		if fe := out.Expr.(*ast.FilterExpr); fe.Inlined {
			t.Error("removed name must not inline")
		}
	})

	t.Run("safe with value position inlines as a filter", func(t *testing.T) {
		res := optimizeWith(t, "{% set y = v | safe %}", Options{Inline: true, InlineNames: defaultInlineNames()})
		set := res.Template.Nodes[0].(*ast.SetStmt)
		fe, ok := set.Value.(*ast.FilterExpr)
		if !ok || !fe.Inlined {
			t.Errorf("expected inlined safe filter, got %#v", set.Value)
		}
	})
}

func TestInlineDisabledByNilAllowList(t *testing.T) {
	res := optimizeWith(t, "{{ a | upper }}", Options{Inline: true})
	fe := outputExpr(t, res).(*ast.FilterExpr)
	if fe.Inlined {
		t.Error("nil allow-list must disable inlining")
	}
	if _, ran := res.Stats["inline"]; ran {
		t.Error("inline pass should not have run")
	}
}

func TestCoalesceMergesTextRuns(t *testing.T) {
	// Dead code removal leaves two adjacent text nodes.
	res := optimizeWith(t, "a{% if false %}x{% end %}b", Options{DeadCode: true, Coalesce: true})
	if len(res.Template.Nodes) != 1 {
		t.Fatalf("expected 1 merged node, got %d", len(res.Template.Nodes))
	}
	text, ok := res.Template.Nodes[0].(*ast.TextStmt)
	if !ok || text.Text != "ab" {
		t.Errorf("got %#v, want text ab", res.Template.Nodes[0])
	}
	if res.Stats["coalesce"].Changes != 1 {
		t.Errorf("changes = %d, want 1", res.Stats["coalesce"].Changes)
	}
}

func TestCoalesceInsideBodies(t *testing.T) {
	src := "{% block b %}x{% if false %}y{% end %}z{% end %}"
	res := optimizeWith(t, src, Options{DeadCode: true, Coalesce: true})
	block := res.Template.Nodes[0].(*ast.BlockStmt)
	if len(block.Body) != 1 {
		t.Fatalf("expected merged block body, got %d stmts", len(block.Body))
	}
	if block.Body[0].(*ast.TextStmt).Text != "xz" {
		t.Errorf("got %q", block.Body[0].(*ast.TextStmt).Text)
	}
}

func TestSizeHint(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		want  int
		exact bool
	}{
		{"plain text", "hello", 5, true},
		{"literal output", `x{{ "yz" }}`, 3, true},
		{"dynamic output", "{{ name }}", defaultExprSize, false},
		{"static loop", "{% for i in 1..3 %}ab{% end %}", 6, true},
		{"dynamic loop lower bound", "{% for x in xs %}abcd{% empty %}no{% end %}", 2, false},
		{"filtered loop lower bound", "{% for x in [1, 2] if x %}abcd{% end %}", 0, false},
		{"if takes smaller branch", "{% if c %}lengthy{% else %}s{% end %}", 1, false},
		{"equal branches stay exact", "{% if c %}ab{% else %}cd{% end %}", 2, true},
		{"include is opaque", `{% include "x" %}`, 0, false},
		{"break voids the loop bound", "{% for i in 1..100 %}aaaaaaaaaa{% break %}{% end %}", 0, false},
		{"nested continue voids the loop bound", "{% for i in 1..4 %}ab{% if c %}{% continue %}{% end %}{% end %}", 0, false},
		{"inner loop control stays inner", "{% for i in 1..2 %}x{% for j in ys %}{% break %}{% end %}{% end %}", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := optimizeWith(t, tt.src, Options{SizeHint: true})
			if res.SizeHint != tt.want {
				t.Errorf("hint = %d, want %d", res.SizeHint, tt.want)
			}
			if res.SizeExact != tt.exact {
				t.Errorf("exact = %v, want %v", res.SizeExact, tt.exact)
			}
		})
	}
}

func TestPassesShareUnchangedNodes(t *testing.T) {
	tmpl := parse(t, "plain {{ name }} text{% if cond %}x{% end %}")
	before := tmpl.Nodes
	res := Optimize(tmpl, Options{Fold: true, DeadCode: true, Coalesce: true})
	if !sameStmts(before, res.Template.Nodes) {
		t.Error("unchanged tree should be returned as the identical slice")
	}
	if s := res.Stats["fold"]; s.Changes != 0 {
		t.Errorf("fold changes = %d, want 0", s.Changes)
	}
}

func TestDefaultOptionsRunEverything(t *testing.T) {
	res := optimizeWith(t, `{{ 1 + 1 }}{{ s | upper }}`, DefaultOptions())
	for _, pass := range []string{"fold", "deadcode", "inline", "coalesce", "sizehint"} {
		if _, ok := res.Stats[pass]; !ok {
			t.Errorf("pass %q did not run", pass)
		}
	}
	n := res.Template.Nodes[0].(*ast.OutputStmt).Expr.(*ast.NumLit)
	if n.Int != 2 {
		t.Errorf("fold result %d, want 2", n.Int)
	}
	fe := res.Template.Nodes[1].(*ast.OutputStmt).Expr.(*ast.FilterExpr)
	if !fe.Inlined {
		t.Error("upper not inlined")
	}
}
