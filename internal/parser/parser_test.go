// Package parser provides a recursive descent parser for Kida templates.
package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/token"
)

func mustParse(t *testing.T, src string) *ast.Template {
	t.Helper()
	tmpl, err := Parse("test.html", src, 0)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tmpl
}

func mustParseExpr(t *testing.T, src string) ast.Expr {
	t.Helper()
	e, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("parse expr %q: %v", src, err)
	}
	return e
}

func singleStmt(t *testing.T, src string) ast.Stmt {
	t.Helper()
	tmpl := mustParse(t, src)
	if len(tmpl.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(tmpl.Nodes))
	}
	return tmpl.Nodes[0]
}

func TestParseText(t *testing.T) {
	tmpl := mustParse(t, "just text")
	text, ok := tmpl.Nodes[0].(*ast.TextStmt)
	if !ok {
		t.Fatalf("expected TextStmt, got %T", tmpl.Nodes[0])
	}
	if text.Text != "just text" {
		t.Errorf("expected %q, got %q", "just text", text.Text)
	}
}

func TestParseOutput(t *testing.T) {
	out, ok := singleStmt(t, "{{ title }}").(*ast.OutputStmt)
	if !ok {
		t.Fatal("expected OutputStmt")
	}
	id, ok := out.Expr.(*ast.Ident)
	if !ok || id.Name != "title" {
		t.Errorf("expected Ident(title), got %#v", out.Expr)
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := "{% if a %}1{% elif b %}2{% else %}3{% end %}"
	stmt, ok := singleStmt(t, src).(*ast.IfStmt)
	if !ok {
		t.Fatal("expected IfStmt")
	}
	if len(stmt.Then) != 1 {
		t.Fatalf("then: expected 1 stmt, got %d", len(stmt.Then))
	}
	// elif chains nest as a single IfStmt in Else.
	if len(stmt.Else) != 1 {
		t.Fatalf("else: expected 1 nested stmt, got %d", len(stmt.Else))
	}
	nested, ok := stmt.Else[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected nested IfStmt, got %T", stmt.Else[0])
	}
	if len(nested.Else) != 1 {
		t.Errorf("nested else: expected 1 stmt, got %d", len(nested.Else))
	}
}

func TestParseUnless(t *testing.T) {
	stmt, ok := singleStmt(t, "{% unless done %}x{% end %}").(*ast.IfStmt)
	if !ok {
		t.Fatal("expected IfStmt")
	}
	neg, ok := stmt.Cond.(*ast.UnaryExpr)
	if !ok || neg.Op != token.NOT {
		t.Fatalf("expected negated condition, got %#v", stmt.Cond)
	}
}

func TestParseForVariants(t *testing.T) {
	t.Run("single variable", func(t *testing.T) {
		f := singleStmt(t, "{% for x in items %}{{ x }}{% end %}").(*ast.ForStmt)
		if f.Var != "x" || f.KeyVar != "" {
			t.Errorf("expected Var=x KeyVar empty, got Var=%q KeyVar=%q", f.Var, f.KeyVar)
		}
	})

	t.Run("key and value", func(t *testing.T) {
		f := singleStmt(t, "{% for k, v in mapping %}{{ v }}{% end %}").(*ast.ForStmt)
		if f.KeyVar != "k" || f.Var != "v" {
			t.Errorf("expected KeyVar=k Var=v, got KeyVar=%q Var=%q", f.KeyVar, f.Var)
		}
	})

	t.Run("inline filter", func(t *testing.T) {
		f := singleStmt(t, "{% for p in posts if p.live %}{{ p }}{% end %}").(*ast.ForStmt)
		if f.Filter == nil {
			t.Fatal("expected inline filter expression")
		}
		if _, ok := f.Filter.(*ast.AttrExpr); !ok {
			t.Errorf("expected AttrExpr filter, got %T", f.Filter)
		}
	})

	t.Run("empty clause", func(t *testing.T) {
		f := singleStmt(t, "{% for x in items %}{{ x }}{% empty %}none{% end %}").(*ast.ForStmt)
		if len(f.Empty) != 1 {
			t.Fatalf("expected empty clause, got %d stmts", len(f.Empty))
		}
	})

	t.Run("recursive", func(t *testing.T) {
		f := singleStmt(t, "{% for n in tree recursive %}{{ n.name }}{% end %}").(*ast.ForStmt)
		if !f.Recursive {
			t.Error("expected Recursive")
		}
	})
}

func TestParseSet(t *testing.T) {
	s := singleStmt(t, "{% set total = 1 + 2 %}").(*ast.SetStmt)
	if s.Name != "total" {
		t.Errorf("expected name total, got %q", s.Name)
	}
	if _, ok := s.Value.(*ast.BinaryExpr); !ok {
		t.Errorf("expected BinaryExpr value, got %T", s.Value)
	}
}

func TestParseBlock(t *testing.T) {
	b := singleStmt(t, "{% block content %}body{% end %}").(*ast.BlockStmt)
	if b.Name != "content" {
		t.Errorf("expected name content, got %q", b.Name)
	}
	if len(b.Body) != 1 {
		t.Errorf("expected 1 body stmt, got %d", len(b.Body))
	}
}

func TestParseExtends(t *testing.T) {
	tmpl := mustParse(t, `{% extends "base.html" %}{% block main %}x{% end %}`)
	if tmpl.Extends == nil {
		t.Fatal("expected Extends to be set")
	}
	name, ok := tmpl.Extends.Name.(*ast.StrLit)
	if !ok || name.Value != "base.html" {
		t.Errorf("expected parent base.html, got %#v", tmpl.Extends.Name)
	}
}

func TestParseInclude(t *testing.T) {
	inc := singleStmt(t, `{% include "partials/nav.html" %}`).(*ast.IncludeStmt)
	name, ok := inc.Name.(*ast.StrLit)
	if !ok || name.Value != "partials/nav.html" {
		t.Errorf("unexpected include name %#v", inc.Name)
	}
}

func TestParseEmbed(t *testing.T) {
	src := `{% embed "card.html" %}{% block title %}T{% end %}{% block body %}B{% end %}{% end %}`
	emb := singleStmt(t, src).(*ast.EmbedStmt)
	if len(emb.Overrides) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(emb.Overrides))
	}
	if emb.Overrides[0].Name != "title" || emb.Overrides[1].Name != "body" {
		t.Errorf("unexpected override names %q, %q", emb.Overrides[0].Name, emb.Overrides[1].Name)
	}
}

func TestParseMacro(t *testing.T) {
	src := `{% macro badge(label, kind="info") %}<span>{{ label }}</span>{% end %}`
	m := singleStmt(t, src).(*ast.MacroStmt)
	if m.Name != "badge" {
		t.Errorf("expected name badge, got %q", m.Name)
	}
	if len(m.Params) != 2 || m.Params[0] != "label" || m.Params[1] != "kind" {
		t.Errorf("unexpected params %v", m.Params)
	}
	if m.Defaults[0] != nil {
		t.Error("first param should have no default")
	}
	def, ok := m.Defaults[1].(*ast.StrLit)
	if !ok || def.Value != "info" {
		t.Errorf("unexpected default %#v", m.Defaults[1])
	}
}

func TestParseMatch(t *testing.T) {
	src := `{% match status %}{% case "draft" %}D{% case "live", "new" %}L{% else %}O{% end %}`
	m := singleStmt(t, src).(*ast.MatchStmt)
	if len(m.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(m.Cases))
	}
	if len(m.Cases[1].Values) != 2 {
		t.Errorf("second case: expected 2 values, got %d", len(m.Cases[1].Values))
	}
	if len(m.Else) != 1 {
		t.Errorf("expected else arm")
	}
}

func TestParseRawBlock(t *testing.T) {
	raw := singleStmt(t, "{% raw %}{{ literal }}{% endraw %}").(*ast.RawStmt)
	if raw.Text != "{{ literal }}" {
		t.Errorf("expected raw text preserved, got %q", raw.Text)
	}
}

func TestParseSpaceless(t *testing.T) {
	s := singleStmt(t, "{% spaceless %}<a> </a>{% end %}").(*ast.SpacelessStmt)
	if len(s.Body) != 1 {
		t.Errorf("expected 1 body stmt, got %d", len(s.Body))
	}
}

func TestParseExprPrecedence(t *testing.T) {
	t.Run("multiplication binds tighter", func(t *testing.T) {
		e := mustParseExpr(t, "1 + 2 * 3").(*ast.BinaryExpr)
		if e.Op != token.ADD {
			t.Fatalf("expected ADD at root, got %v", e.Op)
		}
		right, ok := e.Right.(*ast.BinaryExpr)
		if !ok || right.Op != token.MUL {
			t.Errorf("expected MUL on right, got %#v", e.Right)
		}
	})

	t.Run("comparison below arithmetic", func(t *testing.T) {
		e := mustParseExpr(t, "a + 1 > b").(*ast.BinaryExpr)
		if e.Op != token.GREATER {
			t.Errorf("expected GREATER at root, got %v", e.Op)
		}
	})

	t.Run("and binds tighter than or", func(t *testing.T) {
		e := mustParseExpr(t, "a or b and c").(*ast.BinaryExpr)
		if e.Op != token.OR {
			t.Fatalf("expected OR at root, got %v", e.Op)
		}
		right, ok := e.Right.(*ast.BinaryExpr)
		if !ok || right.Op != token.AND {
			t.Errorf("expected AND on right, got %#v", e.Right)
		}
	})

	t.Run("filter pipe above comparison", func(t *testing.T) {
		e := mustParseExpr(t, "items | length > 3").(*ast.BinaryExpr)
		if e.Op != token.GREATER {
			t.Fatalf("expected GREATER at root, got %v", e.Op)
		}
		if _, ok := e.Left.(*ast.FilterExpr); !ok {
			t.Errorf("expected FilterExpr on left, got %T", e.Left)
		}
	})

	t.Run("coalesce above ternary", func(t *testing.T) {
		e, ok := mustParseExpr(t, "a ?? b ? c : d").(*ast.TernaryExpr)
		if !ok {
			t.Fatal("expected TernaryExpr at root")
		}
		if _, ok := e.Cond.(*ast.CoalesceExpr); !ok {
			t.Errorf("expected CoalesceExpr condition, got %T", e.Cond)
		}
	})

	t.Run("not in", func(t *testing.T) {
		e, ok := mustParseExpr(t, "x not in items").(*ast.UnaryExpr)
		if !ok || e.Op != token.NOT {
			t.Fatalf("expected negation at root, got %#v", e)
		}
		in, ok := e.Expr.(*ast.BinaryExpr)
		if !ok || in.Op != token.IN {
			t.Errorf("expected IN inside negation, got %#v", e.Expr)
		}
	})
}

func TestParseExprPostfix(t *testing.T) {
	t.Run("attribute chain", func(t *testing.T) {
		e := mustParseExpr(t, "page.meta.title").(*ast.AttrExpr)
		if e.Name != "title" || e.Optional {
			t.Fatalf("unexpected outer attr %+v", e)
		}
		inner, ok := e.Target.(*ast.AttrExpr)
		if !ok || inner.Name != "meta" {
			t.Errorf("expected inner attr meta, got %#v", e.Target)
		}
	})

	t.Run("optional attribute", func(t *testing.T) {
		e := mustParseExpr(t, "user?.profile").(*ast.AttrExpr)
		if !e.Optional {
			t.Error("expected Optional")
		}
	})

	t.Run("index", func(t *testing.T) {
		e := mustParseExpr(t, `data["key"]`).(*ast.IndexExpr)
		if e.Optional {
			t.Error("expected non-optional index")
		}
	})

	t.Run("optional index", func(t *testing.T) {
		e := mustParseExpr(t, `data?["key"]`).(*ast.IndexExpr)
		if !e.Optional {
			t.Error("expected Optional")
		}
	})

	t.Run("call", func(t *testing.T) {
		e := mustParseExpr(t, "range(1, 10)").(*ast.CallExpr)
		if len(e.Args) != 2 {
			t.Errorf("expected 2 args, got %d", len(e.Args))
		}
	})
}

func TestParseRangeLiterals(t *testing.T) {
	t.Run("inclusive", func(t *testing.T) {
		e := mustParseExpr(t, "1..5").(*ast.RangeLit)
		if e.Exclusive {
			t.Error("expected inclusive range")
		}
		if e.Step != nil {
			t.Error("expected no step")
		}
	})

	t.Run("exclusive", func(t *testing.T) {
		e := mustParseExpr(t, "1...5").(*ast.RangeLit)
		if !e.Exclusive {
			t.Error("expected exclusive range")
		}
	})

	t.Run("with step", func(t *testing.T) {
		e := mustParseExpr(t, "0..10 step 2").(*ast.RangeLit)
		if e.Step == nil {
			t.Fatal("expected step expression")
		}
	})

	t.Run("negative stop", func(t *testing.T) {
		e := mustParseExpr(t, "0..-3").(*ast.RangeLit)
		if _, ok := e.Stop.(*ast.UnaryExpr); !ok {
			t.Errorf("expected unary stop, got %T", e.Stop)
		}
	})

	t.Run("attribute bound rejected", func(t *testing.T) {
		if _, err := ParseExpr("a.b..5"); err == nil {
			t.Error("expected error for attribute range bound")
		}
	})
}

func TestParseNumbers(t *testing.T) {
	t.Run("integer", func(t *testing.T) {
		n := mustParseExpr(t, "42").(*ast.NumLit)
		if !n.IsInt || n.Int != 42 {
			t.Errorf("expected int 42, got %+v", n)
		}
	})

	t.Run("float", func(t *testing.T) {
		n := mustParseExpr(t, "3.14").(*ast.NumLit)
		if n.IsInt || n.Float != 3.14 {
			t.Errorf("expected float 3.14, got %+v", n)
		}
	})

	t.Run("exponent is float", func(t *testing.T) {
		n := mustParseExpr(t, "1e3").(*ast.NumLit)
		if n.IsInt || n.Float != 1000 {
			t.Errorf("expected float 1000, got %+v", n)
		}
	})
}

func TestParseCollectionLiterals(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		e := mustParseExpr(t, `[1, "two", x]`).(*ast.ListLit)
		if len(e.Elems) != 3 {
			t.Errorf("expected 3 elements, got %d", len(e.Elems))
		}
	})

	t.Run("map", func(t *testing.T) {
		e := mustParseExpr(t, `{"a": 1, "b": 2}`).(*ast.MapLit)
		if len(e.Keys) != 2 || len(e.Values) != 2 {
			t.Errorf("expected 2 entries, got %d/%d", len(e.Keys), len(e.Values))
		}
	})

	t.Run("map with bare keys", func(t *testing.T) {
		e := mustParseExpr(t, `{name: "kida", major: 1}`).(*ast.MapLit)
		key, ok := e.Keys[0].(*ast.StrLit)
		if !ok || key.Value != "name" {
			t.Errorf("expected bare key as string literal, got %#v", e.Keys[0])
		}
	})
}

func TestParseFilterArgs(t *testing.T) {
	e := mustParseExpr(t, `items | join(", ") | upper`).(*ast.FilterExpr)
	if e.Name != "upper" || len(e.Args) != 0 {
		t.Fatalf("expected outer filter upper with no args, got %q %d", e.Name, len(e.Args))
	}
	inner, ok := e.Value.(*ast.FilterExpr)
	if !ok || inner.Name != "join" || len(inner.Args) != 1 {
		t.Errorf("expected inner join with 1 arg, got %#v", e.Value)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unclosed if", "{% if a %}body", "unclosed {% if %}"},
		{"unclosed for", "{% for x in xs %}body", "unclosed {% for %}"},
		{"unclosed block", "{% block b %}body", "unclosed {% block %}"},
		{"break outside loop", "{% break %}", "break outside of loop"},
		{"continue outside loop", "{% continue %}", "continue outside of loop"},
		{"match without case", "{% match x %}text{% end %}", "match body must start with {% case %}"},
		{"embed non-block body", `{% embed "a" %}text{% end %}`, "embed body may only contain block overrides"},
		{"mismatched closer", "{% if a %}x{% endfor %}", "endfor"},
		{"assignment without set", "{{ x = 1 }}", "="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.html", tt.src, 0)
			if err == nil {
				t.Fatalf("expected error for %q", tt.src)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestUnclosedErrorAtOpener(t *testing.T) {
	_, err := Parse("test.html", "text\n{% if a %}body", 0)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Pos.Line != 2 {
		t.Errorf("expected error at opener line 2, got line %d", perr.Pos.Line)
	}
}

func TestBreakInsideMacroIsRejected(t *testing.T) {
	// A macro body starts a fresh loop context even inside a loop.
	src := "{% for x in xs %}{% macro m() %}{% break %}{% end %}{% end %}"
	_, err := Parse("test.html", src, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "break outside of loop") {
		t.Errorf("unexpected error: %v", err)
	}
}
