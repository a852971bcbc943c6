package parser

import (
	"strconv"
	"strings"

	"github.com/lbliii/kida/internal/ast"
	"github.com/lbliii/kida/internal/lexer"
	"github.com/lbliii/kida/internal/token"
)

// Parser is a recursive descent parser over a token stream. Statements
// are parsed by descent, expressions by precedence climbing. Each token
// is consumed exactly once.
type Parser struct {
	toks []lexer.Token
	idx  int
	tok  lexer.Token

	// loopDepth tracks the nesting depth of for-loop bodies so that
	// break and continue outside a loop are rejected at parse time,
	// with the statement's own source position.
	loopDepth int
}

// Parse tokenizes and parses template source.
// maxTokens <= 0 uses the lexer default.
func Parse(name, src string, maxTokens int) (*ast.Template, error) {
	toks, err := lexer.Tokenize(name, src, maxTokens)
	if err != nil {
		return nil, err
	}
	return ParseTokens(name, toks)
}

// ParseTokens parses an already-tokenized template.
func ParseTokens(name string, toks []lexer.Token) (tmpl *ast.Template, err error) {
	p := &Parser{toks: toks}
	p.next()

	// The first syntax error aborts the parse: a broken template must
	// not yield a partial tree.
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				tmpl, err = nil, pe
				return
			}
			panic(r)
		}
	}()

	tmpl = &ast.Template{Name: name}
	for p.tok.Type != token.EOF {
		stmt := p.parseNode()
		if ext, ok := stmt.(*ast.ExtendsStmt); ok {
			if tmpl.Extends != nil {
				panic(errorf(ext.Pos(), "duplicate extends statement"))
			}
			tmpl.Extends = ext
			continue
		}
		tmpl.Nodes = append(tmpl.Nodes, stmt)
	}
	return tmpl, nil
}

// ParseExpr parses a single expression (useful for testing).
func ParseExpr(src string) (expr ast.Expr, err error) {
	toks, err := lexer.Tokenize("", "{{ "+src+" }}", 0)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	p.next()
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				expr, err = nil, pe
				return
			}
			panic(r)
		}
	}()
	p.expect(token.EXPR_OPEN)
	expr = p.parseExpr()
	p.expect(token.EXPR_CLOSE)
	return expr, nil
}

// -----------------------------------------------------------------------------
// Token handling
// -----------------------------------------------------------------------------

func (p *Parser) next() {
	if p.idx < len(p.toks) {
		p.tok = p.toks[p.idx]
		p.idx++
		return
	}
	p.tok = lexer.Token{Type: token.EOF, Pos: p.tok.Pos}
}

// peek returns the token after the current one without consuming.
func (p *Parser) peek() lexer.Token {
	if p.idx < len(p.toks) {
		return p.toks[p.idx]
	}
	return lexer.Token{Type: token.EOF, Pos: p.tok.Pos}
}

// expect checks that the current token is tok and advances.
func (p *Parser) expect(tok token.Token) lexer.Token {
	if p.tok.Type != tok {
		panic(expectedError(p.tok.Pos, tok.Name(), p.tokenDesc()))
	}
	got := p.tok
	p.next()
	return got
}

// expectName expects a NAME token and returns its value and position.
func (p *Parser) expectName() (string, token.Position) {
	tok := p.expect(token.NAME)
	return tok.Value, tok.Pos
}

// tokenDesc returns a description of the current token for error messages.
func (p *Parser) tokenDesc() string {
	switch p.tok.Type {
	case token.NAME, token.NUMBER:
		return p.tok.Value
	case token.STRING:
		return strconv.Quote(p.tok.Value)
	case token.TEXT:
		return "text"
	default:
		return p.tok.Type.Name()
	}
}

// -----------------------------------------------------------------------------
// Statement parsing
// -----------------------------------------------------------------------------

// parseNode parses one top-level or body node.
func (p *Parser) parseNode() ast.Stmt {
	switch p.tok.Type {
	case token.TEXT:
		stmt := &ast.TextStmt{
			BaseStmt: ast.MakeBaseStmt(p.tok.Pos, p.tok.Pos),
			Text:     p.tok.Value,
		}
		p.next()
		return stmt
	case token.EXPR_OPEN:
		start := p.tok.Pos
		p.next()
		expr := p.parseExpr()
		p.expect(token.EXPR_CLOSE)
		return &ast.OutputStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos), Expr: expr}
	case token.TAG_OPEN:
		return p.parseTag()
	default:
		panic(errorf(p.tok.Pos, "unexpected %s", p.tokenDesc()))
	}
}

// parseTag parses a {% ... %} statement. The TAG_OPEN token is current.
func (p *Parser) parseTag() ast.Stmt {
	start := p.tok.Pos
	p.next() // consume {%

	switch p.tok.Type {
	case token.IF:
		p.next()
		return p.parseIf(start, "if", false)
	case token.UNLESS:
		p.next()
		return p.parseIf(start, "unless", true)
	case token.FOR:
		p.next()
		return p.parseFor(start)
	case token.SET:
		p.next()
		return p.parseSet(start)
	case token.BLOCK:
		p.next()
		return p.parseBlock(start)
	case token.EXTENDS:
		p.next()
		name := p.parseExpr()
		p.expect(token.TAG_CLOSE)
		return &ast.ExtendsStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos), Name: name}
	case token.INCLUDE:
		p.next()
		name := p.parseExpr()
		p.expect(token.TAG_CLOSE)
		return &ast.IncludeStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos), Name: name}
	case token.EMBED:
		p.next()
		return p.parseEmbed(start)
	case token.MACRO:
		p.next()
		return p.parseMacro(start)
	case token.MATCH:
		p.next()
		return p.parseMatch(start)
	case token.SPACELESS:
		p.next()
		p.expect(token.TAG_CLOSE)
		body, term := p.parseBody("spaceless", start)
		p.closeTag("spaceless", term)
		return &ast.SpacelessStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos), Body: body}
	case token.RAW:
		p.next()
		return p.parseRaw(start)
	case token.BREAK:
		pos := p.tok.Pos
		p.next()
		if p.loopDepth == 0 {
			panic(errorf(pos, "break outside of loop"))
		}
		p.expect(token.TAG_CLOSE)
		return &ast.BreakStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos)}
	case token.CONTINUE:
		pos := p.tok.Pos
		p.next()
		if p.loopDepth == 0 {
			panic(errorf(pos, "continue outside of loop"))
		}
		p.expect(token.TAG_CLOSE)
		return &ast.ContinueStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos)}
	case token.END, token.ELSE, token.ELIF, token.EMPTY, token.CASE:
		panic(errorf(p.tok.Pos, "unexpected %q without an open block", p.tok.Value))
	default:
		panic(errorf(p.tok.Pos, "unknown tag %q", p.tok.Value))
	}
}

// terminator is a body-ending tag keyword returned by parseBody. The
// TAG_OPEN and keyword tokens are consumed; the caller owns the rest of
// the terminating tag.
type terminator struct {
	typ   token.Token
	value string
	pos   token.Position
}

// parseBody parses statements until one of the extra terminators or an
// end keyword is found. An unclosed block reports the opening keyword's
// position.
func (p *Parser) parseBody(openKw string, openPos token.Position, extra ...token.Token) ([]ast.Stmt, terminator) {
	var body []ast.Stmt
	for {
		if p.tok.Type == token.EOF {
			panic(errorf(openPos, "unclosed {%% %s %%}: missing {%% end%s %%}", openKw, openKw))
		}
		if p.tok.Type == token.TAG_OPEN && p.isTerminatorNext(extra) {
			p.next() // consume {%
			term := terminator{typ: p.tok.Type, value: p.tok.Value, pos: p.tok.Pos}
			p.next() // consume keyword
			return body, term
		}
		body = append(body, p.parseNode())
	}
}

func (p *Parser) isTerminatorNext(extra []token.Token) bool {
	nxt := p.peek()
	if nxt.Type == token.END {
		return true
	}
	for _, t := range extra {
		if nxt.Type == t {
			return true
		}
	}
	return false
}

// closeTag validates the end keyword of a terminator against the
// opening keyword and consumes the closing %}.
func (p *Parser) closeTag(openKw string, term terminator) {
	if term.typ != token.END {
		panic(errorf(term.pos, "unexpected %q in {%% %s %%} block", term.value, openKw))
	}
	if term.value != "end" && term.value != "end"+openKw {
		panic(errorf(term.pos, "mismatched %q: open block is {%% %s %%}", term.value, openKw))
	}
	p.expect(token.TAG_CLOSE)
}

// parseIf parses the remainder of an if or unless statement. For
// unless, the condition is negated in place: there is no unless node.
func (p *Parser) parseIf(start token.Position, openKw string, negate bool) ast.Stmt {
	cond := p.parseExpr()
	if negate {
		cond = &ast.UnaryExpr{
			BaseExpr: ast.MakeBaseExpr(cond.Pos(), cond.End()),
			Op:       token.NOT,
			Expr:     &ast.GroupExpr{BaseExpr: ast.MakeBaseExpr(cond.Pos(), cond.End()), Expr: cond},
		}
	}
	p.expect(token.TAG_CLOSE)

	extra := []token.Token{token.ELSE}
	if !negate {
		extra = append(extra, token.ELIF)
	}
	body, term := p.parseBody(openKw, start, extra...)

	var els []ast.Stmt
	switch term.typ {
	case token.ELIF:
		// elif chains nest in the else slot.
		els = []ast.Stmt{p.parseIf(term.pos, openKw, false)}
	case token.ELSE:
		p.expect(token.TAG_CLOSE)
		els, term = p.parseBody(openKw, start)
		p.closeTag(openKw, term)
	default:
		p.closeTag(openKw, term)
	}

	return &ast.IfStmt{
		BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos),
		Cond:     cond,
		Then:     body,
		Else:     els,
	}
}

// parseFor parses a for statement:
//
//	for x in expr
//	for k, v in expr
//	for x in expr if predicate
//	for x in expr recursive
//
// followed by the body, an optional empty clause, and the closer.
func (p *Parser) parseFor(start token.Position) ast.Stmt {
	varName, _ := p.expectName()
	keyVar := ""
	if p.tok.Type == token.COMMA {
		p.next()
		second, _ := p.expectName()
		keyVar, varName = varName, second
	}
	p.expect(token.IN)
	iter := p.parseExpr()

	var filter ast.Expr
	if p.tok.Type == token.IF {
		p.next()
		filter = p.parseExpr()
	}
	recursive := false
	if p.tok.Type == token.RECURSIVE {
		p.next()
		recursive = true
	}
	p.expect(token.TAG_CLOSE)

	p.loopDepth++
	body, term := p.parseBody("for", start, token.EMPTY)
	p.loopDepth--

	var empty []ast.Stmt
	if term.typ == token.EMPTY {
		p.expect(token.TAG_CLOSE)
		// break/continue are not legal in the empty clause, which
		// runs outside the iteration.
		empty, term = p.parseBody("for", start)
	}
	p.closeTag("for", term)

	return &ast.ForStmt{
		BaseStmt:  ast.MakeBaseStmt(start, p.tok.Pos),
		Var:       varName,
		KeyVar:    keyVar,
		Iter:      iter,
		Filter:    filter,
		Body:      body,
		Empty:     empty,
		Recursive: recursive,
	}
}

func (p *Parser) parseSet(start token.Position) ast.Stmt {
	name, _ := p.expectName()
	p.expect(token.ASSIGN)
	value := p.parseExpr()
	p.expect(token.TAG_CLOSE)
	return &ast.SetStmt{
		BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos),
		Name:     name,
		Value:    value,
	}
}

func (p *Parser) parseBlock(start token.Position) *ast.BlockStmt {
	name, _ := p.expectName()
	p.expect(token.TAG_CLOSE)
	body, term := p.parseBody("block", start)
	p.closeTag("block", term)
	return &ast.BlockStmt{
		BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos),
		Name:     name,
		Body:     body,
	}
}

// parseEmbed parses an embed statement. The body may contain only block
// overrides and whitespace.
func (p *Parser) parseEmbed(start token.Position) ast.Stmt {
	name := p.parseExpr()
	p.expect(token.TAG_CLOSE)

	var overrides []*ast.BlockStmt
	for {
		switch p.tok.Type {
		case token.EOF:
			panic(errorf(start, "unclosed {%% embed %%}: missing {%% endembed %%}"))
		case token.TEXT:
			if strings.TrimSpace(p.tok.Value) != "" {
				panic(errorf(p.tok.Pos, "embed body may only contain block overrides"))
			}
			p.next()
		case token.TAG_OPEN:
			blockStart := p.tok.Pos
			p.next()
			switch p.tok.Type {
			case token.BLOCK:
				p.next()
				overrides = append(overrides, p.parseBlock(blockStart))
			case token.END:
				term := terminator{typ: p.tok.Type, value: p.tok.Value, pos: p.tok.Pos}
				p.next()
				p.closeTag("embed", term)
				return &ast.EmbedStmt{
					BaseStmt:  ast.MakeBaseStmt(start, p.tok.Pos),
					Name:      name,
					Overrides: overrides,
				}
			default:
				panic(errorf(p.tok.Pos, "embed body may only contain block overrides"))
			}
		default:
			panic(errorf(p.tok.Pos, "embed body may only contain block overrides"))
		}
	}
}

func (p *Parser) parseMacro(start token.Position) ast.Stmt {
	name, _ := p.expectName()
	p.expect(token.LPAREN)

	var params []string
	var defaults []ast.Expr
	for p.tok.Type != token.RPAREN {
		param, _ := p.expectName()
		params = append(params, param)
		if p.tok.Type == token.ASSIGN {
			p.next()
			defaults = append(defaults, p.parseExpr())
		} else {
			defaults = append(defaults, nil)
		}
		if p.tok.Type != token.COMMA {
			break
		}
		p.next()
	}
	p.expect(token.RPAREN)
	p.expect(token.TAG_CLOSE)

	// A macro body is a fresh statement context: break/continue inside
	// it must reference a loop inside the macro, not one around the
	// definition site.
	saved := p.loopDepth
	p.loopDepth = 0
	body, term := p.parseBody("macro", start)
	p.loopDepth = saved
	p.closeTag("macro", term)

	return &ast.MacroStmt{
		BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos),
		Name:     name,
		Params:   params,
		Defaults: defaults,
		Body:     body,
	}
}

func (p *Parser) parseMatch(start token.Position) ast.Stmt {
	subject := p.parseExpr()
	p.expect(token.TAG_CLOSE)

	// Only whitespace may appear before the first case.
	for p.tok.Type == token.TEXT && strings.TrimSpace(p.tok.Value) == "" {
		p.next()
	}
	if p.tok.Type != token.TAG_OPEN || p.peek().Type != token.CASE {
		panic(errorf(p.tok.Pos, "match body must start with {%% case %%}"))
	}
	p.next() // {%
	p.next() // case

	stmt := &ast.MatchStmt{Subject: subject}
	for {
		var values []ast.Expr
		values = append(values, p.parseExpr())
		for p.tok.Type == token.COMMA {
			p.next()
			values = append(values, p.parseExpr())
		}
		p.expect(token.TAG_CLOSE)

		body, term := p.parseBody("match", start, token.CASE, token.ELSE)
		stmt.Cases = append(stmt.Cases, ast.MatchCase{Values: values, Body: body})

		switch term.typ {
		case token.CASE:
			continue
		case token.ELSE:
			p.expect(token.TAG_CLOSE)
			var t terminator
			stmt.Else, t = p.parseBody("match", start)
			p.closeTag("match", t)
			stmt.BaseStmt = ast.MakeBaseStmt(start, p.tok.Pos)
			return stmt
		default:
			p.closeTag("match", term)
			stmt.BaseStmt = ast.MakeBaseStmt(start, p.tok.Pos)
			return stmt
		}
	}
}

// parseRaw parses the remainder of a raw statement. The lexer has
// already captured the verbatim content as a single TEXT token followed
// by the endraw closer.
func (p *Parser) parseRaw(start token.Position) ast.Stmt {
	p.expect(token.TAG_CLOSE)
	text := ""
	if p.tok.Type == token.TEXT {
		text = p.tok.Value
		p.next()
	}
	p.expect(token.TAG_OPEN)
	if p.tok.Type != token.END {
		panic(errorf(p.tok.Pos, "unclosed {%% raw %%}: missing {%% endraw %%}"))
	}
	p.next()
	p.expect(token.TAG_CLOSE)
	return &ast.RawStmt{BaseStmt: ast.MakeBaseStmt(start, p.tok.Pos), Text: text}
}

// -----------------------------------------------------------------------------
// Expression parsing
// -----------------------------------------------------------------------------

// parseExpr parses a full expression.
// Precedence, low to high:
//
//	?: (ternary) < ?? < or < and < not < comparisons < | (filter)
//	< additive < multiplicative < unary < postfix
func (p *Parser) parseExpr() ast.Expr {
	return p.parseTernary()
}

func (p *Parser) parseTernary() ast.Expr {
	expr := p.parseCoalesce()
	if p.tok.Type != token.QUESTION {
		return expr
	}
	p.next()
	then := p.parseExpr()
	p.expect(token.COLON)
	els := p.parseExpr()
	return &ast.TernaryExpr{
		BaseExpr: ast.MakeBaseExpr(expr.Pos(), els.End()),
		Cond:     expr,
		Then:     then,
		Else:     els,
	}
}

func (p *Parser) parseCoalesce() ast.Expr {
	expr := p.parseOr()
	for p.tok.Type == token.COALESCE {
		p.next()
		right := p.parseOr()
		expr = &ast.CoalesceExpr{
			BaseExpr: ast.MakeBaseExpr(expr.Pos(), right.End()),
			Left:     expr,
			Right:    right,
		}
	}
	return expr
}

func (p *Parser) parseOr() ast.Expr {
	return p.parseBinaryLeft(p.parseAnd, token.OR)
}

func (p *Parser) parseAnd() ast.Expr {
	return p.parseBinaryLeft(p.parseNot, token.AND)
}

func (p *Parser) parseNot() ast.Expr {
	if p.tok.Type == token.NOT {
		pos := p.tok.Pos
		p.next()
		expr := p.parseNot()
		return &ast.UnaryExpr{
			BaseExpr: ast.MakeBaseExpr(pos, expr.End()),
			Op:       token.NOT,
			Expr:     expr,
		}
	}
	return p.parseCompare()
}

func (p *Parser) parseCompare() ast.Expr {
	expr := p.parseFilter()
	for {
		switch p.tok.Type {
		case token.EQUALS, token.NOT_EQUALS, token.LESS, token.LTE,
			token.GREATER, token.GTE, token.IN:
			op := p.tok.Type
			p.next()
			right := p.parseFilter()
			expr = &ast.BinaryExpr{
				BaseExpr: ast.MakeBaseExpr(expr.Pos(), right.End()),
				Left:     expr,
				Op:       op,
				Right:    right,
			}
		case token.NOT:
			// "a not in b" sugar for "not (a in b)".
			if p.peek().Type != token.IN {
				return expr
			}
			pos := p.tok.Pos
			p.next()
			p.next()
			right := p.parseFilter()
			expr = &ast.UnaryExpr{
				BaseExpr: ast.MakeBaseExpr(pos, right.End()),
				Op:       token.NOT,
				Expr: &ast.BinaryExpr{
					BaseExpr: ast.MakeBaseExpr(expr.Pos(), right.End()),
					Left:     expr,
					Op:       token.IN,
					Right:    right,
				},
			}
		default:
			return expr
		}
	}
}

// parseFilter parses pipe applications: value | name or value | name(args).
func (p *Parser) parseFilter() ast.Expr {
	expr := p.parseAdditive()
	for p.tok.Type == token.PIPE {
		p.next()
		name, namePos := p.expectName()
		var args []ast.Expr
		if p.tok.Type == token.LPAREN {
			p.next()
			args = p.parseExprList(token.RPAREN)
			p.expect(token.RPAREN)
		}
		expr = &ast.FilterExpr{
			BaseExpr: ast.MakeBaseExpr(expr.Pos(), namePos),
			Value:    expr,
			Name:     name,
			Args:     args,
		}
	}
	return expr
}

func (p *Parser) parseAdditive() ast.Expr {
	return p.parseBinaryLeft(p.parseMultiplicative, token.ADD, token.SUB, token.TILDE)
}

func (p *Parser) parseMultiplicative() ast.Expr {
	return p.parseBinaryLeft(p.parseUnary, token.MUL, token.DIV, token.MOD)
}

func (p *Parser) parseUnary() ast.Expr {
	if p.tok.Type == token.SUB {
		pos := p.tok.Pos
		p.next()
		expr := p.parseUnary()
		return &ast.UnaryExpr{
			BaseExpr: ast.MakeBaseExpr(pos, expr.End()),
			Op:       token.SUB,
			Expr:     expr,
		}
	}
	return p.parsePostfix()
}

// parsePostfix parses primary expressions followed by attribute access,
// subscripts and calls, including the optional-chaining variants.
func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()

	// Range literals bind directly after a simple primary; range
	// operands are restricted to names, literals and parenthesized
	// expressions to keep .. unambiguous next to attribute access.
	if p.tok.Type == token.RANGE || p.tok.Type == token.RANGE_EXCL {
		return p.parseRange(expr)
	}

	for {
		switch p.tok.Type {
		case token.DOT, token.OPT_DOT:
			optional := p.tok.Type == token.OPT_DOT
			p.next()
			name, namePos := p.expectName()
			expr = &ast.AttrExpr{
				BaseExpr: ast.MakeBaseExpr(expr.Pos(), namePos),
				Target:   expr,
				Name:     name,
				Optional: optional,
			}
		case token.LBRACKET, token.OPT_LBRACK:
			optional := p.tok.Type == token.OPT_LBRACK
			p.next()
			index := p.parseExpr()
			end := p.expect(token.RBRACKET)
			expr = &ast.IndexExpr{
				BaseExpr: ast.MakeBaseExpr(expr.Pos(), end.Pos),
				Target:   expr,
				Index:    index,
				Optional: optional,
			}
		case token.LPAREN:
			p.next()
			args := p.parseExprList(token.RPAREN)
			end := p.expect(token.RPAREN)
			expr = &ast.CallExpr{
				BaseExpr: ast.MakeBaseExpr(expr.Pos(), end.Pos),
				Callee:   expr,
				Args:     args,
			}
		default:
			return expr
		}
	}
}

func (p *Parser) parseRange(start ast.Expr) ast.Expr {
	p.requireSimpleRangeOperand(start)
	exclusive := p.tok.Type == token.RANGE_EXCL
	p.next()
	stop := p.parseUnary()
	p.requireSimpleRangeOperand(stop)

	var step ast.Expr
	if p.tok.Type == token.STEP {
		p.next()
		step = p.parseUnary()
		p.requireSimpleRangeOperand(step)
	}
	end := stop.End()
	if step != nil {
		end = step.End()
	}
	return &ast.RangeLit{
		BaseExpr:  ast.MakeBaseExpr(start.Pos(), end),
		Start:     start,
		Stop:      stop,
		Step:      step,
		Exclusive: exclusive,
	}
}

func (p *Parser) requireSimpleRangeOperand(e ast.Expr) {
	if u, ok := e.(*ast.UnaryExpr); ok && u.Op == token.SUB {
		e = u.Expr
	}
	switch e.(type) {
	case *ast.NumLit, *ast.Ident, *ast.GroupExpr:
		return
	default:
		panic(errorf(e.Pos(), "range bounds must be numbers, names, or parenthesized expressions"))
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	pos := p.tok.Pos
	switch p.tok.Type {
	case token.STRING:
		v := p.tok.Value
		p.next()
		return &ast.StrLit{BaseExpr: ast.MakeBaseExpr(pos, p.tok.Pos), Value: v}
	case token.NUMBER:
		return p.parseNumber()
	case token.TRUE, token.FALSE:
		v := p.tok.Type == token.TRUE
		p.next()
		return &ast.BoolLit{BaseExpr: ast.MakeBaseExpr(pos, p.tok.Pos), Value: v}
	case token.NONE:
		p.next()
		return &ast.NoneLit{BaseExpr: ast.MakeBaseExpr(pos, p.tok.Pos)}
	case token.NAME, token.EMPTY, token.STEP:
		// Context keywords are ordinary names in expression position.
		name := p.tok.Value
		p.next()
		return &ast.Ident{BaseExpr: ast.MakeBaseExpr(pos, p.tok.Pos), Name: name}
	case token.LPAREN:
		p.next()
		inner := p.parseExpr()
		end := p.expect(token.RPAREN)
		return &ast.GroupExpr{BaseExpr: ast.MakeBaseExpr(pos, end.Pos), Expr: inner}
	case token.LBRACKET:
		p.next()
		elems := p.parseExprList(token.RBRACKET)
		end := p.expect(token.RBRACKET)
		return &ast.ListLit{BaseExpr: ast.MakeBaseExpr(pos, end.Pos), Elems: elems}
	case token.LBRACE:
		return p.parseMapLit(pos)
	default:
		panic(errorf(pos, "unexpected %s in expression", p.tokenDesc()))
	}
}

func (p *Parser) parseNumber() ast.Expr {
	tok := p.expect(token.NUMBER)
	raw := tok.Value
	base := ast.MakeBaseExpr(tok.Pos, p.tok.Pos)
	if !strings.ContainsAny(raw, ".eE") {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return &ast.NumLit{BaseExpr: base, IsInt: true, Int: n, Raw: raw}
		}
		// Falls through to float for integers beyond int64.
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(errorf(tok.Pos, "malformed number %q", raw))
	}
	return &ast.NumLit{BaseExpr: base, Float: f, Raw: raw}
}

func (p *Parser) parseMapLit(pos token.Position) ast.Expr {
	p.expect(token.LBRACE)
	m := &ast.MapLit{}
	for p.tok.Type != token.RBRACE {
		var key ast.Expr
		if p.tok.Type == token.NAME && p.peek().Type == token.COLON {
			// Bare names are string keys: {title: "x"}.
			key = &ast.StrLit{BaseExpr: ast.MakeBaseExpr(p.tok.Pos, p.tok.Pos), Value: p.tok.Value}
			p.next()
		} else {
			key = p.parseExpr()
		}
		p.expect(token.COLON)
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, p.parseExpr())
		if p.tok.Type != token.COMMA {
			break
		}
		p.next()
	}
	end := p.expect(token.RBRACE)
	m.BaseExpr = ast.MakeBaseExpr(pos, end.Pos)
	return m
}

// parseBinaryLeft parses a left-associative binary expression chain at
// one precedence level.
func (p *Parser) parseBinaryLeft(higher func() ast.Expr, ops ...token.Token) ast.Expr {
	expr := higher()
	for {
		matched := false
		for _, op := range ops {
			if p.tok.Type == op {
				matched = true
				break
			}
		}
		if !matched {
			return expr
		}
		op := p.tok.Type
		p.next()
		right := higher()
		expr = &ast.BinaryExpr{
			BaseExpr: ast.MakeBaseExpr(expr.Pos(), right.End()),
			Left:     expr,
			Op:       op,
			Right:    right,
		}
	}
}

// parseExprList parses a comma-separated expression list up to (not
// including) the closing token.
func (p *Parser) parseExprList(closer token.Token) []ast.Expr {
	var list []ast.Expr
	for p.tok.Type != closer {
		list = append(list, p.parseExpr())
		if p.tok.Type != token.COMMA {
			break
		}
		p.next()
	}
	return list
}
