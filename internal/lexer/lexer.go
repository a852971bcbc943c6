// Package lexer provides Kida template source tokenization.
//
// Template source alternates between plain text and engine constructs:
//
//	text {{ expression }} text {% tag %} text {# comment #}
//
// The lexer is modal: in text mode it emits TEXT runs and delimiter
// tokens, inside {% %} and {{ }} it emits operator, keyword and literal
// tokens. Comments are consumed entirely and produce no tokens.
package lexer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/lbliii/kida/internal/token"
)

// DefaultMaxTokens caps tokenization work for pathological input.
const DefaultMaxTokens = 1_000_000

type mode uint8

const (
	modeText mode = iota
	modeTag
	modeExpr
)

// Token represents a scanned token with its position and value.
type Token struct {
	Type  token.Token
	Pos   token.Position
	Value string
}

// Error is a tokenization error with source position.
type Error struct {
	Pos     token.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Lexer tokenizes Kida template source.
type Lexer struct {
	src    []byte
	name   string
	offset int
	pos    token.Position

	mode      mode
	maxTokens int
	count     int

	// pending holds synthesized tokens emitted ahead of normal
	// scanning (used for the {% raw %} closer sequence).
	pending []Token

	// tagStart tracks whether the current tag's first token is still to
	// come, and rawTag marks a {% raw %} tag so text mode switches to
	// verbatim scanning after its %}.
	tagStart bool
	rawTag   bool
	inRaw    bool
}

// New creates a Lexer for the given template source.
func New(name string, src []byte) *Lexer {
	return &Lexer{
		src:       src,
		name:      name,
		pos:       token.Position{Filename: name, Line: 1, Column: 1},
		maxTokens: DefaultMaxTokens,
	}
}

// NewFromString creates a Lexer from a string.
func NewFromString(name, src string) *Lexer {
	return New(name, []byte(src))
}

// SetMaxTokens overrides the token-count cap. Values <= 0 keep the default.
func (l *Lexer) SetMaxTokens(n int) {
	if n > 0 {
		l.maxTokens = n
	}
}

// Tokenize eagerly scans the whole source. It is deterministic and free
// of side effects: tokenizing the same source twice yields identical
// sequences. The first malformed token or an exceeded token cap stops
// the scan and is returned as *Error.
func Tokenize(name, src string, maxTokens int) ([]Token, error) {
	l := NewFromString(name, src)
	l.SetMaxTokens(maxTokens)
	var toks []Token
	for {
		tok := l.Scan()
		if tok.Type == token.ILLEGAL {
			return nil, &Error{Pos: tok.Pos, Message: tok.Value}
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

// Scan scans and returns the next token.
func (l *Lexer) Scan() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	l.count++
	if l.count > l.maxTokens {
		return Token{Type: token.ILLEGAL, Pos: l.pos, Value: fmt.Sprintf("token limit exceeded (%d)", l.maxTokens)}
	}

	switch l.mode {
	case modeText:
		return l.scanText()
	default:
		return l.scanInside()
	}
}

// scanText scans plain template text up to the next delimiter.
func (l *Lexer) scanText() Token {
	if l.inRaw {
		return l.scanRawText()
	}

	pos := l.pos
	start := l.offset
	for l.offset < len(l.src) {
		i := bytes.IndexByte(l.src[l.offset:], '{')
		if i < 0 {
			l.advance(len(l.src) - l.offset)
			break
		}
		l.advance(i)
		if l.offset+1 >= len(l.src) {
			l.advance(len(l.src) - l.offset)
			break
		}
		switch l.src[l.offset+1] {
		case '{', '%', '#':
			// Delimiter found. Emit preceding text first.
			if l.offset > start {
				return Token{Type: token.TEXT, Pos: pos, Value: string(l.src[start:l.offset])}
			}
			return l.scanDelimiter()
		}
		l.advance(1) // lone '{' is text
	}

	if l.offset > start {
		return Token{Type: token.TEXT, Pos: pos, Value: string(l.src[start:l.offset])}
	}
	return Token{Type: token.EOF, Pos: l.pos}
}

// scanDelimiter is called with the offset at "{{", "{%" or "{#".
func (l *Lexer) scanDelimiter() Token {
	pos := l.pos
	switch l.src[l.offset+1] {
	case '{':
		l.advance(2)
		l.mode = modeExpr
		return Token{Type: token.EXPR_OPEN, Pos: pos, Value: "{{"}
	case '%':
		l.advance(2)
		l.mode = modeTag
		l.tagStart = true
		l.rawTag = false
		return Token{Type: token.TAG_OPEN, Pos: pos, Value: "{%"}
	default: // '#'
		end := bytes.Index(l.src[l.offset+2:], []byte("#}"))
		if end < 0 {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "unterminated comment"}
		}
		l.advance(2 + end + 2)
		return l.scanText()
	}
}

// scanRawText consumes verbatim content up to {% endraw %}, emitting the
// content as TEXT and queueing the closing tag tokens.
func (l *Lexer) scanRawText() Token {
	pos := l.pos
	start := l.offset
	rest := string(l.src[l.offset:])
	for searched := 0; ; {
		i := strings.Index(rest[searched:], "{%")
		if i < 0 {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "unterminated raw block"}
		}
		tagAt := searched + i
		inner := rest[tagAt+2:]
		trimmed := strings.TrimLeft(inner, " \t\r\n")
		if kw, ok := strings.CutPrefix(trimmed, "endraw"); ok {
			kw = strings.TrimLeft(kw, " \t\r\n")
			if strings.HasPrefix(kw, "%}") {
				l.inRaw = false
				l.advance(tagAt)
				text := string(l.src[start:l.offset])
				openPos := l.pos
				l.advance(2)
				l.advance(len(inner) - len(trimmed))
				endPos := l.pos
				l.advance(len("endraw"))
				l.advance(len(trimmed) - len("endraw") - len(kw))
				closePos := l.pos
				l.advance(2)
				l.pending = append(l.pending,
					Token{Type: token.TAG_OPEN, Pos: openPos, Value: "{%"},
					Token{Type: token.END, Pos: endPos, Value: "endraw"},
					Token{Type: token.TAG_CLOSE, Pos: closePos, Value: "%}"},
				)
				if text == "" {
					return l.Scan()
				}
				return Token{Type: token.TEXT, Pos: pos, Value: text}
			}
		}
		searched = tagAt + 2
	}
}

// scanInside scans a token inside {% %} or {{ }} delimiters.
func (l *Lexer) scanInside() Token {
	l.skipSpace()
	pos := l.pos

	if l.offset >= len(l.src) {
		return Token{Type: token.ILLEGAL, Pos: pos, Value: "unexpected end of template inside delimiter"}
	}

	ch := l.src[l.offset]

	// Closing delimiters take precedence (longest match).
	if l.mode == modeTag && ch == '%' && l.peekAt(1) == '}' {
		l.advance(2)
		l.mode = modeText
		l.tagStart = false
		if l.rawTag {
			l.inRaw = true
			l.rawTag = false
		}
		return Token{Type: token.TAG_CLOSE, Pos: pos, Value: "%}"}
	}
	if l.mode == modeExpr && ch == '}' && l.peekAt(1) == '}' {
		l.advance(2)
		l.mode = modeText
		return Token{Type: token.EXPR_CLOSE, Pos: pos, Value: "}}"}
	}

	switch ch {
	case '+':
		l.advance(1)
		return Token{Type: token.ADD, Pos: pos, Value: "+"}
	case '-':
		l.advance(1)
		return Token{Type: token.SUB, Pos: pos, Value: "-"}
	case '*':
		l.advance(1)
		return Token{Type: token.MUL, Pos: pos, Value: "*"}
	case '/':
		l.advance(1)
		return Token{Type: token.DIV, Pos: pos, Value: "/"}
	case '%':
		l.advance(1)
		return Token{Type: token.MOD, Pos: pos, Value: "%"}
	case '~':
		l.advance(1)
		return Token{Type: token.TILDE, Pos: pos, Value: "~"}
	case '=':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Type: token.EQUALS, Pos: pos, Value: "=="}
		}
		l.advance(1)
		return Token{Type: token.ASSIGN, Pos: pos, Value: "="}
	case '!':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Type: token.NOT_EQUALS, Pos: pos, Value: "!="}
		}
		l.advance(1)
		return Token{Type: token.ILLEGAL, Pos: pos, Value: "unexpected '!'"}
	case '<':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Type: token.LTE, Pos: pos, Value: "<="}
		}
		l.advance(1)
		return Token{Type: token.LESS, Pos: pos, Value: "<"}
	case '>':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Type: token.GTE, Pos: pos, Value: ">="}
		}
		l.advance(1)
		return Token{Type: token.GREATER, Pos: pos, Value: ">"}
	case '|':
		l.advance(1)
		return Token{Type: token.PIPE, Pos: pos, Value: "|"}
	case '?':
		// Longest match first: ?? then ?. then ?[ then ?
		switch l.peekAt(1) {
		case '?':
			l.advance(2)
			return Token{Type: token.COALESCE, Pos: pos, Value: "??"}
		case '.':
			l.advance(2)
			return Token{Type: token.OPT_DOT, Pos: pos, Value: "?."}
		case '[':
			l.advance(2)
			return Token{Type: token.OPT_LBRACK, Pos: pos, Value: "?["}
		}
		l.advance(1)
		return Token{Type: token.QUESTION, Pos: pos, Value: "?"}
	case '.':
		// Longest match first: ... then .. then .
		if l.peekAt(1) == '.' {
			if l.peekAt(2) == '.' {
				l.advance(3)
				return Token{Type: token.RANGE_EXCL, Pos: pos, Value: "..."}
			}
			l.advance(2)
			return Token{Type: token.RANGE, Pos: pos, Value: ".."}
		}
		l.advance(1)
		return Token{Type: token.DOT, Pos: pos, Value: "."}
	case '(':
		l.advance(1)
		return Token{Type: token.LPAREN, Pos: pos, Value: "("}
	case ')':
		l.advance(1)
		return Token{Type: token.RPAREN, Pos: pos, Value: ")"}
	case '[':
		l.advance(1)
		return Token{Type: token.LBRACKET, Pos: pos, Value: "["}
	case ']':
		l.advance(1)
		return Token{Type: token.RBRACKET, Pos: pos, Value: "]"}
	case '{':
		l.advance(1)
		return Token{Type: token.LBRACE, Pos: pos, Value: "{"}
	case '}':
		l.advance(1)
		return Token{Type: token.RBRACE, Pos: pos, Value: "}"}
	case ',':
		l.advance(1)
		return Token{Type: token.COMMA, Pos: pos, Value: ","}
	case ':':
		l.advance(1)
		return Token{Type: token.COLON, Pos: pos, Value: ":"}
	case '"', '\'':
		return l.scanString(pos)
	}

	if isDigit(ch) {
		return l.scanNumber(pos)
	}
	if isIdentStart(ch) {
		return l.scanIdent(pos)
	}

	l.advance(1)
	return Token{Type: token.ILLEGAL, Pos: pos, Value: fmt.Sprintf("unexpected character %q", ch)}
}

func (l *Lexer) scanString(pos token.Position) Token {
	quote := l.src[l.offset]
	l.advance(1)

	var sb []byte
	for l.offset < len(l.src) && l.src[l.offset] != quote {
		ch := l.src[l.offset]
		if ch == '\\' {
			l.advance(1)
			if l.offset >= len(l.src) {
				break
			}
			switch l.src[l.offset] {
			case 'n':
				sb = append(sb, '\n')
			case 't':
				sb = append(sb, '\t')
			case 'r':
				sb = append(sb, '\r')
			case '\\':
				sb = append(sb, '\\')
			case '"':
				sb = append(sb, '"')
			case '\'':
				sb = append(sb, '\'')
			default:
				sb = append(sb, l.src[l.offset])
			}
			l.advance(1)
			continue
		}
		sb = append(sb, ch)
		l.advance(1)
	}

	if l.offset >= len(l.src) {
		return Token{Type: token.ILLEGAL, Pos: pos, Value: "unterminated string"}
	}
	l.advance(1) // closing quote
	return Token{Type: token.STRING, Pos: pos, Value: string(sb)}
}

func (l *Lexer) scanNumber(pos token.Position) Token {
	start := l.offset
	for l.offset < len(l.src) && isDigit(l.src[l.offset]) {
		l.advance(1)
	}
	// A '.' continues the number only when followed by a digit; this
	// keeps range operators ("1..5") out of numeric literals.
	if l.offset+1 < len(l.src) && l.src[l.offset] == '.' && isDigit(l.src[l.offset+1]) {
		l.advance(1)
		for l.offset < len(l.src) && isDigit(l.src[l.offset]) {
			l.advance(1)
		}
	}
	if l.offset < len(l.src) && (l.src[l.offset] == 'e' || l.src[l.offset] == 'E') {
		if l.hasValidExponent() {
			l.advance(1)
			if l.src[l.offset] == '+' || l.src[l.offset] == '-' {
				l.advance(1)
			}
			for l.offset < len(l.src) && isDigit(l.src[l.offset]) {
				l.advance(1)
			}
		}
	}
	return Token{Type: token.NUMBER, Pos: pos, Value: string(l.src[start:l.offset])}
}

// hasValidExponent checks if the current e/E is followed by a valid
// exponent: a digit, or +/- then a digit.
func (l *Lexer) hasValidExponent() bool {
	idx := l.offset + 1
	if idx >= len(l.src) {
		return false
	}
	ch := l.src[idx]
	if isDigit(ch) {
		return true
	}
	if ch == '+' || ch == '-' {
		idx++
		return idx < len(l.src) && isDigit(l.src[idx])
	}
	return false
}

func (l *Lexer) scanIdent(pos token.Position) Token {
	start := l.offset
	for l.offset < len(l.src) && isIdentContinue(l.src[l.offset]) {
		l.advance(1)
	}
	name := string(l.src[start:l.offset])
	typ := token.LookupIdent(name)
	if l.tagStart {
		l.tagStart = false
		if typ == token.RAW {
			l.rawTag = true
		}
	}
	return Token{Type: typ, Pos: pos, Value: name}
}

func (l *Lexer) skipSpace() {
	for l.offset < len(l.src) {
		switch l.src[l.offset] {
		case ' ', '\t', '\r', '\n':
			l.advance(1)
		default:
			return
		}
	}
}

func (l *Lexer) peekAt(n int) byte {
	if l.offset+n >= len(l.src) {
		return 0
	}
	return l.src[l.offset+n]
}

// advance moves the offset forward n bytes, updating line and column in
// a single pass over the consumed slice. Text runs with embedded
// newlines are handled without rescanning from the start of the source.
func (l *Lexer) advance(n int) {
	if n <= 0 {
		return
	}
	end := l.offset + n
	if end > len(l.src) {
		end = len(l.src)
	}
	for _, ch := range l.src[l.offset:end] {
		if ch == '\n' {
			l.pos.Line++
			l.pos.Column = 1
		} else {
			l.pos.Column++
		}
	}
	l.offset = end
	l.pos.Offset = end
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentContinue(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
