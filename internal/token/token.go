// Package token defines lexical tokens for the Kida template language.
package token

// Token represents a lexical token type.
type Token uint8

const (
	// Special tokens
	ILLEGAL Token = iota // <illegal>
	EOF                  // EOF
	TEXT                 // <text>

	// Delimiters
	TAG_OPEN   // {%
	TAG_CLOSE  // %}
	EXPR_OPEN  // {{
	EXPR_CLOSE // }}

	// Operators and punctuation
	operatorStart
	ADD    // +
	SUB    // -
	MUL    // *
	DIV    // /
	MOD    // %
	TILDE  // ~
	ASSIGN // =

	EQUALS     // ==
	NOT_EQUALS // !=
	LESS       // <
	LTE        // <=
	GREATER    // >
	GTE        // >=

	PIPE       // |
	QUESTION   // ?
	COALESCE   // ??
	OPT_DOT    // ?.
	OPT_LBRACK // ?[
	DOT        // .
	RANGE      // ..
	RANGE_EXCL // ...

	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }
	COMMA    // ,
	COLON    // :
	operatorEnd

	// Keywords
	keywordStart
	IF        // if
	ELIF      // elif
	ELSE      // else
	UNLESS    // unless
	FOR       // for
	IN        // in
	EMPTY     // empty
	RECURSIVE // recursive
	STEP      // step
	SET       // set
	BLOCK     // block
	EXTENDS   // extends
	INCLUDE   // include
	EMBED     // embed
	MACRO     // macro
	MATCH     // match
	CASE      // case
	BREAK     // break
	CONTINUE  // continue
	SPACELESS // spaceless
	RAW       // raw
	END       // end
	AND       // and
	OR        // or
	NOT       // not
	TRUE      // true
	FALSE     // false
	NONE      // none
	keywordEnd

	// Literals
	NAME   // name
	NUMBER // number
	STRING // string
)

// IsOperator returns true if the token is an operator or punctuation.
func (t Token) IsOperator() bool {
	return t > operatorStart && t < operatorEnd
}

// IsKeyword returns true if the token is a keyword.
func (t Token) IsKeyword() bool {
	return t > keywordStart && t < keywordEnd
}

// IsLiteral returns true if the token is a literal (name, number, string).
func (t Token) IsLiteral() bool {
	return t == NAME || t == NUMBER || t == STRING
}

// keywords maps keyword strings to their token types.
// Keywords are only recognized inside tag and expression delimiters;
// in plain text they are ordinary content.
var keywords = map[string]Token{
	"if":        IF,
	"elif":      ELIF,
	"else":      ELSE,
	"unless":    UNLESS,
	"for":       FOR,
	"in":        IN,
	"empty":     EMPTY,
	"recursive": RECURSIVE,
	"step":      STEP,
	"set":       SET,
	"block":     BLOCK,
	"extends":   EXTENDS,
	"include":   INCLUDE,
	"embed":     EMBED,
	"macro":     MACRO,
	"match":     MATCH,
	"case":      CASE,
	"break":     BREAK,
	"continue":  CONTINUE,
	"spaceless": SPACELESS,
	"raw":       RAW,
	"end":       END,
	"and":       AND,
	"or":        OR,
	"not":       NOT,
	"true":      TRUE,
	"false":     FALSE,
	"none":      NONE,
}

// endKeywords are the keyword-specific closers. Each maps to END; the
// parser checks the spelled-out form against the open construct.
var endKeywords = map[string]Token{
	"endif":        END,
	"endunless":    END,
	"endfor":       END,
	"endblock":     END,
	"endembed":     END,
	"endmacro":     END,
	"endmatch":     END,
	"endspaceless": END,
	"endraw":       END,
	"endset":       END,
}

// LookupIdent returns the token type for a given identifier.
// Returns a keyword token if found, otherwise NAME.
func LookupIdent(ident string) Token {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	if tok, ok := endKeywords[ident]; ok {
		return tok
	}
	return NAME
}

// IsEndKeyword reports whether the identifier is an end-of-block keyword
// ("end" or one of the spelled-out "end<name>" forms).
func IsEndKeyword(ident string) bool {
	if ident == "end" {
		return true
	}
	_, ok := endKeywords[ident]
	return ok
}

// Name returns a human-readable name for the token type,
// used in parser diagnostics.
func (t Token) Name() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "<unknown>"
}

var tokenNames = map[Token]string{
	ILLEGAL:    "illegal",
	EOF:        "end of template",
	TEXT:       "text",
	TAG_OPEN:   "{%",
	TAG_CLOSE:  "%}",
	EXPR_OPEN:  "{{",
	EXPR_CLOSE: "}}",
	ADD:        "+",
	SUB:        "-",
	MUL:        "*",
	DIV:        "/",
	MOD:        "%",
	TILDE:      "~",
	ASSIGN:     "=",
	EQUALS:     "==",
	NOT_EQUALS: "!=",
	LESS:       "<",
	LTE:        "<=",
	GREATER:    ">",
	GTE:        ">=",
	PIPE:       "|",
	QUESTION:   "?",
	COALESCE:   "??",
	OPT_DOT:    "?.",
	OPT_LBRACK: "?[",
	DOT:        ".",
	RANGE:      "..",
	RANGE_EXCL: "...",
	LPAREN:     "(",
	RPAREN:     ")",
	LBRACKET:   "[",
	RBRACKET:   "]",
	LBRACE:     "{",
	RBRACE:     "}",
	COMMA:      ",",
	COLON:      ":",
	IF:         "if",
	ELIF:       "elif",
	ELSE:       "else",
	UNLESS:     "unless",
	FOR:        "for",
	IN:         "in",
	EMPTY:      "empty",
	RECURSIVE:  "recursive",
	STEP:       "step",
	SET:        "set",
	BLOCK:      "block",
	EXTENDS:    "extends",
	INCLUDE:    "include",
	EMBED:      "embed",
	MACRO:      "macro",
	MATCH:      "match",
	CASE:       "case",
	BREAK:      "break",
	CONTINUE:   "continue",
	SPACELESS:  "spaceless",
	RAW:        "raw",
	END:        "end",
	AND:        "and",
	OR:         "or",
	NOT:        "not",
	TRUE:       "true",
	FALSE:      "false",
	NONE:       "none",
	NAME:       "name",
	NUMBER:     "number",
	STRING:     "string",
}
