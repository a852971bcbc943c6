package kida

import (
	"fmt"
)

// LexError represents a tokenization error in template source.
type LexError struct {
	Template string // Template name
	Line     int    // 1-based line number
	Column   int    // 1-based column number
	Message  string // Error description
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error in %s at %d:%d: %s", e.Template, e.Line, e.Column, e.Message)
}

// ParseError represents a syntax error in template source.
type ParseError struct {
	Template string // Template name
	Line     int    // 1-based line number
	Column   int    // 1-based column number
	Message  string // Error description
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at %d:%d: %s", e.Template, e.Line, e.Column, e.Message)
}

// CompileError represents an internal error during lowering. It
// indicates a bug in the optimizer or compiler, never bad template
// input.
type CompileError struct {
	Template string // Template name
	Message  string // Error description
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error in %s: %s", e.Template, e.Message)
}

// RenderError represents an error during template execution: a missing
// template, a recursion-depth overflow, a strict-mode violation or a
// failing filter or function.
type RenderError struct {
	Template string // Template whose render failed
	Message  string // Error description
	Cause    error  // Underlying error, if any
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error in %s: %s", e.Template, e.Message)
}

func (e *RenderError) Unwrap() error { return e.Cause }
