// Package exprlang is a deliberately small expression/query compiler used
// by cmd/rbql's demo mode to turn a query string into an
// iface.CompiledQuery. The core consumes CompiledQuery as an opaque
// contract produced by an external collaborator (spec.md section 1
// excludes the parser); this package gives the CLI something to feed it
// besides a hand-built struct literal, and pkg/engine's scenario tests
// also compile their queries through it.
//
// Grammar (informal):
//
//	query      := ("SELECT" ["DISTINCT" ["COUNT"]] exprList | "UPDATE" "SET" assignList) [joinClause] ["WHERE" expr] ["GROUP" "BY" expr] ["ORDER" "BY" expr ["DESC"|"ASC"]] ["LIMIT" number]
//	joinClause := ["INNER" | "LEFT" | "STRICT" "LEFT"] "JOIN" string "ON" aFieldRef "==" bFieldRef
//	exprList   := expr {"," expr}
//	assignList := assign {"," assign}
//	assign     := fieldRef "=" expr
//	expr       := or
//	or         := and {"||" and}
//	and        := cmp {"&&" cmp}
//	cmp        := sum {("==" | "!=" | "<" | "<=" | ">" | ">=") sum}
//	sum        := term {("+" | "-") term}
//	term       := unary {("*" | "/") unary}
//	unary      := ["-"] atom
//	atom       := number | string | fieldRef | call | "(" expr ")"
//	call       := ident "(" (expr | "*") ")"
//	fieldRef   := ("a" | "b") digits | "NF" | "NR" | "NU"
//
// Compiling a query with a joinClause also returns a *JoinInfo describing
// the right-hand source the caller (cmd/rbql) must open and build a
// iface.JoinMapImpl from before calling pkg/engine.Run — this package
// only parses the clause, it never reads the path itself.
package exprlang

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokStar
)

type token struct {
	kind tokenKind
	text string
}

// lexer turns a query string into a flat token stream. It is a thin
// hand-rolled scanner rather than text/scanner because the grammar treats
// multi-character operators (==, !=, <=, >=, &&, ||) and field references
// (a1, b12) as single tokens that text/scanner's Go-token mode doesn't
// produce directly.
type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

// next returns the next token, or a tokEOF token at end of input.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}

	r := l.src[l.pos]

	switch {
	case r == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case r == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case r == ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case r == '*':
		l.pos++
		return token{kind: tokStar, text: "*"}, nil
	case r == '"' || r == '\'':
		return l.lexString(r)
	case unicode.IsDigit(r):
		return l.lexNumber()
	case unicode.IsLetter(r) || r == '_':
		return l.lexIdent()
	default:
		return l.lexOperator()
	}
}

func (l *lexer) lexString(quote rune) (token, error) {
	l.pos++ // consume opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if r == quote {
			l.pos++
			return token{kind: tokString, text: b.String()}, nil
		}
		if r == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			b.WriteRune(l.src[l.pos])
			l.pos++
			continue
		}
		b.WriteRune(r)
		l.pos++
	}
	return token{}, &ParseError{Msg: "unterminated string literal"}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos])}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
}

func (l *lexer) lexOperator() (token, error) {
	two := ""
	if l.pos+1 < len(l.src) {
		two = string(l.src[l.pos : l.pos+2])
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		l.pos += 2
		return token{kind: tokOp, text: two}, nil
	}
	one := string(l.src[l.pos])
	switch one {
	case "<", ">", "+", "-", "/", "=":
		l.pos++
		return token{kind: tokOp, text: one}, nil
	}
	return token{}, &ParseError{Msg: "unexpected character: " + one}
}

// ParseError reports a lexer/parser failure; it is converted to a
// *rbqlerror.ParsingError at the compile boundary (compile.go) so callers
// of Compile only ever see the core's error taxonomy.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }
