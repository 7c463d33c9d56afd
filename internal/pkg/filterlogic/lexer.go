package filterlogic

import (
	"strings"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenLBracket
	TokenRBracket
	TokenLParen
	TokenRParen
	TokenIdent
	TokenNumber
	TokenString
	TokenOperator
	TokenAnd
	TokenOr
	TokenNot
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenIllegal:
		return "illegal"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenIdent:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenOperator:
		return "operator"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	default:
		return "unknown"
	}
}

// Token represents a lexical token.
// Value holds the decoded text (quotes and escapes removed for strings),
// Raw the exact source text and Pos its byte offset.
type Token struct {
	Type  TokenType
	Value string
	Raw   string
	Pos   int
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Pos + len(t.Raw)
}

// Lexer tokenizes filter logic.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	ch := l.input[l.pos]

	switch ch {
	case '[':
		return l.single(TokenLBracket)
	case ']':
		return l.single(TokenRBracket)
	case '(':
		return l.single(TokenLParen)
	case ')':
		return l.single(TokenRParen)
	case '\'', '"':
		return l.readString(ch)
	}

	if isOperatorChar(ch) {
		return l.readOperator()
	}
	if isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.readNumber()
	}
	if isIdentChar(ch) {
		return l.readIdent()
	}

	start := l.pos
	l.pos++
	return Token{Type: TokenIllegal, Value: l.input[start:l.pos], Raw: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) single(t TokenType) Token {
	start := l.pos
	l.pos++
	s := l.input[start:l.pos]
	return Token{Type: t, Value: s, Raw: s, Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

// readString reads a single or double quoted string. Both a backslash and
// a doubled quote escape the quote character. An unterminated string is
// returned as TokenIllegal.
func (l *Lexer) readString(quote byte) Token {
	start := l.pos
	l.pos++ // opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
		case ch == quote && l.pos+1 < len(l.input) && l.input[l.pos+1] == quote:
			sb.WriteByte(quote)
			l.pos += 2
		case ch == quote:
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Raw: l.input[start:l.pos], Pos: start}
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}

	return Token{Type: TokenIllegal, Value: "unterminated string", Raw: l.input[start:l.pos], Pos: start}
}

// readOperator consumes the longest operator token starting at pos.
func (l *Lexer) readOperator() Token {
	start := l.pos
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		switch two {
		case "**", "//", "<>", "<=", ">=", "!=":
			l.pos += 2
			return Token{Type: TokenOperator, Value: two, Raw: two, Pos: start}
		}
	}

	ch := l.input[l.pos]
	l.pos++
	if ch == '!' {
		return Token{Type: TokenIllegal, Value: "!", Raw: "!", Pos: start}
	}
	s := l.input[start:l.pos]
	return Token{Type: TokenOperator, Value: s, Raw: s, Pos: start}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	seenDot := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '.' && !seenDot {
			seenDot = true
			l.pos++
			continue
		}
		if !isDigit(ch) {
			break
		}
		l.pos++
	}

	// optional exponent: 1e5, 2.5E-3
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		i := l.pos + 1
		if i < len(l.input) && (l.input[i] == '+' || l.input[i] == '-') {
			i++
		}
		if i < len(l.input) && isDigit(l.input[i]) {
			for i < len(l.input) && isDigit(l.input[i]) {
				i++
			}
			l.pos = i
		}
	}

	// 12abc is a word, not a number followed by a word
	if l.pos < len(l.input) && isIdentChar(l.input[l.pos]) && !seenDot {
		l.pos = start
		return l.readIdent()
	}

	s := l.input[start:l.pos]
	return Token{Type: TokenNumber, Value: s, Raw: s, Pos: start}
}

func (l *Lexer) readIdent() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	switch strings.ToLower(value) {
	case "and":
		return Token{Type: TokenAnd, Value: "AND", Raw: value, Pos: start}
	case "or":
		return Token{Type: TokenOr, Value: "OR", Raw: value, Pos: start}
	case "not":
		return Token{Type: TokenNot, Value: "NOT", Raw: value, Pos: start}
	}

	return Token{Type: TokenIdent, Value: value, Raw: value, Pos: start}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return ch == '_' || isDigit(ch) || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isOperatorChar(ch byte) bool {
	return strings.IndexByte("+-*/%=<>!", ch) >= 0
}
