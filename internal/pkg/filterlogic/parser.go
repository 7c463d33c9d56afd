// Package filterlogic parses the platform's filter logic syntax for a single
// field comparison, e.g. [age] >= 18 or [visit_1_arm_1][consent(2)] = '1'.
package filterlogic

import (
	"strconv"
	"strings"
)

// Parser parses filter logic into a Condition.
type Parser struct {
	lexer   *Lexer
	input   string
	current Token
}

// Parse parses the logic string and returns the condition it describes.
func Parse(logic string) (*Condition, error) {
	if strings.TrimSpace(logic) == "" {
		return nil, newError(ErrEmptyLogic, 0, "logic is empty")
	}

	p := &Parser{lexer: NewLexer(logic), input: logic}
	p.advance()

	field, err := p.parseFieldRef()
	if err != nil {
		return nil, err
	}

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if err := p.expectEOF(); err != nil {
		return nil, err
	}

	return &Condition{
		Raw:   logic,
		Field: field,
		Op:    op,
		Value: value,
	}, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) unexpected(want string) *Error {
	if p.current.Type == TokenIllegal {
		return newError(ErrSyntax, p.current.Pos, "expected %s but found illegal input %q", want, p.current.Raw)
	}
	if p.current.Type == TokenEOF {
		return newError(ErrSyntax, p.current.Pos, "expected %s but reached end of input", want)
	}
	return newError(ErrSyntax, p.current.Pos, "expected %s but found %s %q", want, p.current.Type, p.current.Raw)
}

// parseFieldRef handles [field], [field(code)] and [event][field].
func (p *Parser) parseFieldRef() (FieldRef, error) {
	switch p.current.Type {
	case TokenLBracket:
	case TokenNot:
		return FieldRef{}, newError(ErrUnsupported, p.current.Pos, "NOT is not supported")
	default:
		return FieldRef{}, p.unexpected("'['")
	}

	name, code, end, err := p.parseBracket()
	if err != nil {
		return FieldRef{}, err
	}

	// A second bracket glued to the first qualifies the field with an event.
	if p.current.Type == TokenLBracket && p.current.Pos == end {
		if code != "" {
			return FieldRef{}, newError(ErrSyntax, p.current.Pos, "event name %q cannot carry a choice code", name)
		}
		field, fcode, _, err := p.parseBracket()
		if err != nil {
			return FieldRef{}, err
		}
		if p.current.Type == TokenLBracket {
			return FieldRef{}, newError(ErrSyntax, p.current.Pos, "too many bracketed names")
		}
		return FieldRef{Event: name, Name: field, Code: fcode}, nil
	}

	return FieldRef{Name: name, Code: code}, nil
}

// parseBracket consumes '[' name ( '(' code ')' )? ']' and returns the
// offset just past the closing bracket.
func (p *Parser) parseBracket() (name, code string, end int, err error) {
	p.advance() // skip '['

	if !isFieldName(p.current) {
		return "", "", 0, p.unexpected("field name")
	}
	name = p.current.Raw
	p.advance()

	if p.current.Type == TokenLParen {
		p.advance()
		code, err = p.parseChoiceCode()
		if err != nil {
			return "", "", 0, err
		}
		if p.current.Type != TokenRParen {
			return "", "", 0, p.unexpected("')'")
		}
		p.advance()
	}

	if p.current.Type != TokenRBracket {
		return "", "", 0, p.unexpected("']'")
	}
	end = p.current.End()
	p.advance()
	return name, code, end, nil
}

// isFieldName reports whether tok can name a field inside brackets. Keywords
// and names made of digits are valid field names there.
func isFieldName(tok Token) bool {
	switch tok.Type {
	case TokenIdent, TokenAnd, TokenOr, TokenNot:
		return true
	case TokenNumber:
		for i := 0; i < len(tok.Raw); i++ {
			if !isIdentChar(tok.Raw[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// parseChoiceCode reads a checkbox choice code: 1, -1, or an alphanumeric code.
func (p *Parser) parseChoiceCode() (string, error) {
	sign := ""
	if p.current.Type == TokenOperator && p.current.Value == "-" {
		sign = "-"
		p.advance()
	}
	switch p.current.Type {
	case TokenNumber, TokenIdent:
		code := sign + p.current.Value
		p.advance()
		return code, nil
	default:
		return "", p.unexpected("choice code")
	}
}

func (p *Parser) parseOperator() (Operator, error) {
	switch p.current.Type {
	case TokenOperator:
	case TokenAnd, TokenOr, TokenNot:
		return OpInvalid, newError(ErrUnsupported, p.current.Pos, "%s is not supported", p.current.Value)
	default:
		return OpInvalid, p.unexpected("operator")
	}

	tok := p.current
	op, ok := LookupOperator(tok.Value)
	if !ok {
		return OpInvalid, newError(ErrUnknownOperator, tok.Pos, "unknown operator %q", tok.Value)
	}
	if !op.IsComparison() {
		return OpInvalid, newError(ErrNotComparison, tok.Pos, "operator %q does not compare", tok.Value)
	}
	p.advance()
	return op, nil
}

// parseValue parses a quoted string, a signed number, or a bare word.
func (p *Parser) parseValue() (Value, error) {
	tok := p.current

	switch tok.Type {
	case TokenString:
		p.advance()
		if tok.Value == "" {
			return Value{Kind: ValueEmpty, Raw: tok.Raw}, nil
		}
		return Value{Kind: ValueString, Raw: tok.Raw, Text: tok.Value}, nil

	case TokenNumber:
		p.advance()
		return numberValue(tok.Raw, tok)

	case TokenOperator:
		if tok.Value != "-" && tok.Value != "+" {
			return Value{}, p.unexpected("value")
		}
		p.advance()
		if p.current.Type != TokenNumber || p.current.Pos != tok.End() {
			return Value{}, p.unexpected("number after sign")
		}
		num := p.current
		p.advance()
		return numberValue(p.input[tok.Pos:num.End()], num)

	case TokenIdent:
		p.advance()
		return Value{Kind: ValueString, Raw: tok.Raw, Text: tok.Value}, nil

	case TokenLBracket:
		return Value{}, newError(ErrUnsupported, tok.Pos, "comparing two fields is not supported")

	case TokenAnd, TokenOr, TokenNot:
		return Value{}, newError(ErrUnsupported, tok.Pos, "%s is not supported", tok.Value)

	default:
		return Value{}, p.unexpected("value")
	}
}

func numberValue(raw string, tok Token) (Value, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, newError(ErrSyntax, tok.Pos, "invalid number %q", raw)
	}
	return Value{Kind: ValueNumber, Raw: raw, Text: raw, Num: f}, nil
}

func (p *Parser) expectEOF() error {
	switch p.current.Type {
	case TokenEOF:
		return nil
	case TokenNot:
		return newError(ErrUnsupported, p.current.Pos, "NOT is not supported")
	case TokenAnd, TokenOr:
		return newError(ErrUnsupported, p.current.Pos, "logic joining several conditions with %s is not supported", p.current.Value)
	case TokenLBracket:
		return newError(ErrUnsupported, p.current.Pos, "logic referencing more than one field is not supported")
	default:
		return p.unexpected("end of input")
	}
}
