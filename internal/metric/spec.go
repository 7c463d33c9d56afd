package metric

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSpec = errors.New("metric: invalid spec")

type specToken struct {
	kind byte // 'w' word, '(' ')' ','
	text string
	pos  int
}

func tokenizeSpec(s string) ([]specToken, error) {
	var toks []specToken
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(' || ch == ')' || ch == ',':
			toks = append(toks, specToken{kind: ch, text: string(ch), pos: i})
			i++
		case isWordByte(ch):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			toks = append(toks, specToken{kind: 'w', text: s[start:i], pos: start})
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidSpec, ch, i)
		}
	}
	return toks, nil
}

func isWordByte(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}

// ParseSpec parses a metric written as "ACTION first [second]" or
// "ACTION(first[, second])" and validates it against c.
func (c *Catalog) ParseSpec(spec string) (*Metric, error) {
	toks, err := tokenizeSpec(spec)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSpec)
	}
	if toks[0].kind != 'w' {
		return nil, fmt.Errorf("%w: expected action at offset %d", ErrInvalidSpec, toks[0].pos)
	}
	action := toks[0].text
	rest := toks[1:]

	if len(rest) > 0 && rest[0].kind == '(' {
		last := rest[len(rest)-1]
		if last.kind != ')' {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidSpec)
		}
		rest = rest[1 : len(rest)-1]
	}

	var args []string
	expectWord := true
	for _, tok := range rest {
		switch tok.kind {
		case 'w':
			args = append(args, tok.text)
			expectWord = false
		case ',':
			if expectWord {
				return nil, fmt.Errorf("%w: unexpected ',' at offset %d", ErrInvalidSpec, tok.pos)
			}
			expectWord = true
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidSpec, tok.text, tok.pos)
		}
	}
	if len(args) > 0 && expectWord {
		return nil, fmt.Errorf("%w: trailing ','", ErrInvalidSpec)
	}

	switch len(args) {
	case 0:
		return c.New(action, "", "")
	case 1:
		return c.New(action, args[0], "")
	case 2:
		return c.New(action, args[0], args[1])
	default:
		return nil, fmt.Errorf("%w: too many fields (%s)", ErrInvalidSpec, strings.Join(args, ", "))
	}
}

// ParseSpec parses spec against the default catalog.
func ParseSpec(spec string) (*Metric, error) {
	return DefaultCatalog().ParseSpec(spec)
}
