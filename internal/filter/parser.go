package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid filter syntax")

// Parse parses a SCIM filter string such as
//
//	userName eq "alice" and (active eq true or not (email pr))
//
// Keywords and operators are case-insensitive; attribute paths are not.
func Parse(input string) (Expression, error) {
	p := &parser{input: input}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrSyntax, p.pos)
	}
	return expr, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Expression{left}
	for p.peekKeyword("or") {
		p.takeWord()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return Or{Operands: operands}, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []Expression{left}
	for p.peekKeyword("and") {
		p.takeWord()
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return And{Operands: operands}, nil
}

func (p *parser) parseUnary() (Expression, error) {
	p.skipSpace()
	if p.peekKeyword("not") {
		p.takeWord()
		p.skipSpace()
		if !p.consume('(') {
			return nil, fmt.Errorf("%w: expected '(' after not at offset %d", ErrSyntax, p.pos)
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(')') {
			return nil, fmt.Errorf("%w: expected ')' at offset %d", ErrSyntax, p.pos)
		}
		return Not{Operand: inner}, nil
	}
	if p.consume('(') {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(')') {
			return nil, fmt.Errorf("%w: expected ')' at offset %d", ErrSyntax, p.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expression, error) {
	path := p.takeWord()
	if path == "" {
		return nil, fmt.Errorf("%w: expected attribute path at offset %d", ErrSyntax, p.pos)
	}
	opWord := strings.ToLower(p.takeWord())
	if opWord == "" {
		return nil, fmt.Errorf("%w: expected operator after %q", ErrSyntax, path)
	}
	op := Operator(opWord)
	switch op {
	case OpPr:
		return Compare{Path: path, Op: OpPr}, nil
	case OpEq, OpNe, OpCo, OpSw, OpGt, OpGe, OpLt, OpLe:
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, opWord)
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return Compare{Path: path, Op: op, Value: value}, nil
}

func (p *parser) parseValue() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("%w: expected value at end of input", ErrSyntax)
	}
	if p.input[p.pos] == '"' {
		return p.parseString()
	}
	word := p.takeWord()
	switch strings.ToLower(word) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "":
		return nil, fmt.Errorf("%w: expected value at offset %d", ErrSyntax, p.pos)
	}
	n, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid literal %q", ErrSyntax, word)
	}
	return n, nil
}

func (p *parser) parseString() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", fmt.Errorf("%w: unterminated escape at offset %d", ErrSyntax, p.pos)
			}
			esc := p.input[p.pos]
			switch esc {
			case '"', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return "", fmt.Errorf("%w: unsupported escape \\%c", ErrSyntax, esc)
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, start)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

// takeWord consumes and returns the next run of word characters.
func (p *parser) takeWord() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isWordChar(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// peekKeyword reports whether the next word equals kw (case-insensitive)
// without consuming it.
func (p *parser) peekKeyword(kw string) bool {
	save := p.pos
	word := p.takeWord()
	p.pos = save
	return strings.EqualFold(word, kw)
}

func (p *parser) consume(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func isWordChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '+', c == ':', c == '$', c == '@':
		return true
	}
	return false
}
