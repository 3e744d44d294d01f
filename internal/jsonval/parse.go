package jsonval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ParseErrorKind classifies parse failures.
type ParseErrorKind int

const (
	PrematureEOF ParseErrorKind = iota
	UnexpectedChar
	TooBigNumber
	InvalidUTF16SurrogatePair
)

func (k ParseErrorKind) String() string {
	switch k {
	case PrematureEOF:
		return "premature end of data"
	case UnexpectedChar:
		return "unexpected character"
	case TooBigNumber:
		return "too big number"
	case InvalidUTF16SurrogatePair:
		return "invalid UTF-16 surrogate pair"
	default:
		return "unknown error"
	}
}

// ParseError reports a parse failure with its 1-based position. Column counts
// characters, not bytes.
type ParseError struct {
	Kind   ParseErrorKind
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at line %d column %d", e.Kind, e.Line, e.Column)
}

// Parse parses JSON data into a Value. Input must be a single JSON element;
// trailing non-whitespace content is rejected.
func Parse(input string) (Value, error) {
	p := &parser{chars: []rune(input), line: 1, column: 1}
	element, err := p.parseElement()
	if err != nil {
		return Value{}, err
	}
	if _, err := p.peek(); err == nil {
		return Value{}, p.errorAt(UnexpectedChar)
	}
	return element, nil
}

type parser struct {
	chars  []rune
	pos    int
	line   int
	column int
}

func (p *parser) peek() (rune, error) {
	if p.pos >= len(p.chars) {
		return 0, p.errorAt(PrematureEOF)
	}
	return p.chars[p.pos], nil
}

func (p *parser) skip() {
	c := p.chars[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
		p.column = 1
	} else {
		p.column++
	}
}

func (p *parser) errorAt(kind ParseErrorKind) *ParseError {
	return &ParseError{Kind: kind, Line: p.line, Column: p.column}
}

func (p *parser) parseElement() (Value, error) {
	p.skipWhitespace()
	v, err := p.parseValue()
	if err != nil {
		return Value{}, err
	}
	p.skipWhitespace()
	return v, nil
}

func (p *parser) parseValue() (Value, error) {
	c, err := p.peek()
	if err != nil {
		return Value{}, err
	}
	switch {
	case c == 'n':
		return Null(), p.expectLiteral("null")
	case c == 't':
		return Bool(true), p.expectLiteral("true")
	case c == 'f':
		return Bool(false), p.expectLiteral("false")
	case c == '-' || (c >= '0' && c <= '9'):
		n, err := p.parseNumber()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case c == '[':
		return p.parseArray()
	case c == '{':
		return p.parseObject()
	default:
		return Value{}, p.errorAt(UnexpectedChar)
	}
}

func (p *parser) expectLiteral(literal string) error {
	for _, c := range literal {
		if err := p.expectChar(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) expectChar(expected rune) error {
	c, err := p.peek()
	if err != nil {
		return err
	}
	if c != expected {
		return p.errorAt(UnexpectedChar)
	}
	p.skip()
	return nil
}

func (p *parser) parseNumber() (Num, error) {
	// The "too big" error reports the number's start position.
	numError := p.errorAt(TooBigNumber)
	var buf strings.Builder

	acceptDigits := func() {
		for {
			c, err := p.peek()
			if err != nil || c < '0' || c > '9' {
				return
			}
			buf.WriteRune(c)
			p.skip()
		}
	}
	requireDigits := func() error {
		c, err := p.peek()
		if err != nil {
			return err
		}
		if c < '0' || c > '9' {
			return p.errorAt(UnexpectedChar)
		}
		buf.WriteRune(c)
		p.skip()
		acceptDigits()
		return nil
	}

	// integer: /[-]?(0|[1-9][0-9]*)/
	if c, err := p.peek(); err == nil && c == '-' {
		buf.WriteRune(c)
		p.skip()
	}
	c, err := p.peek()
	if err != nil {
		return Num{}, err
	}
	switch {
	case c == '0':
		buf.WriteRune(c)
		p.skip()
	case c >= '1' && c <= '9':
		buf.WriteRune(c)
		p.skip()
		acceptDigits()
	default:
		return Num{}, p.errorAt(UnexpectedChar)
	}

	// fraction: /([.][0-9]+)?/
	if c, err := p.peek(); err == nil && c == '.' {
		buf.WriteRune(c)
		p.skip()
		if err := requireDigits(); err != nil {
			return Num{}, err
		}
	}

	// exponent: /([Ee][+-]?[0-9]+)?/
	if c, err := p.peek(); err == nil && (c == 'E' || c == 'e') {
		buf.WriteRune(c)
		p.skip()
		if c, err := p.peek(); err == nil && (c == '+' || c == '-') {
			buf.WriteRune(c)
			p.skip()
		}
		if err := requireDigits(); err != nil {
			return Num{}, err
		}
	}

	// Grammar guarantees valid syntax; ParseFloat can only fail with a range
	// error, saturating overflow to ±Inf and underflow to ±0.
	f, _ := strconv.ParseFloat(buf.String(), 64)
	if math.IsInf(f, 0) {
		return Num{}, numError
	}
	n, ok := NewNum(f)
	if !ok {
		return Num{}, numError
	}
	return n, nil
}

const minValidStringChar = 0x20

func (p *parser) parseString() (string, error) {
	if err := p.expectChar('"'); err != nil {
		return "", err
	}
	var buf strings.Builder
	for {
		c, err := p.peek()
		if err != nil {
			return "", err
		}
		if c == '"' {
			p.skip()
			return buf.String(), nil
		}
		if c == '\\' {
			decoded, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			buf.WriteRune(decoded)
			continue
		}
		if c < minValidStringChar {
			return "", p.errorAt(UnexpectedChar)
		}
		buf.WriteRune(c)
		p.skip()
	}
}

func (p *parser) parseEscape() (rune, error) {
	// A broken surrogate pair reports the escape's start position.
	surrogateError := p.errorAt(InvalidUTF16SurrogatePair)
	if err := p.expectChar('\\'); err != nil {
		return 0, err
	}
	c, err := p.peek()
	if err != nil {
		return 0, err
	}
	switch c {
	case '"', '\\', '/':
		p.skip()
		return c, nil
	case 'b':
		p.skip()
		return '\b', nil
	case 'f':
		p.skip()
		return '\f', nil
	case 'n':
		p.skip()
		return '\n', nil
	case 'r':
		p.skip()
		return '\r', nil
	case 't':
		p.skip()
		return '\t', nil
	case 'u':
		p.skip()
		unit, err := p.parseHex4()
		if err != nil {
			return 0, err
		}
		if !utf16.IsSurrogate(rune(unit)) {
			return rune(unit), nil
		}
		// expect second half of surrogate pair
		if err := p.expectChar('\\'); err != nil {
			return 0, err
		}
		if err := p.expectChar('u'); err != nil {
			return 0, err
		}
		unit2, err := p.parseHex4()
		if err != nil {
			return 0, err
		}
		decoded := utf16.DecodeRune(rune(unit), rune(unit2))
		if decoded == utf8RuneError {
			return 0, surrogateError
		}
		return decoded, nil
	default:
		return 0, p.errorAt(UnexpectedChar)
	}
}

const utf8RuneError = '�'

func (p *parser) parseHex4() (uint16, error) {
	var buf uint16
	for i := 0; i < 4; i++ {
		c, err := p.peek()
		if err != nil {
			return 0, err
		}
		var digit uint16
		switch {
		case c >= '0' && c <= '9':
			digit = uint16(c - '0')
		case c >= 'a' && c <= 'f':
			digit = uint16(c-'a') + 10
		case c >= 'A' && c <= 'F':
			digit = uint16(c-'A') + 10
		default:
			return 0, p.errorAt(UnexpectedChar)
		}
		buf = buf<<4 | digit
		p.skip()
	}
	return buf, nil
}

func (p *parser) parseArray() (Value, error) {
	if err := p.expectChar('['); err != nil {
		return Value{}, err
	}
	p.skipWhitespace()
	var elems []Value
	for {
		c, err := p.peek()
		if err != nil {
			return Value{}, err
		}
		if c == ']' {
			p.skip()
			return Array(elems...), nil
		}
		if len(elems) > 0 {
			if err := p.expectChar(','); err != nil {
				return Value{}, err
			}
		}
		elem, err := p.parseElement()
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, elem)
	}
}

func (p *parser) parseObject() (Value, error) {
	if err := p.expectChar('{'); err != nil {
		return Value{}, err
	}
	p.skipWhitespace()
	members := map[string]Value{}
	for {
		c, err := p.peek()
		if err != nil {
			return Value{}, err
		}
		if c == '}' {
			p.skip()
			return Object(members), nil
		}
		if len(members) > 0 {
			if err := p.expectChar(','); err != nil {
				return Value{}, err
			}
		}
		key, value, err := p.parseMember()
		if err != nil {
			return Value{}, err
		}
		members[key] = value
	}
}

func (p *parser) parseMember() (string, Value, error) {
	p.skipWhitespace()
	key, err := p.parseString()
	if err != nil {
		return "", Value{}, err
	}
	p.skipWhitespace()
	if err := p.expectChar(':'); err != nil {
		return "", Value{}, err
	}
	value, err := p.parseElement()
	if err != nil {
		return "", Value{}, err
	}
	return key, value, nil
}

func (p *parser) skipWhitespace() {
	for {
		c, err := p.peek()
		if err != nil {
			return
		}
		switch c {
		case ' ', '\n', '\r', '\t':
			p.skip()
		default:
			return
		}
	}
}
