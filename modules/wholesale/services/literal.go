package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// parseLiteral reads the Python literal subset spreadsheets tend to carry in
// JSON columns: single- or double-quoted strings, numbers, True/False/None,
// lists, tuples and dicts with string keys.
func parseLiteral(s string) (any, error) {
	p := &literalParser{src: []rune(s)}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type literalParser struct {
	src []rune
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("literal at %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *literalParser) peek() (rune, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *literalParser) value() (any, error) {
	r, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of input")
	}
	switch {
	case r == '\'' || r == '"':
		return p.str()
	case r == '[':
		return p.sequence('[', ']')
	case r == '(':
		return p.sequence('(', ')')
	case r == '{':
		return p.dict()
	case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
		return p.number()
	case unicode.IsLetter(r):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected %q", r)
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		p.pos++
		switch r {
		case quote:
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '\\', '\'', '"':
				b.WriteRune(esc)
			default:
				b.WriteRune('\\')
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) sequence(open, closing rune) ([]any, error) {
	p.pos++
	out := make([]any, 0)
	for {
		r, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated %q", open)
		}
		if r == closing {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if err := p.separator(closing); err != nil {
			return nil, err
		}
	}
}

func (p *literalParser) dict() (map[string]any, error) {
	p.pos++
	out := map[string]any{}
	for {
		r, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated dict")
		}
		if r == '}' {
			p.pos++
			return out, nil
		}
		if r != '\'' && r != '"' {
			return nil, p.errorf("dict keys must be strings")
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		if r, ok := p.peek(); !ok || r != ':' {
			return nil, p.errorf("expected ':'")
		}
		p.pos++
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[key] = v
		if err := p.separator('}'); err != nil {
			return nil, err
		}
	}
}

// separator consumes a ',' or leaves the closing rune for the caller.
func (p *literalParser) separator(closing rune) error {
	r, ok := p.peek()
	if !ok {
		return p.errorf("unexpected end of input")
	}
	if r == ',' {
		p.pos++
		return nil
	}
	if r != closing {
		return p.errorf("expected ',' or %q", closing)
	}
	return nil
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if unicode.IsDigit(r) || strings.ContainsRune("+-.eE_", r) {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(string(p.src[start:p.pos]), "_", "")
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return f, nil
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	switch word := string(p.src[start:p.pos]); word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	default:
		return nil, p.errorf("unknown name %q", word)
	}
}
