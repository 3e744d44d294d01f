package jsonval

import (
	"strconv"
	"strings"
)

// String returns the compact JSON encoding of the value.
func (v Value) String() string {
	var buf strings.Builder
	writeValue(&buf, v, 0, false)
	return buf.String()
}

// PrettyString returns the JSON encoding indented with four spaces per level.
func (v Value) PrettyString() string {
	var buf strings.Builder
	writeValue(&buf, v, 0, true)
	return buf.String()
}

func writeValue(buf *strings.Builder, v Value, depth int, pretty bool) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		writeNumber(buf, v.n)
	case KindString:
		writeString(buf, v.s)
	case KindArray:
		writeArray(buf, v.a, depth, pretty)
	case KindObject:
		writeObject(buf, v, depth, pretty)
	}
}

func writeNumber(buf *strings.Builder, n Num) {
	s := strconv.FormatFloat(n.Float(), 'g', -1, 64)
	// FormatFloat pads exponents (1e+21, 1e-07); emit the bare form (1e21, 1e-7).
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i], s[i+1:]
		sign := ""
		switch exp[0] {
		case '+':
			exp = exp[1:]
		case '-':
			sign, exp = "-", exp[1:]
		}
		s = mant + "e" + sign + strings.TrimLeft(exp, "0")
	}
	buf.WriteString(s)
}

func writeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < minValidStringChar {
				buf.WriteString(`\u00`)
				const hex = "0123456789abcdef"
				buf.WriteByte(hex[c>>4])
				buf.WriteByte(hex[c&0xF])
			} else {
				buf.WriteRune(c)
			}
		}
	}
	buf.WriteByte('"')
}

func writeArray(buf *strings.Builder, elems []Value, depth int, pretty bool) {
	buf.WriteByte('[')
	if len(elems) > 0 {
		for i, elem := range elems {
			if i != 0 {
				buf.WriteByte(',')
			}
			writeIndent(buf, depth+1, pretty)
			writeValue(buf, elem, depth+1, pretty)
		}
		writeIndent(buf, depth, pretty)
	}
	buf.WriteByte(']')
}

func writeObject(buf *strings.Builder, v Value, depth int, pretty bool) {
	buf.WriteByte('{')
	keys := v.SortedKeys()
	if len(keys) > 0 {
		for i, key := range keys {
			if i != 0 {
				buf.WriteByte(',')
			}
			writeIndent(buf, depth+1, pretty)
			writeString(buf, key)
			buf.WriteByte(':')
			if pretty {
				buf.WriteByte(' ')
			}
			writeValue(buf, v.o[key], depth+1, pretty)
		}
		writeIndent(buf, depth, pretty)
	}
	buf.WriteByte('}')
}

func writeIndent(buf *strings.Builder, depth int, pretty bool) {
	if !pretty {
		return
	}
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString("    ")
	}
}
