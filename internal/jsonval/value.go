// Package jsonval implements a JSON value model with a positioned parser and
// a canonical encoder. Unlike encoding/json it keeps numbers as finite
// float64 values, reports parse errors with line/column positions, and
// serializes object keys in sorted order.
package jsonval

import "sort"

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is a JSON value. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	n    Num
	s    string
	a    []Value
	o    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Number returns a number value.
func Number(n Num) Value { return Value{kind: KindNumber, n: n} }

// Int returns a number value from an integer.
func Int(i int64) Value { return Value{kind: KindNumber, n: NumOf(i)} }

// Float returns a number value from a float64; reports false for NaN/Inf.
func Float(f float64) (Value, bool) {
	n, ok := NewNum(f)
	if !ok {
		return Value{}, false
	}
	return Value{kind: KindNumber, n: n}, true
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding the given elements.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, a: elems}
}

// Object returns an object value holding the given members.
func Object(members map[string]Value) Value {
	if members == nil {
		members = map[string]Value{}
	}
	return Value{kind: KindObject, o: members}
}

// Kind returns the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) {
	return v.b, v.kind == KindBoolean
}

// AsNumber returns the number payload; ok is false for other kinds.
func (v Value) AsNumber() (n Num, ok bool) {
	return v.n, v.kind == KindNumber
}

// AsString returns the string payload; ok is false for other kinds.
func (v Value) AsString() (s string, ok bool) {
	return v.s, v.kind == KindString
}

// AsArray returns the array elements; ok is false for other kinds.
// The returned slice is shared, not copied.
func (v Value) AsArray() (elems []Value, ok bool) {
	return v.a, v.kind == KindArray
}

// AsObject returns the object members; ok is false for other kinds.
// The returned map is shared, not copied.
func (v Value) AsObject() (members map[string]Value, ok bool) {
	return v.o, v.kind == KindObject
}

// Get returns the member for key when the value is an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	member, ok := v.o[key]
	return member, ok
}

// GetString walks nested objects along path and returns the string leaf.
func (v Value) GetString(path ...string) (string, bool) {
	cur := v
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return "", false
		}
		cur = next
	}
	return cur.AsString()
}

// SortedKeys returns the object's keys in sorted order (empty otherwise).
func (v Value) SortedKeys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.o))
	for k := range v.o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality. Objects compare regardless of key order;
// numbers compare by float64 equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.a) != len(other.a) {
			return false
		}
		for i := range v.a {
			if !v.a[i].Equal(other.a[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.o) != len(other.o) {
			return false
		}
		for k, member := range v.o {
			otherMember, ok := other.o[k]
			if !ok || !member.Equal(otherMember) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
