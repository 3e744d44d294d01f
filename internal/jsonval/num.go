package jsonval

import "math"

// Num is a JSON number: a float64 that is guaranteed finite (never NaN or
// infinite). The zero value is the number 0.
type Num struct {
	f float64
}

// NewNum wraps a float64 as a Num. It reports false for NaN and infinities.
func NewNum(f float64) (Num, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Num{}, false
	}
	return Num{f: f}, true
}

// NumOf wraps an integer as a Num. Always valid.
func NumOf(i int64) Num {
	return Num{f: float64(i)}
}

// Float returns the underlying float64.
func (n Num) Float() float64 {
	return n.f
}
