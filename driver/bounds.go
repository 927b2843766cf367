package driver

import "math"

// ScoreBoundary is a parsed score range endpoint ("1.5", "(1.5", "-inf").
type ScoreBoundary struct {
	Value     float64
	Exclusive bool
}

// ParseScoreBoundary parses a score endpoint as the server does.
func ParseScoreBoundary(raw string) (ScoreBoundary, error) {
	b := ScoreBoundary{}
	s := raw
	if len(s) > 0 && s[0] == '(' {
		b.Exclusive = true
		s = s[1:]
	}
	v, ok := ParseFloat(s)
	if !ok {
		return ScoreBoundary{}, ErrMinMaxNotFloat
	}
	b.Value = v
	return b, nil
}

// AboveMin reports whether score satisfies b as a lower endpoint.
func (b ScoreBoundary) AboveMin(score float64) bool {
	if b.Exclusive {
		return score > b.Value
	}
	return score >= b.Value
}

// BelowMax reports whether score satisfies b as an upper endpoint.
func (b ScoreBoundary) BelowMax(score float64) bool {
	if b.Exclusive {
		return score < b.Value
	}
	return score <= b.Value
}

// LexBoundary is a parsed lexicographic endpoint ("[a", "(a", "-", "+").
type LexBoundary struct {
	Value     string
	Exclusive bool
	NegInf    bool
	PosInf    bool
}

// ParseLexBoundary parses a lex endpoint as the server does.
func ParseLexBoundary(raw string) (LexBoundary, error) {
	switch {
	case raw == "-":
		return LexBoundary{NegInf: true}, nil
	case raw == "+":
		return LexBoundary{PosInf: true}, nil
	case len(raw) > 0 && raw[0] == '[':
		return LexBoundary{Value: raw[1:]}, nil
	case len(raw) > 0 && raw[0] == '(':
		return LexBoundary{Value: raw[1:], Exclusive: true}, nil
	}
	return LexBoundary{}, ErrMinMaxNotString
}

// AboveMin reports whether member satisfies b as a lower endpoint.
func (b LexBoundary) AboveMin(member string) bool {
	switch {
	case b.NegInf:
		return true
	case b.PosInf:
		return false
	case b.Exclusive:
		return member > b.Value
	}
	return member >= b.Value
}

// BelowMax reports whether member satisfies b as an upper endpoint.
func (b LexBoundary) BelowMax(member string) bool {
	switch {
	case b.PosInf:
		return true
	case b.NegInf:
		return false
	case b.Exclusive:
		return member < b.Value
	}
	return member <= b.Value
}

// NormalizeRange clamps a start/stop rank pair against a collection length.
// ok is false when the range selects nothing.
func NormalizeRange(start, stop, length int64) (int64, int64, bool) {
	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}

// AddFloat applies an increment and rejects results the server refuses to
// store.
func AddFloat(current, delta float64) (float64, error) {
	v := current + delta
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNaN
	}
	return v, nil
}
