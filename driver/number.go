package driver

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Number is a numeric argument kept in its exact text form, so integers
// beyond 2^53, exponent notation and infinities reach the backend unchanged.
type Number string

// Int parses the number as a 64-bit integer the way the server does.
func (n Number) Int() (int64, error) {
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return v, nil
}

// Float parses the number as a double. inf, +inf and -inf are accepted in
// any case; nan is rejected.
func (n Number) Float() (float64, error) {
	v, ok := ParseFloat(string(n))
	if !ok {
		return 0, ErrNotFloat
	}
	return v, nil
}

// Seconds parses a blocking-command timeout given in (fractional) seconds.
func (n Number) Seconds() (time.Duration, error) {
	v, ok := ParseFloat(string(n))
	if !ok || math.IsInf(v, 0) {
		return 0, ErrTimeoutNotFloat
	}
	if v < 0 {
		return 0, ErrTimeoutNegative
	}
	return time.Duration(v * float64(time.Second)), nil
}

func (n Number) String() string { return string(n) }

// ParseFloat parses a float argument with server semantics.
func ParseFloat(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), true
	case "-inf", "-infinity":
		return math.Inf(-1), true
	case "":
		return 0, false
	}
	if s != strings.TrimSpace(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders a stored double the way the server stores it.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
