package translate

import (
	"math"
	"sort"
	"strings"

	"github.com/mnorrsken/kvshim/driver"
)

// Text converts a backend string. Text mode replaces invalid UTF-8 the way
// a UTF-8 decoder does; binary mode hands the bytes over untouched.
func Text(s string, binary bool) any {
	if binary {
		return []byte(s)
	}
	return strings.ToValidUTF8(s, "�")
}

// Bulk converts an optional backend string; absence becomes nil.
func Bulk(s string, found, binary bool) any {
	if !found {
		return nil
	}
	return Text(s, binary)
}

// List converts a string list. The result is never nil so an empty backend
// list stays an empty array.
func List(values []string, binary bool) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Text(v, binary)
	}
	return out
}

// OptionalList converts MGET/HMGET results, keeping nil holes.
func OptionalList(values []driver.Optional, binary bool) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Bulk(v.Value, v.Valid, binary)
	}
	return out
}

// Scored flattens sorted set members. With scores the result alternates
// member and formatted score; without, it holds members only.
func Scored(members []driver.ZMember, withScores, binary bool) []any {
	n := len(members)
	if withScores {
		n *= 2
	}
	out := make([]any, 0, n)
	for _, m := range members {
		out = append(out, Text(m.Member, binary))
		if withScores {
			out = append(out, Text(FormatFloat(m.Score), binary))
		}
	}
	return out
}

// Pair converts a blocking-pop result to a [key, value] array; a timeout
// (nil) stays nil, never an empty array.
func Pair(kv *driver.KeyValue, binary bool) any {
	if kv == nil {
		return nil
	}
	return []any{Text(kv.Key, binary), Text(kv.Value, binary)}
}

// FieldMap converts HGETALL results to a map. The result is never nil.
func FieldMap(fields []driver.FieldValue, binary bool) any {
	if binary {
		out := make(map[string][]byte, len(fields))
		for _, f := range fields {
			out[f.Field] = []byte(f.Value)
		}
		return out
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[Text(f.Field, false).(string)] = Text(f.Value, false).(string)
	}
	return out
}

// Bool converts a backend boolean to the integer reply legacy callers
// expect.
func Bool(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Bools converts a boolean list to integer replies.
func Bools(bs []bool) []any {
	out := make([]any, len(bs))
	for i, b := range bs {
		out[i] = Bool(b)
	}
	return out
}

// Raw converts a reply forwarded verbatim (script results, pass-through
// commands) to the legacy shape.
func Raw(v any, binary bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return Text(x, binary)
	case []byte:
		return Text(string(x), binary)
	case int64:
		return x
	case int:
		return int64(x)
	case bool:
		return Bool(x)
	case float64:
		return Text(FormatFloat(x), binary)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Raw(e, binary)
		}
		return out
	case []string:
		return List(x, binary)
	case map[any]any:
		keys := make([]string, 0, len(x))
		byKey := make(map[string]any, len(x))
		for k, e := range x {
			ks := String(k)
			keys = append(keys, ks)
			byKey[ks] = e
		}
		sort.Strings(keys)
		out := make([]any, 0, 2*len(keys))
		for _, k := range keys {
			out = append(out, Text(k, binary), Raw(byKey[k], binary))
		}
		return out
	case error:
		return x
	}
	return v
}

// FormatFloat renders a backend double for legacy callers. Integral values
// print without a fraction; other values are rounded at 15 significant
// digits, which removes binary floating-point artifacts such as
// 0.30000000000000004, and then printed in their shortest form.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return formatDecimal(f, 15, 64)
}
