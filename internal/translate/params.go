// Package translate converts between the loosely typed legacy call
// convention and the typed driver boundary.
//
// Parameter translation is total: every function here accepts any argument
// shape without panicking. Shapes that cannot be mapped are reported through
// an ok result so the caller can forward the command verbatim and let the
// backend raise its own error.
package translate

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mnorrsken/kvshim/driver"
)

// Flatten expands nested slices and arrays into one argument run. nil holes
// become empty-string placeholders so positions are preserved. []byte values
// are payloads rather than arrays, and maps stay intact as objects.
func Flatten(args ...any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		out = appendFlat(out, a)
	}
	return out
}

func appendFlat(out []any, v any) []any {
	switch x := v.(type) {
	case nil:
		return append(out, "")
	case string, []byte:
		return append(out, x)
	case []any:
		for _, e := range x {
			out = appendFlat(out, e)
		}
		return out
	case []string:
		for _, e := range x {
			out = append(out, e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append(out, bytesOf(rv))
		}
		for i := 0; i < rv.Len(); i++ {
			out = appendFlat(out, rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return append(out, "")
		}
	}
	return append(out, v)
}

func bytesOf(rv reflect.Value) []byte {
	b := make([]byte, rv.Len())
	reflect.Copy(reflect.ValueOf(b), rv)
	return b
}

// String converts one argument to its wire text. Binary payloads are copied
// byte for byte; nothing is re-encoded.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatArgFloat(float64(x), 32)
	case float64:
		return formatArgFloat(x, 64)
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case *big.Float:
		if x == nil {
			return ""
		}
		return x.Text('g', -1)
	case json.Number:
		return string(x)
	case driver.Number:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return formatArgFloat(rv.Float(), 32)
	case reflect.Float64:
		return formatArgFloat(rv.Float(), 64)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(bytesOf(rv))
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return ""
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return String(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// Strings converts a flattened argument run to wire strings. Objects are
// expanded into field/value pairs ordered by field.
func Strings(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range Flatten(args...) {
		if fields, ok := objectFields(a); ok {
			for _, f := range fields {
				out = append(out, f.Field, f.Value)
			}
			continue
		}
		out = append(out, String(a))
	}
	return out
}

// Number keeps a numeric argument in its exact text form. NaN and the
// infinities become the tokens the server parses ("nan", "+inf", "-inf"), so
// the backend decides whether they are acceptable.
func Number(v any) driver.Number {
	return driver.Number(String(v))
}

func formatArgFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return formatDecimal(f, -1, bitSize)
}

// formatDecimal prints f in the shortest form that round-trips, switching
// to exponent notation outside [1e-6, 1e21) like the legacy clients did.
// prec > 0 first rounds f to that many significant digits. Exact integers
// are never rounded.
func formatDecimal(f float64, prec, bitSize int) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if f == math.Trunc(f) && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	if prec > 0 {
		f, _ = strconv.ParseFloat(strconv.FormatFloat(f, 'g', prec, 64), 64)
		abs = math.Abs(f)
	}
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, bitSize)
		mant, exp, _ := strings.Cut(s, "e")
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + exp[:1] + digits
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

// Members converts a member list. dedupe drops repeated members keeping the
// first occurrence, which is only correct for true sets; list commands keep
// duplicates.
func Members(args []any, dedupe bool) []string {
	members := Strings(args)
	if !dedupe {
		return members
	}
	seen := make(map[string]struct{}, len(members))
	out := members[:0]
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Fields normalizes the hash argument shapes into one field list: flat
// "f1 v1 f2 v2", a single object, an array of [field, value] pairs, or any
// mix of those. Later assignments win and the result is ordered by field. A
// dangling flat field gets an empty value.
func Fields(args []any) []driver.FieldValue {
	values := make(map[string]string)
	var pending *string

	assign := func(field, value string) {
		values[field] = value
	}
	flat := func(v any) {
		s := String(v)
		if pending == nil {
			pending = &s
			return
		}
		assign(*pending, s)
		pending = nil
	}

	for _, a := range args {
		if fields, ok := objectFields(a); ok {
			for _, f := range fields {
				assign(f.Field, f.Value)
			}
			continue
		}
		if pairs, ok := pairList(a); ok {
			for _, p := range pairs {
				assign(String(p[0]), String(p[1]))
			}
			continue
		}
		for _, v := range Flatten(a) {
			if fields, ok := objectFields(v); ok {
				for _, f := range fields {
					assign(f.Field, f.Value)
				}
				continue
			}
			flat(v)
		}
	}
	if pending != nil {
		assign(*pending, "")
	}

	out := make([]driver.FieldValue, 0, len(values))
	for f, v := range values {
		out = append(out, driver.FieldValue{Field: f, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// KeyValues is Fields for MSET-style key/value runs.
func KeyValues(args []any) []driver.KeyValue {
	fields := Fields(args)
	out := make([]driver.KeyValue, len(fields))
	for i, f := range fields {
		out[i] = driver.KeyValue{Key: f.Field, Value: f.Value}
	}
	return out
}

// objectFields enumerates a map or struct argument ordered by field name.
func objectFields(v any) ([]driver.FieldValue, bool) {
	var out []driver.FieldValue
	isObject := forEachObjectValue(v, func(name string, val any) {
		out = append(out, driver.FieldValue{Field: name, Value: String(val)})
	})
	if !isObject {
		return nil, false
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, true
}

// forEachObjectValue visits the entries of a map or struct argument and
// reports whether v is an object at all. Function and channel entries are
// skipped, as are unexported struct fields and fields tagged json:"-".
func forEachObjectValue(v any, fn func(name string, val any)) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case fmt.Stringer, error, *big.Float:
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if skipValue(iter.Value()) {
				continue
			}
			fn(String(iter.Key().Interface()), iter.Value().Interface())
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() || skipValue(rv.Field(i)) {
				continue
			}
			name := sf.Name
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" {
				if tag == "-" {
					continue
				}
				name = tag
			}
			fn(name, rv.Field(i).Interface())
		}
	default:
		return false
	}
	return true
}

func skipValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return skipValue(v.Elem())
	}
	return false
}

// pairList recognizes an array whose every element is a two-element array.
func pairList(v any) ([][2]any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 || rv.Len() == 0 {
		return nil, false
	}
	pairs := make([][2]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		for e.Kind() == reflect.Interface && !e.IsNil() {
			e = e.Elem()
		}
		if (e.Kind() != reflect.Slice && e.Kind() != reflect.Array) || e.Type().Elem().Kind() == reflect.Uint8 || e.Len() != 2 {
			return nil, false
		}
		pairs = append(pairs, [2]any{e.Index(0).Interface(), e.Index(1).Interface()})
	}
	return pairs, true
}

// isNumeric reports whether v is a Go numeric value.
func isNumeric(v any) bool {
	switch v.(type) {
	case json.Number, driver.Number, *big.Int, *big.Float:
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// looksNumeric reports whether v is numeric or a string the server would
// parse as a float.
func looksNumeric(v any) bool {
	if isNumeric(v) {
		return true
	}
	_, ok := driver.ParseFloat(String(v))
	return ok
}
