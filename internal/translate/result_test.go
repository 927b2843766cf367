package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/mnorrsken/kvshim/driver"
)

func TestFormatFloat(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-3, "-3"},
		{1.5, "1.5"},
		{a + b, "0.3"},
		{9007199254740992, "9007199254740992"},
		{1e21, "1e+21"},
		{0.0000001, "1e-7"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatFloat(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScored(t *testing.T) {
	members := []driver.ZMember{{Member: "a", Score: 1}, {Member: "b", Score: 2}}

	got := Scored(members, true, false)
	want := []any{"a", "1", "b", "2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("with scores: expected %v, got %v", want, got)
	}

	got = Scored(members, false, false)
	want = []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("without scores: expected %v, got %v", want, got)
	}

	if got := Scored(nil, true, false); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil array, got %#v", got)
	}
}

func TestText(t *testing.T) {
	if got := Text("ok\xff", false); got != "ok�" {
		t.Errorf("expected replacement character, got %q", got)
	}
	got, ok := Text("\x00\xff", true).([]byte)
	if !ok || !reflect.DeepEqual(got, []byte{0x00, 0xff}) {
		t.Errorf("expected raw bytes, got %#v", got)
	}
}

func TestBulkAndOptionalList(t *testing.T) {
	if got := Bulk("", false, false); got != nil {
		t.Errorf("expected nil for a missing value, got %#v", got)
	}
	if got := Bulk("", true, false); got != "" {
		t.Errorf("expected empty string, got %#v", got)
	}
	got := OptionalList([]driver.Optional{{Value: "a", Valid: true}, {}}, false)
	if want := []any{"a", nil}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestList_NeverNil(t *testing.T) {
	if got := List(nil, false); got == nil {
		t.Error("expected a non-nil empty array")
	}
}

func TestPair(t *testing.T) {
	if got := Pair(nil, false); got != nil {
		t.Errorf("expected nil on timeout, got %#v", got)
	}
	got := Pair(&driver.KeyValue{Key: "q", Value: "job"}, false)
	if want := []any{"q", "job"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFieldMap(t *testing.T) {
	fields := []driver.FieldValue{{Field: "f", Value: "v"}}
	if got := FieldMap(fields, false); !reflect.DeepEqual(got, map[string]string{"f": "v"}) {
		t.Errorf("unexpected text map %#v", got)
	}
	if got := FieldMap(fields, true); !reflect.DeepEqual(got, map[string][]byte{"f": []byte("v")}) {
		t.Errorf("unexpected binary map %#v", got)
	}
	if got := FieldMap(nil, false).(map[string]string); got == nil {
		t.Error("expected a non-nil empty map")
	}
}

func TestRaw(t *testing.T) {
	in := []any{"a", int64(1), nil, []any{"b", true}, map[any]any{"y": "2", "x": "1"}}
	want := []any{"a", int64(1), nil, []any{"b", int64(1)}, []any{"x", "1", "y", "2"}}
	if got := Raw(in, false); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

type messageValue struct{}

func (messageValue) Message() string { return "from method" }

func TestNormalizeError(t *testing.T) {
	sentinel := errors.New("boom")
	var typedNil *driver.ReplyError

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"typed nil", error(typedNil), ""},
		{"string", "bad thing", "bad thing"},
		{"message method", messageValue{}, "from method"},
		{"map", map[string]any{"message": "from map", "code": 7}, "from map"},
		{"struct", struct{ Message string }{"from struct"}, "from struct"},
		{"number", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.in)
			if err == nil {
				t.Fatal("expected an error value")
			}
			if err.Error() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, err.Error())
			}
		})
	}

	if got := NormalizeError(sentinel); got != sentinel {
		t.Errorf("expected errors to pass through, got %v", got)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"reply", driver.ErrWrongType, false},
		{"canceled", context.Canceled, false},
		{"closed", driver.ErrClosed, true},
		{"eof", fmt.Errorf("read: %w", io.EOF), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
