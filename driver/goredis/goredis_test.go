package goredis

import (
	"errors"
	"reflect"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/mnorrsken/kvshim/driver"
)

func TestSetArgs(t *testing.T) {
	tests := []struct {
		name string
		opts driver.SetOptions
		want []any
	}{
		{"plain", driver.SetOptions{}, []any{"set", "k", "v"}},
		{"ex nx", driver.SetOptions{Expiry: driver.ExpiryEX, ExpiryValue: "10", Condition: driver.CondNX}, []any{"set", "k", "v", "EX", "10", "NX"}},
		{"exact text", driver.SetOptions{Expiry: driver.ExpiryPX, ExpiryValue: "1e3"}, []any{"set", "k", "v", "PX", "1e3"}},
		{"keepttl get", driver.SetOptions{Expiry: driver.ExpiryKeepTTL, Get: true}, []any{"set", "k", "v", "keepttl", "get"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := setArgs("k", "v", tt.opts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestZAddArgs(t *testing.T) {
	args := driver.ZAddArgs{
		XX: true,
		CH: true,
		Members: []driver.ScoredMember{
			{Score: "9007199254740993", Member: "a"},
			{Score: "+inf", Member: "b"},
		},
	}
	want := []any{"zadd", "z", "xx", "ch", "9007199254740993", "a", "+inf", "b"}
	if got := zaddArgs("z", args, false); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	incr := zaddArgs("z", driver.ZAddArgs{Members: []driver.ScoredMember{{Score: "1", Member: "a"}}}, true)
	if want := []any{"zadd", "z", "incr", "1", "a"}; !reflect.DeepEqual(incr, want) {
		t.Errorf("expected %v, got %v", want, incr)
	}
}

func TestReplyHelpers(t *testing.T) {
	if _, ok, err := optional("", redis.Nil); ok || err != nil {
		t.Errorf("expected redis.Nil to be absent without error, got ok=%v err=%v", ok, err)
	}
	if v, ok, err := optional("x", nil); !ok || v != "x" || err != nil {
		t.Errorf("expected present x, got %q %v %v", v, ok, err)
	}
	if _, err := result(0, redis.ErrClosed); !errors.Is(err, driver.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if v, err := reply(nil, redis.Nil); v != nil || err != nil {
		t.Errorf("expected nil reply, got %v %v", v, err)
	}

	opts, _ := optionals([]any{"a", nil, "c"}, nil)
	want := []driver.Optional{{Value: "a", Valid: true}, {}, {Value: "c", Valid: true}}
	if !reflect.DeepEqual(opts, want) {
		t.Errorf("expected %v, got %v", want, opts)
	}

	if got, err := pair(nil, redis.Nil); got != nil || err != nil {
		t.Errorf("expected timeout to be nil, got %v %v", got, err)
	}
	if got, _ := pair([]string{"l", "v"}, nil); got == nil || *got != (driver.KeyValue{Key: "l", Value: "v"}) {
		t.Errorf("unexpected pair %v", got)
	}
}

func TestSortedFields(t *testing.T) {
	got := sortedFields(map[string]string{"b": "2", "a": "1"})
	want := []driver.FieldValue{{Field: "a", Value: "1"}, {Field: "b", Value: "2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
