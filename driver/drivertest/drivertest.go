// Package drivertest runs the legacy command surface against a driver, so
// every backend is held to the same replies. The memory driver runs it in
// its unit tests; the redis and postgres drivers run it behind build tags
// against real servers.
package drivertest

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/compat"
	"github.com/mnorrsken/kvshim/driver"
)

// Factory returns a driver connected to an empty database. The suite
// closes it.
type Factory func(tb testing.TB) driver.Driver

// Run executes the whole suite, one subtest per command group.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Factory)
	}{
		{"Strings", testStrings},
		{"Expiry", testExpiry},
		{"Keys", testKeys},
		{"Hashes", testHashes},
		{"Lists", testLists},
		{"BlockingPop", testBlockingPop},
		{"Sets", testSets},
		{"SortedSets", testSortedSets},
		{"WrongType", testWrongType},
		{"BinaryData", testBinaryData},
		{"PubSub", testPubSub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open)
		})
	}
}

func newClient(t *testing.T, d driver.Driver) *compat.Client {
	t.Helper()
	c := compat.New(d, compat.WithLazyConnect(true), compat.WithPollInterval(time.Millisecond))
	t.Cleanup(func() { c.Close() })
	return c
}

type step struct {
	cmd  string
	args []any
	want any
}

func runSteps(t *testing.T, c *compat.Client, steps []step) {
	t.Helper()
	ctx := context.Background()
	for i, s := range steps {
		got, err := c.Call(ctx, s.cmd, s.args...)
		if err != nil {
			t.Fatalf("step %d %s %v failed: %v", i, s.cmd, s.args, err)
		}
		if !reflect.DeepEqual(got, s.want) {
			t.Errorf("step %d %s %v: expected %#v, got %#v", i, s.cmd, s.args, s.want, got)
		}
	}
}

// sorted returns a list reply sorted, for commands whose order differs
// between backends.
func sorted(t *testing.T, v any, err error) []string {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := v.([]any)
	if !ok {
		t.Fatalf("expected a list reply, got %#v", v)
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i], _ = e.(string)
	}
	sort.Strings(out)
	return out
}

func testStrings(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	runSteps(t, c, []step{
		{"SET", []any{"k", "v"}, "OK"},
		{"GET", []any{"k"}, "v"},
		{"GET", []any{"missing"}, nil},
		{"SET", []any{"k", "v2", "NX"}, nil},
		{"SET", []any{"k", "v3", "XX", "GET"}, "v"},
		{"APPEND", []any{"k", "!"}, int64(3)},
		{"STRLEN", []any{"k"}, int64(3)},
		{"INCR", []any{"n"}, int64(1)},
		{"INCRBY", []any{"n", 10}, int64(11)},
		{"DECRBY", []any{"n", 2}, int64(9)},
		{"INCRBYFLOAT", []any{"f", 0.5}, "0.5"},
		{"MSET", []any{"a", 1, "b", 2}, "OK"},
		{"MGET", []any{"a", "b", "c"}, []any{"1", "2", nil}},
		{"GETDEL", []any{"a"}, "1"},
		{"EXISTS", []any{"a", "b", "b"}, int64(2)},
		{"DEL", []any{"b", "k", "nope"}, int64(2)},
		{"SETNX", []any{"s", 1}, int64(1)},
		{"SETNX", []any{"s", 2}, int64(0)},
		{"TYPE", []any{"s"}, "string"},
		{"TYPE", []any{"nope"}, "none"},
		{"ECHO", []any{"hi"}, "hi"},
		{"PING", nil, "PONG"},
		{"DBSIZE", nil, int64(3)},
	})

	c.Set(context.Background(), "text", "abc")
	_, err := c.Incr(context.Background(), "text")
	if err == nil || err.Error() != driver.ErrNotInteger.Msg {
		t.Errorf("expected %q, got %v", driver.ErrNotInteger.Msg, err)
	}
}

func testExpiry(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	runSteps(t, c, []step{
		{"SET", []any{"k", "v", "EX", 100}, "OK"},
		{"SET", []any{"p", "v"}, "OK"},
		{"TTL", []any{"p"}, int64(-1)},
		{"TTL", []any{"missing"}, int64(-2)},
		{"EXPIRE", []any{"missing", 10}, int64(0)},
		{"EXPIRE", []any{"k", 10, "GT"}, int64(0)},
		{"EXPIRE", []any{"k", 50, "LT"}, int64(1)},
		{"PERSIST", []any{"k"}, int64(1)},
		{"PERSIST", []any{"k"}, int64(0)},
		{"PEXPIRE", []any{"k", 100}, int64(1)},
	})

	time.Sleep(300 * time.Millisecond)
	if v, err := c.Get(ctx, "k"); err != nil || v != nil {
		t.Errorf("expected expired key, got %v (%v)", v, err)
	}
	if n, _ := c.Exists(ctx, "k"); n != int64(0) {
		t.Errorf("expected expired key not to exist, got %v", n)
	}

	c.Set(ctx, "e", "v", "EX", 100)
	got, err := c.TTL(ctx, "e")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if n, ok := got.(int64); !ok || n < 99 || n > 100 {
		t.Errorf("expected ttl near 100, got %v", got)
	}
	c.Set(ctx, "e", "w", "KEEPTTL")
	if got, _ := c.TTL(ctx, "e"); got == int64(-1) {
		t.Error("expected KEEPTTL to keep the ttl")
	}
	c.Set(ctx, "e", "x")
	if got, _ := c.TTL(ctx, "e"); got != int64(-1) {
		t.Errorf("expected plain SET to clear the ttl, got %v", got)
	}
}

func testKeys(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	for _, k := range []string{"user:1", "user:2", "user:10", "other"} {
		if _, err := c.Set(ctx, k, "v"); err != nil {
			t.Fatalf("SET failed: %v", err)
		}
	}

	v, err := c.Keys(ctx, "user:*")
	got := sorted(t, v, err)
	if !reflect.DeepEqual(got, []string{"user:1", "user:10", "user:2"}) {
		t.Errorf("unexpected KEYS result %v", got)
	}
	v, err = c.Keys(ctx, "user:?")
	got = sorted(t, v, err)
	if !reflect.DeepEqual(got, []string{"user:1", "user:2"}) {
		t.Errorf("unexpected KEYS result %v", got)
	}

	// SCAN may return keys in any order and spread them over pages
	seen := map[string]bool{}
	cursor := "0"
	for i := 0; ; i++ {
		if i > 100 {
			t.Fatal("SCAN did not terminate")
		}
		reply, err := c.Scan(ctx, cursor, "MATCH", "user:*", "COUNT", 2)
		if err != nil {
			t.Fatalf("SCAN failed: %v", err)
		}
		page := reply.([]any)
		cursor = page[0].(string)
		for _, k := range page[1].([]any) {
			seen[k.(string)] = true
		}
		if cursor == "0" {
			break
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 keys from SCAN, got %v", seen)
	}

	runSteps(t, c, []step{
		{"RENAME", []any{"other", "renamed"}, "OK"},
		{"EXISTS", []any{"other"}, int64(0)},
		{"GET", []any{"renamed"}, "v"},
	})
	if _, err := c.Rename(ctx, "nope", "x"); err == nil || err.Error() != driver.ErrNoSuchKey.Msg {
		t.Errorf("expected %q, got %v", driver.ErrNoSuchKey.Msg, err)
	}

	runSteps(t, c, []step{
		{"FLUSHDB", nil, "OK"},
		{"DBSIZE", nil, int64(0)},
	})
}

func testHashes(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	runSteps(t, c, []step{
		{"HSET", []any{"h", "f1", "v1", "f2", "v2"}, int64(2)},
		{"HSET", []any{"h", map[string]any{"f2": "x", "f3": 3}}, int64(1)},
		{"HGETALL", []any{"h"}, map[string]string{"f1": "v1", "f2": "x", "f3": "3"}},
		{"HMGET", []any{"h", "f1", "nope"}, []any{"v1", nil}},
		{"HGET", []any{"h", "f3"}, "3"},
		{"HGET", []any{"h", "nope"}, nil},
		{"HINCRBY", []any{"h", "n", 5}, int64(5)},
		{"HINCRBY", []any{"h", "n", -2}, int64(3)},
		{"HINCRBYFLOAT", []any{"h", "fl", 1.5}, "1.5"},
		{"HEXISTS", []any{"h", "f1"}, int64(1)},
		{"HEXISTS", []any{"h", "nope"}, int64(0)},
		{"HSETNX", []any{"h", "f1", "y"}, int64(0)},
		{"HSETNX", []any{"h", "f4", "y"}, int64(1)},
		{"HDEL", []any{"h", "f1", "nope"}, int64(1)},
		{"HLEN", []any{"h"}, int64(5)},
		{"HGETALL", []any{"missing"}, map[string]string{}},
	})

	v, err := c.HKeys(ctx, "h")
	got := sorted(t, v, err)
	if !reflect.DeepEqual(got, []string{"f2", "f3", "f4", "fl", "n"}) {
		t.Errorf("unexpected HKEYS result %v", got)
	}
	v, err = c.HVals(ctx, "h")
	got = sorted(t, v, err)
	if !reflect.DeepEqual(got, []string{"1.5", "3", "3", "x", "y"}) {
		t.Errorf("unexpected HVALS result %v", got)
	}

	// removing the last field removes the key
	c.HSet(ctx, "single", "f", "v")
	c.HDel(ctx, "single", "f")
	if n, _ := c.Exists(ctx, "single"); n != int64(0) {
		t.Errorf("expected emptied hash to be gone, got %v", n)
	}

	_, err = c.HIncrBy(ctx, "h", "f2", 1)
	if err == nil || err.Error() != driver.ErrHashNotInteger.Msg {
		t.Errorf("expected %q, got %v", driver.ErrHashNotInteger.Msg, err)
	}
}

func testLists(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	runSteps(t, c, []step{
		{"RPUSH", []any{"l", "a", "b", "c"}, int64(3)},
		{"LPUSH", []any{"l", "y", "z"}, int64(5)},
		{"LRANGE", []any{"l", 0, -1}, []any{"z", "y", "a", "b", "c"}},
		{"LRANGE", []any{"l", -2, 100}, []any{"b", "c"}},
		{"LRANGE", []any{"l", 5, 10}, []any{}},
		{"LINDEX", []any{"l", -1}, "c"},
		{"LINDEX", []any{"l", 10}, nil},
		{"LPOP", []any{"l"}, "z"},
		{"RPOP", []any{"l", 2}, []any{"c", "b"}},
		{"LLEN", []any{"l"}, int64(2)},
		{"LPOP", []any{"missing"}, nil},
		{"RPUSH", []any{"l", "x", "a", "x"}, int64(5)},
		{"LREM", []any{"l", -1, "x"}, int64(1)},
		{"LRANGE", []any{"l", 0, -1}, []any{"y", "a", "x", "a"}},
		{"LREM", []any{"l", 1, "a"}, int64(1)},
		{"LSET", []any{"l", 0, "first"}, "OK"},
		{"LRANGE", []any{"l", 0, -1}, []any{"first", "x", "a"}},
		{"LTRIM", []any{"l", 1, -1}, "OK"},
		{"LRANGE", []any{"l", 0, -1}, []any{"x", "a"}},
		{"LTRIM", []any{"l", 5, 10}, "OK"},
		{"EXISTS", []any{"l"}, int64(0)},
	})

	_, err := c.LSet(ctx, "missing", 0, "v")
	if err == nil || err.Error() != driver.ErrNoSuchKey.Msg {
		t.Errorf("expected %q, got %v", driver.ErrNoSuchKey.Msg, err)
	}
	c.RPush(ctx, "l2", "v")
	_, err = c.LSet(ctx, "l2", 5, "v")
	if err == nil || err.Error() != driver.ErrIndexOutOfRange.Msg {
		t.Errorf("expected %q, got %v", driver.ErrIndexOutOfRange.Msg, err)
	}
}

func testBlockingPop(t *testing.T, open Factory) {
	d := open(t)
	c := newClient(t, d)
	ctx := context.Background()

	runSteps(t, c, []step{
		{"RPUSH", []any{"b2", "v"}, int64(1)},
		{"BLPOP", []any{"b1", "b2", 1}, []any{"b2", "v"}},
		{"BRPOP", []any{"b1", 0.1}, nil},
	})

	pusher := compat.New(d, compat.WithLazyConnect(true))
	go func() {
		time.Sleep(100 * time.Millisecond)
		pusher.RPush(context.Background(), "b1", "late")
	}()

	start := time.Now()
	got, err := c.BLPop(ctx, "b1", 5)
	if err != nil {
		t.Fatalf("BLPOP failed: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"b1", "late"}) {
		t.Errorf("expected [b1 late], got %#v", got)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("expected BLPOP to wake on push, took %v", elapsed)
	}
}

func testSets(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	runSteps(t, c, []step{
		{"SADD", []any{"s", "a", "b", "a"}, int64(2)},
		{"SADD", []any{"s", []string{"b", "c"}}, int64(1)},
		{"SISMEMBER", []any{"s", "a"}, int64(1)},
		{"SISMEMBER", []any{"s", "x"}, int64(0)},
		{"SMISMEMBER", []any{"s", "a", "x"}, []any{int64(1), int64(0)}},
		{"SREM", []any{"s", "a", "x"}, int64(1)},
		{"SCARD", []any{"s"}, int64(2)},
		{"SMEMBERS", []any{"missing"}, []any{}},
		{"SCARD", []any{"missing"}, int64(0)},
	})

	v, err := c.SMembers(ctx, "s")
	got := sorted(t, v, err)
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("unexpected SMEMBERS result %v", got)
	}
}

func testSortedSets(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	runSteps(t, c, []step{
		{"ZADD", []any{"z", 1, "a", 2, "b", 3, "c"}, int64(3)},
		{"ZADD", []any{"z", "CH", 1, "a", 5, "b", 4, "d"}, int64(2)},
		{"ZADD", []any{"z", 2, "b"}, int64(0)},
		{"ZRANGE", []any{"z", 0, -1, "WITHSCORES"}, []any{"a", "1", "b", "2", "c", "3", "d", "4"}},
		{"ZRANGEBYSCORE", []any{"z", "(2", "+inf"}, []any{"c", "d"}},
		{"ZREVRANGEBYSCORE", []any{"z", "+inf", 2}, []any{"d", "c", "b"}},
		{"ZRANGEBYSCORE", []any{"z", "-inf", "+inf", "LIMIT", 1, 2}, []any{"b", "c"}},
		{"ZREVRANGE", []any{"z", 0, 0}, []any{"d"}},
		{"ZADD", []any{"z", "INCR", 5, "a"}, "6"},
		{"ZADD", []any{"z", "NX", "INCR", 1, "a"}, nil},
		{"ZADD", []any{"z", "GT", 1, "a"}, int64(0)},
		{"ZSCORE", []any{"z", "a"}, "6"},
		{"ZSCORE", []any{"z", "nope"}, nil},
		{"ZRANK", []any{"z", "a"}, int64(3)},
		{"ZREVRANK", []any{"z", "a"}, int64(0)},
		{"ZRANK", []any{"z", "nope"}, nil},
		{"ZCOUNT", []any{"z", "(2", "4"}, int64(2)},
		{"ZINCRBY", []any{"z", 0.5, "b"}, "2.5"},
		{"ZPOPMIN", []any{"z"}, []any{"b", "2.5"}},
		{"ZPOPMAX", []any{"z", 2}, []any{"a", "6", "d", "4"}},
		{"ZCARD", []any{"z"}, int64(1)},
		{"ZREM", []any{"z", "c", "nope"}, int64(1)},
		{"EXISTS", []any{"z"}, int64(0)},
		{"ZADD", []any{"lex", 0, "a", 0, "b", 0, "c"}, int64(3)},
		{"ZRANGEBYLEX", []any{"lex", "[b", "+"}, []any{"b", "c"}},
		{"ZRANGEBYLEX", []any{"lex", "-", "(b"}, []any{"a"}},
		{"ZREVRANGEBYLEX", []any{"lex", "+", "[b"}, []any{"c", "b"}},
		{"ZADD", []any{"r", 1, "a", 2, "b", 3, "c"}, int64(3)},
		{"ZREMRANGEBYSCORE", []any{"r", 2, "+inf"}, int64(2)},
		{"ZCARD", []any{"r"}, int64(1)},
	})

	_, err := c.ZRangeByScore(ctx, "z", "abc", 1)
	if err == nil || err.Error() != driver.ErrMinMaxNotFloat.Msg {
		t.Errorf("expected %q, got %v", driver.ErrMinMaxNotFloat.Msg, err)
	}
}

func testWrongType(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	c.Set(ctx, "str", "v")
	c.RPush(ctx, "list", "v")

	calls := []struct {
		name string
		call func() (any, error)
	}{
		{"LPUSH on string", func() (any, error) { return c.LPush(ctx, "str", "x") }},
		{"HSET on string", func() (any, error) { return c.HSet(ctx, "str", "f", "v") }},
		{"SADD on string", func() (any, error) { return c.SAdd(ctx, "str", "m") }},
		{"ZADD on string", func() (any, error) { return c.ZAdd(ctx, "str", 1, "m") }},
		{"GET on list", func() (any, error) { return c.Get(ctx, "list") }},
		{"INCR on list", func() (any, error) { return c.Incr(ctx, "list") }},
	}
	for _, tt := range calls {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			if err == nil || err.Error() != driver.ErrWrongType.Msg {
				t.Errorf("expected %q, got %v", driver.ErrWrongType.Msg, err)
			}
			if !driver.IsReplyError(err) {
				t.Errorf("expected a reply error, got %T", err)
			}
		})
	}

	// SET replaces any type
	runSteps(t, c, []step{
		{"SET", []any{"list", "now a string"}, "OK"},
		{"TYPE", []any{"list"}, "string"},
	})
}

func testBinaryData(t *testing.T, open Factory) {
	c := newClient(t, open(t))
	ctx := context.Background()

	blob := make([]byte, 256)
	for i := range blob {
		blob[i] = byte(i)
	}

	if _, err := c.Set(ctx, "bin", blob); err != nil {
		t.Fatalf("SET failed: %v", err)
	}
	got, err := c.GetBuffer(ctx, "bin")
	if err != nil {
		t.Fatalf("GETBUFFER failed: %v", err)
	}
	if b, ok := got.([]byte); !ok || string(b) != string(blob) {
		t.Errorf("expected binary round trip, got %#v", got)
	}

	runSteps(t, c, []step{
		{"SET", []any{"utf8", "héllo wörld ✓"}, "OK"},
		{"GET", []any{"utf8"}, "héllo wörld ✓"},
		{"STRLEN", []any{"utf8"}, int64(len("héllo wörld ✓"))},
		{"RPUSH", []any{"bl", "a\x00b"}, int64(1)},
		{"LRANGE", []any{"bl", 0, -1}, []any{"a\x00b"}},
		{"SADD", []any{"bs", "\x00\x01"}, int64(1)},
		{"SISMEMBER", []any{"bs", "\x00\x01"}, int64(1)},
	})
}

func testPubSub(t *testing.T, open Factory) {
	d := open(t)
	sub := newClient(t, d)
	pub := compat.New(d, compat.WithLazyConnect(true))
	ctx := context.Background()

	messages := make(chan [2]string, 10)
	pmessages := make(chan [3]string, 10)
	sub.OnMessage(func(channel, message string) { messages <- [2]string{channel, message} })
	sub.OnPMessage(func(pattern, channel, message string) { pmessages <- [3]string{pattern, channel, message} })

	if n, err := sub.Subscribe(ctx, "news"); err != nil || n != int64(1) {
		t.Fatalf("expected 1 subscription, got %v (%v)", n, err)
	}
	if n, err := pub.Publish(ctx, "news", "hello"); err != nil || n != int64(1) {
		t.Errorf("expected 1 receiver, got %v (%v)", n, err)
	}
	if got := receive(t, messages); got != [2]string{"news", "hello"} {
		t.Errorf("unexpected message %v", got)
	}

	if n, _ := sub.PSubscribe(ctx, "sport.*"); n != int64(2) {
		t.Errorf("expected 2 subscriptions, got %v", n)
	}
	pub.Publish(ctx, "sport.tennis", "ace")
	if got := receive(t, pmessages); got != [3]string{"sport.*", "sport.tennis", "ace"} {
		t.Errorf("unexpected pmessage %v", got)
	}

	// still subscribed to news after the subscriber was replaced
	pub.Publish(ctx, "news", "again")
	if got := receive(t, messages); got != [2]string{"news", "again"} {
		t.Errorf("unexpected message %v", got)
	}

	if n, _ := sub.Unsubscribe(ctx, "news"); n != int64(1) {
		t.Errorf("expected the pattern to remain, got %v", n)
	}
	if n, _ := pub.Publish(ctx, "nobody", "x"); n != int64(0) {
		t.Errorf("expected 0 receivers, got %v", n)
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	var zero T
	return zero
}
