package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/driver"
)

func TestStore_SetOptions(t *testing.T) {
	s := New()
	ctx := context.Background()

	res, err := s.Set(ctx, "k", "v1", driver.SetOptions{})
	if err != nil || !res.Written {
		t.Fatalf("Set failed: %+v %v", res, err)
	}

	res, _ = s.Set(ctx, "k", "v2", driver.SetOptions{Condition: driver.CondNX})
	if res.Written {
		t.Error("expected NX to skip an existing key")
	}

	res, _ = s.Set(ctx, "missing", "v", driver.SetOptions{Condition: driver.CondXX})
	if res.Written {
		t.Error("expected XX to skip a missing key")
	}

	res, _ = s.Set(ctx, "k", "v3", driver.SetOptions{Get: true})
	if !res.HadOld || res.Old != "v1" {
		t.Errorf("expected old value v1, got %+v", res)
	}

	_, err = s.Set(ctx, "k", "v", driver.SetOptions{Expiry: driver.ExpiryEX, ExpiryValue: "0"})
	if !errors.Is(err, driver.ErrInvalidExpire) {
		t.Errorf("expected ErrInvalidExpire, got %v", err)
	}
}

func TestStore_Expiry(t *testing.T) {
	s := New()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, "k", "v", driver.SetOptions{Expiry: driver.ExpiryEX, ExpiryValue: "10"})
	if ttl, _ := s.TTL(ctx, "k", time.Second); ttl != 10 {
		t.Errorf("expected TTL 10, got %d", ttl)
	}
	if pttl, _ := s.TTL(ctx, "k", time.Millisecond); pttl != 10000 {
		t.Errorf("expected PTTL 10000, got %d", pttl)
	}

	s.Set(ctx, "k", "v2", driver.SetOptions{Expiry: driver.ExpiryKeepTTL})
	if ttl, _ := s.TTL(ctx, "k", time.Second); ttl != 10 {
		t.Errorf("expected KEEPTTL to keep 10, got %d", ttl)
	}

	now = now.Add(11 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected key to have expired")
	}
	if ttl, _ := s.TTL(ctx, "k", time.Second); ttl != -2 {
		t.Errorf("expected -2 for a missing key, got %d", ttl)
	}
}

func TestStore_ExpireConditions(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Set(ctx, "k", "v", driver.SetOptions{})

	tests := []struct {
		name string
		ttl  time.Duration
		cond driver.Condition
		want bool
	}{
		{"xx without ttl", time.Minute, driver.CondXX, false},
		{"gt without ttl", time.Minute, driver.CondGT, false},
		{"nx without ttl", time.Minute, driver.CondNX, true},
		{"nx with ttl", time.Hour, driver.CondNX, false},
		{"gt shorter", time.Second, driver.CondGT, false},
		{"gt longer", time.Hour, driver.CondGT, true},
		{"lt longer", 2 * time.Hour, driver.CondLT, false},
		{"lt shorter", time.Minute, driver.CondLT, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Expire(ctx, "k", tt.ttl, tt.cond)
			if err != nil {
				t.Fatalf("Expire failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if ok, _ := s.Expire(ctx, "k", 0, driver.CondNone); !ok {
		t.Error("expected a non-positive ttl to delete the key")
	}
	if n, _ := s.Exists(ctx, []string{"k"}); n != 0 {
		t.Error("expected key to be deleted")
	}
}

func TestStore_WrongType(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.LPush(ctx, "l", []string{"a"})

	if _, _, err := s.Get(ctx, "l"); !errors.Is(err, driver.ErrWrongType) {
		t.Errorf("expected WRONGTYPE, got %v", err)
	}
	if _, err := s.HSet(ctx, "l", []driver.FieldValue{{Field: "f", Value: "v"}}); !errors.Is(err, driver.ErrWrongType) {
		t.Errorf("expected WRONGTYPE, got %v", err)
	}
	vals, _ := s.MGet(ctx, []string{"l", "nope"})
	if vals[0].Valid || vals[1].Valid {
		t.Errorf("expected MGET to report nil for wrong types, got %v", vals)
	}
}

func TestStore_Incr(t *testing.T) {
	s := New()
	ctx := context.Background()

	if n, _ := s.IncrBy(ctx, "c", 5); n != 5 {
		t.Errorf("expected 5, got %d", n)
	}
	s.Set(ctx, "s", "abc", driver.SetOptions{})
	if _, err := s.IncrBy(ctx, "s", 1); !errors.Is(err, driver.ErrNotInteger) {
		t.Errorf("expected ErrNotInteger, got %v", err)
	}
	s.Set(ctx, "max", "9223372036854775807", driver.SetOptions{})
	if _, err := s.IncrBy(ctx, "max", 1); !errors.Is(err, driver.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	f, err := s.IncrByFloat(ctx, "f", 0.5)
	if err != nil || f != 0.5 {
		t.Errorf("expected 0.5, got %v (%v)", f, err)
	}
}

func TestStore_Lists(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.LPush(ctx, "l", []string{"a", "b", "c"})
	got, _ := s.LRange(ctx, "l", 0, -1)
	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	s.RPush(ctx, "l", []string{"a", "a"})
	n, _ := s.LRem(ctx, "l", -2, "a")
	if n != 2 {
		t.Errorf("expected 2 removals, got %d", n)
	}
	got, _ = s.LRange(ctx, "l", 0, -1)
	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	popped, _ := s.RPop(ctx, "l", 2)
	if want := []string{"a", "b"}; !reflect.DeepEqual(popped, want) {
		t.Errorf("expected %v, got %v", want, popped)
	}
	popped, _ = s.LPop(ctx, "missing", -1)
	if popped != nil {
		t.Errorf("expected nil for a missing key, got %v", popped)
	}

	if err := s.LSet(ctx, "l", 5, "x"); !errors.Is(err, driver.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := s.LSet(ctx, "missing", 0, "x"); !errors.Is(err, driver.ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey, got %v", err)
	}
}

func TestStore_BlockingPop(t *testing.T) {
	s := New()
	ctx := context.Background()

	kv, err := s.BLPop(ctx, []string{"q"}, 20*time.Millisecond)
	if err != nil || kv != nil {
		t.Fatalf("expected nil on timeout, got %v %v", kv, err)
	}

	done := make(chan *driver.KeyValue, 1)
	go func() {
		kv, _ := s.BRPop(ctx, []string{"q1", "q2"}, time.Second)
		done <- kv
	}()
	time.Sleep(10 * time.Millisecond)
	s.RPush(ctx, "q2", []string{"job"})

	select {
	case kv := <-done:
		if kv == nil || kv.Key != "q2" || kv.Value != "job" {
			t.Errorf("unexpected pop %+v", kv)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked pop was not woken")
	}
}

func TestStore_ZSetRanges(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.ZAdd(ctx, "z", driver.ZAddArgs{Members: []driver.ScoredMember{
		{Score: "1", Member: "a"}, {Score: "2", Member: "b"}, {Score: "3", Member: "c"},
	}})

	tests := []struct {
		name string
		q    driver.RangeQuery
		want []string
	}{
		{"all", driver.RangeQuery{Start: "0", Stop: "-1"}, []string{"a", "b", "c"}},
		{"reverse", driver.RangeQuery{Start: "0", Stop: "0", Reverse: true}, []string{"c"}},
		{"by score exclusive", driver.RangeQuery{By: driver.ByScore, Start: "(1", Stop: "+inf"}, []string{"b", "c"}},
		{"rev by score", driver.RangeQuery{By: driver.ByScore, Start: "-inf", Stop: "+inf", Reverse: true}, []string{"c", "b", "a"}},
		{"limit", driver.RangeQuery{By: driver.ByScore, Start: "-inf", Stop: "+inf", Limit: true, Offset: 1, Count: 1}, []string{"b"}},
		{"by lex", driver.RangeQuery{By: driver.ByLex, Start: "[b", Stop: "+"}, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ZRange(ctx, "z", tt.q)
			if err != nil {
				t.Fatalf("ZRange failed: %v", err)
			}
			members := make([]string, len(got))
			for i, zm := range got {
				members[i] = zm.Member
			}
			if !reflect.DeepEqual(members, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, members)
			}
		})
	}

	if _, err := s.ZRange(ctx, "z", driver.RangeQuery{By: driver.ByScore, Start: "x", Stop: "1"}); !errors.Is(err, driver.ErrMinMaxNotFloat) {
		t.Errorf("expected ErrMinMaxNotFloat, got %v", err)
	}
}

func TestStore_ZAddFlags(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.ZAdd(ctx, "z", driver.ZAddArgs{Members: []driver.ScoredMember{{Score: "5", Member: "a"}}})

	n, _ := s.ZAdd(ctx, "z", driver.ZAddArgs{GT: true, CH: true, Members: []driver.ScoredMember{
		{Score: "4", Member: "a"}, {Score: "1", Member: "b"},
	}})
	if n != 1 {
		t.Errorf("expected 1 change, got %d", n)
	}
	if score, _, _ := s.ZScore(ctx, "z", "a"); score != 5 {
		t.Errorf("expected GT to keep 5, got %v", score)
	}

	if _, err := s.ZAdd(ctx, "z", driver.ZAddArgs{NX: true, XX: true, Members: []driver.ScoredMember{{Score: "1", Member: "a"}}}); !errors.Is(err, driver.ErrZAddNXXX) {
		t.Errorf("expected ErrZAddNXXX, got %v", err)
	}
	if _, err := s.ZAdd(ctx, "z", driver.ZAddArgs{Members: []driver.ScoredMember{{Score: "nan", Member: "a"}}}); !errors.Is(err, driver.ErrNotFloat) {
		t.Errorf("expected ErrNotFloat, got %v", err)
	}

	score, ok, err := s.ZAddIncr(ctx, "z", driver.ZAddArgs{Members: []driver.ScoredMember{{Score: "2.5", Member: "a"}}})
	if err != nil || !ok || score != 7.5 {
		t.Errorf("expected 7.5, got %v ok=%v err=%v", score, ok, err)
	}
	_, ok, _ = s.ZAddIncr(ctx, "z", driver.ZAddArgs{NX: true, Members: []driver.ScoredMember{{Score: "1", Member: "a"}}})
	if ok {
		t.Error("expected NX INCR on an existing member to report nil")
	}
}

func TestStore_Scan(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"a1", "a2", "b1", "b2", "c1"} {
		s.Set(ctx, k, "v", driver.SetOptions{})
	}
	s.HSet(ctx, "h1", []driver.FieldValue{{Field: "f", Value: "v"}})

	var all []string
	cursor := uint64(0)
	for {
		page, err := s.Scan(ctx, cursor, driver.ScanOptions{Count: 2, Match: "*1"})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		all = append(all, page.Keys...)
		if page.Cursor == 0 {
			break
		}
		cursor = page.Cursor
	}
	if want := []string{"a1", "b1", "c1", "h1"}; !reflect.DeepEqual(all, want) {
		t.Errorf("expected %v, got %v", want, all)
	}

	page, _ := s.Scan(ctx, 0, driver.ScanOptions{Count: 100, Type: "hash"})
	if !reflect.DeepEqual(page.Keys, []string{"h1"}) {
		t.Errorf("expected only the hash, got %v", page.Keys)
	}
}

func TestStore_PubSub(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub, err := s.NewSubscriber(ctx, driver.SubscriptionConfig{Channels: []string{"news"}, Patterns: []string{"n*"}})
	if err != nil {
		t.Fatalf("NewSubscriber failed: %v", err)
	}

	n, _ := s.Publish(ctx, "news", "hi")
	if n != 2 {
		t.Errorf("expected 2 receivers, got %d", n)
	}
	first, _ := sub.TryNext(ctx)
	second, _ := sub.TryNext(ctx)
	if first == nil || first.Pattern != "" || second == nil || second.Pattern != "n*" {
		t.Errorf("unexpected deliveries %+v %+v", first, second)
	}
	if msg, _ := sub.TryNext(ctx); msg != nil {
		t.Errorf("expected an empty queue, got %+v", msg)
	}

	sub.Close()
	if _, err := sub.TryNext(ctx); !errors.Is(err, driver.ErrSubscriberClosed) {
		t.Errorf("expected ErrSubscriberClosed, got %v", err)
	}
	if n, _ := s.Publish(ctx, "news", "hi"); n != 0 {
		t.Errorf("expected no receivers after close, got %d", n)
	}
}

func TestStore_Close(t *testing.T) {
	s := New()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.BLPop(ctx, []string{"q"}, 0)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, driver.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked pop was not released by Close")
	}
	if err := s.Ping(ctx); !errors.Is(err, driver.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
