//go:build redis

package goredis_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/compat"
	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/driver/drivertest"
	"github.com/mnorrsken/kvshim/driver/goredis"
)

func getRedisAddrs() []string {
	if addrs := os.Getenv("REDIS_ADDRS"); addrs != "" {
		return strings.Split(addrs, ",")
	}
	return []string{"localhost:6399"}
}

// newTestDriver connects to the test server and empties the database.
func newTestDriver(tb testing.TB) driver.Driver {
	tb.Helper()
	ctx := context.Background()

	d := goredis.Dial(goredis.Options{
		Addrs:    getRedisAddrs(),
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	// Wait for Redis to be ready with retries
	var err error
	for i := 0; i < 10; i++ {
		if err = d.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		d.Close()
		tb.Fatalf("Failed to connect to Redis at %v: %v", getRedisAddrs(), err)
	}
	if err := d.FlushDB(ctx); err != nil {
		d.Close()
		tb.Fatalf("Failed to flush database: %v", err)
	}
	return d
}

func TestRedisConformance(t *testing.T) {
	drivertest.Run(t, newTestDriver)
}

func TestRedisPassthrough(t *testing.T) {
	c := compat.New(newTestDriver(t), compat.WithLazyConnect(true))
	defer c.Close()
	ctx := context.Background()

	// non-numeric count is forwarded so the server raises its own error
	_, err := c.Call(ctx, "LPOP", "l", "many")
	if err == nil || !strings.HasPrefix(err.Error(), "ERR") {
		t.Errorf("expected a server error, got %v", err)
	}
	if !driver.IsReplyError(err) {
		t.Errorf("expected a reply error, got %T", err)
	}
}

func TestRedisScripting(t *testing.T) {
	c := compat.New(newTestDriver(t), compat.WithLazyConnect(true))
	defer c.Close()
	ctx := context.Background()

	got, err := c.Eval(ctx, "return redis.call('SET', KEYS[1], ARGV[1])", 1, "k", "v")
	if err != nil {
		t.Fatalf("EVAL failed: %v", err)
	}
	if got != "OK" {
		t.Errorf("expected OK, got %#v", got)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Errorf("expected v, got %#v", v)
	}
}

// ============== Benchmarks ==============

func newBenchClient(b *testing.B) *compat.Client {
	c := compat.New(newTestDriver(b), compat.WithLazyConnect(true))
	b.Cleanup(func() { c.Close() })
	return c
}

func BenchmarkRedisSetGet(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench:key:%d", i)
		if _, err := c.Set(ctx, key, "value", "EX", 60); err != nil {
			b.Fatalf("SET failed: %v", err)
		}
		if _, err := c.Get(ctx, key); err != nil {
			b.Fatalf("GET failed: %v", err)
		}
	}
}

func BenchmarkRedisHSetHGet(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		field := fmt.Sprintf("field%d", i%100)
		if _, err := c.HSet(ctx, "bench:hash", field, i); err != nil {
			b.Fatalf("HSET failed: %v", err)
		}
		if _, err := c.HGet(ctx, "bench:hash", field); err != nil {
			b.Fatalf("HGET failed: %v", err)
		}
	}
}

func BenchmarkRedisLPushLPop(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.LPush(ctx, "bench:list", "value"); err != nil {
			b.Fatalf("LPUSH failed: %v", err)
		}
		if _, err := c.LPop(ctx, "bench:list"); err != nil {
			b.Fatalf("LPOP failed: %v", err)
		}
	}
}
