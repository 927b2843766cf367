//go:build postgres

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/compat"
	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/driver/drivertest"
	"github.com/mnorrsken/kvshim/driver/postgres"
)

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func testConfig() postgres.Config {
	port, err := strconv.Atoi(getEnvOrDefault("PG_PORT", "5789"))
	if err != nil {
		port = 5789
	}
	trace, _ := strconv.Atoi(os.Getenv("SQLTRACE"))
	return postgres.Config{
		Host:          getEnvOrDefault("PG_HOST", "localhost"),
		Port:          port,
		User:          getEnvOrDefault("PG_USER", "postgres"),
		Password:      getEnvOrDefault("PG_PASSWORD", "testingpassword"),
		Database:      getEnvOrDefault("PG_DATABASE", "postgres"),
		SSLMode:       getEnvOrDefault("PG_SSLMODE", "disable"),
		SQLTraceLevel: trace,
	}
}

// newTestDriver connects to the test database and empties it.
func newTestDriver(tb testing.TB) driver.Driver {
	tb.Helper()
	ctx := context.Background()

	d, err := postgres.New(ctx, testConfig())
	if err != nil {
		tb.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := d.FlushDB(ctx); err != nil {
		d.Close()
		tb.Fatalf("Failed to flush database: %v", err)
	}
	return d
}

func TestPgConformance(t *testing.T) {
	drivertest.Run(t, newTestDriver)
}

func TestPgExpiredKeysAreSwept(t *testing.T) {
	d := newTestDriver(t).(*postgres.Driver)
	defer d.Close()
	ctx := context.Background()

	if _, err := d.Set(ctx, "short", "v", driver.SetOptions{Expiry: driver.ExpiryPX, ExpiryValue: "50"}); err != nil {
		t.Fatalf("SET failed: %v", err)
	}

	// the sweeper runs every second
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var rows int
		err := d.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM kv_strings WHERE key = 'short'").Scan(&rows)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if rows == 0 {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Error("expected the expired value row to be removed")
}

func TestPgLongChannelNames(t *testing.T) {
	d := newTestDriver(t)
	sub := compat.New(d, compat.WithLazyConnect(true), compat.WithPollInterval(time.Millisecond))
	pub := compat.New(d, compat.WithLazyConnect(true))
	defer sub.Close()
	ctx := context.Background()

	channel := strings.Repeat("very-long-channel-", 5)
	got := make(chan []byte, 1)
	sub.OnMessageBuffer(func(_, message []byte) { got <- message })

	if _, err := sub.Subscribe(ctx, channel); err != nil {
		t.Fatalf("SUBSCRIBE failed: %v", err)
	}
	payload := []byte("bin\x00ary\xff")
	if _, err := pub.Publish(ctx, channel, payload); err != nil {
		t.Fatalf("PUBLISH failed: %v", err)
	}

	select {
	case msg := <-got:
		if string(msg) != string(payload) {
			t.Errorf("expected %q, got %q", payload, msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the message")
	}
}

func TestPgConcurrentIncr(t *testing.T) {
	d := newTestDriver(t)
	c := compat.New(d, compat.WithLazyConnect(true))
	defer c.Close()
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := c.Incr(ctx, "counter"); err != nil {
					t.Errorf("INCR failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if v, _ := c.Get(ctx, "counter"); v != strconv.Itoa(workers*perWorker) {
		t.Errorf("expected %d, got %#v", workers*perWorker, v)
	}
}

// ============== Benchmarks ==============

func newBenchClient(b *testing.B) *compat.Client {
	c := compat.New(newTestDriver(b), compat.WithLazyConnect(true))
	b.Cleanup(func() { c.Close() })
	return c
}

func BenchmarkPgSetGet(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench:key:%d", i)
		if _, err := c.Set(ctx, key, "value"); err != nil {
			b.Fatalf("SET failed: %v", err)
		}
		if _, err := c.Get(ctx, key); err != nil {
			b.Fatalf("GET failed: %v", err)
		}
	}
}

func BenchmarkPgMSetMGet(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	args := make([]any, 0, 20)
	keys := make([]any, 0, 10)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("bench:mkey:%d", i)
		args = append(args, key, i)
		keys = append(keys, key)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.MSet(ctx, args...); err != nil {
			b.Fatalf("MSET failed: %v", err)
		}
		if _, err := c.MGet(ctx, keys...); err != nil {
			b.Fatalf("MGET failed: %v", err)
		}
	}
}

func BenchmarkPgZAddZRange(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.ZAdd(ctx, "bench:zset", i%1000, fmt.Sprintf("m%d", i%1000)); err != nil {
			b.Fatalf("ZADD failed: %v", err)
		}
		if _, err := c.ZRange(ctx, "bench:zset", 0, 9); err != nil {
			b.Fatalf("ZRANGE failed: %v", err)
		}
	}
}
