package compat

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/driver/memory"
	"github.com/mnorrsken/kvshim/internal/subscription"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	var zero T
	return zero
}

func TestClient_PubSub(t *testing.T) {
	d := memory.New()
	sub := New(d, WithLazyConnect(true), WithPollInterval(time.Millisecond))
	pub := New(d, WithLazyConnect(true))
	defer sub.Close()
	ctx := context.Background()

	messages := make(chan [2]string, 10)
	pmessages := make(chan [3]string, 10)
	buffers := make(chan [2][]byte, 10)
	sub.OnMessage(func(channel, message string) { messages <- [2]string{channel, message} })
	sub.OnPMessage(func(pattern, channel, message string) { pmessages <- [3]string{pattern, channel, message} })
	sub.OnMessageBuffer(func(channel, message []byte) { buffers <- [2][]byte{channel, message} })

	if n, err := sub.Subscribe(ctx, "news"); err != nil || n != int64(1) {
		t.Fatalf("expected 1 subscription, got %v (%v)", n, err)
	}
	if n, _ := pub.Publish(ctx, "news", "hello"); n != int64(1) {
		t.Errorf("expected 1 receiver, got %v", n)
	}
	if got := receive(t, messages); got != [2]string{"news", "hello"} {
		t.Errorf("unexpected message %v", got)
	}
	if got := receive(t, buffers); string(got[1]) != "hello" {
		t.Errorf("unexpected buffer message %q", got[1])
	}

	if n, _ := sub.PSubscribe(ctx, "n*"); n != int64(2) {
		t.Errorf("expected 2 subscriptions, got %v", n)
	}
	pub.Publish(ctx, "news", "again")
	if got := receive(t, messages); got != [2]string{"news", "again"} {
		t.Errorf("unexpected message %v", got)
	}
	if got := receive(t, pmessages); got != [3]string{"n*", "news", "again"} {
		t.Errorf("unexpected pmessage %v", got)
	}

	if n, _ := sub.Unsubscribe(ctx); n != int64(1) {
		t.Errorf("expected the pattern to remain, got %v", n)
	}
	snap := sub.Subscriptions()
	if snap.State != subscription.Active || !reflect.DeepEqual(snap.Patterns, []string{"n*"}) || len(snap.Channels) != 0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if n, _ := sub.PUnsubscribe(ctx); n != int64(0) {
		t.Errorf("expected no subscriptions, got %v", n)
	}
	if sub.Subscriptions().State != subscription.Idle {
		t.Error("expected idle state after removing everything")
	}
}

func TestClient_ListenerMayUnsubscribe(t *testing.T) {
	d := memory.New()
	c := New(d, WithLazyConnect(true), WithPollInterval(time.Millisecond))
	defer c.Close()
	ctx := context.Background()

	done := make(chan int64, 1)
	c.OnMessage(func(channel, message string) {
		n, err := c.Unsubscribe(ctx, channel)
		if err != nil {
			t.Errorf("Unsubscribe from listener failed: %v", err)
		}
		done <- n.(int64)
	})

	c.Subscribe(ctx, "jobs")
	c.Publish(ctx, "jobs", "stop")

	if n := receive(t, done); n != 0 {
		t.Errorf("expected 0 subscriptions, got %d", n)
	}
	if c.Subscriptions().State != subscription.Idle {
		t.Error("expected idle state")
	}
}

func TestClient_CloseStopsDelivery(t *testing.T) {
	d := memory.New()
	c := New(d, WithLazyConnect(true), WithPollInterval(time.Millisecond))
	ctx := context.Background()

	ended := make(chan struct{})
	c.OnEnd(func() { close(ended) })
	c.Subscribe(ctx, "c")
	c.Close()
	receive(t, ended)

	if snap := c.Subscriptions(); snap.State != subscription.Idle || len(snap.Channels) != 0 {
		t.Errorf("expected an idle machine after Close, got %+v", snap)
	}
}
