package subscription

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/driver"
)

// fakeSubscriber hands out queued messages one per TryNext.
type fakeSubscriber struct {
	cfg driver.SubscriptionConfig

	mu     sync.Mutex
	queue  []driver.Message
	closed bool
	err    error
}

func (s *fakeSubscriber) push(msg driver.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, msg)
}

func (s *fakeSubscriber) TryNext(ctx context.Context) (*driver.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, driver.ErrSubscriberClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return &msg, nil
}

func (s *fakeSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener records every subscriber it creates.
type fakeOpener struct {
	mu   sync.Mutex
	subs []*fakeSubscriber
	fail error
}

func (o *fakeOpener) NewSubscriber(ctx context.Context, cfg driver.SubscriptionConfig) (driver.Subscriber, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	s := &fakeSubscriber{cfg: cfg}
	o.subs = append(o.subs, s)
	return s, nil
}

func (o *fakeOpener) created() []*fakeSubscriber {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSubscriber(nil), o.subs...)
}

// collector gathers delivered envelopes.
type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) add(e Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, e)
}

func (c *collector) wait(t *testing.T, n int) []Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.envs) >= n {
			out := append([]Envelope(nil), c.envs...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d envelopes", n)
	return nil
}

func newTestMachine(o *fakeOpener, c *collector) *Machine {
	return NewMachine(o, Config{IdleDelay: time.Millisecond, OnMessage: c.add})
}

func TestMachine_SubscribeEstablishesSubscriber(t *testing.T) {
	o := &fakeOpener{}
	c := &collector{}
	m := newTestMachine(o, c)
	defer m.Close()
	ctx := context.Background()

	n, err := m.Subscribe(ctx, "news", "alerts")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}

	subs := o.created()
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}
	if want := []string{"alerts", "news"}; !reflect.DeepEqual(subs[0].cfg.Channels, want) {
		t.Errorf("expected channels %v, got %v", want, subs[0].cfg.Channels)
	}

	snap := m.Snapshot()
	if snap.State != Active {
		t.Errorf("expected active state, got %v", snap.State)
	}
}

func TestMachine_UnchangedSetDoesNotChurn(t *testing.T) {
	o := &fakeOpener{}
	m := newTestMachine(o, &collector{})
	defer m.Close()
	ctx := context.Background()

	m.Subscribe(ctx, "a")
	gen := m.Generation()
	n, err := m.Subscribe(ctx, "a")
	if err != nil || n != 1 {
		t.Fatalf("unexpected n=%d err=%v", n, err)
	}
	if m.Generation() != gen {
		t.Error("expected no churn for an unchanged set")
	}
	if _, err := m.Unsubscribe(ctx, "missing"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if len(o.created()) != 1 {
		t.Errorf("expected 1 subscriber, got %d", len(o.created()))
	}
}

func TestMachine_ChurnReplacesSubscriber(t *testing.T) {
	o := &fakeOpener{}
	c := &collector{}
	m := newTestMachine(o, c)
	defer m.Close()
	ctx := context.Background()

	m.Subscribe(ctx, "A")
	gen := m.Generation()
	n, err := m.PSubscribe(ctx, "news.*")
	if err != nil {
		t.Fatalf("PSubscribe failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
	if got := m.Generation(); got != gen+1 {
		t.Errorf("expected exactly one churn, generation went %d -> %d", gen, got)
	}

	subs := o.created()
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
	if !subs[0].isClosed() {
		t.Error("expected old subscriber to be closed")
	}
	next := subs[1]
	if !reflect.DeepEqual(next.cfg.Channels, []string{"A"}) || !reflect.DeepEqual(next.cfg.Patterns, []string{"news.*"}) {
		t.Errorf("unexpected replacement config %+v", next.cfg)
	}

	next.push(driver.Message{Channel: "A", Payload: "hello"})
	next.push(driver.Message{Channel: "news.today", Pattern: "news.*", Payload: "p"})
	envs := c.wait(t, 2)
	if envs[0].Channel != "A" || envs[0].Payload != "hello" || envs[0].Pattern != "" {
		t.Errorf("unexpected first envelope %+v", envs[0])
	}
	if envs[1].Pattern != "news.*" || envs[1].Channel != "news.today" {
		t.Errorf("unexpected second envelope %+v", envs[1])
	}
	if envs[1].Seq <= envs[0].Seq {
		t.Errorf("expected increasing sequence, got %d then %d", envs[0].Seq, envs[1].Seq)
	}
}

func TestMachine_EmptySetGoesIdle(t *testing.T) {
	o := &fakeOpener{}
	m := newTestMachine(o, &collector{})
	defer m.Close()
	ctx := context.Background()

	m.Subscribe(ctx, "a", "b")
	m.PSubscribe(ctx, "p*")
	m.PUnsubscribe(ctx)
	n, err := m.Unsubscribe(ctx)
	if err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}
	snap := m.Snapshot()
	if snap.State != Idle {
		t.Errorf("expected idle state, got %v", snap.State)
	}
	for i, s := range o.created() {
		if !s.isClosed() {
			t.Errorf("expected subscriber %d to be closed", i)
		}
	}
}

func TestMachine_FailedReplacementGoesIdle(t *testing.T) {
	o := &fakeOpener{}
	m := newTestMachine(o, &collector{})
	defer m.Close()
	ctx := context.Background()

	m.Subscribe(ctx, "a")
	boom := errors.New("dial failed")
	o.mu.Lock()
	o.fail = boom
	o.mu.Unlock()

	_, err := m.Subscribe(ctx, "b")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
	if !o.created()[0].isClosed() {
		t.Error("expected old subscriber to be closed")
	}
	snap := m.Snapshot()
	if snap.State != Idle || len(snap.Channels) != 0 {
		t.Errorf("expected an empty idle machine, got %+v", snap)
	}

	o.mu.Lock()
	o.fail = nil
	o.mu.Unlock()
	if n, err := m.Subscribe(ctx, "c"); err != nil || n != 1 {
		t.Errorf("expected recovery, got n=%d err=%v", n, err)
	}
}

func TestMachine_Close(t *testing.T) {
	o := &fakeOpener{}
	m := newTestMachine(o, &collector{})
	ctx := context.Background()

	m.Subscribe(ctx, "a")
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !o.created()[0].isClosed() {
		t.Error("expected subscriber to be closed")
	}
	if _, err := m.Subscribe(ctx, "b"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("expected second Close to be a no-op, got %v", err)
	}
}

func TestMachine_ConcurrentMutationsSerialize(t *testing.T) {
	o := &fakeOpener{}
	m := newTestMachine(o, &collector{})
	defer m.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Subscribe(ctx, string(rune('a'+i)))
		}(i)
	}
	wg.Wait()

	snap := m.Snapshot()
	if len(snap.Channels) != 20 {
		t.Errorf("expected 20 channels, got %d", len(snap.Channels))
	}
	subs := o.created()
	for _, s := range subs[:len(subs)-1] {
		if !s.isClosed() {
			t.Error("expected every superseded subscriber to be closed")
		}
	}
	if subs[len(subs)-1].isClosed() {
		t.Error("expected the live subscriber to stay open")
	}
}
