// Package subscription emulates dynamic SUBSCRIBE/PSUBSCRIBE on top of
// backend subscribers whose channel set is fixed when they are created.
//
// A Machine owns the desired channel and pattern sets. Every change to the
// effective set replaces the backend subscriber: a new one is established
// with the full set, the poller of the old one is quiesced, the reference
// is swapped and the old subscriber is closed. Messages published between
// the generation bump and the establishment of the replacement may be lost;
// a message is never delivered twice.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/metrics"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("subscription: machine closed")

// State is the coarse machine state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Opener creates backend subscribers. driver.Driver satisfies it.
type Opener interface {
	NewSubscriber(ctx context.Context, cfg driver.SubscriptionConfig) (driver.Subscriber, error)
}

// Config configures a Machine.
type Config struct {
	// IdleDelay is the poll pause after an empty poll, see ClampIdleDelay.
	IdleDelay time.Duration
	// OnMessage receives every delivered envelope on the poller goroutine.
	// It must not call back into the Machine: a churn waits for the poller.
	OnMessage func(Envelope)
	Debug     bool
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State      State
	Channels   []string
	Patterns   []string
	Generation uint64
}

// Machine tracks the desired subscription sets and the live subscriber.
type Machine struct {
	opener Opener
	cfg    Config

	// mu is the mutation lock; no two churn cycles overlap.
	mu       sync.Mutex
	channels map[string]struct{}
	patterns map[string]struct{}
	sub      driver.Subscriber
	poller   *Poller
	closed   bool

	gen atomic.Uint64
	seq atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMachine creates an idle machine.
func NewMachine(opener Opener, cfg Config) *Machine {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(Envelope) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		opener:   opener,
		cfg:      cfg,
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe adds exact channels and returns the total subscription count.
func (m *Machine) Subscribe(ctx context.Context, channels ...string) (int, error) {
	return m.mutate(ctx, func() bool { return add(m.channels, channels) })
}

// Unsubscribe removes exact channels, or all of them when none are given.
func (m *Machine) Unsubscribe(ctx context.Context, channels ...string) (int, error) {
	return m.mutate(ctx, func() bool { return remove(m.channels, channels) })
}

// PSubscribe adds patterns and returns the total subscription count.
func (m *Machine) PSubscribe(ctx context.Context, patterns ...string) (int, error) {
	return m.mutate(ctx, func() bool { return add(m.patterns, patterns) })
}

// PUnsubscribe removes patterns, or all of them when none are given.
func (m *Machine) PUnsubscribe(ctx context.Context, patterns ...string) (int, error) {
	return m.mutate(ctx, func() bool { return remove(m.patterns, patterns) })
}

// Generation returns the current subscriber generation.
func (m *Machine) Generation() uint64 {
	return m.gen.Load()
}

// Snapshot returns the current state. It waits for an in-flight churn.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Channels:   sortedKeys(m.channels),
		Patterns:   sortedKeys(m.patterns),
		Generation: m.gen.Load(),
	}
	if m.sub != nil {
		s.State = Active
	}
	return s
}

// Close tears down the subscriber. Later mutations return ErrClosed.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.gen.Add(1)
	err := m.teardown()
	metrics.ActiveSubscriptions.Sub(float64(m.count()))
	clear(m.channels)
	clear(m.patterns)
	m.cancel()
	return err
}

func (m *Machine) mutate(ctx context.Context, change func() bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	before := m.count()
	if !change() {
		return before, nil
	}
	err := m.churn(ctx)
	metrics.ActiveSubscriptions.Add(float64(m.count() - before))
	return m.count(), err
}

// churn replaces the live subscriber with one matching the desired sets.
// Callers hold mu.
func (m *Machine) churn(ctx context.Context) error {
	gen := m.gen.Add(1)
	cfg := driver.SubscriptionConfig{
		Channels: sortedKeys(m.channels),
		Patterns: sortedKeys(m.patterns),
	}

	if cfg.Empty() {
		if m.cfg.Debug {
			log.Printf("[DEBUG] subscription gen=%d: idle", gen)
		}
		return m.teardown()
	}

	next, err := m.opener.NewSubscriber(ctx, cfg)
	if err != nil {
		if m.cfg.Debug {
			log.Printf("[DEBUG] subscription gen=%d: establish failed: %v", gen, err)
		}
		if terr := m.teardown(); terr != nil {
			log.Printf("subscription: close previous subscriber: %v", terr)
		}
		clear(m.channels)
		clear(m.patterns)
		metrics.RecordChurn(true)
		return fmt.Errorf("subscription: establish subscriber: %w", err)
	}

	old, oldPoller := m.sub, m.poller
	if oldPoller != nil {
		oldPoller.Stop()
	}
	m.sub = next
	m.poller = NewPoller(next, gen, m.gen.Load, m.cfg.OnMessage, &m.seq, m.cfg.IdleDelay, m.cfg.Debug)
	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("subscription: close previous subscriber: %v", err)
		}
	}
	m.poller.Start(m.ctx)
	metrics.RecordChurn(false)

	if m.cfg.Debug {
		log.Printf("[DEBUG] subscription gen=%d: %d channels, %d patterns", gen, len(cfg.Channels), len(cfg.Patterns))
	}
	return nil
}

// teardown quiesces and closes the live subscriber. Callers hold mu.
func (m *Machine) teardown() error {
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	if m.sub == nil {
		return nil
	}
	err := m.sub.Close()
	m.sub = nil
	return err
}

func (m *Machine) count() int {
	return len(m.channels) + len(m.patterns)
}

func add(set map[string]struct{}, names []string) bool {
	changed := false
	for _, n := range names {
		if _, ok := set[n]; !ok {
			set[n] = struct{}{}
			changed = true
		}
	}
	return changed
}

func remove(set map[string]struct{}, names []string) bool {
	if len(names) == 0 {
		changed := len(set) > 0
		clear(set)
		return changed
	}
	changed := false
	for _, n := range names {
		if _, ok := set[n]; ok {
			delete(set, n)
			changed = true
		}
	}
	return changed
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
