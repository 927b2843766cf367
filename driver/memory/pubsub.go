package memory

import (
	"context"
	"sync"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/glob"
)

// hub routes published messages to in-process subscribers.
type hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

// subscriber queues messages for one fixed configuration.
type subscriber struct {
	hub      *hub
	channels map[string]struct{}
	patterns []string

	mu     sync.Mutex
	queue  []driver.Message
	closed bool
}

// Publish delivers message to every matching subscription and returns the
// number of receivers, counting a pattern match separately from an exact
// channel match like the server does.
func (m *Store) Publish(ctx context.Context, channel, message string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	m.mu.Unlock()
	return m.hub.publish(channel, message), nil
}

// NewSubscriber registers a subscriber for cfg.
func (m *Store) NewSubscriber(ctx context.Context, cfg driver.SubscriptionConfig) (driver.Subscriber, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	m.mu.Unlock()

	s := &subscriber{
		hub:      m.hub,
		channels: make(map[string]struct{}, len(cfg.Channels)),
		patterns: append([]string(nil), cfg.Patterns...),
	}
	for _, c := range cfg.Channels {
		s.channels[c] = struct{}{}
	}
	m.hub.mu.Lock()
	m.hub.subs[s] = struct{}{}
	m.hub.mu.Unlock()
	return s, nil
}

func (h *hub) publish(channel, message string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var receivers int64
	for s := range h.subs {
		if _, ok := s.channels[channel]; ok {
			s.enqueue(driver.Message{Channel: channel, Payload: message})
			receivers++
		}
		for _, p := range s.patterns {
			if glob.Match(p, channel) {
				s.enqueue(driver.Message{Channel: channel, Pattern: p, Payload: message})
				receivers++
			}
		}
	}
	return receivers
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.markClosed()
	}
}

func (s *subscriber) enqueue(msg driver.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue = append(s.queue, msg)
	}
}

// TryNext pops the oldest queued message.
func (s *subscriber) TryNext(ctx context.Context) (*driver.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, driver.ErrSubscriberClosed
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	msg := s.queue[0]
	s.queue[0] = driver.Message{}
	s.queue = s.queue[1:]
	return &msg, nil
}

func (s *subscriber) Close() error {
	s.hub.remove(s)
	s.markClosed()
	return nil
}

func (s *subscriber) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
}
