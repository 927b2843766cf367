package goredis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnorrsken/kvshim/driver"
)

const (
	confirmTimeout = 5 * time.Second
	channelSize    = 1000
)

func (d *Driver) Publish(ctx context.Context, channel, message string) (int64, error) {
	return result(d.client.Publish(ctx, channel, message).Result())
}

// NewSubscriber opens one PubSub connection for cfg and waits until the
// server has confirmed every channel and pattern. Messages arriving before
// the last confirmation are kept and delivered first.
func (d *Driver) NewSubscriber(ctx context.Context, cfg driver.SubscriptionConfig) (driver.Subscriber, error) {
	ps := d.client.Subscribe(ctx)
	if len(cfg.Channels) > 0 {
		if err := ps.Subscribe(ctx, cfg.Channels...); err != nil {
			ps.Close()
			return nil, mapErr(err)
		}
	}
	if len(cfg.Patterns) > 0 {
		if err := ps.PSubscribe(ctx, cfg.Patterns...); err != nil {
			ps.Close()
			return nil, mapErr(err)
		}
	}

	s := &subscriber{ps: ps}
	for pending := len(cfg.Channels) + len(cfg.Patterns); pending > 0; {
		msg, err := ps.ReceiveTimeout(ctx, confirmTimeout)
		if err != nil {
			ps.Close()
			return nil, fmt.Errorf("goredis: await subscription confirmation: %w", mapErr(err))
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			pending--
		case *redis.Message:
			s.early = append(s.early, convert(m))
		}
	}
	s.ch = ps.Channel(redis.WithChannelSize(channelSize))
	return s, nil
}

type subscriber struct {
	ps    *redis.PubSub
	ch    <-chan *redis.Message
	early []*driver.Message

	mu     sync.Mutex
	closed bool
}

func convert(m *redis.Message) *driver.Message {
	return &driver.Message{Channel: m.Channel, Pattern: m.Pattern, Payload: m.Payload}
}

// TryNext never waits for traffic: it takes a message already received by
// go-redis or returns nil.
func (s *subscriber) TryNext(ctx context.Context) (*driver.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, driver.ErrSubscriberClosed
	}
	if len(s.early) > 0 {
		msg := s.early[0]
		s.early = s.early[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()

	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, driver.ErrSubscriberClosed
		}
		return convert(m), nil
	default:
		return nil, nil
	}
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return mapErr(s.ps.Close())
}
