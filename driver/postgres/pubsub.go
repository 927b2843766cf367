package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/glob"
)

// PostgreSQL channel name limit is 63 bytes (NAMEDATALEN-1)
const maxPgChannelLen = 63

// wrappedPayloadPrefix marks payloads that carry their channel name.
const wrappedPayloadPrefix = "\x1EKVW:"

// patternChannel receives a wrapped copy of every publish so pattern
// subscribers can match channels they never LISTEN on.
const patternChannel = "kvshim_pmessage"

// wrappedPayload is used to encode channel + message when the payload
// cannot travel as is.
type wrappedPayload struct {
	Channel string `json:"c"`
	Message string `json:"m"`
}

// pgChannel converts a channel name to a PostgreSQL-safe channel name.
// Names longer than 63 bytes are hashed to fit.
func pgChannel(channel string) string {
	if len(channel) <= maxPgChannelLen && utf8.ValidString(channel) && !strings.ContainsRune(channel, 0) {
		return channel
	}
	hash := sha256.Sum256([]byte(channel))
	// "h_" + 40 hex chars stays well under the limit
	return "h_" + hex.EncodeToString(hash[:20])
}

// needsWrap reports whether a payload must be wrapped to survive NOTIFY,
// which only carries valid text without NUL bytes.
func needsWrap(channel, pgChan, message string) bool {
	return pgChan != channel ||
		!utf8.ValidString(message) ||
		strings.ContainsRune(message, 0) ||
		strings.HasPrefix(message, wrappedPayloadPrefix)
}

func wrapPayload(channel, message string) (string, error) {
	b, err := json.Marshal(wrappedPayload{Channel: channel, Message: base64.StdEncoding.EncodeToString([]byte(message))})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return wrappedPayloadPrefix + base64.StdEncoding.EncodeToString(b), nil
}

// unwrapPayload decodes a wrapped payload. ok is false for plain payloads.
func unwrapPayload(payload string) (channel, message string, ok bool) {
	encoded, found := strings.CutPrefix(payload, wrappedPayloadPrefix)
	if !found {
		return "", "", false
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	var w wrappedPayload
	if err := json.Unmarshal(b, &w); err != nil {
		return "", "", false
	}
	m, err := base64.StdEncoding.DecodeString(w.Message)
	if err != nil {
		return "", "", false
	}
	return w.Channel, string(m), true
}

// Publish notifies the channel and the pattern fan-out channel in one
// statement. The count covers subscribers of this driver only; other
// processes listening on the database are not visible.
func (d *Driver) Publish(ctx context.Context, channel, message string) (int64, error) {
	pgChan := pgChannel(channel)
	wrapped, err := wrapPayload(channel, message)
	if err != nil {
		return 0, err
	}
	payload := message
	if needsWrap(channel, pgChan, message) {
		payload = wrapped
	}

	err = d.read(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, "SELECT pg_notify($1, $2), pg_notify($3, $4)", pgChan, payload, patternChannel, wrapped)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to publish: %w", err)
	}
	return d.countSubscribers(channel), nil
}

// countSubscribers counts receivers the way the server does: a pattern
// match counts separately from an exact channel match.
func (d *Driver) countSubscribers(channel string) int64 {
	d.subMu.RLock()
	defer d.subMu.RUnlock()

	var n int64
	for s := range d.subs {
		if _, ok := s.channels[channel]; ok {
			n++
		}
		for _, p := range s.patterns {
			if glob.Match(p, channel) {
				n++
			}
		}
	}
	return n
}

// NewSubscriber opens a dedicated connection and LISTENs on every channel
// of cfg, plus the fan-out channel when cfg has patterns. The LISTENs have
// completed when it returns, so later publishes are delivered.
func (d *Driver) NewSubscriber(ctx context.Context, cfg driver.SubscriptionConfig) (driver.Subscriber, error) {
	if d.closed.Load() {
		return nil, driver.ErrClosed
	}
	conn, err := pgx.Connect(ctx, d.connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener connection: %w", err)
	}

	s := &subscriber{
		d:        d,
		conn:     conn,
		channels: make(map[string]struct{}, len(cfg.Channels)),
		patterns: append([]string(nil), cfg.Patterns...),
		byPg:     make(map[string]string, len(cfg.Channels)),
		done:     make(chan struct{}),
	}
	listen := make([]string, 0, len(cfg.Channels)+1)
	for _, c := range cfg.Channels {
		if _, dup := s.channels[c]; dup {
			continue
		}
		s.channels[c] = struct{}{}
		pg := pgChannel(c)
		s.byPg[pg] = c
		listen = append(listen, pg)
	}
	if len(s.patterns) > 0 {
		listen = append(listen, patternChannel)
	}
	for _, pg := range listen {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{pg}.Sanitize()); err != nil {
			conn.Close(context.Background())
			return nil, fmt.Errorf("failed to LISTEN on %s: %w", pg, err)
		}
	}
	if d.debug {
		log.Printf("[DEBUG] Subscriber listening on %d channels, %d patterns", len(s.channels), len(s.patterns))
	}

	s.ctx, s.cancel = context.WithCancel(d.bg)
	d.subMu.Lock()
	d.subs[s] = struct{}{}
	d.subMu.Unlock()
	go s.listenLoop()
	return s, nil
}

// subscriber owns one LISTEN connection. A background loop moves
// notifications into a queue that TryNext drains without blocking.
type subscriber struct {
	d        *Driver
	conn     *pgx.Conn
	channels map[string]struct{}
	patterns []string
	byPg     map[string]string // pg channel -> channel

	mu     sync.Mutex
	queue  []driver.Message
	err    error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// TryNext pops the oldest queued message. A lost connection surfaces as
// an error once the queue is drained.
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
		return nil, s.err
	}
	msg := s.queue[0]
	s.queue[0] = driver.Message{}
	s.queue = s.queue[1:]
	return &msg, nil
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.d.subMu.Lock()
	delete(s.d.subs, s)
	s.d.subMu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// listenLoop continuously waits for PostgreSQL notifications
func (s *subscriber) listenLoop() {
	defer close(s.done)
	defer s.conn.Close(context.Background())

	// Exponential backoff for idle periods
	// Start at 50ms, double on each timeout up to 2s max
	const (
		minTimeout = 50 * time.Millisecond
		maxTimeout = 2 * time.Second
	)
	timeout := minTimeout

	for {
		if s.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		n, err := s.conn.WaitForNotification(ctx)
		cancel()

		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if s.conn.IsClosed() {
				log.Printf("postgres: subscriber connection lost: %v", err)
				s.fail(fmt.Errorf("postgres: subscriber connection lost: %w", err))
				return
			}
			timeout = min(timeout*2, maxTimeout)
			continue
		}
		timeout = minTimeout

		if s.d.debug {
			log.Printf("[DEBUG] Received notification on channel %s", n.Channel)
		}
		s.dispatch(n.Channel, n.Payload)
	}
}

// dispatch turns one notification into queued messages.
func (s *subscriber) dispatch(pgChan, payload string) {
	if pgChan == patternChannel {
		channel, message, ok := unwrapPayload(payload)
		if !ok {
			return
		}
		for _, p := range s.patterns {
			if glob.Match(p, channel) {
				s.enqueue(driver.Message{Channel: channel, Pattern: p, Payload: message})
			}
		}
		return
	}

	channel, ok := s.byPg[pgChan]
	if !ok {
		return
	}
	message := payload
	if c, m, wrapped := unwrapPayload(payload); wrapped {
		// hashed names can collide; the wrapped name is authoritative
		if c != channel {
			return
		}
		message = m
	}
	s.enqueue(driver.Message{Channel: channel, Payload: message})
}

func (s *subscriber) enqueue(msg driver.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue = append(s.queue, msg)
	}
}

func (s *subscriber) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
