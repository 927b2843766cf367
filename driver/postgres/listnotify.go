package postgres

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Channel name for list push notifications
const listPushChannel = "kvshim_list_push"

// notifier wakes blocking pops when another client pushes to a list they
// wait on. Pushes notify inside their transaction, so waiters are woken
// only once the new elements are visible.
type notifier struct {
	connStr string
	debug   bool

	conn *pgx.Conn

	mu       sync.Mutex
	watchers map[string]map[*watch]struct{} // key -> waiting pops

	ctx  context.Context
	done chan struct{}
}

// watch is one blocking pop waiting on a set of keys.
type watch struct {
	n    *notifier
	keys []string
	ch   chan struct{}
}

func newNotifier(connStr string, debug bool) *notifier {
	return &notifier{
		connStr:  connStr,
		debug:    debug,
		watchers: make(map[string]map[*watch]struct{}),
		done:     make(chan struct{}),
	}
}

// start opens the dedicated listener connection. The loop runs until bg
// is cancelled.
func (n *notifier) start(ctx, bg context.Context) error {
	conn, err := n.connect(ctx)
	if err != nil {
		return err
	}
	n.conn = conn
	n.ctx = bg
	go n.listenLoop()
	return nil
}

func (n *notifier) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, n.connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create list listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{listPushChannel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to LISTEN: %w", err)
	}
	return conn, nil
}

// stop waits for the loop to exit. The caller cancels bg first.
func (n *notifier) stop() {
	if n.ctx == nil {
		return
	}
	<-n.done
}

// notifyPush queues a wake-up for key; PostgreSQL delivers it on commit.
func (n *notifier) notifyPush(ctx context.Context, q Querier, key string) error {
	_, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", listPushChannel, key)
	return err
}

// watch registers interest in keys. The channel receives at most one
// signal; cancel must be called once the caller stops waiting.
func (n *notifier) watch(keys []string) *watch {
	w := &watch{n: n, keys: keys, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	for _, k := range keys {
		if n.watchers[k] == nil {
			n.watchers[k] = make(map[*watch]struct{})
		}
		n.watchers[k][w] = struct{}{}
	}
	n.mu.Unlock()
	return w
}

func (w *watch) cancel() {
	w.n.mu.Lock()
	defer w.n.mu.Unlock()
	for _, k := range w.keys {
		delete(w.n.watchers[k], w)
		if len(w.n.watchers[k]) == 0 {
			delete(w.n.watchers, k)
		}
	}
}

func (n *notifier) signal(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for w := range n.watchers[key] {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// listenLoop continuously listens for PostgreSQL notifications and
// reconnects with backoff when the connection drops.
func (n *notifier) listenLoop() {
	defer close(n.done)
	defer func() { n.conn.Close(context.Background()) }()

	backoff := 100 * time.Millisecond
	for {
		if n.ctx.Err() != nil {
			return
		}

		// Wait for notification with a timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
		notification, err := n.conn.WaitForNotification(ctx)
		cancel()

		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			if !n.conn.IsClosed() {
				continue
			}
			log.Printf("postgres: list listener connection lost: %v", err)
			if !n.reconnect(&backoff) {
				return
			}
			continue
		}

		if n.debug {
			log.Printf("[DEBUG] List push notification for key: %s", notification.Payload)
		}
		n.signal(notification.Payload)
	}
}

// reconnect replaces the listener connection, waking every watcher since
// pushes may have been missed. It returns false once the notifier stops.
func (n *notifier) reconnect(backoff *time.Duration) bool {
	for {
		select {
		case <-n.ctx.Done():
			return false
		case <-time.After(*backoff):
		}
		conn, err := n.connect(n.ctx)
		if err == nil {
			n.conn = conn
			*backoff = 100 * time.Millisecond
			n.mu.Lock()
			for key := range n.watchers {
				for w := range n.watchers[key] {
					select {
					case w.ch <- struct{}{}:
					default:
					}
				}
			}
			n.mu.Unlock()
			return true
		}
		log.Printf("postgres: list listener reconnect failed: %v", err)
		*backoff = min(*backoff*2, 5*time.Second)
	}
}
