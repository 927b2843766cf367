// Package postgres implements driver.Driver on PostgreSQL.
//
// Every live key has a row in kv_meta holding its type and expiry; values
// live in one table per type. Writes run in a transaction that holds an
// advisory lock per touched key, so read-modify-write commands are atomic
// across processes sharing the database. Expired keys are invisible to
// reads and swept every second.
//
// Pub/sub rides on LISTEN/NOTIFY: each subscriber owns a dedicated
// connection, and blocking pops wait for push notifications instead of
// polling the tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnorrsken/kvshim/driver"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	Database      string
	SSLMode       string
	SQLTraceLevel int // 0=off, 1=important, 2=most queries, 3=everything
	Debug         bool
}

// ConnString renders the keyword/value connection string used by the pool
// and by every listener connection.
func (c Config) ConnString() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%d dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Driver is a driver.Driver backed by a pgx pool.
type Driver struct {
	pool          *pgxpool.Pool
	connStr       string
	ops           queryOps
	sqlTraceLevel int
	debug         bool

	lists *notifier

	subMu sync.RWMutex
	subs  map[*subscriber]struct{}

	// bg is cancelled by Close and stops every background goroutine
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ driver.Driver = (*Driver)(nil)

// New connects, creates the schema when missing and starts the expiry
// sweeper and the list push listener.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	connStr := cfg.ConnString()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	bg, cancel := context.WithCancel(context.Background())
	d := &Driver{
		pool:          pool,
		connStr:       connStr,
		sqlTraceLevel: cfg.SQLTraceLevel,
		debug:         cfg.Debug,
		subs:          make(map[*subscriber]struct{}),
		bg:            bg,
		cancel:        cancel,
	}
	if err := d.initSchema(ctx); err != nil {
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.lists = newNotifier(connStr, cfg.Debug)
	if err := d.lists.start(ctx, bg); err != nil {
		cancel()
		pool.Close()
		return nil, err
	}

	d.wg.Add(1)
	go d.cleanupExpiredKeys()

	return d, nil
}

// Pool returns the underlying connection pool
func (d *Driver) Pool() *pgxpool.Pool {
	return d.pool
}

// Close stops the background goroutines, closes every subscriber and the
// pool. Blocked pops return driver.ErrClosed.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.cancel()
	d.wg.Wait()
	d.lists.stop()

	d.subMu.Lock()
	subs := d.subs
	d.subs = make(map[*subscriber]struct{})
	d.subMu.Unlock()
	for s := range subs {
		s.Close()
	}

	d.pool.Close()
	return nil
}

func (d *Driver) initSchema(ctx context.Context) error {
	schema := `
		-- Key metadata: type and TTL. A key exists iff it has a live row here.
		CREATE TABLE IF NOT EXISTS kv_meta (
			key TEXT PRIMARY KEY,
			key_type TEXT NOT NULL,
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_kv_meta_expires ON kv_meta(expires_at) WHERE expires_at IS NOT NULL;

		-- String values (BYTEA for binary-safe storage)
		CREATE TABLE IF NOT EXISTS kv_strings (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);

		CREATE TABLE IF NOT EXISTS kv_hashes (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (key, field)
		);

		-- List elements ordered by idx; pushes extend the index range at either end
		CREATE TABLE IF NOT EXISTS kv_lists (
			key TEXT NOT NULL,
			idx BIGINT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (key, idx)
		);

		CREATE TABLE IF NOT EXISTS kv_sets (
			key TEXT NOT NULL,
			member BYTEA NOT NULL,
			PRIMARY KEY (key, member)
		);

		CREATE TABLE IF NOT EXISTS kv_zsets (
			key TEXT NOT NULL,
			member BYTEA NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (key, member)
		);
		CREATE INDEX IF NOT EXISTS idx_kv_zsets_score ON kv_zsets(key, score, member);
	`
	_, err := d.pool.Exec(ctx, schema)
	return err
}

func (d *Driver) cleanupExpiredKeys() {
	defer d.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.bg.Done():
			return
		case <-ticker.C:
			if err := d.deleteExpiredKeys(d.bg); err != nil && d.bg.Err() == nil {
				log.Printf("postgres: expiry sweep failed: %v", err)
			}
		}
	}
}

// deleteExpiredKeys removes expired keys from every value table, then
// their metadata, in one transaction.
func (d *Driver) deleteExpiredKeys(ctx context.Context) error {
	return d.withTx(ctx, nil, func(q Querier) error {
		var expired []string
		rows, err := q.Query(ctx, "SELECT key FROM kv_meta WHERE expires_at IS NOT NULL AND expires_at <= NOW() FOR UPDATE SKIP LOCKED")
		if err != nil {
			return err
		}
		expired, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil || len(expired) == 0 {
			return err
		}
		for _, table := range valueTables {
			if _, err := q.Exec(ctx, "DELETE FROM "+table+" WHERE key = ANY($1)", expired); err != nil {
				return err
			}
		}
		_, err = q.Exec(ctx, "DELETE FROM kv_meta WHERE key = ANY($1)", expired)
		if d.debug {
			log.Printf("[DEBUG] Swept %d expired keys", len(expired))
		}
		return err
	})
}

// withTx runs fn in a transaction holding advisory locks on keys.
func (d *Driver) withTx(ctx context.Context, keys []string, fn func(q Querier) error) error {
	if d.closed.Load() {
		return driver.ErrClosed
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return d.mapErr(err)
	}
	defer tx.Rollback(ctx)

	q := d.txQuerier(tx)
	if err := lockKeys(ctx, q, keys); err != nil {
		return d.mapErr(err)
	}
	if err := fn(q); err != nil {
		return d.mapErr(err)
	}
	return d.mapErr(tx.Commit(ctx))
}

// read runs fn against the pool without a transaction.
func (d *Driver) read(ctx context.Context, fn func(q Querier) error) error {
	if d.closed.Load() {
		return driver.ErrClosed
	}
	return d.mapErr(fn(d.querier()))
}

// querier returns a Querier, optionally wrapped with tracing
func (d *Driver) querier() Querier {
	if d.sqlTraceLevel > 0 {
		return newTracingQuerier(d.pool, d.sqlTraceLevel)
	}
	return d.pool
}

// txQuerier returns a Querier for a transaction, optionally wrapped with tracing
func (d *Driver) txQuerier(tx pgx.Tx) Querier {
	if d.sqlTraceLevel > 0 {
		return newTracingQuerier(tx, d.sqlTraceLevel)
	}
	return tx
}

// mapErr reports driver.ErrClosed for failures caused by Close. Reply
// errors and context errors pass through unchanged.
func (d *Driver) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if driver.IsReplyError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d.closed.Load() {
		return driver.ErrClosed
	}
	return err
}

// lockKeys takes transaction-scoped advisory locks in a stable order so
// concurrent multi-key writers cannot deadlock.
func lockKeys(ctx context.Context, q Querier, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	prev := ""
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			return err
		}
	}
	return nil
}

// ============== Server Commands ==============

func (d *Driver) Ping(ctx context.Context) error {
	if d.closed.Load() {
		return driver.ErrClosed
	}
	return d.mapErr(d.pool.Ping(ctx))
}

func (d *Driver) Echo(ctx context.Context, message string) (string, error) {
	var echoed []byte
	err := d.read(ctx, func(q Querier) error {
		return q.QueryRow(ctx, "SELECT $1::bytea", []byte(message)).Scan(&echoed)
	})
	return string(echoed), err
}

func (d *Driver) DBSize(ctx context.Context) (int64, error) {
	var count int64
	err := d.read(ctx, func(q Querier) error {
		return q.QueryRow(ctx, "SELECT COUNT(*) FROM kv_meta WHERE "+liveCond).Scan(&count)
	})
	return count, err
}

func (d *Driver) FlushDB(ctx context.Context) error {
	return d.withTx(ctx, nil, func(q Querier) error {
		_, err := q.Exec(ctx, "TRUNCATE kv_strings, kv_hashes, kv_lists, kv_sets, kv_zsets, kv_meta")
		return err
	})
}
