package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mnorrsken/kvshim/driver"
)

// Querier is the common interface implemented by both pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// liveCond filters kv_meta rows to keys that have not expired.
const liveCond = "(expires_at IS NULL OR expires_at > NOW())"

// valueTables lists every per-type table keyed by key.
var valueTables = []string{"kv_strings", "kv_hashes", "kv_lists", "kv_sets", "kv_zsets"}

// tableOf maps a key type to its value table.
func tableOf(t driver.KeyType) string {
	switch t {
	case driver.TypeString:
		return "kv_strings"
	case driver.TypeHash:
		return "kv_hashes"
	case driver.TypeList:
		return "kv_lists"
	case driver.TypeSet:
		return "kv_sets"
	case driver.TypeZSet:
		return "kv_zsets"
	}
	return ""
}

// queryOps holds the helpers shared by every command. Commands that write
// call them inside withTx after the key lock is held.
type queryOps struct{}

// ============== Helper Methods ==============

// keyType returns the type of a live key, or TypeNone.
func (queryOps) keyType(ctx context.Context, q Querier, key string) (driver.KeyType, error) {
	var keyType string
	err := q.QueryRow(ctx,
		"SELECT key_type FROM kv_meta WHERE key = $1 AND "+liveCond,
		key,
	).Scan(&keyType)

	if errors.Is(err, pgx.ErrNoRows) {
		return driver.TypeNone, nil
	}
	if err != nil {
		return driver.TypeNone, err
	}
	return driver.KeyType(keyType), nil
}

// checkType reports whether key exists, failing when it holds another type.
func (o queryOps) checkType(ctx context.Context, q Querier, key string, want driver.KeyType) (bool, error) {
	t, err := o.keyType(ctx, q, key)
	if err != nil {
		return false, err
	}
	if t == driver.TypeNone {
		return false, nil
	}
	if t != want {
		return true, driver.ErrWrongType
	}
	return true, nil
}

// claim prepares key for a write: an expired key is purged so it cannot
// leak stale values, then the live type is checked against want.
func (o queryOps) claim(ctx context.Context, q Querier, key string, want driver.KeyType) (bool, error) {
	var expired bool
	err := q.QueryRow(ctx,
		"SELECT expires_at IS NOT NULL AND expires_at <= NOW() FROM kv_meta WHERE key = $1",
		key,
	).Scan(&expired)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	if expired {
		if err := o.deleteKey(ctx, q, key); err != nil {
			return false, err
		}
	}
	if want == driver.TypeNone {
		t, err := o.keyType(ctx, q, key)
		return t != driver.TypeNone, err
	}
	return o.checkType(ctx, q, key, want)
}

// ensureMeta records key with type t, keeping an existing TTL.
func (queryOps) ensureMeta(ctx context.Context, q Querier, key string, t driver.KeyType) error {
	_, err := q.Exec(ctx,
		"INSERT INTO kv_meta (key, key_type) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING",
		key, string(t),
	)
	return err
}

// setMeta records key with type t and the given expiry (nil for none).
func (queryOps) setMeta(ctx context.Context, q Querier, key string, t driver.KeyType, expiresAt *time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO kv_meta (key, key_type, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET key_type = $2, expires_at = $3`,
		key, string(t), expiresAt,
	)
	return err
}

// expiresAt returns the deadline of a key, nil when it has none.
func (queryOps) expiresAt(ctx context.Context, q Querier, key string) (*time.Time, error) {
	var exp *time.Time
	err := q.QueryRow(ctx, "SELECT expires_at FROM kv_meta WHERE key = $1", key).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return exp, err
}

func (queryOps) deleteKey(ctx context.Context, q Querier, key string) error {
	for _, table := range valueTables {
		if _, err := q.Exec(ctx, "DELETE FROM "+table+" WHERE key = $1", key); err != nil {
			return err
		}
	}
	_, err := q.Exec(ctx, "DELETE FROM kv_meta WHERE key = $1", key)
	return err
}

// dropIfEmpty deletes the metadata of a collection that lost its last
// element.
func (queryOps) dropIfEmpty(ctx context.Context, q Querier, key string, t driver.KeyType) error {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+tableOf(t)+" WHERE key = $1)",
		key,
	).Scan(&exists)
	if err != nil || exists {
		return err
	}
	_, err = q.Exec(ctx, "DELETE FROM kv_meta WHERE key = $1", key)
	return err
}

// count returns the number of rows a collection holds.
func (queryOps) count(ctx context.Context, q Querier, key string, t driver.KeyType) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+tableOf(t)+" WHERE key = $1", key).Scan(&n)
	return n, err
}

// bytesOf converts members for BYTEA array parameters.
func bytesOf(values []string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

// collectStrings scans a single BYTEA column.
func collectStrings(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var b []byte
		err := row.Scan(&b)
		return string(b), err
	})
	if out == nil && err == nil {
		out = []string{}
	}
	return out, err
}
