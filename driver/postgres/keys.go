package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/glob"
)

// ============== Key Commands ==============

func (d *Driver) Del(ctx context.Context, keys []string) (int64, error) {
	var deleted int64
	err := d.withTx(ctx, keys, func(q Querier) error {
		seen := make(map[string]bool, len(keys))
		for _, key := range keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			exists, err := d.ops.claim(ctx, q, key, driver.TypeNone)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := d.ops.deleteKey(ctx, q, key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Exists counts every argument, so a key named twice counts twice.
func (d *Driver) Exists(ctx context.Context, keys []string) (int64, error) {
	var count int64
	err := d.read(ctx, func(q Querier) error {
		rows, err := q.Query(ctx, "SELECT key FROM kv_meta WHERE key = ANY($1) AND "+liveCond, keys)
		if err != nil {
			return err
		}
		live, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		set := make(map[string]bool, len(live))
		for _, k := range live {
			set[k] = true
		}
		for _, k := range keys {
			if set[k] {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (d *Driver) Expire(ctx context.Context, key string, ttl time.Duration, cond driver.Condition) (bool, error) {
	var applied bool
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeNone)
		if err != nil || !exists {
			return err
		}
		current, err := d.ops.expiresAt(ctx, q, key)
		if err != nil {
			return err
		}
		deadline := time.Now().Add(ttl)
		if !expireAllowed(cond, current, deadline) {
			return nil
		}
		applied = true
		if ttl <= 0 {
			return d.ops.deleteKey(ctx, q, key)
		}
		_, err = q.Exec(ctx, "UPDATE kv_meta SET expires_at = $2 WHERE key = $1", key, deadline)
		return err
	})
	return applied, err
}

// expireAllowed applies the NX/XX/GT/LT gates of EXPIRE. A key without a
// TTL counts as expiring never.
func expireAllowed(cond driver.Condition, current *time.Time, deadline time.Time) bool {
	switch cond {
	case driver.CondNX:
		return current == nil
	case driver.CondXX:
		return current != nil
	case driver.CondGT:
		return current != nil && deadline.After(*current)
	case driver.CondLT:
		return current == nil || deadline.Before(*current)
	}
	return true
}

func (d *Driver) TTL(ctx context.Context, key string, unit time.Duration) (int64, error) {
	var ttl int64
	err := d.read(ctx, func(q Querier) error {
		var expiresAt *time.Time
		err := q.QueryRow(ctx,
			"SELECT expires_at FROM kv_meta WHERE key = $1 AND "+liveCond,
			key,
		).Scan(&expiresAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			ttl = -2
			return nil
		case err != nil:
			return err
		case expiresAt == nil:
			ttl = -1
			return nil
		}
		remaining := time.Until(*expiresAt)
		if remaining < 0 {
			remaining = 0
		}
		ttl = int64((remaining + unit/2) / unit)
		return nil
	})
	return ttl, err
}

func (d *Driver) Persist(ctx context.Context, key string) (bool, error) {
	var cleared bool
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		tag, err := q.Exec(ctx,
			"UPDATE kv_meta SET expires_at = NULL WHERE key = $1 AND expires_at IS NOT NULL AND expires_at > NOW()",
			key,
		)
		cleared = err == nil && tag.RowsAffected() > 0
		return err
	})
	return cleared, err
}

func (d *Driver) Type(ctx context.Context, key string) (driver.KeyType, error) {
	var t driver.KeyType
	err := d.read(ctx, func(q Querier) error {
		var err error
		t, err = d.ops.keyType(ctx, q, key)
		return err
	})
	if err != nil {
		return driver.TypeNone, err
	}
	return t, nil
}

func (d *Driver) Rename(ctx context.Context, oldKey, newKey string) error {
	return d.withTx(ctx, []string{oldKey, newKey}, func(q Querier) error {
		t, err := d.ops.keyTypeForWrite(ctx, q, oldKey)
		if err != nil {
			return err
		}
		if t == driver.TypeNone {
			return driver.ErrNoSuchKey
		}
		if oldKey == newKey {
			return nil
		}
		if err := d.ops.deleteKey(ctx, q, newKey); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, "UPDATE "+tableOf(t)+" SET key = $2 WHERE key = $1", oldKey, newKey); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, "UPDATE kv_meta SET key = $2 WHERE key = $1", oldKey, newKey); err != nil {
			return err
		}
		if t == driver.TypeList {
			return d.lists.notifyPush(ctx, q, newKey)
		}
		return nil
	})
}

func (d *Driver) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := d.read(ctx, func(q Querier) error {
		rows, err := q.Query(ctx,
			`SELECT key FROM kv_meta WHERE key LIKE $1 ESCAPE '\' AND `+liveCond+` ORDER BY key COLLATE "C"`,
			likePrefix(pattern),
		)
		if err != nil {
			return err
		}
		candidates, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		keys = []string{}
		for _, k := range candidates {
			if glob.Match(pattern, k) {
				keys = append(keys, k)
			}
		}
		return nil
	})
	return keys, err
}

// likePrefix narrows a glob pattern to a LIKE pattern over its literal
// prefix. The glob itself is applied afterwards.
func likePrefix(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*', '?', '[':
			b.WriteByte('%')
			return b.String()
		case '\\':
			if i+1 < len(pattern) {
				i++
				c = pattern[i]
			}
		}
		if c == '%' || c == '_' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Scan walks kv_meta in key order. The cursor is the offset of the next
// key; MATCH and TYPE filter each page after it is cut.
func (d *Driver) Scan(ctx context.Context, cursor uint64, opts driver.ScanOptions) (driver.ScanPage, error) {
	count := opts.Count
	if count <= 0 {
		count = 10
	}
	page := driver.ScanPage{Keys: []string{}}
	err := d.read(ctx, func(q Querier) error {
		rows, err := q.Query(ctx,
			"SELECT key, key_type FROM kv_meta WHERE "+liveCond+" ORDER BY key COLLATE \"C\" LIMIT $1 OFFSET $2",
			count+1, int64(cursor),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		var n int64
		for rows.Next() {
			var key, keyType string
			if err := rows.Scan(&key, &keyType); err != nil {
				return err
			}
			if n++; n > count {
				page.Cursor = cursor + uint64(count)
				break
			}
			if opts.Match != "" && !glob.Match(opts.Match, key) {
				continue
			}
			if opts.Type != "" && keyType != opts.Type {
				continue
			}
			page.Keys = append(page.Keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return driver.ScanPage{}, err
	}
	return page, nil
}
