package postgres

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== String Commands ==============

func (o queryOps) getString(ctx context.Context, q Querier, key string) (string, bool, error) {
	var value []byte
	err := q.QueryRow(ctx, "SELECT value FROM kv_strings WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

// putString stores a string value and keeps the key's TTL.
func (o queryOps) putString(ctx context.Context, q Querier, key, value string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO kv_strings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = $2`,
		key, []byte(value),
	)
	if err != nil {
		return err
	}
	return o.ensureMeta(ctx, q, key, driver.TypeString)
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeString)
		if err != nil || !exists {
			return err
		}
		value, found, err = d.ops.getString(ctx, q, key)
		return err
	})
	return value, found, err
}

func (d *Driver) Set(ctx context.Context, key, value string, opts driver.SetOptions) (driver.SetResult, error) {
	deadline, keep, err := opts.Deadline(time.Now())
	if err != nil {
		return driver.SetResult{}, err
	}

	var res driver.SetResult
	err = d.withTx(ctx, []string{key}, func(q Querier) error {
		t, err := d.ops.keyTypeForWrite(ctx, q, key)
		if err != nil {
			return err
		}
		exists := t != driver.TypeNone
		if opts.Get && exists {
			if t != driver.TypeString {
				return driver.ErrWrongType
			}
			if res.Old, res.HadOld, err = d.ops.getString(ctx, q, key); err != nil {
				return err
			}
		}
		switch opts.Condition {
		case driver.CondNX:
			if exists {
				return nil
			}
		case driver.CondXX:
			if !exists {
				return nil
			}
		}

		var expiresAt *time.Time
		switch {
		case keep:
			if expiresAt, err = d.ops.expiresAt(ctx, q, key); err != nil {
				return err
			}
		case !deadline.IsZero():
			expiresAt = &deadline
		}
		if err := d.ops.deleteKey(ctx, q, key); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, "INSERT INTO kv_strings (key, value) VALUES ($1, $2)", key, []byte(value)); err != nil {
			return err
		}
		res.Written = true
		return d.ops.setMeta(ctx, q, key, driver.TypeString, expiresAt)
	})
	if err != nil {
		return driver.SetResult{}, err
	}
	return res, nil
}

// keyTypeForWrite purges an expired key and returns the live type.
func (o queryOps) keyTypeForWrite(ctx context.Context, q Querier, key string) (driver.KeyType, error) {
	if _, err := o.claim(ctx, q, key, driver.TypeNone); err != nil {
		return driver.TypeNone, err
	}
	return o.keyType(ctx, q, key)
}

func (d *Driver) MGet(ctx context.Context, keys []string) ([]driver.Optional, error) {
	results := make([]driver.Optional, len(keys))
	err := d.read(ctx, func(q Querier) error {
		rows, err := q.Query(ctx,
			`SELECT s.key, s.value FROM kv_strings s JOIN kv_meta m ON m.key = s.key
			 WHERE s.key = ANY($1) AND m.key_type = 'string'
			 AND (m.expires_at IS NULL OR m.expires_at > NOW())`,
			keys,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		values := make(map[string]string)
		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				return err
			}
			values[key] = string(value)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i, key := range keys {
			if v, ok := values[key]; ok {
				results[i] = driver.Optional{Value: v, Valid: true}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Driver) MSet(ctx context.Context, pairs []driver.KeyValue) error {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return d.withTx(ctx, keys, func(q Querier) error {
		for _, p := range pairs {
			if err := d.ops.deleteKey(ctx, q, p.Key); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, "INSERT INTO kv_strings (key, value) VALUES ($1, $2)", p.Key, []byte(p.Value)); err != nil {
				return err
			}
			if err := d.ops.setMeta(ctx, q, p.Key, driver.TypeString, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Driver) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeString)
		if err != nil {
			return err
		}
		var current int64
		if exists {
			value, _, err := d.ops.getString(ctx, q, key)
			if err != nil {
				return err
			}
			if current, err = strconv.ParseInt(value, 10, 64); err != nil {
				return driver.ErrNotInteger
			}
		}
		if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
			return driver.ErrOverflow
		}
		result = current + delta
		return d.ops.putString(ctx, q, key, strconv.FormatInt(result, 10))
	})
	return result, err
}

func (d *Driver) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	var result float64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeString)
		if err != nil {
			return err
		}
		var current float64
		if exists {
			value, _, err := d.ops.getString(ctx, q, key)
			if err != nil {
				return err
			}
			var ok bool
			if current, ok = driver.ParseFloat(value); !ok {
				return driver.ErrNotFloat
			}
		}
		if result, err = driver.AddFloat(current, delta); err != nil {
			return err
		}
		return d.ops.putString(ctx, q, key, driver.FormatFloat(result))
	})
	return result, err
}

func (d *Driver) Append(ctx context.Context, key, value string) (int64, error) {
	var length int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeString); err != nil {
			return err
		}
		err := q.QueryRow(ctx,
			`INSERT INTO kv_strings (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = kv_strings.value || $2
			 RETURNING octet_length(value)`,
			key, []byte(value),
		).Scan(&length)
		if err != nil {
			return err
		}
		return d.ops.ensureMeta(ctx, q, key, driver.TypeString)
	})
	return length, err
}

func (d *Driver) StrLen(ctx context.Context, key string) (int64, error) {
	var length int64
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeString)
		if err != nil || !exists {
			return err
		}
		err = q.QueryRow(ctx, "SELECT octet_length(value) FROM kv_strings WHERE key = $1", key).Scan(&length)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	return length, err
}

func (d *Driver) GetDel(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeString)
		if err != nil || !exists {
			return err
		}
		if value, found, err = d.ops.getString(ctx, q, key); err != nil {
			return err
		}
		return d.ops.deleteKey(ctx, q, key)
	})
	return value, found, err
}
