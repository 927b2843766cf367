package postgres

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Hash Commands ==============

func (o queryOps) hGet(ctx context.Context, q Querier, key, field string) (string, bool, error) {
	var value []byte
	err := q.QueryRow(ctx, "SELECT value FROM kv_hashes WHERE key = $1 AND field = $2", key, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

// hPut upserts one field and reports whether it was new.
func (o queryOps) hPut(ctx context.Context, q Querier, key, field, value string) (bool, error) {
	var inserted bool
	err := q.QueryRow(ctx,
		`INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3)
		 ON CONFLICT (key, field) DO UPDATE SET value = $3
		 RETURNING (xmax = 0)`,
		key, field, []byte(value),
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, o.ensureMeta(ctx, q, key, driver.TypeHash)
}

// readHash runs fn when key is a live hash.
func (d *Driver) readHash(ctx context.Context, key string, fn func(q Querier) error) error {
	return d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeHash)
		if err != nil || !exists {
			return err
		}
		return fn(q)
	})
}

func (d *Driver) HSet(ctx context.Context, key string, fields []driver.FieldValue) (int64, error) {
	var added int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeHash); err != nil {
			return err
		}
		for _, f := range fields {
			inserted, err := d.ops.hPut(ctx, q, key, f.Field, f.Value)
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
		}
		return nil
	})
	return added, err
}

func (d *Driver) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	var set bool
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeHash); err != nil {
			return err
		}
		tag, err := q.Exec(ctx,
			"INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3) ON CONFLICT (key, field) DO NOTHING",
			key, field, []byte(value),
		)
		if err != nil {
			return err
		}
		set = tag.RowsAffected() > 0
		return d.ops.ensureMeta(ctx, q, key, driver.TypeHash)
	})
	return set, err
}

func (d *Driver) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	var found bool
	err := d.readHash(ctx, key, func(q Querier) error {
		var err error
		value, found, err = d.ops.hGet(ctx, q, key, field)
		return err
	})
	return value, found, err
}

func (d *Driver) HMGet(ctx context.Context, key string, fields []string) ([]driver.Optional, error) {
	results := make([]driver.Optional, len(fields))
	err := d.readHash(ctx, key, func(q Querier) error {
		rows, err := q.Query(ctx, "SELECT field, value FROM kv_hashes WHERE key = $1 AND field = ANY($2)", key, fields)
		if err != nil {
			return err
		}
		defer rows.Close()

		values := make(map[string]string)
		for rows.Next() {
			var field string
			var value []byte
			if err := rows.Scan(&field, &value); err != nil {
				return err
			}
			values[field] = string(value)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i, f := range fields {
			if v, ok := values[f]; ok {
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

// HGetAll returns fields in byte order.
func (d *Driver) HGetAll(ctx context.Context, key string) ([]driver.FieldValue, error) {
	out := []driver.FieldValue{}
	err := d.readHash(ctx, key, func(q Querier) error {
		rows, err := q.Query(ctx, `SELECT field, value FROM kv_hashes WHERE key = $1 ORDER BY field COLLATE "C"`, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var fv driver.FieldValue
			var value []byte
			if err := rows.Scan(&fv.Field, &value); err != nil {
				return err
			}
			fv.Value = string(value)
			out = append(out, fv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	var removed int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeHash)
		if err != nil || !exists {
			return err
		}
		tag, err := q.Exec(ctx, "DELETE FROM kv_hashes WHERE key = $1 AND field = ANY($2)", key, fields)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeHash)
	})
	return removed, err
}

func (d *Driver) HExists(ctx context.Context, key, field string) (bool, error) {
	var found bool
	err := d.readHash(ctx, key, func(q Querier) error {
		var err error
		_, found, err = d.ops.hGet(ctx, q, key, field)
		return err
	})
	return found, err
}

func (d *Driver) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var result int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeHash); err != nil {
			return err
		}
		value, found, err := d.ops.hGet(ctx, q, key, field)
		if err != nil {
			return err
		}
		var current int64
		if found {
			if current, err = strconv.ParseInt(value, 10, 64); err != nil {
				return driver.ErrHashNotInteger
			}
		}
		if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
			return driver.ErrOverflow
		}
		result = current + delta
		_, err = d.ops.hPut(ctx, q, key, field, strconv.FormatInt(result, 10))
		return err
	})
	return result, err
}

func (d *Driver) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	var result float64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeHash); err != nil {
			return err
		}
		value, found, err := d.ops.hGet(ctx, q, key, field)
		if err != nil {
			return err
		}
		var current float64
		if found {
			var ok bool
			if current, ok = driver.ParseFloat(value); !ok {
				return driver.ErrHashNotFloat
			}
		}
		if result, err = driver.AddFloat(current, delta); err != nil {
			return err
		}
		_, err = d.ops.hPut(ctx, q, key, field, driver.FormatFloat(result))
		return err
	})
	return result, err
}

func (d *Driver) HKeys(ctx context.Context, key string) ([]string, error) {
	keys := []string{}
	err := d.readHash(ctx, key, func(q Querier) error {
		rows, err := q.Query(ctx, `SELECT field FROM kv_hashes WHERE key = $1 ORDER BY field COLLATE "C"`, key)
		if err != nil {
			return err
		}
		keys, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (d *Driver) HVals(ctx context.Context, key string) ([]string, error) {
	vals := []string{}
	err := d.readHash(ctx, key, func(q Querier) error {
		var err error
		vals, err = collectStrings(q.Query(ctx, `SELECT value FROM kv_hashes WHERE key = $1 ORDER BY field COLLATE "C"`, key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (d *Driver) HLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := d.readHash(ctx, key, func(q Querier) error {
		var err error
		n, err = d.ops.count(ctx, q, key, driver.TypeHash)
		return err
	})
	return n, err
}
