package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
)

// maxBlockingWait bounds one wait of a blocking pop, so a notification
// lost while the listener reconnects delays a pop instead of stalling it.
const maxBlockingWait = time.Second

// ============== List Commands ==============

func (o queryOps) push(ctx context.Context, q Querier, key string, values []string, right bool) (int64, error) {
	var next int64
	var err error
	if right {
		err = q.QueryRow(ctx, "SELECT COALESCE(MAX(idx), -1) + 1 FROM kv_lists WHERE key = $1", key).Scan(&next)
	} else {
		err = q.QueryRow(ctx, "SELECT COALESCE(MIN(idx), 0) - 1 FROM kv_lists WHERE key = $1", key).Scan(&next)
	}
	if err != nil {
		return 0, err
	}

	step := int64(1)
	if !right {
		step = -1
	}
	idxs := make([]int64, len(values))
	for i := range values {
		idxs[i] = next + int64(i)*step
	}
	_, err = q.Exec(ctx,
		"INSERT INTO kv_lists (key, idx, value) SELECT $1, i, v FROM unnest($2::bigint[], $3::bytea[]) AS t(i, v)",
		key, idxs, bytesOf(values),
	)
	if err != nil {
		return 0, err
	}
	if err := o.ensureMeta(ctx, q, key, driver.TypeList); err != nil {
		return 0, err
	}
	return o.count(ctx, q, key, driver.TypeList)
}

// pop removes up to n elements from one end, in pop order.
func (o queryOps) pop(ctx context.Context, q Querier, key string, n int64, left bool) ([]string, error) {
	order := "DESC"
	if left {
		order = "ASC"
	}
	rows, err := q.Query(ctx,
		"DELETE FROM kv_lists WHERE key = $1 AND idx IN (SELECT idx FROM kv_lists WHERE key = $1 ORDER BY idx "+order+" LIMIT $2) RETURNING idx, value",
		key, n,
	)
	if err != nil {
		return nil, err
	}
	type element struct {
		idx   int64
		value []byte
	}
	popped, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (element, error) {
		var e element
		err := row.Scan(&e.idx, &e.value)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	// RETURNING has no order
	sort.Slice(popped, func(i, j int) bool {
		if left {
			return popped[i].idx < popped[j].idx
		}
		return popped[i].idx > popped[j].idx
	})
	out := make([]string, len(popped))
	for i, e := range popped {
		out[i] = string(e.value)
	}
	return out, o.dropIfEmpty(ctx, q, key, driver.TypeList)
}

// nthIdx returns the storage idx of the element at a normalized position.
func (o queryOps) nthIdx(ctx context.Context, q Querier, key string, index int64) (int64, bool, error) {
	length, err := o.count(ctx, q, key, driver.TypeList)
	if err != nil {
		return 0, false, err
	}
	if index < 0 {
		index += length
	}
	if index < 0 || index >= length {
		return 0, false, nil
	}
	var idx int64
	err = q.QueryRow(ctx, "SELECT idx FROM kv_lists WHERE key = $1 ORDER BY idx LIMIT 1 OFFSET $2", key, index).Scan(&idx)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return idx, err == nil, err
}

func (d *Driver) LPush(ctx context.Context, key string, values []string) (int64, error) {
	return d.pushCmd(ctx, key, values, false)
}

func (d *Driver) RPush(ctx context.Context, key string, values []string) (int64, error) {
	return d.pushCmd(ctx, key, values, true)
}

func (d *Driver) pushCmd(ctx context.Context, key string, values []string, right bool) (int64, error) {
	var length int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeList); err != nil {
			return err
		}
		var err error
		if length, err = d.ops.push(ctx, q, key, values, right); err != nil {
			return err
		}
		return d.lists.notifyPush(ctx, q, key)
	})
	return length, err
}

func (d *Driver) LPop(ctx context.Context, key string, count int64) ([]string, error) {
	return d.popCmd(ctx, key, count, true)
}

func (d *Driver) RPop(ctx context.Context, key string, count int64) ([]string, error) {
	return d.popCmd(ctx, key, count, false)
}

func (d *Driver) popCmd(ctx context.Context, key string, count int64, left bool) ([]string, error) {
	var out []string
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		n := count
		if n < 0 {
			n = 1
		}
		out, err = d.ops.pop(ctx, q, key, n, left)
		return err
	})
	return out, err
}

func (d *Driver) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out := []string{}
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		length, err := d.ops.count(ctx, q, key, driver.TypeList)
		if err != nil {
			return err
		}
		s, e, ok := driver.NormalizeRange(start, stop, length)
		if !ok {
			return nil
		}
		out, err = collectStrings(q.Query(ctx,
			"SELECT value FROM kv_lists WHERE key = $1 ORDER BY idx LIMIT $2 OFFSET $3",
			key, e-s+1, s,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) LLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		n, err = d.ops.count(ctx, q, key, driver.TypeList)
		return err
	})
	return n, err
}

func (d *Driver) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	var value []byte
	var found bool
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		idx, ok, err := d.ops.nthIdx(ctx, q, key, index)
		if err != nil || !ok {
			return err
		}
		err = q.QueryRow(ctx, "SELECT value FROM kv_lists WHERE key = $1 AND idx = $2", key, idx).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	return string(value), found, err
}

func (d *Driver) LSet(ctx context.Context, key string, index int64, value string) error {
	return d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeList)
		if err != nil {
			return err
		}
		if !exists {
			return driver.ErrNoSuchKey
		}
		idx, ok, err := d.ops.nthIdx(ctx, q, key, index)
		if err != nil {
			return err
		}
		if !ok {
			return driver.ErrIndexOutOfRange
		}
		_, err = q.Exec(ctx, "UPDATE kv_lists SET value = $3 WHERE key = $1 AND idx = $2", key, idx, []byte(value))
		return err
	})
}

// LRem removes matches from the head when count > 0, from the tail when
// count < 0 and everywhere when count is 0.
func (d *Driver) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	var removed int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		order, limit := "ASC", count
		if count < 0 {
			order, limit = "DESC", -count
		}
		sql := "DELETE FROM kv_lists WHERE key = $1 AND idx IN (SELECT idx FROM kv_lists WHERE key = $1 AND value = $2 ORDER BY idx " + order
		args := []any{key, []byte(value)}
		if count != 0 {
			sql += " LIMIT $3"
			args = append(args, limit)
		}
		tag, err := q.Exec(ctx, sql+")", args...)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeList)
	})
	return removed, err
}

func (d *Driver) LTrim(ctx context.Context, key string, start, stop int64) error {
	return d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeList)
		if err != nil || !exists {
			return err
		}
		length, err := d.ops.count(ctx, q, key, driver.TypeList)
		if err != nil {
			return err
		}
		s, e, ok := driver.NormalizeRange(start, stop, length)
		if !ok {
			return d.ops.deleteKey(ctx, q, key)
		}
		_, err = q.Exec(ctx,
			"DELETE FROM kv_lists WHERE key = $1 AND idx NOT IN (SELECT idx FROM kv_lists WHERE key = $1 ORDER BY idx LIMIT $2 OFFSET $3)",
			key, e-s+1, s,
		)
		return err
	})
}

func (d *Driver) BLPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return d.blockingPop(ctx, keys, timeout, true)
}

func (d *Driver) BRPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return d.blockingPop(ctx, keys, timeout, false)
}

// blockingPop registers for push notifications before each attempt, so a
// push that lands between the attempt and the wait still wakes it. A zero
// timeout waits forever.
func (d *Driver) blockingPop(ctx context.Context, keys []string, timeout time.Duration, left bool) (*driver.KeyValue, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		w := d.lists.watch(keys)
		kv, err := d.popFirst(ctx, keys, left)
		if err != nil || kv != nil {
			w.cancel()
			return kv, err
		}

		wait := maxBlockingWait
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				w.cancel()
				return nil, nil
			}
			wait = min(wait, remaining)
		}
		timer := time.NewTimer(wait)
		select {
		case <-w.ch:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			w.cancel()
			return nil, ctx.Err()
		case <-d.bg.Done():
			timer.Stop()
			w.cancel()
			return nil, driver.ErrClosed
		}
		timer.Stop()
		w.cancel()
	}
}

// popFirst pops one element from the first non-empty list among keys.
func (d *Driver) popFirst(ctx context.Context, keys []string, left bool) (*driver.KeyValue, error) {
	var kv *driver.KeyValue
	err := d.withTx(ctx, keys, func(q Querier) error {
		for _, key := range keys {
			exists, err := d.ops.claim(ctx, q, key, driver.TypeList)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			values, err := d.ops.pop(ctx, q, key, 1, left)
			if err != nil {
				return err
			}
			if len(values) > 0 {
				kv = &driver.KeyValue{Key: key, Value: values[0]}
				return nil
			}
		}
		return nil
	})
	return kv, err
}
