package postgres

import (
	"context"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Set Commands ==============

func (d *Driver) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	var added int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeSet); err != nil {
			return err
		}
		tag, err := q.Exec(ctx,
			`INSERT INTO kv_sets (key, member) SELECT $1, m FROM unnest($2::bytea[]) AS t(m)
			 ON CONFLICT (key, member) DO NOTHING`,
			key, bytesOf(members),
		)
		if err != nil {
			return err
		}
		added = tag.RowsAffected()
		return d.ops.ensureMeta(ctx, q, key, driver.TypeSet)
	})
	return added, err
}

func (d *Driver) SRem(ctx context.Context, key string, members []string) (int64, error) {
	var removed int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeSet)
		if err != nil || !exists {
			return err
		}
		tag, err := q.Exec(ctx, "DELETE FROM kv_sets WHERE key = $1 AND member = ANY($2)", key, bytesOf(members))
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeSet)
	})
	return removed, err
}

// SMembers returns members in byte order.
func (d *Driver) SMembers(ctx context.Context, key string) ([]string, error) {
	members := []string{}
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeSet)
		if err != nil || !exists {
			return err
		}
		members, err = collectStrings(q.Query(ctx, "SELECT member FROM kv_sets WHERE key = $1 ORDER BY member", key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (d *Driver) SIsMember(ctx context.Context, key, member string) (bool, error) {
	found, err := d.SMIsMember(ctx, key, []string{member})
	if err != nil {
		return false, err
	}
	return found[0], nil
}

func (d *Driver) SMIsMember(ctx context.Context, key string, members []string) ([]bool, error) {
	found := make([]bool, len(members))
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeSet)
		if err != nil || !exists {
			return err
		}
		present, err := collectStrings(q.Query(ctx, "SELECT member FROM kv_sets WHERE key = $1 AND member = ANY($2)", key, bytesOf(members)))
		if err != nil {
			return err
		}
		set := make(map[string]bool, len(present))
		for _, m := range present {
			set[m] = true
		}
		for i, m := range members {
			found[i] = set[m]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (d *Driver) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeSet)
		if err != nil || !exists {
			return err
		}
		n, err = d.ops.count(ctx, q, key, driver.TypeSet)
		return err
	})
	return n, err
}
