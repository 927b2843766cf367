package postgres

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Sorted Set Commands ==============

// rangeFilter accumulates WHERE conditions and bind arguments for a
// kv_zsets query on one key.
type rangeFilter struct {
	where string
	args  []any
	// empty is set when a boundary can never match
	empty bool
}

func newRangeFilter(key string) *rangeFilter {
	return &rangeFilter{where: "key = $1", args: []any{key}}
}

func (f *rangeFilter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.where += " AND " + cond + " $" + strconv.Itoa(len(f.args))
}

// scores parses a score range; the errors match the server's even when
// the key does not exist.
func (f *rangeFilter) scores(min, max string) error {
	lo, err := driver.ParseScoreBoundary(min)
	if err != nil {
		return err
	}
	hi, err := driver.ParseScoreBoundary(max)
	if err != nil {
		return err
	}
	switch {
	case lo.Exclusive:
		f.add("score >", lo.Value)
	case !math.IsInf(lo.Value, -1):
		f.add("score >=", lo.Value)
	}
	switch {
	case hi.Exclusive:
		f.add("score <", hi.Value)
	case !math.IsInf(hi.Value, 1):
		f.add("score <=", hi.Value)
	}
	return nil
}

func (f *rangeFilter) lex(min, max string) error {
	lo, err := driver.ParseLexBoundary(min)
	if err != nil {
		return err
	}
	hi, err := driver.ParseLexBoundary(max)
	if err != nil {
		return err
	}
	switch {
	case lo.PosInf:
		f.empty = true
	case lo.NegInf:
	case lo.Exclusive:
		f.add("member >", []byte(lo.Value))
	default:
		f.add("member >=", []byte(lo.Value))
	}
	switch {
	case hi.NegInf:
		f.empty = true
	case hi.PosInf:
	case hi.Exclusive:
		f.add("member <", []byte(hi.Value))
	default:
		f.add("member <=", []byte(hi.Value))
	}
	return nil
}

// window appends ORDER BY, LIMIT and OFFSET. A negative limit means none.
func (f *rangeFilter) window(reverse bool, offset, limit int64) string {
	sql := " ORDER BY score ASC, member ASC"
	if reverse {
		sql = " ORDER BY score DESC, member DESC"
	}
	if limit >= 0 {
		f.args = append(f.args, limit)
		sql += " LIMIT $" + strconv.Itoa(len(f.args))
	}
	if offset > 0 {
		f.args = append(f.args, offset)
		sql += " OFFSET $" + strconv.Itoa(len(f.args))
	}
	return sql
}

func collectMembers(rows pgx.Rows, err error) ([]driver.ZMember, error) {
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (driver.ZMember, error) {
		var member []byte
		var zm driver.ZMember
		err := row.Scan(&member, &zm.Score)
		zm.Member = string(member)
		return zm, err
	})
	if out == nil && err == nil {
		out = []driver.ZMember{}
	}
	return out, err
}

func (o queryOps) zScore(ctx context.Context, q Querier, key, member string) (float64, bool, error) {
	var score float64
	err := q.QueryRow(ctx, "SELECT score FROM kv_zsets WHERE key = $1 AND member = $2", key, []byte(member)).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (o queryOps) zPut(ctx context.Context, q Querier, key, member string, score float64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO kv_zsets (key, member, score) VALUES ($1, $2, $3)
		 ON CONFLICT (key, member) DO UPDATE SET score = $3`,
		key, []byte(member), score,
	)
	if err != nil {
		return err
	}
	return o.ensureMeta(ctx, q, key, driver.TypeZSet)
}

// readZSet runs fn when key is a live sorted set.
func (d *Driver) readZSet(ctx context.Context, key string, fn func(q Querier) error) error {
	return d.read(ctx, func(q Querier) error {
		exists, err := d.ops.checkType(ctx, q, key, driver.TypeZSet)
		if err != nil || !exists {
			return err
		}
		return fn(q)
	})
}

// scoresOf parses ZADD scores before anything is written.
func scoresOf(members []driver.ScoredMember) ([]float64, error) {
	out := make([]float64, len(members))
	for i, sm := range members {
		f, err := sm.Score.Float()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// zaddAllowed applies the NX/XX/GT/LT gates to one member.
func zaddAllowed(args driver.ZAddArgs, exists bool, old, next float64) bool {
	switch {
	case args.NX && exists:
		return false
	case args.XX && !exists:
		return false
	case args.GT && exists && next <= old:
		return false
	case args.LT && exists && next >= old:
		return false
	}
	return true
}

func (d *Driver) ZAdd(ctx context.Context, key string, args driver.ZAddArgs) (int64, error) {
	if err := args.Validate(false); err != nil {
		return 0, err
	}
	vals, err := scoresOf(args.Members)
	if err != nil {
		return 0, err
	}

	var added, changed int64
	err = d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeZSet); err != nil {
			return err
		}
		for i, sm := range args.Members {
			old, exists, err := d.ops.zScore(ctx, q, key, sm.Member)
			if err != nil {
				return err
			}
			if !zaddAllowed(args, exists, old, vals[i]) {
				continue
			}
			if !exists {
				added++
			} else if old != vals[i] {
				changed++
			}
			if err := d.ops.zPut(ctx, q, key, sm.Member, vals[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if args.CH {
		return added + changed, nil
	}
	return added, nil
}

func (d *Driver) ZAddIncr(ctx context.Context, key string, args driver.ZAddArgs) (float64, bool, error) {
	if err := args.Validate(true); err != nil {
		return 0, false, err
	}
	vals, err := scoresOf(args.Members)
	if err != nil {
		return 0, false, err
	}

	var next float64
	var applied bool
	err = d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeZSet); err != nil {
			return err
		}
		member := args.Members[0].Member
		old, exists, err := d.ops.zScore(ctx, q, key, member)
		if err != nil {
			return err
		}
		next = old + vals[0]
		if math.IsNaN(next) {
			return driver.ErrScoreNaN
		}
		if !zaddAllowed(args, exists, old, next) {
			return nil
		}
		applied = true
		return d.ops.zPut(ctx, q, key, member, next)
	})
	if err != nil || !applied {
		return 0, false, err
	}
	return next, true, nil
}

func (d *Driver) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	var next float64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		if _, err := d.ops.claim(ctx, q, key, driver.TypeZSet); err != nil {
			return err
		}
		old, _, err := d.ops.zScore(ctx, q, key, member)
		if err != nil {
			return err
		}
		next = old + delta
		if math.IsNaN(next) {
			return driver.ErrScoreNaN
		}
		return d.ops.zPut(ctx, q, key, member, next)
	})
	return next, err
}

func (d *Driver) ZRange(ctx context.Context, key string, rq driver.RangeQuery) ([]driver.ZMember, error) {
	f := newRangeFilter(key)
	offset, limit := int64(0), int64(-1)
	switch rq.By {
	case driver.ByIndex:
		start, err := strconv.ParseInt(rq.Start, 10, 64)
		if err != nil {
			return nil, driver.ErrNotInteger
		}
		stop, err := strconv.ParseInt(rq.Stop, 10, 64)
		if err != nil {
			return nil, driver.ErrNotInteger
		}
		offset, limit = start, stop
	case driver.ByScore:
		if err := f.scores(rq.Start, rq.Stop); err != nil {
			return nil, err
		}
	case driver.ByLex:
		if err := f.lex(rq.Start, rq.Stop); err != nil {
			return nil, err
		}
	}
	if rq.By != driver.ByIndex && rq.Limit {
		if rq.Offset < 0 {
			return []driver.ZMember{}, nil
		}
		offset, limit = rq.Offset, rq.Count
		if limit < 0 {
			limit = -1
		}
	}

	out := []driver.ZMember{}
	err := d.readZSet(ctx, key, func(q Querier) error {
		if f.empty {
			return nil
		}
		if rq.By == driver.ByIndex {
			length, err := d.ops.count(ctx, q, key, driver.TypeZSet)
			if err != nil {
				return err
			}
			s, e, ok := driver.NormalizeRange(offset, limit, length)
			if !ok {
				return nil
			}
			offset, limit = s, e-s+1
		}
		sql := "SELECT member, score FROM kv_zsets WHERE " + f.where
		sql += f.window(rq.Reverse, offset, limit)
		var err error
		out, err = collectMembers(q.Query(ctx, sql, f.args...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	f := newRangeFilter(key)
	if err := f.scores(min, max); err != nil {
		return 0, err
	}
	var n int64
	err := d.readZSet(ctx, key, func(q Querier) error {
		return q.QueryRow(ctx, "SELECT COUNT(*) FROM kv_zsets WHERE "+f.where, f.args...).Scan(&n)
	})
	return n, err
}

func (d *Driver) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var score float64
	var found bool
	err := d.readZSet(ctx, key, func(q Querier) error {
		var err error
		score, found, err = d.ops.zScore(ctx, q, key, member)
		return err
	})
	return score, found, err
}

// ZRank counts the members ordered before member in the requested
// direction.
func (d *Driver) ZRank(ctx context.Context, key, member string, reverse bool) (int64, bool, error) {
	var rank int64
	var found bool
	err := d.readZSet(ctx, key, func(q Querier) error {
		score, ok, err := d.ops.zScore(ctx, q, key, member)
		if err != nil || !ok {
			return err
		}
		cmp := "<"
		if reverse {
			cmp = ">"
		}
		err = q.QueryRow(ctx,
			"SELECT COUNT(*) FROM kv_zsets WHERE key = $1 AND (score "+cmp+" $2 OR (score = $2 AND member "+cmp+" $3))",
			key, score, []byte(member),
		).Scan(&rank)
		found = err == nil
		return err
	})
	return rank, found, err
}

func (d *Driver) ZRem(ctx context.Context, key string, members []string) (int64, error) {
	var removed int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeZSet)
		if err != nil || !exists {
			return err
		}
		tag, err := q.Exec(ctx, "DELETE FROM kv_zsets WHERE key = $1 AND member = ANY($2)", key, bytesOf(members))
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeZSet)
	})
	return removed, err
}

func (d *Driver) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	f := newRangeFilter(key)
	if err := f.scores(min, max); err != nil {
		return 0, err
	}
	var removed int64
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeZSet)
		if err != nil || !exists {
			return err
		}
		tag, err := q.Exec(ctx, "DELETE FROM kv_zsets WHERE "+f.where, f.args...)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeZSet)
	})
	return removed, err
}

func (d *Driver) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := d.readZSet(ctx, key, func(q Querier) error {
		var err error
		n, err = d.ops.count(ctx, q, key, driver.TypeZSet)
		return err
	})
	return n, err
}

func (d *Driver) ZPopMin(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return d.zpop(ctx, key, count, false)
}

func (d *Driver) ZPopMax(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return d.zpop(ctx, key, count, true)
}

// zpop removes up to count members from one end; count < 0 pops one.
func (d *Driver) zpop(ctx context.Context, key string, count int64, max bool) ([]driver.ZMember, error) {
	if count < 0 {
		count = 1
	}
	out := []driver.ZMember{}
	err := d.withTx(ctx, []string{key}, func(q Querier) error {
		exists, err := d.ops.claim(ctx, q, key, driver.TypeZSet)
		if err != nil || !exists {
			return err
		}
		f := newRangeFilter(key)
		sql := "SELECT member, score FROM kv_zsets WHERE " + f.where + f.window(max, 0, count)
		if out, err = collectMembers(q.Query(ctx, sql, f.args...)); err != nil || len(out) == 0 {
			return err
		}
		popped := make([]string, len(out))
		for i, zm := range out {
			popped[i] = zm.Member
		}
		if _, err := q.Exec(ctx, "DELETE FROM kv_zsets WHERE key = $1 AND member = ANY($2)", key, bytesOf(popped)); err != nil {
			return err
		}
		return d.ops.dropIfEmpty(ctx, q, key, driver.TypeZSet)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
