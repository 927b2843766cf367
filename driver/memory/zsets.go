package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Sorted Set Commands ==============

func (m *Store) zset(key string) (map[string]float64, error) {
	if ok, err := m.checkType(key, driver.TypeZSet); !ok || err != nil {
		return nil, err
	}
	return m.zsets[key], nil
}

func (m *Store) zsetForWrite(key string) (map[string]float64, error) {
	z, err := m.zset(key)
	if err != nil {
		return nil, err
	}
	if z == nil {
		z = make(map[string]float64)
		m.zsets[key] = z
		m.keyTypes[key] = driver.TypeZSet
	}
	return z, nil
}

// dropIfEmpty deletes a sorted set that lost its last member.
func (m *Store) dropIfEmpty(key string, z map[string]float64) {
	if len(z) == 0 {
		m.deleteKey(key)
	}
}

// sorted returns members ordered by score, then member.
func sorted(z map[string]float64) []driver.ZMember {
	out := make([]driver.ZMember, 0, len(z))
	for mem, score := range z {
		out = append(out, driver.ZMember{Member: mem, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// scores parses ZADD scores before anything is written.
func scores(members []driver.ScoredMember) ([]float64, error) {
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

func (m *Store) ZAdd(ctx context.Context, key string, args driver.ZAddArgs) (int64, error) {
	if err := args.Validate(false); err != nil {
		return 0, err
	}
	vals, err := scores(args.Members)
	if err != nil {
		return 0, err
	}
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zsetForWrite(key)
	if err != nil {
		return 0, err
	}
	var added, changed int64
	for i, sm := range args.Members {
		old, exists := z[sm.Member]
		if !zaddAllowed(args, exists, old, vals[i]) {
			continue
		}
		if !exists {
			added++
		} else if old != vals[i] {
			changed++
		}
		z[sm.Member] = vals[i]
	}
	m.dropIfEmpty(key, z)
	if args.CH {
		return added + changed, nil
	}
	return added, nil
}

func (m *Store) ZAddIncr(ctx context.Context, key string, args driver.ZAddArgs) (float64, bool, error) {
	if err := args.Validate(true); err != nil {
		return 0, false, err
	}
	vals, err := scores(args.Members)
	if err != nil {
		return 0, false, err
	}
	if err := m.lock(); err != nil {
		return 0, false, err
	}
	defer m.mu.Unlock()

	z, err := m.zsetForWrite(key)
	if err != nil {
		return 0, false, err
	}
	defer m.dropIfEmpty(key, z)

	member := args.Members[0].Member
	old, exists := z[member]
	next := old + vals[0]
	if math.IsNaN(next) {
		return 0, false, driver.ErrScoreNaN
	}
	if !zaddAllowed(args, exists, old, next) {
		return 0, false, nil
	}
	z[member] = next
	return next, true, nil
}

func (m *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zsetForWrite(key)
	if err != nil {
		return 0, err
	}
	next := z[member] + delta
	if math.IsNaN(next) {
		m.dropIfEmpty(key, z)
		return 0, driver.ErrScoreNaN
	}
	z[member] = next
	return next, nil
}

func (m *Store) ZRange(ctx context.Context, key string, q driver.RangeQuery) ([]driver.ZMember, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil {
		return nil, err
	}
	return selectRange(sorted(z), q)
}

// selectRange applies a RangeQuery to members in ascending order.
func selectRange(all []driver.ZMember, q driver.RangeQuery) ([]driver.ZMember, error) {
	var out []driver.ZMember
	switch q.By {
	case driver.ByIndex:
		start, err := strconv.ParseInt(q.Start, 10, 64)
		if err != nil {
			return nil, driver.ErrNotInteger
		}
		stop, err := strconv.ParseInt(q.Stop, 10, 64)
		if err != nil {
			return nil, driver.ErrNotInteger
		}
		if q.Reverse {
			slices.Reverse(all)
		}
		s, e, ok := driver.NormalizeRange(start, stop, int64(len(all)))
		if !ok {
			return []driver.ZMember{}, nil
		}
		return append([]driver.ZMember{}, all[s:e+1]...), nil

	case driver.ByScore:
		lo, err := driver.ParseScoreBoundary(q.Start)
		if err != nil {
			return nil, err
		}
		hi, err := driver.ParseScoreBoundary(q.Stop)
		if err != nil {
			return nil, err
		}
		for _, zm := range all {
			if lo.AboveMin(zm.Score) && hi.BelowMax(zm.Score) {
				out = append(out, zm)
			}
		}

	case driver.ByLex:
		lo, err := driver.ParseLexBoundary(q.Start)
		if err != nil {
			return nil, err
		}
		hi, err := driver.ParseLexBoundary(q.Stop)
		if err != nil {
			return nil, err
		}
		for _, zm := range all {
			if lo.AboveMin(zm.Member) && hi.BelowMax(zm.Member) {
				out = append(out, zm)
			}
		}
	}

	if q.Reverse {
		slices.Reverse(out)
	}
	if q.Limit {
		if q.Offset < 0 || q.Offset >= int64(len(out)) {
			return []driver.ZMember{}, nil
		}
		out = out[q.Offset:]
		if q.Count >= 0 && q.Count < int64(len(out)) {
			out = out[:q.Count]
		}
	}
	if out == nil {
		out = []driver.ZMember{}
	}
	return out, nil
}

func (m *Store) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	lo, err := driver.ParseScoreBoundary(min)
	if err != nil {
		return 0, err
	}
	hi, err := driver.ParseScoreBoundary(max)
	if err != nil {
		return 0, err
	}
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, score := range z {
		if lo.AboveMin(score) && hi.BelowMax(score) {
			n++
		}
	}
	return n, nil
}

func (m *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	if err := m.lock(); err != nil {
		return 0, false, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil {
		return 0, false, err
	}
	score, ok := z[member]
	return score, ok, nil
}

func (m *Store) ZRank(ctx context.Context, key, member string, reverse bool) (int64, bool, error) {
	if err := m.lock(); err != nil {
		return 0, false, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil {
		return 0, false, err
	}
	if _, ok := z[member]; !ok {
		return 0, false, nil
	}
	all := sorted(z)
	for i, zm := range all {
		if zm.Member == member {
			if reverse {
				return int64(len(all) - 1 - i), true, nil
			}
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (m *Store) ZRem(ctx context.Context, key string, members []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil || z == nil {
		return 0, err
	}
	var n int64
	for _, mem := range members {
		if _, ok := z[mem]; ok {
			delete(z, mem)
			n++
		}
	}
	m.dropIfEmpty(key, z)
	return n, nil
}

func (m *Store) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	lo, err := driver.ParseScoreBoundary(min)
	if err != nil {
		return 0, err
	}
	hi, err := driver.ParseScoreBoundary(max)
	if err != nil {
		return 0, err
	}
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil || z == nil {
		return 0, err
	}
	var n int64
	for mem, score := range z {
		if lo.AboveMin(score) && hi.BelowMax(score) {
			delete(z, mem)
			n++
		}
	}
	m.dropIfEmpty(key, z)
	return n, nil
}

func (m *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	return int64(len(z)), err
}

func (m *Store) ZPopMin(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return m.zpop(key, count, false)
}

func (m *Store) ZPopMax(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return m.zpop(key, count, true)
}

// zpop removes up to count members from one end; count < 0 pops one.
func (m *Store) zpop(key string, count int64, max bool) ([]driver.ZMember, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	z, err := m.zset(key)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		count = 1
	}
	all := sorted(z)
	if max {
		slices.Reverse(all)
	}
	if count > int64(len(all)) {
		count = int64(len(all))
	}
	out := all[:count]
	for _, zm := range out {
		delete(z, zm.Member)
	}
	if z != nil {
		m.dropIfEmpty(key, z)
	}
	return out, nil
}
