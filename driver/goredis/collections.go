package goredis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Hash Commands ==============

func (d *Driver) HSet(ctx context.Context, key string, fields []driver.FieldValue) (int64, error) {
	args := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, f.Field, f.Value)
	}
	return result(d.client.HSet(ctx, key, args...).Result())
}

func (d *Driver) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	return result(d.client.HSetNX(ctx, key, field, value).Result())
}

func (d *Driver) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return optional(d.client.HGet(ctx, key, field).Result())
}

func (d *Driver) HMGet(ctx context.Context, key string, fields []string) ([]driver.Optional, error) {
	return optionals(d.client.HMGet(ctx, key, fields...).Result())
}

func (d *Driver) HGetAll(ctx context.Context, key string) ([]driver.FieldValue, error) {
	m, err := d.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return sortedFields(m), nil
}

func (d *Driver) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	return result(d.client.HDel(ctx, key, fields...).Result())
}

func (d *Driver) HExists(ctx context.Context, key, field string) (bool, error) {
	return result(d.client.HExists(ctx, key, field).Result())
}

func (d *Driver) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return result(d.client.HIncrBy(ctx, key, field, delta).Result())
}

func (d *Driver) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	return result(d.client.HIncrByFloat(ctx, key, field, delta).Result())
}

func (d *Driver) HKeys(ctx context.Context, key string) ([]string, error) {
	keys, err := d.client.HKeys(ctx, key).Result()
	return nonNil(keys), mapErr(err)
}

func (d *Driver) HVals(ctx context.Context, key string) ([]string, error) {
	vals, err := d.client.HVals(ctx, key).Result()
	return nonNil(vals), mapErr(err)
}

func (d *Driver) HLen(ctx context.Context, key string) (int64, error) {
	return result(d.client.HLen(ctx, key).Result())
}

// ============== List Commands ==============

func (d *Driver) LPush(ctx context.Context, key string, values []string) (int64, error) {
	return result(d.client.LPush(ctx, key, ifaces(values)...).Result())
}

func (d *Driver) RPush(ctx context.Context, key string, values []string) (int64, error) {
	return result(d.client.RPush(ctx, key, ifaces(values)...).Result())
}

func (d *Driver) LPop(ctx context.Context, key string, count int64) ([]string, error) {
	if count < 0 {
		return single(d.client.LPop(ctx, key).Result())
	}
	return multi(d.client.LPopCount(ctx, key, int(count)).Result())
}

func (d *Driver) RPop(ctx context.Context, key string, count int64) ([]string, error) {
	if count < 0 {
		return single(d.client.RPop(ctx, key).Result())
	}
	return multi(d.client.RPopCount(ctx, key, int(count)).Result())
}

func single(v string, err error) ([]string, error) {
	v, ok, err := optional(v, err)
	if err != nil || !ok {
		return nil, err
	}
	return []string{v}, nil
}

func multi(values []string, err error) ([]string, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return nonNil(values), nil
}

func (d *Driver) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := d.client.LRange(ctx, key, start, stop).Result()
	return nonNil(values), mapErr(err)
}

func (d *Driver) LLen(ctx context.Context, key string) (int64, error) {
	return result(d.client.LLen(ctx, key).Result())
}

func (d *Driver) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	return optional(d.client.LIndex(ctx, key, index).Result())
}

func (d *Driver) LSet(ctx context.Context, key string, index int64, value string) error {
	return mapErr(d.client.LSet(ctx, key, index, value).Err())
}

func (d *Driver) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return result(d.client.LRem(ctx, key, count, value).Result())
}

func (d *Driver) LTrim(ctx context.Context, key string, start, stop int64) error {
	return mapErr(d.client.LTrim(ctx, key, start, stop).Err())
}

func (d *Driver) BLPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return pair(d.client.BLPop(ctx, timeout, keys...).Result())
}

func (d *Driver) BRPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return pair(d.client.BRPop(ctx, timeout, keys...).Result())
}

func pair(kv []string, err error) (*driver.KeyValue, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if len(kv) != 2 {
		return nil, nil
	}
	return &driver.KeyValue{Key: kv[0], Value: kv[1]}, nil
}

// ============== Set Commands ==============

func (d *Driver) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	return result(d.client.SAdd(ctx, key, ifaces(members)...).Result())
}

func (d *Driver) SRem(ctx context.Context, key string, members []string) (int64, error) {
	return result(d.client.SRem(ctx, key, ifaces(members)...).Result())
}

func (d *Driver) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := d.client.SMembers(ctx, key).Result()
	return nonNil(members), mapErr(err)
}

func (d *Driver) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return result(d.client.SIsMember(ctx, key, member).Result())
}

func (d *Driver) SMIsMember(ctx context.Context, key string, members []string) ([]bool, error) {
	return result(d.client.SMIsMember(ctx, key, ifaces(members)...).Result())
}

func (d *Driver) SCard(ctx context.Context, key string) (int64, error) {
	return result(d.client.SCard(ctx, key).Result())
}

// ============== Sorted Set Commands ==============

// zaddArgs renders ZADD in wire form. Scores keep their argument text.
func zaddArgs(key string, args driver.ZAddArgs, incr bool) []any {
	out := make([]any, 0, 8+2*len(args.Members))
	out = append(out, "zadd", key)
	for _, f := range []struct {
		set  bool
		name string
	}{{args.NX, "nx"}, {args.XX, "xx"}, {args.GT, "gt"}, {args.LT, "lt"}, {args.CH, "ch"}, {incr, "incr"}} {
		if f.set {
			out = append(out, f.name)
		}
	}
	for _, m := range args.Members {
		out = append(out, m.Score.String(), m.Member)
	}
	return out
}

func (d *Driver) ZAdd(ctx context.Context, key string, args driver.ZAddArgs) (int64, error) {
	return result(d.client.Do(ctx, zaddArgs(key, args, false)...).Int64())
}

func (d *Driver) ZAddIncr(ctx context.Context, key string, args driver.ZAddArgs) (float64, bool, error) {
	return optional(d.client.Do(ctx, zaddArgs(key, args, true)...).Float64())
}

func (d *Driver) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	return result(d.client.ZIncrBy(ctx, key, delta, member).Result())
}

func (d *Driver) ZRange(ctx context.Context, key string, q driver.RangeQuery) ([]driver.ZMember, error) {
	if q.Limit && q.Offset == 0 && q.Count == 0 {
		// go-redis drops a zero LIMIT, which would return everything
		return []driver.ZMember{}, nil
	}
	z := redis.ZRangeArgs{
		Key:     key,
		Start:   q.Start,
		Stop:    q.Stop,
		ByScore: q.By == driver.ByScore,
		ByLex:   q.By == driver.ByLex,
		Rev:     q.Reverse,
	}
	if q.Limit {
		z.Offset, z.Count = q.Offset, q.Count
	}

	if q.WithScores {
		zs, err := d.client.ZRangeArgsWithScores(ctx, z).Result()
		if err != nil {
			return nil, mapErr(err)
		}
		return zmembers(zs), nil
	}
	members, err := d.client.ZRangeArgs(ctx, z).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]driver.ZMember, len(members))
	for i, m := range members {
		out[i] = driver.ZMember{Member: m}
	}
	return out, nil
}

func zmembers(zs []redis.Z) []driver.ZMember {
	out := make([]driver.ZMember, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out[i] = driver.ZMember{Member: member, Score: z.Score}
	}
	return out
}

func (d *Driver) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	return result(d.client.ZCount(ctx, key, min, max).Result())
}

func (d *Driver) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	return optional(d.client.ZScore(ctx, key, member).Result())
}

func (d *Driver) ZRank(ctx context.Context, key, member string, reverse bool) (int64, bool, error) {
	if reverse {
		return optional(d.client.ZRevRank(ctx, key, member).Result())
	}
	return optional(d.client.ZRank(ctx, key, member).Result())
}

func (d *Driver) ZRem(ctx context.Context, key string, members []string) (int64, error) {
	return result(d.client.ZRem(ctx, key, ifaces(members)...).Result())
}

func (d *Driver) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	return result(d.client.ZRemRangeByScore(ctx, key, min, max).Result())
}

func (d *Driver) ZCard(ctx context.Context, key string) (int64, error) {
	return result(d.client.ZCard(ctx, key).Result())
}

func (d *Driver) ZPopMin(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return zpop(ctx, d.client.ZPopMin, key, count)
}

func (d *Driver) ZPopMax(ctx context.Context, key string, count int64) ([]driver.ZMember, error) {
	return zpop(ctx, d.client.ZPopMax, key, count)
}

func zpop(ctx context.Context, pop func(context.Context, string, ...int64) *redis.ZSliceCmd, key string, count int64) ([]driver.ZMember, error) {
	var cmd *redis.ZSliceCmd
	if count < 0 {
		cmd = pop(ctx, key)
	} else {
		cmd = pop(ctx, key, count)
	}
	zs, err := cmd.Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return zmembers(zs), nil
}
