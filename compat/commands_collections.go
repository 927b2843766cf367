package compat

import (
	"context"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/translate"
)

// ============== Hash Commands ==============

func hsetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) || !evenPairs(cl.args[1:]) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().HSet(ctx, cl.str(0), translate.Fields(cl.structured())))
}

func hmsetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) || !evenPairs(cl.args[1:]) {
		return cl.wrongArgs(ctx)
	}
	if _, err := cl.drv().HSet(ctx, cl.str(0), translate.Fields(cl.structured())); err != nil {
		return nil, err
	}
	return "OK", nil
}

func hsetnxCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	ok, err := cl.drv().HSetNX(ctx, cl.str(0), cl.str(1), cl.str(2))
	if err != nil {
		return nil, err
	}
	return translate.Bool(ok), nil
}

func hgetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	v, ok, err := cl.drv().HGet(ctx, cl.str(0), cl.str(1))
	if err != nil {
		return nil, err
	}
	return cl.bulk(v, ok), nil
}

func hmgetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	values, err := cl.drv().HMGet(ctx, cl.str(0), cl.strs(1))
	if err != nil {
		return nil, err
	}
	return translate.OptionalList(values, cl.binary), nil
}

func hgetallCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	fields, err := cl.drv().HGetAll(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return translate.FieldMap(fields, cl.binary), nil
}

func hdelCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().HDel(ctx, cl.str(0), cl.strs(1)))
}

func hexistsCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	ok, err := cl.drv().HExists(ctx, cl.str(0), cl.str(1))
	if err != nil {
		return nil, err
	}
	return translate.Bool(ok), nil
}

func hincrbyCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	delta, err := cl.int(2)
	if err != nil {
		return nil, err
	}
	return reply(cl.drv().HIncrBy(ctx, cl.str(0), cl.str(1), delta))
}

func hincrbyfloatCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	delta, err := cl.float(2)
	if err != nil {
		return nil, err
	}
	v, err := cl.drv().HIncrByFloat(ctx, cl.str(0), cl.str(1), delta)
	if err != nil {
		return nil, err
	}
	return cl.text(translate.FormatFloat(v)), nil
}

func hkeysCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	keys, err := cl.drv().HKeys(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.list(keys), nil
}

func hvalsCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	vals, err := cl.drv().HVals(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.list(vals), nil
}

func hlenCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().HLen(ctx, cl.str(0)))
}

// ============== List Commands ==============

func pushCmd(right bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(2, -1) {
			return cl.wrongArgs(ctx)
		}
		values := translate.Members(cl.args[1:], false)
		if right {
			return reply(cl.drv().RPush(ctx, cl.str(0), values))
		}
		return reply(cl.drv().LPush(ctx, cl.str(0), values))
	}
}

func popCmd(right bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(1, 2) {
			return cl.wrongArgs(ctx)
		}
		count, given, ok := translate.Count(cl.args[1:])
		if !ok || (given && count < 0) {
			return cl.reject(ctx, driver.ErrNotPositive)
		}
		pop := cl.drv().LPop
		if right {
			pop = cl.drv().RPop
		}
		values, err := pop(ctx, cl.str(0), count)
		if err != nil {
			return nil, err
		}
		if values == nil {
			return nil, nil
		}
		if !given {
			return cl.text(values[0]), nil
		}
		return cl.list(values), nil
	}
}

func lrangeCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	start, err := cl.int(1)
	if err != nil {
		return nil, err
	}
	stop, err := cl.int(2)
	if err != nil {
		return nil, err
	}
	values, err := cl.drv().LRange(ctx, cl.str(0), start, stop)
	if err != nil {
		return nil, err
	}
	return cl.list(values), nil
}

func llenCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().LLen(ctx, cl.str(0)))
}

func lindexCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	index, err := cl.int(1)
	if err != nil {
		return nil, err
	}
	v, ok, err := cl.drv().LIndex(ctx, cl.str(0), index)
	if err != nil {
		return nil, err
	}
	return cl.bulk(v, ok), nil
}

func lsetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	index, err := cl.int(1)
	if err != nil {
		return nil, err
	}
	if err := cl.drv().LSet(ctx, cl.str(0), index, cl.str(2)); err != nil {
		return nil, err
	}
	return "OK", nil
}

func lremCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	count, err := cl.int(1)
	if err != nil {
		return nil, err
	}
	return reply(cl.drv().LRem(ctx, cl.str(0), count, cl.str(2)))
}

func ltrimCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	start, err := cl.int(1)
	if err != nil {
		return nil, err
	}
	stop, err := cl.int(2)
	if err != nil {
		return nil, err
	}
	if err := cl.drv().LTrim(ctx, cl.str(0), start, stop); err != nil {
		return nil, err
	}
	return "OK", nil
}

func blockingPopCmd(right bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		keys, num, ok := translate.Blocking(cl.args)
		if !ok {
			return cl.wrongArgs(ctx)
		}
		timeout, err := num.Seconds()
		if err != nil {
			return nil, err
		}
		pop := cl.drv().BLPop
		if right {
			pop = cl.drv().BRPop
		}
		kv, err := pop(ctx, keys, timeout)
		if err != nil {
			return nil, err
		}
		return translate.Pair(kv, cl.binary), nil
	}
}

// ============== Set Commands ==============

func saddCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().SAdd(ctx, cl.str(0), translate.Members(cl.args[1:], true)))
}

func sremCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().SRem(ctx, cl.str(0), translate.Members(cl.args[1:], true)))
}

func smembersCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	members, err := cl.drv().SMembers(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.list(members), nil
}

func sismemberCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	ok, err := cl.drv().SIsMember(ctx, cl.str(0), cl.str(1))
	if err != nil {
		return nil, err
	}
	return translate.Bool(ok), nil
}

func smismemberCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	res, err := cl.drv().SMIsMember(ctx, cl.str(0), cl.strs(1))
	if err != nil {
		return nil, err
	}
	return translate.Bools(res), nil
}

func scardCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().SCard(ctx, cl.str(0)))
}

// ============== Sorted Set Commands ==============

func zaddCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	args, incr, ok := translate.ZAdd(cl.structured())
	if !ok {
		return cl.reject(ctx, driver.ErrSyntax)
	}
	if !incr {
		return reply(cl.drv().ZAdd(ctx, cl.str(0), args))
	}
	score, added, err := cl.drv().ZAddIncr(ctx, cl.str(0), args)
	if err != nil || !added {
		return nil, err
	}
	return cl.text(translate.FormatFloat(score)), nil
}

func zincrbyCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	delta, err := cl.float(1)
	if err != nil {
		return nil, err
	}
	score, err := cl.drv().ZIncrBy(ctx, cl.str(0), delta, cl.str(2))
	if err != nil {
		return nil, err
	}
	return cl.text(translate.FormatFloat(score)), nil
}

func zrangeCmd(cmd translate.RangeCommand) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(3, -1) {
			return cl.wrongArgs(ctx)
		}
		q, ok := translate.Range(cmd, cl.args[1:])
		if !ok {
			return cl.reject(ctx, driver.ErrSyntax)
		}
		members, err := cl.drv().ZRange(ctx, cl.str(0), q)
		if err != nil {
			return nil, err
		}
		return translate.Scored(members, q.WithScores, cl.binary), nil
	}
}

func zcountCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().ZCount(ctx, cl.str(0), cl.str(1), cl.str(2)))
}

func zscoreCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	score, ok, err := cl.drv().ZScore(ctx, cl.str(0), cl.str(1))
	if err != nil || !ok {
		return nil, err
	}
	return cl.text(translate.FormatFloat(score)), nil
}

func zrankCmd(reverse bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(2, 2) {
			return cl.wrongArgs(ctx)
		}
		rank, ok, err := cl.drv().ZRank(ctx, cl.str(0), cl.str(1), reverse)
		if err != nil || !ok {
			return nil, err
		}
		return rank, nil
	}
}

func zremCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().ZRem(ctx, cl.str(0), translate.Members(cl.args[1:], false)))
}

func zremrangebyscoreCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(3, 3) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().ZRemRangeByScore(ctx, cl.str(0), cl.str(1), cl.str(2)))
}

func zcardCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().ZCard(ctx, cl.str(0)))
}

func zpopCmd(max bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(1, 2) {
			return cl.wrongArgs(ctx)
		}
		count, given, ok := translate.Count(cl.args[1:])
		if !ok || (given && count < 0) {
			return cl.reject(ctx, driver.ErrNotPositive)
		}
		pop := cl.drv().ZPopMin
		if max {
			pop = cl.drv().ZPopMax
		}
		members, err := pop(ctx, cl.str(0), count)
		if err != nil {
			return nil, err
		}
		return translate.Scored(members, true, cl.binary), nil
	}
}
