package compat

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/translate"
)

// commands maps lower-case command names to their handlers.
var commands map[string]handler

func init() {
	commands = map[string]handler{
		// server
		"ping":    pingCmd,
		"echo":    echoCmd,
		"dbsize":  dbsizeCmd,
		"flushdb": flushdbCmd,
		"quit":    quitCmd,

		// strings
		"get":         getCmd,
		"getbuffer":   buffered("get", getCmd),
		"set":         setCmd,
		"setnx":       setnxCmd,
		"setex":       setexCmd(time.Second),
		"psetex":      setexCmd(time.Millisecond),
		"mget":        mgetCmd,
		"mset":        msetCmd,
		"incr":        incrCmd(1),
		"decr":        incrCmd(-1),
		"incrby":      incrbyCmd(1),
		"decrby":      incrbyCmd(-1),
		"incrbyfloat": incrbyfloatCmd,
		"append":      appendCmd,
		"strlen":      strlenCmd,
		"getdel":      getdelCmd,

		// keys
		"del":     delCmd,
		"exists":  existsCmd,
		"expire":  expireCmd(time.Second),
		"pexpire": expireCmd(time.Millisecond),
		"ttl":     ttlCmd(time.Second),
		"pttl":    ttlCmd(time.Millisecond),
		"persist": persistCmd,
		"type":    typeCmd,
		"rename":  renameCmd,
		"keys":    keysCmd,
		"scan":    scanCmd,

		// hashes
		"hset":          hsetCmd,
		"hmset":         hmsetCmd,
		"hsetnx":        hsetnxCmd,
		"hget":          hgetCmd,
		"hgetbuffer":    buffered("hget", hgetCmd),
		"hmget":         hmgetCmd,
		"hgetall":       hgetallCmd,
		"hgetallbuffer": buffered("hgetall", hgetallCmd),
		"hdel":          hdelCmd,
		"hexists":       hexistsCmd,
		"hincrby":       hincrbyCmd,
		"hincrbyfloat":  hincrbyfloatCmd,
		"hkeys":         hkeysCmd,
		"hvals":         hvalsCmd,
		"hlen":          hlenCmd,

		// lists
		"lpush":  pushCmd(false),
		"rpush":  pushCmd(true),
		"lpop":   popCmd(false),
		"rpop":   popCmd(true),
		"lrange": lrangeCmd,
		"llen":   llenCmd,
		"lindex": lindexCmd,
		"lset":   lsetCmd,
		"lrem":   lremCmd,
		"ltrim":  ltrimCmd,
		"blpop":  blockingPopCmd(false),
		"brpop":  blockingPopCmd(true),

		// sets
		"sadd":       saddCmd,
		"srem":       sremCmd,
		"smembers":   smembersCmd,
		"sismember":  sismemberCmd,
		"smismember": smismemberCmd,
		"scard":      scardCmd,

		// sorted sets
		"zadd":             zaddCmd,
		"zincrby":          zincrbyCmd,
		"zrange":           zrangeCmd(translate.ZRange),
		"zrevrange":        zrangeCmd(translate.ZRevRange),
		"zrangebyscore":    zrangeCmd(translate.ZRangeByScore),
		"zrevrangebyscore": zrangeCmd(translate.ZRevRangeByScore),
		"zrangebylex":      zrangeCmd(translate.ZRangeByLex),
		"zrevrangebylex":   zrangeCmd(translate.ZRevRangeByLex),
		"zcount":           zcountCmd,
		"zscore":           zscoreCmd,
		"zrank":            zrankCmd(false),
		"zrevrank":         zrankCmd(true),
		"zrem":             zremCmd,
		"zremrangebyscore": zremrangebyscoreCmd,
		"zcard":            zcardCmd,
		"zpopmin":          zpopCmd(false),
		"zpopmax":          zpopCmd(true),

		// pub/sub
		"publish":      publishCmd,
		"subscribe":    subscribeCmd,
		"unsubscribe":  unsubscribeCmd,
		"psubscribe":   psubscribeCmd,
		"punsubscribe": punsubscribeCmd,

		// scripting
		"eval":    evalCmd(false),
		"evalsha": evalCmd(true),
		"script":  scriptCmd,
	}
}

// CommandNames returns the supported command names in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buffered runs h in binary mode under the name of the plain command.
func buffered(name string, h handler) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		cl.name, cl.binary = name, true
		return h(ctx, cl)
	}
}

// ============== Server Commands ==============

func pingCmd(ctx context.Context, cl *call) (any, error) {
	switch len(cl.args) {
	case 0:
		if err := cl.drv().Ping(ctx); err != nil {
			return nil, err
		}
		return "PONG", nil
	case 1:
		msg, err := cl.drv().Echo(ctx, cl.str(0))
		if err != nil {
			return nil, err
		}
		return cl.text(msg), nil
	}
	return cl.wrongArgs(ctx)
}

func echoCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	msg, err := cl.drv().Echo(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.text(msg), nil
}

func dbsizeCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(0, 0) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().DBSize(ctx))
}

func flushdbCmd(ctx context.Context, cl *call) (any, error) {
	// ASYNC and SYNC are accepted and both flush synchronously
	if !cl.arity(0, 1) {
		return cl.wrongArgs(ctx)
	}
	if err := cl.drv().FlushDB(ctx); err != nil {
		return nil, err
	}
	return "OK", nil
}

// quitCmd answers OK and closes the client once the reply is produced.
func quitCmd(ctx context.Context, cl *call) (any, error) {
	go cl.c.Close()
	return "OK", nil
}

// ============== String Commands ==============

func getCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	v, ok, err := cl.drv().Get(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.bulk(v, ok), nil
}

func setCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, -1) {
		return cl.wrongArgs(ctx)
	}
	opts, ok := translate.SetOptions(cl.args[2:])
	if !ok {
		return cl.reject(ctx, driver.ErrSyntax)
	}
	res, err := cl.drv().Set(ctx, cl.str(0), cl.str(1), opts)
	if err != nil {
		return nil, err
	}
	if opts.Get {
		return cl.bulk(res.Old, res.HadOld), nil
	}
	if !res.Written {
		return nil, nil
	}
	return "OK", nil
}

func setnxCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	res, err := cl.drv().Set(ctx, cl.str(0), cl.str(1), driver.SetOptions{Condition: driver.CondNX})
	if err != nil {
		return nil, err
	}
	return translate.Bool(res.Written), nil
}

func setexCmd(unit time.Duration) handler {
	kind := driver.ExpiryEX
	if unit == time.Millisecond {
		kind = driver.ExpiryPX
	}
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(3, 3) {
			return cl.wrongArgs(ctx)
		}
		opts := driver.SetOptions{Expiry: kind, ExpiryValue: translate.Number(cl.args[1])}
		if _, err := cl.drv().Set(ctx, cl.str(0), cl.str(2), opts); err != nil {
			return nil, expireError(err, cl.name)
		}
		return "OK", nil
	}
}

func mgetCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	values, err := cl.drv().MGet(ctx, cl.strs(0))
	if err != nil {
		return nil, err
	}
	return translate.OptionalList(values, cl.binary), nil
}

func msetCmd(ctx context.Context, cl *call) (any, error) {
	if !evenPairs(cl.args) {
		return cl.wrongArgs(ctx)
	}
	if err := cl.drv().MSet(ctx, translate.KeyValues(cl.args)); err != nil {
		return nil, err
	}
	return "OK", nil
}

func incrCmd(delta int64) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(1, 1) {
			return cl.wrongArgs(ctx)
		}
		return reply(cl.drv().IncrBy(ctx, cl.str(0), delta))
	}
}

func incrbyCmd(sign int64) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(2, 2) {
			return cl.wrongArgs(ctx)
		}
		n, err := cl.int(1)
		if err != nil {
			return nil, err
		}
		if sign < 0 {
			if n == math.MinInt64 {
				return nil, driver.Errorf("ERR decrement would overflow")
			}
			n = -n
		}
		return reply(cl.drv().IncrBy(ctx, cl.str(0), n))
	}
}

func incrbyfloatCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	delta, err := cl.float(1)
	if err != nil {
		return nil, err
	}
	v, err := cl.drv().IncrByFloat(ctx, cl.str(0), delta)
	if err != nil {
		return nil, err
	}
	return cl.text(translate.FormatFloat(v)), nil
}

func appendCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().Append(ctx, cl.str(0), cl.str(1)))
}

func strlenCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().StrLen(ctx, cl.str(0)))
}

func getdelCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	v, ok, err := cl.drv().GetDel(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.bulk(v, ok), nil
}

// ============== Key Commands ==============

func delCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().Del(ctx, cl.strs(0)))
}

func existsCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().Exists(ctx, cl.strs(0)))
}

func expireCmd(unit time.Duration) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(2, -1) {
			return cl.wrongArgs(ctx)
		}
		num, cond, ok := translate.Expire(cl.args[1:])
		if !ok {
			return cl.reject(ctx, driver.ErrSyntax)
		}
		n, err := num.Int()
		if err != nil {
			return nil, err
		}
		ttl, err := ttlOf(n, unit, cl.name)
		if err != nil {
			return nil, err
		}
		set, err := cl.drv().Expire(ctx, cl.str(0), ttl, cond)
		if err != nil {
			return nil, err
		}
		return translate.Bool(set), nil
	}
}

func ttlCmd(unit time.Duration) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(1, 1) {
			return cl.wrongArgs(ctx)
		}
		return reply(cl.drv().TTL(ctx, cl.str(0), unit))
	}
}

func persistCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	ok, err := cl.drv().Persist(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return translate.Bool(ok), nil
}

func typeCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	kt, err := cl.drv().Type(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return string(kt), nil
}

func renameCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	if err := cl.drv().Rename(ctx, cl.str(0), cl.str(1)); err != nil {
		return nil, err
	}
	return "OK", nil
}

func keysCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, 1) {
		return cl.wrongArgs(ctx)
	}
	keys, err := cl.drv().Keys(ctx, cl.str(0))
	if err != nil {
		return nil, err
	}
	return cl.list(keys), nil
}

func scanCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	cursor, opts, ok := translate.Scan(cl.args)
	if !ok {
		if _, err := strconv.ParseUint(cl.str(0), 10, 64); err != nil {
			return nil, driver.ErrInvalidCursor
		}
		return cl.reject(ctx, driver.ErrSyntax)
	}
	page, err := cl.drv().Scan(ctx, cursor, opts)
	if err != nil {
		return nil, err
	}
	return []any{cl.text(strconv.FormatUint(page.Cursor, 10)), cl.list(page.Keys)}, nil
}
