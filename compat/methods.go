package compat

import "context"

// Named methods mirror the legacy client surface. Each forwards to Call.

// ============== Server Commands ==============

// Ping runs PING [message].
func (c *Client) Ping(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "ping", args...)
}

func (c *Client) Echo(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "echo", args...)
}

func (c *Client) DBSize(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "dbsize", args...)
}

func (c *Client) FlushDB(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "flushdb", args...)
}

func (c *Client) Quit(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "quit", args...)
}

// ============== String Commands ==============

func (c *Client) Get(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "get", args...)
}

// GetBuffer runs GET returning []byte.
func (c *Client) GetBuffer(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "getbuffer", args...)
}

// Set runs SET key value [EX s|PX ms|EXAT|PXAT|KEEPTTL] [NX|XX] [GET].
// Options may also be an object such as map[string]any{"EX": 10, "NX": true}.
func (c *Client) Set(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "set", args...)
}

func (c *Client) SetNX(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "setnx", args...)
}

func (c *Client) SetEx(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "setex", args...)
}

func (c *Client) PSetEx(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "psetex", args...)
}

func (c *Client) MGet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "mget", args...)
}

func (c *Client) MSet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "mset", args...)
}

func (c *Client) Incr(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "incr", args...)
}

func (c *Client) Decr(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "decr", args...)
}

func (c *Client) IncrBy(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "incrby", args...)
}

func (c *Client) DecrBy(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "decrby", args...)
}

func (c *Client) IncrByFloat(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "incrbyfloat", args...)
}

func (c *Client) Append(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "append", args...)
}

func (c *Client) StrLen(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "strlen", args...)
}

func (c *Client) GetDel(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "getdel", args...)
}

// ============== Key Commands ==============

func (c *Client) Del(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "del", args...)
}

func (c *Client) Exists(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "exists", args...)
}

func (c *Client) Expire(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "expire", args...)
}

func (c *Client) PExpire(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "pexpire", args...)
}

func (c *Client) TTL(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "ttl", args...)
}

func (c *Client) PTTL(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "pttl", args...)
}

func (c *Client) Persist(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "persist", args...)
}

func (c *Client) Type(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "type", args...)
}

func (c *Client) Rename(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "rename", args...)
}

func (c *Client) Keys(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "keys", args...)
}

func (c *Client) Scan(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "scan", args...)
}

// ============== Hash Commands ==============

// HSet runs HSET key field value [field value ...]. Fields may also be
// given as a map, a struct or [field, value] pairs.
func (c *Client) HSet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hset", args...)
}

func (c *Client) HMSet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hmset", args...)
}

func (c *Client) HSetNX(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hsetnx", args...)
}

func (c *Client) HGet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hget", args...)
}

func (c *Client) HGetBuffer(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hgetbuffer", args...)
}

func (c *Client) HMGet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hmget", args...)
}

func (c *Client) HGetAll(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hgetall", args...)
}

func (c *Client) HGetAllBuffer(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hgetallbuffer", args...)
}

func (c *Client) HDel(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hdel", args...)
}

func (c *Client) HExists(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hexists", args...)
}

func (c *Client) HIncrBy(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hincrby", args...)
}

func (c *Client) HIncrByFloat(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hincrbyfloat", args...)
}

func (c *Client) HKeys(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hkeys", args...)
}

func (c *Client) HVals(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hvals", args...)
}

func (c *Client) HLen(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "hlen", args...)
}

// ============== List Commands ==============

func (c *Client) LPush(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lpush", args...)
}

func (c *Client) RPush(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "rpush", args...)
}

func (c *Client) LPop(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lpop", args...)
}

func (c *Client) RPop(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "rpop", args...)
}

func (c *Client) LRange(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lrange", args...)
}

func (c *Client) LLen(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "llen", args...)
}

func (c *Client) LIndex(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lindex", args...)
}

func (c *Client) LSet(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lset", args...)
}

func (c *Client) LRem(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "lrem", args...)
}

func (c *Client) LTrim(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "ltrim", args...)
}

func (c *Client) BLPop(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "blpop", args...)
}

func (c *Client) BRPop(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "brpop", args...)
}

// ============== Set Commands ==============

func (c *Client) SAdd(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "sadd", args...)
}

func (c *Client) SRem(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "srem", args...)
}

func (c *Client) SMembers(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "smembers", args...)
}

func (c *Client) SIsMember(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "sismember", args...)
}

func (c *Client) SMIsMember(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "smismember", args...)
}

func (c *Client) SCard(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "scard", args...)
}

// ============== Sorted Set Commands ==============

// ZAdd runs ZADD key [NX|XX] [GT|LT] [CH] [INCR] score member [score member ...].
func (c *Client) ZAdd(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zadd", args...)
}

func (c *Client) ZIncrBy(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zincrby", args...)
}

func (c *Client) ZRange(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrange", args...)
}

func (c *Client) ZRevRange(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrevrange", args...)
}

func (c *Client) ZRangeByScore(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrangebyscore", args...)
}

func (c *Client) ZRevRangeByScore(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrevrangebyscore", args...)
}

func (c *Client) ZRangeByLex(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrangebylex", args...)
}

func (c *Client) ZRevRangeByLex(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrevrangebylex", args...)
}

func (c *Client) ZCount(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zcount", args...)
}

func (c *Client) ZScore(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zscore", args...)
}

func (c *Client) ZRank(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrank", args...)
}

func (c *Client) ZRevRank(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrevrank", args...)
}

func (c *Client) ZRem(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zrem", args...)
}

func (c *Client) ZRemRangeByScore(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zremrangebyscore", args...)
}

func (c *Client) ZCard(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zcard", args...)
}

func (c *Client) ZPopMin(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zpopmin", args...)
}

func (c *Client) ZPopMax(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "zpopmax", args...)
}

// ============== Pub/Sub Commands ==============

func (c *Client) Publish(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "publish", args...)
}

func (c *Client) Subscribe(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "subscribe", args...)
}

// Unsubscribe runs UNSUBSCRIBE [channel ...]; no channels unsubscribes from all.
func (c *Client) Unsubscribe(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "unsubscribe", args...)
}

func (c *Client) PSubscribe(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "psubscribe", args...)
}

func (c *Client) PUnsubscribe(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "punsubscribe", args...)
}

// ============== Scripting Commands ==============

func (c *Client) Eval(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "eval", args...)
}

func (c *Client) EvalSha(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "evalsha", args...)
}

func (c *Client) Script(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, "script", args...)
}
