// Package driver defines the strongly typed backend boundary used by the
// compatibility client. Every command has exactly one method with typed
// parameters and typed results; no method accepts loosely typed variadic
// arguments.
//
// Three implementations ship with the module: goredis (a Redis server through
// go-redis), postgres (tables plus LISTEN/NOTIFY through pgx) and memory (an
// in-process store used by tests and embedded callers).
package driver

import (
	"context"
	"time"
)

// Driver is implemented by every backend.
type Driver interface {
	// Server commands
	Ping(ctx context.Context) error
	Echo(ctx context.Context, message string) (string, error)
	DBSize(ctx context.Context) (int64, error)
	FlushDB(ctx context.Context) error

	// String commands
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, opts SetOptions) (SetResult, error)
	MGet(ctx context.Context, keys []string) ([]Optional, error)
	MSet(ctx context.Context, pairs []KeyValue) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)
	Append(ctx context.Context, key, value string) (int64, error)
	StrLen(ctx context.Context, key string) (int64, error)
	GetDel(ctx context.Context, key string) (string, bool, error)

	// Key commands
	Del(ctx context.Context, keys []string) (int64, error)
	Exists(ctx context.Context, keys []string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, cond Condition) (bool, error)
	TTL(ctx context.Context, key string, unit time.Duration) (int64, error)
	Persist(ctx context.Context, key string) (bool, error)
	Type(ctx context.Context, key string) (KeyType, error)
	Rename(ctx context.Context, oldKey, newKey string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Scan(ctx context.Context, cursor uint64, opts ScanOptions) (ScanPage, error)

	// Hash commands
	HSet(ctx context.Context, key string, fields []FieldValue) (int64, error)
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HMGet(ctx context.Context, key string, fields []string) ([]Optional, error)
	HGetAll(ctx context.Context, key string) ([]FieldValue, error)
	HDel(ctx context.Context, key string, fields []string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HVals(ctx context.Context, key string) ([]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	// List commands. LPop and RPop take count < 0 for the single-element
	// form; they return nil when the key does not exist.
	LPush(ctx context.Context, key string, values []string) (int64, error)
	RPush(ctx context.Context, key string, values []string) (int64, error)
	LPop(ctx context.Context, key string, count int64) ([]string, error)
	RPop(ctx context.Context, key string, count int64) ([]string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LIndex(ctx context.Context, key string, index int64) (string, bool, error)
	LSet(ctx context.Context, key string, index int64, value string) error
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	BLPop(ctx context.Context, keys []string, timeout time.Duration) (*KeyValue, error)
	BRPop(ctx context.Context, keys []string, timeout time.Duration) (*KeyValue, error)

	// Set commands
	SAdd(ctx context.Context, key string, members []string) (int64, error)
	SRem(ctx context.Context, key string, members []string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMIsMember(ctx context.Context, key string, members []string) ([]bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Sorted set commands
	ZAdd(ctx context.Context, key string, args ZAddArgs) (int64, error)
	ZAddIncr(ctx context.Context, key string, args ZAddArgs) (float64, bool, error)
	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZRange(ctx context.Context, key string, q RangeQuery) ([]ZMember, error)
	ZCount(ctx context.Context, key, min, max string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZRank(ctx context.Context, key, member string, reverse bool) (int64, bool, error)
	ZRem(ctx context.Context, key string, members []string) (int64, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZPopMin(ctx context.Context, key string, count int64) ([]ZMember, error)
	ZPopMax(ctx context.Context, key string, count int64) ([]ZMember, error)

	// Pub/sub
	Publish(ctx context.Context, channel, message string) (int64, error)
	// NewSubscriber establishes a subscriber for a fixed channel and pattern
	// set. The set cannot change afterwards; callers replace the subscriber
	// to change it.
	NewSubscriber(ctx context.Context, cfg SubscriptionConfig) (Subscriber, error)

	Close() error
}

// Subscriber is a pull-based subscription over a fixed configuration.
type Subscriber interface {
	// TryNext returns the next pending message without blocking for new
	// traffic. It returns nil and no error when nothing is pending.
	TryNext(ctx context.Context) (*Message, error)
	Close() error
}

// Scripter is implemented by drivers that evaluate Lua scripts server side.
// Drivers without it get scripts evaluated by the client.
type Scripter interface {
	Eval(ctx context.Context, script string, keys, args []string) (any, error)
	EvalSha(ctx context.Context, sha string, keys, args []string) (any, error)
	ScriptLoad(ctx context.Context, script string) (string, error)
	ScriptExists(ctx context.Context, shas []string) ([]bool, error)
}

// RawDoer is implemented by drivers that can forward a command line
// verbatim. The client uses it for argument shapes it could not map onto
// typed parameters, so the server raises its own error for them.
type RawDoer interface {
	Do(ctx context.Context, args ...string) (any, error)
}
