// Package goredis implements driver.Driver on top of a go-redis
// UniversalClient, so standalone, sentinel and cluster deployments are all
// served by the same driver. Topology, redirects and pooling stay inside
// go-redis.
package goredis

import (
	"context"
	"crypto/tls"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnorrsken/kvshim/driver"
)

// Options configures Dial.
type Options struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	TLS        bool
	MasterName string // sentinel master; empty for standalone or cluster
}

// Driver is a driver.Driver backed by go-redis.
type Driver struct {
	client redis.UniversalClient
}

var (
	_ driver.Driver   = (*Driver)(nil)
	_ driver.Scripter = (*Driver)(nil)
	_ driver.RawDoer  = (*Driver)(nil)
)

// New wraps an existing client. The driver owns it from then on.
func New(client redis.UniversalClient) *Driver {
	return &Driver{client: client}
}

// Dial creates a client from opts. Several addresses select cluster mode
// unless MasterName is set.
func Dial(opts Options) *Driver {
	uo := &redis.UniversalOptions{
		Addrs:      opts.Addrs,
		Username:   opts.Username,
		Password:   opts.Password,
		DB:         opts.DB,
		MasterName: opts.MasterName,
	}
	if opts.TLS {
		uo.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return New(redis.NewUniversalClient(uo))
}

// Client returns the underlying go-redis client.
func (d *Driver) Client() redis.UniversalClient {
	return d.client
}

// Close closes the client and its pool.
func (d *Driver) Close() error {
	return mapErr(d.client.Close())
}

// mapErr translates go-redis transport sentinels to driver sentinels.
// Reply errors keep the server's text.
func mapErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return driver.ErrClosed
	}
	return err
}

// optional splits a nil reply from a value.
func optional[T any](v T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, mapErr(err)
	}
	return v, true, nil
}

func result[T any](v T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, mapErr(err)
	}
	return v, nil
}

func ifaces(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// optionals converts an MGET/HMGET reply.
func optionals(values []any, err error) ([]driver.Optional, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]driver.Optional, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = driver.Optional{Value: s, Valid: true}
		}
	}
	return out, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// ============== Server Commands ==============

func (d *Driver) Ping(ctx context.Context) error {
	return mapErr(d.client.Ping(ctx).Err())
}

func (d *Driver) Echo(ctx context.Context, message string) (string, error) {
	return result(d.client.Echo(ctx, message).Result())
}

func (d *Driver) DBSize(ctx context.Context) (int64, error) {
	return result(d.client.DBSize(ctx).Result())
}

func (d *Driver) FlushDB(ctx context.Context) error {
	return mapErr(d.client.FlushDB(ctx).Err())
}

// ============== String Commands ==============

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	return optional(d.client.Get(ctx, key).Result())
}

// setArgs renders SET options in wire form. Expiry values keep their exact
// argument text so the server validates them.
func setArgs(key, value string, opts driver.SetOptions) []any {
	args := []any{"set", key, value}
	switch opts.Expiry {
	case driver.ExpiryNone:
	case driver.ExpiryKeepTTL:
		args = append(args, "keepttl")
	default:
		args = append(args, opts.Expiry.String(), opts.ExpiryValue.String())
	}
	if opts.Condition != driver.CondNone {
		args = append(args, opts.Condition.String())
	}
	if opts.Get {
		args = append(args, "get")
	}
	return args
}

// Set runs SET through Do. With GET the reply is the previous value, so
// Written cannot be observed and is reported as true.
func (d *Driver) Set(ctx context.Context, key, value string, opts driver.SetOptions) (driver.SetResult, error) {
	reply, err := d.client.Do(ctx, setArgs(key, value, opts)...).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return driver.SetResult{Written: opts.Get}, nil
	case err != nil:
		return driver.SetResult{}, mapErr(err)
	}
	if opts.Get {
		old, _ := reply.(string)
		return driver.SetResult{Written: true, Old: old, HadOld: true}, nil
	}
	return driver.SetResult{Written: true}, nil
}

func (d *Driver) MGet(ctx context.Context, keys []string) ([]driver.Optional, error) {
	return optionals(d.client.MGet(ctx, keys...).Result())
}

func (d *Driver) MSet(ctx context.Context, pairs []driver.KeyValue) error {
	args := make([]any, 0, 2*len(pairs))
	for _, p := range pairs {
		args = append(args, p.Key, p.Value)
	}
	return mapErr(d.client.MSet(ctx, args...).Err())
}

func (d *Driver) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return result(d.client.IncrBy(ctx, key, delta).Result())
}

func (d *Driver) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	return result(d.client.IncrByFloat(ctx, key, delta).Result())
}

func (d *Driver) Append(ctx context.Context, key, value string) (int64, error) {
	return result(d.client.Append(ctx, key, value).Result())
}

func (d *Driver) StrLen(ctx context.Context, key string) (int64, error) {
	return result(d.client.StrLen(ctx, key).Result())
}

func (d *Driver) GetDel(ctx context.Context, key string) (string, bool, error) {
	return optional(d.client.GetDel(ctx, key).Result())
}

// ============== Key Commands ==============

func (d *Driver) Del(ctx context.Context, keys []string) (int64, error) {
	return result(d.client.Del(ctx, keys...).Result())
}

func (d *Driver) Exists(ctx context.Context, keys []string) (int64, error) {
	return result(d.client.Exists(ctx, keys...).Result())
}

// Expire always sends PEXPIRE so millisecond TTLs keep their precision.
func (d *Driver) Expire(ctx context.Context, key string, ttl time.Duration, cond driver.Condition) (bool, error) {
	if cond == driver.CondNone {
		return result(d.client.PExpire(ctx, key, ttl).Result())
	}
	return result(d.client.Do(ctx, "pexpire", key, ttl.Milliseconds(), cond.String()).Bool())
}

func (d *Driver) TTL(ctx context.Context, key string, unit time.Duration) (int64, error) {
	cmd := d.client.PTTL
	if unit == time.Second {
		cmd = d.client.TTL
	}
	ttl, err := cmd(ctx, key).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	// -1 and -2 come back unscaled
	if ttl < 0 {
		return int64(ttl), nil
	}
	return int64(ttl / unit), nil
}

func (d *Driver) Persist(ctx context.Context, key string) (bool, error) {
	return result(d.client.Persist(ctx, key).Result())
}

func (d *Driver) Type(ctx context.Context, key string) (driver.KeyType, error) {
	t, err := d.client.Type(ctx, key).Result()
	if err != nil {
		return "", mapErr(err)
	}
	return driver.KeyType(t), nil
}

func (d *Driver) Rename(ctx context.Context, oldKey, newKey string) error {
	return mapErr(d.client.Rename(ctx, oldKey, newKey).Err())
}

func (d *Driver) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := d.client.Keys(ctx, pattern).Result()
	return nonNil(keys), mapErr(err)
}

func (d *Driver) Scan(ctx context.Context, cursor uint64, opts driver.ScanOptions) (driver.ScanPage, error) {
	var cmd *redis.ScanCmd
	if opts.Type != "" {
		cmd = d.client.ScanType(ctx, cursor, opts.Match, opts.Count, opts.Type)
	} else {
		cmd = d.client.Scan(ctx, cursor, opts.Match, opts.Count)
	}
	keys, next, err := cmd.Result()
	if err != nil {
		return driver.ScanPage{}, mapErr(err)
	}
	return driver.ScanPage{Cursor: next, Keys: nonNil(keys)}, nil
}

// sortedFields converts an HGETALL map to field order.
func sortedFields(m map[string]string) []driver.FieldValue {
	out := make([]driver.FieldValue, 0, len(m))
	for f, v := range m {
		out = append(out, driver.FieldValue{Field: f, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
