package goredis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ============== Scripting Commands ==============

func (d *Driver) Eval(ctx context.Context, script string, keys, args []string) (any, error) {
	return reply(d.client.Eval(ctx, script, keys, ifaces(args)...).Result())
}

func (d *Driver) EvalSha(ctx context.Context, sha string, keys, args []string) (any, error) {
	return reply(d.client.EvalSha(ctx, sha, keys, ifaces(args)...).Result())
}

func (d *Driver) ScriptLoad(ctx context.Context, script string) (string, error) {
	return result(d.client.ScriptLoad(ctx, script).Result())
}

func (d *Driver) ScriptExists(ctx context.Context, shas []string) ([]bool, error) {
	return result(d.client.ScriptExists(ctx, shas...).Result())
}

// Do forwards a command line verbatim.
func (d *Driver) Do(ctx context.Context, args ...string) (any, error) {
	return reply(d.client.Do(ctx, ifaces(args)...).Result())
}

// reply turns a nil reply into a nil value.
func reply(v any, err error) (any, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}
