package compat

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/script"
	"github.com/mnorrsken/kvshim/internal/subscription"
	"github.com/mnorrsken/kvshim/internal/translate"
)

// ============== Pub/Sub Commands ==============

func publishCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(2, 2) {
		return cl.wrongArgs(ctx)
	}
	return reply(cl.drv().Publish(ctx, cl.str(0), cl.str(1)))
}

func subscribeCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	return subscriptionReply(cl.c.subs.Subscribe(ctx, cl.strs(0)...))
}

func unsubscribeCmd(ctx context.Context, cl *call) (any, error) {
	return subscriptionReply(cl.c.subs.Unsubscribe(ctx, cl.strs(0)...))
}

func psubscribeCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	return subscriptionReply(cl.c.subs.PSubscribe(ctx, cl.strs(0)...))
}

func punsubscribeCmd(ctx context.Context, cl *call) (any, error) {
	return subscriptionReply(cl.c.subs.PUnsubscribe(ctx, cl.strs(0)...))
}

// subscriptionReply returns the total number of active subscriptions,
// channels and patterns together.
func subscriptionReply(count int, err error) (any, error) {
	if errors.Is(err, subscription.ErrClosed) {
		return nil, ErrConnectionClosed
	}
	if err != nil {
		return nil, err
	}
	return int64(count), nil
}

// ============== Scripting Commands ==============

func evalCmd(bySha bool) handler {
	return func(ctx context.Context, cl *call) (any, error) {
		if !cl.arity(2, -1) {
			return cl.wrongArgs(ctx)
		}
		body := cl.str(0)
		numKeys, err := strconv.Atoi(cl.str(1))
		if err != nil {
			return nil, driver.ErrNotInteger
		}
		rest := cl.strs(2)
		switch {
		case numKeys < 0:
			return nil, driver.Errorf("ERR Number of keys can't be negative")
		case numKeys > len(rest):
			return nil, driver.Errorf("ERR Number of keys can't be greater than number of args")
		}
		keys, argv := rest[:numKeys], rest[numKeys:]

		var reply any
		if s, ok := cl.drv().(driver.Scripter); ok {
			if bySha {
				reply, err = s.EvalSha(ctx, body, keys, argv)
			} else {
				reply, err = s.Eval(ctx, body, keys, argv)
			}
		} else if bySha {
			reply, err = cl.c.scripts.EvalSha(ctx, body, keys, argv)
		} else {
			reply, err = cl.c.scripts.Eval(ctx, body, keys, argv)
		}
		if err != nil {
			return nil, err
		}
		return translate.Raw(reply, cl.binary), nil
	}
}

func scriptCmd(ctx context.Context, cl *call) (any, error) {
	if !cl.arity(1, -1) {
		return cl.wrongArgs(ctx)
	}
	scripter, serverSide := cl.drv().(driver.Scripter)
	cache := cl.c.scripts.Cache()

	switch strings.ToUpper(cl.str(0)) {
	case "LOAD":
		if !cl.arity(2, 2) {
			return nil, driver.ErrWrongArgs("script|load")
		}
		if serverSide {
			sha, err := scripter.ScriptLoad(ctx, cl.str(1))
			if err != nil {
				return nil, err
			}
			return sha, nil
		}
		return cache.Store(cl.str(1)), nil
	case "EXISTS":
		if !cl.arity(2, -1) {
			return nil, driver.ErrWrongArgs("script|exists")
		}
		if serverSide {
			found, err := scripter.ScriptExists(ctx, cl.strs(1))
			if err != nil {
				return nil, err
			}
			return translate.Bools(found), nil
		}
		return translate.Bools(cache.Exists(cl.strs(1))), nil
	case "FLUSH":
		cache.Flush()
		if serverSide {
			return cl.reject(ctx, driver.ErrSyntax)
		}
		return "OK", nil
	}
	return cl.reject(ctx, driver.Errorf("ERR unknown subcommand '%s'. Try SCRIPT HELP.", cl.str(0)))
}

// scriptCall runs a command issued by a client-side script through the same
// handlers as direct calls and converts the legacy reply back to the
// script reply model.
func (c *Client) scriptCall(ctx context.Context, name string, args []string) (any, error) {
	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}
	lname := strings.ToLower(name)
	reply, err := c.call(ctx, lname, argv, false)
	if err != nil {
		return nil, err
	}
	return scriptReply(lname, reply), nil
}

// statusCommands answer with a status reply rather than a bulk string.
var statusCommands = map[string]bool{
	"set": true, "setex": true, "psetex": true, "mset": true, "hmset": true,
	"rename": true, "flushdb": true, "lset": true, "ltrim": true,
	"ping": true, "type": true, "quit": true,
}

func scriptReply(name string, v any) any {
	switch x := v.(type) {
	case string:
		if statusCommands[name] && (x == "OK" || x == "PONG" || name == "type") {
			return script.Status(x)
		}
		return x
	case []byte:
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = scriptReply("", e)
		}
		return out
	case map[string]string:
		fields := make([]string, 0, len(x))
		for f := range x {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out := make([]any, 0, 2*len(fields))
		for _, f := range fields {
			out = append(out, f, x[f])
		}
		return out
	}
	return v
}
