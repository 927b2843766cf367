// Package script evaluates Lua scripts on the client side for drivers that
// have no server-side scripting. redis.call and redis.pcall are routed back
// through a Caller, so scripts see the same command semantics as direct
// calls. Scripts are not atomic with respect to other clients.
package script

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mnorrsken/kvshim/driver"
	lua "github.com/yuin/gopher-lua"
)

// Status is a status reply ("OK", "PONG"). Inside a script it becomes a
// table with an ok field.
type Status string

// Caller executes one command issued by a script. Replies use the raw reply
// model: nil, int64, string, Status, []any, or an error for error replies.
type Caller func(ctx context.Context, name string, args []string) (any, error)

var (
	errNotAllowed = &driver.ReplyError{Msg: "ERR This Redis command is not allowed from a script"}
	errNoArgs     = &driver.ReplyError{Msg: "ERR Please specify at least one argument for this redis lib call"}
)

// Engine runs scripts against a Caller.
type Engine struct {
	cache *Cache
	call  Caller
	debug bool
}

// NewEngine creates an engine. A nil cache gets a private one.
func NewEngine(call Caller, cache *Cache, debug bool) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	return &Engine{cache: cache, call: call, debug: debug}
}

// Cache returns the engine's script cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Eval caches and runs script.
func (e *Engine) Eval(ctx context.Context, script string, keys, argv []string) (any, error) {
	e.cache.Store(script)
	return e.run(ctx, script, keys, argv)
}

// EvalSha runs a previously loaded script.
func (e *Engine) EvalSha(ctx context.Context, sha string, keys, argv []string) (any, error) {
	script, ok := e.cache.Get(sha)
	if !ok {
		return nil, driver.ErrNoScript
	}
	return e.run(ctx, script, keys, argv)
}

func (e *Engine) run(ctx context.Context, script string, keys, argv []string) (any, error) {
	ex := &executor{ctx: ctx, call: e.call, keys: keys, argv: argv, debug: e.debug}
	return ex.execute(script)
}

// executor runs one script invocation
type executor struct {
	ctx   context.Context
	call  Caller
	keys  []string
	argv  []string
	debug bool
}

func (ex *executor) execute(script string) (any, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ex.ctx)

	redisTable := L.NewTable()
	L.SetField(redisTable, "call", L.NewFunction(ex.redisCall))
	L.SetField(redisTable, "pcall", L.NewFunction(ex.redisPCall))
	L.SetField(redisTable, "error_reply", L.NewFunction(redisErrorReply))
	L.SetField(redisTable, "status_reply", L.NewFunction(redisStatusReply))
	L.SetField(redisTable, "log", L.NewFunction(ex.redisLog))
	L.SetField(redisTable, "sha1hex", L.NewFunction(redisSha1Hex))
	for i, level := range []string{"LOG_DEBUG", "LOG_VERBOSE", "LOG_NOTICE", "LOG_WARNING"} {
		L.SetField(redisTable, level, lua.LNumber(i))
	}
	L.SetGlobal("redis", redisTable)

	L.SetGlobal("KEYS", stringTable(L, ex.keys))
	L.SetGlobal("ARGV", stringTable(L, ex.argv))

	if err := L.DoString(script); err != nil {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) {
			if t, ok := apiErr.Object.(*lua.LTable); ok {
				if msg := t.RawGetString("err"); msg != lua.LNil {
					return nil, &driver.ReplyError{Msg: luaToString(msg)}
				}
			}
		}
		if ctxErr := ex.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, driver.Errorf("ERR Error running script: %v", err)
	}

	result := L.Get(-1)
	L.Pop(1)
	reply := luaToReply(result)
	if err, ok := reply.(error); ok {
		return nil, err
	}
	return reply, nil
}

func stringTable(L *lua.LState, values []string) *lua.LTable {
	t := L.NewTable()
	for i, v := range values {
		L.RawSetInt(t, i+1, lua.LString(v))
	}
	return t
}

// redisCall implements redis.call() - raises error replies
func (ex *executor) redisCall(L *lua.LState) int {
	reply := ex.command(L)
	if err, ok := reply.(error); ok {
		t := L.NewTable()
		L.SetField(t, "err", lua.LString(err.Error()))
		L.Error(t, 0)
		return 0
	}
	L.Push(replyToLua(L, reply))
	return 1
}

// redisPCall implements redis.pcall() - returns error replies as tables
func (ex *executor) redisPCall(L *lua.LState) int {
	L.Push(replyToLua(L, ex.command(L)))
	return 1
}

func redisErrorReply(L *lua.LState) int {
	t := L.NewTable()
	L.SetField(t, "err", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func redisStatusReply(L *lua.LState) int {
	t := L.NewTable()
	L.SetField(t, "ok", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func (ex *executor) redisLog(L *lua.LState) int {
	if ex.debug {
		parts := make([]string, 0, L.GetTop())
		for i := 2; i <= L.GetTop(); i++ {
			parts = append(parts, luaToString(L.Get(i)))
		}
		log.Printf("[DEBUG] script log level=%d: %s", L.OptInt(1, 0), strings.Join(parts, " "))
	}
	return 0
}

func redisSha1Hex(L *lua.LState) int {
	L.Push(lua.LString(SHA1(L.CheckString(1))))
	return 1
}

// command runs the command named by the Lua call arguments.
func (ex *executor) command(L *lua.LState) any {
	nargs := L.GetTop()
	if nargs == 0 {
		return errNoArgs
	}
	name := strings.ToUpper(luaToString(L.Get(1)))
	args := make([]string, 0, nargs-1)
	for i := 2; i <= nargs; i++ {
		args = append(args, luaToString(L.Get(i)))
	}

	switch name {
	case "SUBSCRIBE", "PSUBSCRIBE", "UNSUBSCRIBE", "PUNSUBSCRIBE",
		"MULTI", "EXEC", "DISCARD", "WATCH", "UNWATCH",
		"EVAL", "EVALSHA", "SCRIPT":
		return errNotAllowed
	}

	reply, err := ex.call(ex.ctx, name, args)
	if err != nil {
		if driver.IsReplyError(err) {
			return err
		}
		return driver.Errorf("ERR %v", err)
	}
	return reply
}

// luaToString converts a Lua value to a command argument
func luaToString(v lua.LValue) string {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case lua.LBool:
		if val {
			return "1"
		}
		return "0"
	case *lua.LNilType:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// replyToLua converts a command reply to a Lua value
func replyToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LFalse
	case Status:
		t := L.NewTable()
		L.SetField(t, "ok", lua.LString(val))
		return t
	case error:
		t := L.NewTable()
		L.SetField(t, "err", lua.LString(val.Error()))
		return t
	case int64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			L.RawSetInt(t, i+1, replyToLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, item := range val {
			L.RawSetInt(t, i+1, lua.LString(item))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// luaToReply converts a script result to the reply model. Numbers are
// truncated to integers; true becomes 1 and false becomes nil; arrays end at
// the first nil element.
func luaToReply(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return int64(val)
	case lua.LBool:
		if val {
			return int64(1)
		}
		return nil
	case *lua.LTable:
		if e := val.RawGetString("err"); e != lua.LNil {
			return &driver.ReplyError{Msg: luaToString(e)}
		}
		if ok := val.RawGetString("ok"); ok != lua.LNil {
			return luaToString(ok)
		}
		arr := make([]any, 0, val.Len())
		for i := 1; ; i++ {
			item := val.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			reply := luaToReply(item)
			if err, isErr := reply.(error); isErr {
				reply = err.Error()
			}
			arr = append(arr, reply)
		}
		return arr
	}
	return nil
}
