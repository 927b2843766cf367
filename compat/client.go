// Package compat exposes the legacy key-value client contract on top of a
// typed driver.Driver.
//
// Commands keep the legacy variadic calling convention: every command takes
// loosely typed arguments (strings, numbers, byte slices, nested slices,
// maps and structs) and returns the legacy result shapes (nil, int64,
// string, []byte, []any, maps). Pub/sub is exposed through an event
// surface; see On.
package compat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/metrics"
	"github.com/mnorrsken/kvshim/internal/script"
	"github.com/mnorrsken/kvshim/internal/subscription"
	"github.com/mnorrsken/kvshim/internal/translate"
)

// ErrConnectionClosed fails every call issued after Close and every call
// that was in flight when Close ran.
var ErrConnectionClosed = fmt.Errorf("compat: %w", driver.ErrClosed)

// Client is a legacy-contract client. It is safe for concurrent use.
type Client struct {
	drv  driver.Driver
	opts options

	events   *emitter
	messages *dispatcher
	subs     *subscription.Machine
	scripts  *script.Engine

	connMu    sync.Mutex
	connected atomic.Bool
	closed    atomic.Bool

	// ctx is cancelled by Close; in-flight calls are bound to it
	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps an already configured driver. Unless WithLazyConnect is set
// the client starts connecting right away and reports the outcome through
// the connect, ready and error events.
func New(d driver.Driver, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		drv:    d,
		opts:   o,
		events: newEmitter(o.name),
		ctx:    ctx,
		cancel: cancel,
	}
	c.messages = newDispatcher(c.deliver)
	c.subs = subscription.NewMachine(d, subscription.Config{
		IdleDelay: o.pollInterval,
		OnMessage: c.messages.enqueue,
		Debug:     o.debug,
	})
	c.scripts = script.NewEngine(c.scriptCall, o.scriptCache, o.debug)

	if !o.lazyConnect {
		go c.Connect(ctx)
	}
	return c
}

// Driver returns the wrapped driver.
func (c *Client) Driver() driver.Driver {
	return c.drv
}

// Connect verifies the backend with a PING and emits connect then ready.
// It is a no-op once connected. Commands connect implicitly.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.connected.Load() {
		return nil
	}
	if err := c.drv.Ping(ctx); err != nil {
		if c.closed.Load() {
			return ErrConnectionClosed
		}
		c.events.emit(EventError, err)
		return err
	}
	c.connected.Store(true)
	if c.opts.debug {
		log.Printf("[DEBUG] %s connected", c.opts.name)
	}
	c.events.emit(EventConnect)
	c.events.emit(EventReady)
	return nil
}

// Close fails in-flight calls with ErrConnectionClosed, tears down the
// subscriber, closes the driver and emits end.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	err := c.subs.Close()
	c.messages.stop()
	if derr := c.drv.Close(); derr != nil && err == nil {
		err = derr
	}
	if c.opts.debug {
		log.Printf("[DEBUG] %s closed", c.opts.name)
	}
	c.events.emit(EventEnd)
	return err
}

// Subscriptions returns the current subscription state.
func (c *Client) Subscriptions() subscription.Snapshot {
	return c.subs.Snapshot()
}

// Call runs a command by name. Names are case-insensitive. Commands outside
// the translated set are forwarded verbatim when the driver can do so.
func (c *Client) Call(ctx context.Context, name string, args ...any) (any, error) {
	return c.call(ctx, name, args, c.opts.returnBuffers)
}

func (c *Client) call(ctx context.Context, name string, args []any, binary bool) (result any, err error) {
	lname := strings.ToLower(name)
	h, known := commands[lname]
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	if !known {
		if _, canForward := c.drv.(driver.RawDoer); !canForward {
			metrics.RecordCommand("unknown", 0, true)
			return nil, driver.Errorf("ERR unknown command '%s'", name)
		}
		h = forward
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.ctx, func() { cancel(ErrConnectionClosed) })
	defer stop()
	defer cancel(nil)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, translate.NormalizeError(r)
			log.Printf("%s: recovered panic in %s: %v", c.opts.name, lname, r)
		}
		label := lname
		if !known {
			label = "passthrough"
		}
		metrics.RecordCommand(label, time.Since(start), err != nil)
	}()

	cl := &call{c: c, name: lname, args: translate.Flatten(args...), raw: args, binary: binary}
	result, err = h(callCtx, cl)
	if err != nil {
		result, err = nil, c.classify(callCtx, err)
	}
	if c.opts.debug {
		log.Printf("[DEBUG] %s %s -> %T err=%v", c.opts.name, strings.ToUpper(lname), result, err)
	}
	return result, err
}

// classify maps close-induced failures to ErrConnectionClosed and emits
// other connection errors as error events.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrConnectionClosed) ||
		(c.closed.Load() && (errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrClosed))) {
		return ErrConnectionClosed
	}
	if translate.IsConnectionError(err) {
		c.events.emit(EventError, err)
	}
	return err
}

// deliver turns an envelope into message events. It runs on the
// dispatcher goroutine.
func (c *Client) deliver(env subscription.Envelope) {
	if env.Pattern == "" {
		c.events.emit(EventMessage, translate.Text(env.Channel, false), translate.Text(env.Payload, false))
		c.events.emit(EventMessageBuffer, []byte(env.Channel), []byte(env.Payload))
		return
	}
	c.events.emit(EventPMessage, translate.Text(env.Pattern, false), translate.Text(env.Channel, false), translate.Text(env.Payload, false))
	c.events.emit(EventPMessageBuffer, []byte(env.Pattern), []byte(env.Channel), []byte(env.Payload))
}
