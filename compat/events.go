package compat

import (
	"log"
	"sync"

	"github.com/mnorrsken/kvshim/internal/subscription"
)

// Event names.
const (
	EventMessage        = "message"
	EventPMessage       = "pmessage"
	EventMessageBuffer  = "messageBuffer"
	EventPMessageBuffer = "pmessageBuffer"
	EventConnect        = "connect"
	EventReady          = "ready"
	EventError          = "error"
	EventEnd            = "end"
)

// Listener receives the arguments of an event:
//
//	message        (channel, message string)
//	pmessage       (pattern, channel, message string)
//	messageBuffer  (channel, message []byte)
//	pmessageBuffer (pattern, channel, message []byte)
//	error          (err error)
//	connect, ready, end: no arguments
type Listener func(args ...any)

// On registers a listener. Listeners of one event run in registration
// order. Message events run on a dedicated delivery goroutine, so a
// listener may issue commands, including SUBSCRIBE and UNSUBSCRIBE.
func (c *Client) On(event string, l Listener) {
	c.events.on(event, l)
}

// Off removes every listener of an event.
func (c *Client) Off(event string) {
	c.events.off(event)
}

// OnMessage registers a listener for exact-channel messages.
func (c *Client) OnMessage(fn func(channel, message string)) {
	c.On(EventMessage, func(args ...any) { fn(args[0].(string), args[1].(string)) })
}

// OnPMessage registers a listener for pattern messages.
func (c *Client) OnPMessage(fn func(pattern, channel, message string)) {
	c.On(EventPMessage, func(args ...any) { fn(args[0].(string), args[1].(string), args[2].(string)) })
}

// OnMessageBuffer registers a listener receiving raw payload bytes.
func (c *Client) OnMessageBuffer(fn func(channel, message []byte)) {
	c.On(EventMessageBuffer, func(args ...any) { fn(args[0].([]byte), args[1].([]byte)) })
}

// OnPMessageBuffer registers a pattern listener receiving raw bytes.
func (c *Client) OnPMessageBuffer(fn func(pattern, channel, message []byte)) {
	c.On(EventPMessageBuffer, func(args ...any) { fn(args[0].([]byte), args[1].([]byte), args[2].([]byte)) })
}

// OnError registers an error listener.
func (c *Client) OnError(fn func(error)) {
	c.On(EventError, func(args ...any) { fn(args[0].(error)) })
}

// OnConnect registers a connect listener.
func (c *Client) OnConnect(fn func()) {
	c.On(EventConnect, func(...any) { fn() })
}

// OnReady registers a ready listener.
func (c *Client) OnReady(fn func()) {
	c.On(EventReady, func(...any) { fn() })
}

// OnEnd registers an end listener.
func (c *Client) OnEnd(fn func()) {
	c.On(EventEnd, func(...any) { fn() })
}

type emitter struct {
	name      string
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func newEmitter(name string) *emitter {
	return &emitter{name: name, listeners: make(map[string][]Listener)}
}

func (e *emitter) on(event string, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], l)
}

func (e *emitter) off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, event)
}

// emit calls the listeners of event synchronously. An error event nobody
// listens to is logged.
func (e *emitter) emit(event string, args ...any) {
	e.mu.RLock()
	ls := append([]Listener(nil), e.listeners[event]...)
	e.mu.RUnlock()

	if len(ls) == 0 && event == EventError {
		log.Printf("%s: unhandled error event: %v", e.name, args[0])
		return
	}
	for _, l := range ls {
		e.invoke(event, l, args)
	}
}

func (e *emitter) invoke(event string, l Listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: %s listener panicked: %v", e.name, event, r)
		}
	}()
	l(args...)
}

// dispatcher decouples message delivery from the poller: envelopes are
// queued without blocking and handed to listeners on one goroutine in
// arrival order.
type dispatcher struct {
	deliver func(subscription.Envelope)

	mu     sync.Mutex
	queue  []subscription.Envelope
	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newDispatcher(deliver func(subscription.Envelope)) *dispatcher {
	d := &dispatcher{
		deliver: deliver,
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(env subscription.Envelope) {
	d.mu.Lock()
	d.queue = append(d.queue, env)
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			env := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			select {
			case <-d.quit:
				return
			default:
			}
			d.deliver(env)
		}
	}
}

// stop ends delivery; queued envelopes are discarded. It does not wait when
// called from a listener.
func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.quit) })
}
