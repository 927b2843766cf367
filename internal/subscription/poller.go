package subscription

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/metrics"
)

const (
	// DefaultIdleDelay is the pause between polls that found no message.
	DefaultIdleDelay = 10 * time.Millisecond
	minIdleDelay     = time.Millisecond
	maxIdleDelay     = time.Second
)

// ClampIdleDelay bounds an idle delay to [1ms, 1s]; zero selects the default.
func ClampIdleDelay(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultIdleDelay
	case d < minIdleDelay:
		return minIdleDelay
	case d > maxIdleDelay:
		return maxIdleDelay
	}
	return d
}

// Envelope is one delivered message. Pattern is empty for exact-channel
// deliveries. Seq increases in arrival order across subscriber generations.
type Envelope struct {
	Channel string
	Pattern string
	Payload string
	Seq     uint64
}

// Poller drains one backend subscriber. It asks for at most one message
// per tick, loops immediately after a message and sleeps IdleDelay after an
// empty poll. Any error from the subscriber ends the loop.
type Poller struct {
	sub     driver.Subscriber
	gen     uint64
	current func() uint64
	emit    func(Envelope)
	seq     *atomic.Uint64
	delay   time.Duration
	debug   bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoller creates a poller for sub tagged with generation gen. Envelopes
// are only emitted while current() still returns gen.
func NewPoller(sub driver.Subscriber, gen uint64, current func() uint64, emit func(Envelope), seq *atomic.Uint64, delay time.Duration, debug bool) *Poller {
	if seq == nil {
		seq = new(atomic.Uint64)
	}
	return &Poller{
		sub:     sub,
		gen:     gen,
		current: current,
		emit:    emit,
		seq:     seq,
		delay:   ClampIdleDelay(delay),
		debug:   debug,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the loop in its own goroutine. ctx is handed to every poll.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop quiesces the poller: an in-flight poll is allowed to finish, then
// the loop exits. Stop blocks until it has.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	idle := time.NewTimer(p.delay)
	defer idle.Stop()

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		msg, err := p.sub.TryNext(ctx)
		if err != nil {
			log.Printf("subscription: poller gen=%d stopped: %v", p.gen, err)
			return
		}
		if msg != nil {
			p.deliver(msg)
			continue
		}

		idle.Reset(p.delay)
		select {
		case <-p.stop:
			return
		case <-idle.C:
		}
	}
}

func (p *Poller) deliver(msg *driver.Message) {
	if p.current() != p.gen {
		metrics.MessagesDropped.Inc()
		if p.debug {
			log.Printf("[DEBUG] poller gen=%d dropped stale message on %q", p.gen, msg.Channel)
		}
		return
	}
	kind := "message"
	if msg.Pattern != "" {
		kind = "pmessage"
	}
	metrics.MessagesDelivered.WithLabelValues(kind).Inc()
	p.emit(Envelope{
		Channel: msg.Channel,
		Pattern: msg.Pattern,
		Payload: msg.Payload,
		Seq:     p.seq.Add(1),
	})
}
