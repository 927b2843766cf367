package compat

import (
	"time"

	"github.com/mnorrsken/kvshim/internal/script"
	"github.com/mnorrsken/kvshim/internal/subscription"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	debug         bool
	pollInterval  time.Duration
	lazyConnect   bool
	name          string
	returnBuffers bool
	scriptCache   *script.Cache
}

func defaultOptions() options {
	return options{
		pollInterval: subscription.DefaultIdleDelay,
		name:         "kvshim",
	}
}

// WithDebug enables [DEBUG] logging of commands and subscription churn.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithPollInterval sets the pause after an empty pub/sub poll. It is
// bounded to [1ms, 1s].
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = subscription.ClampIdleDelay(d) }
}

// WithLazyConnect defers connecting until Connect or the first command.
func WithLazyConnect(lazy bool) Option {
	return func(o *options) { o.lazyConnect = lazy }
}

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithReturnBuffers makes every string reply a []byte.
func WithReturnBuffers(enabled bool) Option {
	return func(o *options) { o.returnBuffers = enabled }
}

// WithScriptCache shares a script cache between clients for drivers that
// evaluate scripts client side.
func WithScriptCache(cache *script.Cache) Option {
	return func(o *options) { o.scriptCache = cache }
}
