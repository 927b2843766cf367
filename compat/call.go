package compat

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/metrics"
	"github.com/mnorrsken/kvshim/internal/translate"
)

// handler runs one command against the driver and shapes the legacy reply.
type handler func(ctx context.Context, cl *call) (any, error)

// call is one command invocation with its flattened arguments.
type call struct {
	c      *Client
	name   string // lower case
	args   []any  // flattened
	raw    []any  // as passed by the caller
	binary bool
}

func (cl *call) drv() driver.Driver {
	return cl.c.drv
}

// structured returns the arguments after the key with nested arrays and
// objects intact, for translators that accept pair lists. When the key is
// not a plain leading argument the flattened run is returned instead.
func (cl *call) structured() []any {
	if len(cl.raw) > 0 && len(translate.Flatten(cl.raw[0])) == 1 {
		return cl.raw[1:]
	}
	return cl.args[1:]
}

// reply boxes a typed driver result, dropping it when err is set.
func reply[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// arity reports whether the argument count is within [min, max]; max < 0
// means unbounded.
func (cl *call) arity(min, max int) bool {
	return len(cl.args) >= min && (max < 0 || len(cl.args) <= max)
}

func (cl *call) str(i int) string {
	return translate.String(cl.args[i])
}

func (cl *call) strs(from int) []string {
	return translate.Strings(cl.args[from:])
}

func (cl *call) int(i int) (int64, error) {
	return translate.Number(cl.args[i]).Int()
}

func (cl *call) float(i int) (float64, error) {
	return translate.Number(cl.args[i]).Float()
}

func (cl *call) text(s string) any {
	return translate.Text(s, cl.binary)
}

func (cl *call) bulk(s string, found bool) any {
	return translate.Bulk(s, found, cl.binary)
}

func (cl *call) list(values []string) []any {
	return translate.List(values, cl.binary)
}

// reject handles arguments that could not be mapped onto typed
// parameters. The command is forwarded verbatim when the driver supports
// it, so the server raises its own error; otherwise fallback is returned.
func (cl *call) reject(ctx context.Context, fallback error) (any, error) {
	if _, ok := cl.drv().(driver.RawDoer); ok {
		return forward(ctx, cl)
	}
	return nil, fallback
}

func (cl *call) wrongArgs(ctx context.Context) (any, error) {
	return cl.reject(ctx, driver.ErrWrongArgs(cl.name))
}

// forward sends the command line verbatim through the driver.
func forward(ctx context.Context, cl *call) (any, error) {
	doer, ok := cl.drv().(driver.RawDoer)
	if !ok {
		return nil, driver.ErrSyntax
	}
	metrics.CommandPassthrough.WithLabelValues(cl.name).Inc()
	line := append([]string{cl.name}, translate.Strings(cl.args)...)
	reply, err := doer.Do(ctx, line...)
	if err != nil {
		return nil, err
	}
	return translate.Raw(reply, cl.binary), nil
}

// evenPairs reports whether a field/value run is non-empty and complete.
func evenPairs(args []any) bool {
	n := len(translate.Strings(args))
	return n > 0 && n%2 == 0
}

// ttlOf converts an EXPIRE argument to a duration, rejecting values the
// duration cannot hold.
func ttlOf(n int64, unit time.Duration, cmd string) (time.Duration, error) {
	limit := int64(math.MaxInt64 / unit)
	if n > limit || n < -limit {
		return 0, driver.Errorf("ERR invalid expire time in '%s' command", cmd)
	}
	return time.Duration(n) * unit, nil
}

// expireError renames the SET expiry error after the command that caused it.
func expireError(err error, cmd string) error {
	if errors.Is(err, driver.ErrInvalidExpire) && cmd != "set" {
		return driver.Errorf("ERR invalid expire time in '%s' command", cmd)
	}
	return err
}
