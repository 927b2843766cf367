package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"strings"
	"syscall"

	"github.com/mnorrsken/kvshim/driver"
)

// Error is the error built for failure values that are not errors: strings,
// objects carrying a message, or anything else a command path panicked
// with. Value keeps the original.
type Error struct {
	Msg   string
	Value any
}

func (e *Error) Error() string { return e.Msg }

// NormalizeError turns any failure value into an error. An error is
// returned as is so callers can still match its concrete type; nil yields
// an Error with an empty message.
func NormalizeError(v any) error {
	switch x := v.(type) {
	case nil:
		return &Error{}
	case error:
		if isNilValue(x) {
			return &Error{}
		}
		return x
	case string:
		return &Error{Msg: x, Value: x}
	case interface{ Message() string }:
		return &Error{Msg: x.Message(), Value: v}
	}
	if msg, ok := messageField(v); ok {
		return &Error{Msg: msg, Value: v}
	}
	return &Error{Msg: fmt.Sprint(v), Value: v}
}

// messageField finds a "message" entry in a map or struct.
func messageField(v any) (string, bool) {
	var msg string
	var found bool
	forEachObjectValue(v, func(name string, val any) {
		if !found && strings.EqualFold(name, "message") {
			msg, found = String(val), true
		}
	})
	return msg, found
}

// IsConnectionError reports whether err is a transport failure rather than
// a reply from the backend.
func IsConnectionError(err error) bool {
	if err == nil || driver.IsReplyError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// isNilValue reports whether v is nil or a typed nil.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
