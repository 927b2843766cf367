package driver

import (
	"errors"
	"fmt"
)

// ReplyError is an error reply raised by a backend. Its text matches what a
// Redis server would answer for the same condition.
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string { return e.Msg }

// Errorf builds a ReplyError.
func Errorf(format string, args ...any) *ReplyError {
	return &ReplyError{Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrWrongType       = &ReplyError{"WRONGTYPE Operation against a key holding the wrong kind of value"}
	ErrNotInteger      = &ReplyError{"ERR value is not an integer or out of range"}
	ErrNotFloat        = &ReplyError{"ERR value is not a valid float"}
	ErrSyntax          = &ReplyError{"ERR syntax error"}
	ErrNoSuchKey       = &ReplyError{"ERR no such key"}
	ErrIndexOutOfRange = &ReplyError{"ERR index out of range"}
	ErrMinMaxNotFloat  = &ReplyError{"ERR min or max is not a float"}
	ErrMinMaxNotString = &ReplyError{"ERR min or max not valid string range item"}
	ErrNaN             = &ReplyError{"ERR increment would produce NaN or Infinity"}
	ErrScoreNaN        = &ReplyError{"ERR resulting score is not a number (NaN)"}
	ErrOverflow        = &ReplyError{"ERR increment or decrement would overflow"}
	ErrHashNotInteger  = &ReplyError{"ERR hash value is not an integer"}
	ErrHashNotFloat    = &ReplyError{"ERR hash value is not a float"}
	ErrInvalidExpire   = &ReplyError{"ERR invalid expire time in 'set' command"}
	ErrInvalidCursor   = &ReplyError{"ERR invalid cursor"}
	ErrTimeoutNotFloat = &ReplyError{"ERR timeout is not a float or out of range"}
	ErrTimeoutNegative = &ReplyError{"ERR timeout is negative"}
	ErrNotPositive     = &ReplyError{"ERR value is out of range, must be positive"}
	ErrZAddNXXX        = &ReplyError{"ERR XX and NX options at the same time are not compatible"}
	ErrZAddGTLTNX      = &ReplyError{"ERR GT, LT, and/or NX options at the same time are not compatible"}
	ErrZAddIncrPair    = &ReplyError{"ERR INCR option supports a single increment-element pair"}
	ErrNoScript        = &ReplyError{"NOSCRIPT No matching script. Please use EVAL."}
)

// ErrWrongArgs returns the arity error for a command.
func ErrWrongArgs(cmd string) *ReplyError {
	return Errorf("ERR wrong number of arguments for '%s' command", cmd)
}

var (
	// ErrSubscriberClosed is returned by Subscriber.TryNext once the
	// subscriber has been closed.
	ErrSubscriberClosed = errors.New("subscriber closed")

	// ErrClosed is returned by a driver whose connection has been closed.
	ErrClosed = errors.New("connection closed")
)

// IsReplyError reports whether err is a reply raised by the backend rather
// than a transport failure.
func IsReplyError(err error) bool {
	var re *ReplyError
	if errors.As(err, &re) {
		return true
	}
	var redisErr interface{ RedisError() }
	return errors.As(err, &redisErr)
}
