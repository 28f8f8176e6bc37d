// Package perr implements the simulator's error taxonomy (kinds, not
// names): InvalidArgument, OutOfMemory, NoData, Timeout, BadMessage,
// NotFound and Fatal. Every error that crosses a layer boundary is one of
// these kinds, wrapped with github.com/pkg/errors so a Fatal error keeps
// its stack trace for diagnosis.
package perr

import (
	"sync"

	"github.com/pkg/errors"
)

// Kind is one of the taxonomy's error categories.
type Kind int

const (
	InvalidArgument Kind = iota
	OutOfMemory
	NoData
	Timeout
	BadMessage
	NotFound
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case OutOfMemory:
		return "out of memory"
	case NoData:
		return "no data"
	case Timeout:
		return "timeout"
	case BadMessage:
		return "bad message"
	case NotFound:
		return "not found"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a kinded error. Two Errors compare equal under errors.Is when
// their Kind matches, regardless of message, so callers can write
// `errors.Is(err, perr.ErrTimeout)`-style checks against the sentinels below.
type Error struct {
	Kind Kind
	msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is implements errors.Is matching by Kind alone, the way a sentinel would.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a new Error of the given kind. Fatal errors capture a stack
// trace via github.com/pkg/errors so a crashed task's cause can be traced.
func New(kind Kind, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, msg: errors.Errorf(format, args...).Error()}
	if kind == Fatal {
		e.Err = errors.New(e.msg)
	}
	setLast(e)
	return e
}

// Wrap annotates cause with a Kind, preserving it as the error chain's root
// via Unwrap so errors.Is/errors.As still reach the original cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, msg: errors.Wrapf(cause, format, args...).Error(), Err: cause}
	setLast(e)
	return e
}

// sentinels usable with errors.Is(err, perr.ErrTimeout) etc.
var (
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrOutOfMemory     = &Error{Kind: OutOfMemory}
	ErrNoData          = &Error{Kind: NoData}
	ErrTimeout         = &Error{Kind: Timeout}
	ErrBadMessage      = &Error{Kind: BadMessage}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrFatal           = &Error{Kind: Fatal}
)

var (
	lastMu sync.Mutex
	last   error
)

func setLast(e error) {
	lastMu.Lock()
	last = e
	lastMu.Unlock()
}

// Last returns the last error kind recorded process-wide, mirroring the C
// API's process-wide last-error slot (spec §7, "User-visible").
func Last() error {
	lastMu.Lock()
	defer lastMu.Unlock()
	return last
}

// KindOf extracts the Kind from err, if it (or something it wraps) is a
// *Error; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
