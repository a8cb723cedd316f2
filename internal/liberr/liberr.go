// Package liberr defines the typed error taxonomy shared by the catalog and
// the borrowing ledger. Every business-rule violation is reported as one of
// a small set of kinds so that callers (HTTP handlers, simulation tools) can
// map failures without string matching.
package liberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	// KindNotFound indicates a referenced book, member or loan does not exist.
	KindNotFound Kind = "not_found"

	// KindConflict indicates a state conflict: book unavailable, loan already
	// returned, or a duplicate isbn/email.
	KindConflict Kind = "conflict"

	// KindBlocked indicates a deletion refused because loan history exists.
	KindBlocked Kind = "blocked"

	// KindTimeout indicates an external call exceeded its budget.
	KindTimeout Kind = "timeout"

	// KindUnknown indicates an unexpected storage-level fault. The enclosing
	// transaction has been rolled back.
	KindUnknown Kind = "unknown"
)

// Error carries a kind alongside a short, caller-facing message.
type Error struct {
	Kind Kind
	Msg  string

	// ReturnedAtMs is set on already-returned conflicts so the caller can
	// report when the loan was originally closed.
	ReturnedAtMs *int64
}

func (e *Error) Error() string {
	return e.Msg
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound constructs a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict constructs a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Blocked constructs a KindBlocked error.
func Blocked(format string, args ...any) *Error {
	return New(KindBlocked, format, args...)
}

// Unknown wraps an unexpected storage-level failure.
func Unknown(err error) *Error {
	return &Error{Kind: KindUnknown, Msg: fmt.Sprintf("internal storage fault: %v", err)}
}

// KindOf returns the kind of err, or KindUnknown for errors outside the
// taxonomy. A nil error has no kind; callers should check err != nil first.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a KindConflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsBlocked reports whether err is a KindBlocked error.
func IsBlocked(err error) bool { return KindOf(err) == KindBlocked }

// IsTimeout reports whether err is a KindTimeout error.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }
