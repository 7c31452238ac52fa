// Package fault defines the structured error taxonomy shared by the ledger,
// the access-control gate and the transition engine. Every failure of a
// ledger operation surfaces as a *Error carrying its Code and the offending
// state or role; callers branch on it with errors.Is against the sentinels.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failed ledger operation.
type Code string

const (
	NotFound          Code = "not_found"
	DuplicateRecord   Code = "duplicate_record"
	InvalidTransition Code = "invalid_transition"
	PermissionDenied  Code = "permission_denied"
	MalformedInput    Code = "malformed_input"
	// Conflict means another writer advanced the record between read and commit.
	Conflict Code = "conflict"
)

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrNotFound          = &Error{Code: NotFound}
	ErrDuplicateRecord   = &Error{Code: DuplicateRecord}
	ErrInvalidTransition = &Error{Code: InvalidTransition}
	ErrPermissionDenied  = &Error{Code: PermissionDenied}
	ErrMalformedInput    = &Error{Code: MalformedInput}
	ErrConflict          = &Error{Code: Conflict}
)

// Error is a terminal failure of a ledger operation.
type Error struct {
	Code Code
	Msg  string

	// Expected and Actual are set for InvalidTransition.
	Expected []string
	Actual   string

	// Actor and Role are set for PermissionDenied.
	Actor string
	Role  string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	switch e.Code {
	case InvalidTransition:
		fmt.Fprintf(&b, " (expected %s, actual %s)", strings.Join(e.Expected, "|"), e.Actual)
	case PermissionDenied:
		if e.Role != "" {
			fmt.Fprintf(&b, " (actor %q lacks role %s)", e.Actor, e.Role)
		}
	}
	return b.String()
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an *Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Malformed returns a MalformedInput error.
func Malformed(format string, args ...any) *Error {
	return New(MalformedInput, format, args...)
}

// Transition returns an InvalidTransition error carrying expected vs. actual state.
func Transition(op string, expected []string, actual string) *Error {
	return &Error{Code: InvalidTransition, Msg: op, Expected: expected, Actual: actual}
}

// Denied returns a PermissionDenied error for actor missing role.
func Denied(actor, role string) *Error {
	return &Error{Code: PermissionDenied, Msg: "missing role", Actor: actor, Role: role}
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}
