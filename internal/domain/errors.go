package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures so callers can render or route them without
// string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConstraint ErrorKind = "constraint"
	KindStorage    ErrorKind = "storage"
	KindScheduling ErrorKind = "scheduling"
)

// Error carries a kind plus a human-readable message, optionally wrapping an
// underlying cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two domain errors match on kind, so
// errors.Is(err, &Error{Kind: KindNotFound}) works for any not-found error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func NewValidation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func NewConstraint(format string, args ...any) error {
	return &Error{Kind: KindConstraint, Msg: fmt.Sprintf(format, args...)}
}

func NewStorage(msg string, cause error) error {
	return &Error{Kind: KindStorage, Msg: msg, Err: cause}
}

func NewScheduling(format string, args ...any) error {
	return &Error{Kind: KindScheduling, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a domain error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConstraint(err error) bool { return KindOf(err) == KindConstraint }
func IsStorage(err error) bool    { return KindOf(err) == KindStorage }
