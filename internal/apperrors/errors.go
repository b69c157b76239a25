package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown         Kind = "UNKNOWN"
	KindCrypto          Kind = "CRYPTO"
	KindSession         Kind = "SESSION"
	KindPersistence     Kind = "PERSISTENCE"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindNotFound        Kind = "NOT_FOUND"
	KindInternal        Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind and message so a wrapped sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithCause attaches a cause to a sentinel, keeping its identity for errors.Is.
func WithCause(sentinel error, cause error) error {
	var s *Error
	if !errors.As(sentinel, &s) {
		return fmt.Errorf("%w: %v", sentinel, cause)
	}
	return &Error{Kind: s.Kind, Message: s.Message, Cause: cause}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Crypto(msg string, cause error) error {
	return Wrap(KindCrypto, msg, cause)
}

func Session(msg string, cause error) error {
	return Wrap(KindSession, msg, cause)
}

func Persistence(msg string, cause error) error {
	return Wrap(KindPersistence, msg, cause)
}

func InvalidArg(msg string) error {
	return New(KindInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(KindInternal, msg, cause)
}
