package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindReservation Kind = "reservation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Error is a classified failure with a stable code.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

var (
	ErrValidation    = &Error{Kind: KindValidation, Code: "invalid_input"}
	ErrUsernameTaken = &Error{Kind: KindValidation, Code: "username_taken"}

	ErrAuthMissing        = &Error{Kind: KindAuth, Code: "token_missing"}
	ErrAuthMalformed      = &Error{Kind: KindAuth, Code: "token_malformed"}
	ErrAuthExpired        = &Error{Kind: KindAuth, Code: "token_expired"}
	ErrUnknownUser        = &Error{Kind: KindAuth, Code: "unknown_user"}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Code: "invalid_credentials"}
	ErrUnauthorized       = &Error{Kind: KindAuth, Code: "unauthorized"}

	ErrTrainNotFound = &Error{Kind: KindReservation, Code: "train_not_found"}
	ErrSoldOut       = &Error{Kind: KindReservation, Code: "sold_out"}

	ErrUserNotFound = &Error{Kind: KindNotFound, Code: "user_not_found"}

	// ErrSeatConflict means the seat counter moved between read and commit.
	ErrSeatConflict = &Error{Kind: KindConflict, Code: "seat_conflict"}

	// ErrLockTimeout means the caller gave up or timed out before its turn on
	// the train came up. Nothing was written.
	ErrLockTimeout = &Error{Kind: KindUnavailable, Code: "lock_timeout"}
)

// Invalid wraps ErrValidation with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the stable code of the first *Error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
