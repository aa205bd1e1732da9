package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for callers.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindConflict          Kind = "CONFLICT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindInternal          Kind = "INTERNAL"
)

// Error is a machine readable failure: Kind for handling, Code for clients,
// Message for humans.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by Code when target carries one, otherwise by Kind, so the
// kind sentinels below match every error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInternal          = &Error{Kind: KindInternal}
)

var (
	// ErrRideNotFound is returned when the referenced ride does not exist.
	ErrRideNotFound = &Error{Kind: KindNotFound, Code: "RIDE_NOT_FOUND", Message: "ride not found"}

	// ErrOfferNotFoundOrExpired is returned when no open offer exists for the driver.
	ErrOfferNotFoundOrExpired = &Error{Kind: KindNotFound, Code: "OFFER_NOT_FOUND_OR_EXPIRED", Message: "offer not found or expired"}

	// ErrRideAlreadyTaken is returned to every driver but the one who won the ride.
	ErrRideAlreadyTaken = &Error{Kind: KindConflict, Code: "RIDE_ALREADY_TAKEN", Message: "ride was already accepted by another driver"}

	// ErrStatusChanged is returned when the ride moved on between read and write.
	ErrStatusChanged = &Error{Kind: KindConflict, Code: "STATUS_CHANGED", Message: "ride status changed concurrently, re-fetch and retry"}

	// ErrRideNotMatching is returned when re-matching a ride that is no longer looking for drivers.
	ErrRideNotMatching = &Error{Kind: KindConflict, Code: "RIDE_NOT_MATCHING", Message: "ride is not in MATCHING"}

	// ErrNotParticipant is returned when the actor is neither requester nor assigned driver.
	ErrNotParticipant = &Error{Kind: KindForbidden, Code: "NOT_PARTICIPANT", Message: "actor is not a participant of this ride"}

	// ErrRequesterCannotCancel is returned when the requester cancels after a driver accepted.
	ErrRequesterCannotCancel = &Error{Kind: KindForbidden, Code: "REQUESTER_CANNOT_CANCEL", Message: "ride can no longer be cancelled by the requester"}
)

func validationError(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func forbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: fmt.Sprintf(format, args...)}
}

func invalidTransitionError(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// internalError wraps a storage or transport failure. Errors that are already
// classified pass through unchanged.
func internalError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: op + " failed", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}
