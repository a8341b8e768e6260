package domain

import (
	"errors"
	"fmt"
)

// Kind categorizes an application error.
type Kind string

const (
	// KindValidation is an illegal transition or an otherwise rejected operation.
	KindValidation Kind = "validation"
	// KindBadRequest is malformed caller input.
	KindBadRequest Kind = "bad_request"
	// KindNotFound is an unknown job or agent.
	KindNotFound Kind = "not_found"
	// KindAuthorization is an actor acting on a job or agent it does not own.
	KindAuthorization Kind = "authorization"
	// KindExternalVerification is a payment the verifier rejected or could not check.
	KindExternalVerification Kind = "external_verification"
	// KindWebhookDelivery is a webhook whose retries were exhausted.
	KindWebhookDelivery Kind = "webhook_delivery"
	// KindProcessingTimeout is a task processor that overran its bound.
	KindProcessingTimeout Kind = "processing_timeout"
	// KindConflict is a duplicate create.
	KindConflict Kind = "conflict"
	// KindInternal is everything else.
	KindInternal Kind = "internal"
)

// Error is a classified application error. It supports errors.Is and errors.As
// through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	// Status is the job's current status when a transition was rejected.
	Status Status
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = &Error{Kind: KindNotFound, Message: "job not found"}

	// ErrAgentNotFound is returned when an agent cannot be found in the store
	ErrAgentNotFound = &Error{Kind: KindNotFound, Message: "agent not found"}

	// ErrInvalidPayload is returned when a queued message or job input is malformed
	ErrInvalidPayload = &Error{Kind: KindBadRequest, Message: "invalid payload"}
)

// NewError builds an error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// RejectTransition reports an event that is not allowed from the current status.
func RejectTransition(event Event, current Status) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("cannot apply %s: job is %s", event, current),
		Status:  current,
	}
}

// BadRequestf builds a bad request error.
func BadRequestf(format string, args ...any) *Error {
	return NewError(KindBadRequest, format, args...)
}

// Unauthorizedf builds an authorization error.
func Unauthorizedf(format string, args ...any) *Error {
	return NewError(KindAuthorization, format, args...)
}

// KindOf returns the kind of err, KindInternal for unclassified errors and ""
// for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf returns the current job status carried by a rejected transition.
func StatusOf(err error) Status {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return ""
}

func isKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// IsValidation checks if err is a validation error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsAuthorization checks if err is an authorization error.
func IsAuthorization(err error) bool { return isKind(err, KindAuthorization) }

// IsExternalVerification checks if err is a payment verification failure.
func IsExternalVerification(err error) bool { return isKind(err, KindExternalVerification) }

// IsWebhookDelivery checks if err is an exhausted webhook delivery.
func IsWebhookDelivery(err error) bool { return isKind(err, KindWebhookDelivery) }

// IsProcessingTimeout checks if err is a task processor timeout.
func IsProcessingTimeout(err error) bool { return isKind(err, KindProcessingTimeout) }

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
