// Package apperr defines the closed set of error kinds surfaced at the engine
// boundary, per the error handling design: a typed Kind, a correlation id for
// log/response correlation, and an Unwrap chain that never erases the original
// cause as it crosses repository, circuit-breaker, and protocol layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind enumerates the engine's error taxonomy.
type Kind string

const (
	NotFound              Kind = "not_found"
	DuplicateContent      Kind = "duplicate_content"
	InvalidInput          Kind = "invalid_input"
	InvalidTierTransition Kind = "invalid_tier_transition"
	InvalidRequest        Kind = "invalid_request"
	EmbeddingUnavailable  Kind = "embedding_unavailable"
	EmbeddingTimeout      Kind = "embedding_timeout"
	PoolExhausted         Kind = "pool_exhausted"
	StatementTimeout      Kind = "statement_timeout"
	Database              Kind = "database"
	Unauthenticated       Kind = "unauthenticated"
	Unauthorized          Kind = "unauthorized"
	RateLimited           Kind = "rate_limited"
	CircuitOpen           Kind = "circuit_open"
)

// Error is the concrete error type returned at the engine boundary.
type Error struct {
	Kind          Kind
	Message       string
	Cause         error
	CorrelationID string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func build(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:          kind,
		Message:       fmt.Sprintf(format, args...),
		Cause:         cause,
		CorrelationID: uuid.NewString(),
	}
}

func NotFoundf(cause error, format string, args ...any) *Error {
	return build(NotFound, cause, format, args...)
}
func DuplicateContentf(cause error, format string, args ...any) *Error {
	return build(DuplicateContent, cause, format, args...)
}
func InvalidInputf(cause error, format string, args ...any) *Error {
	return build(InvalidInput, cause, format, args...)
}
func InvalidTierTransitionf(cause error, format string, args ...any) *Error {
	return build(InvalidTierTransition, cause, format, args...)
}
func InvalidRequestf(cause error, format string, args ...any) *Error {
	return build(InvalidRequest, cause, format, args...)
}
func EmbeddingUnavailablef(cause error, format string, args ...any) *Error {
	return build(EmbeddingUnavailable, cause, format, args...)
}
func EmbeddingTimeoutf(cause error, format string, args ...any) *Error {
	return build(EmbeddingTimeout, cause, format, args...)
}
func Databasef(cause error, format string, args ...any) *Error {
	return build(Database, cause, format, args...)
}
func PoolExhaustedf(cause error, format string, args ...any) *Error {
	return build(PoolExhausted, cause, format, args...)
}
func StatementTimeoutf(cause error, format string, args ...any) *Error {
	return build(StatementTimeout, cause, format, args...)
}
func Unauthenticatedf(cause error, format string, args ...any) *Error {
	return build(Unauthenticated, cause, format, args...)
}
func Unauthorizedf(cause error, format string, args ...any) *Error {
	return build(Unauthorized, cause, format, args...)
}
func RateLimitedf(cause error, format string, args ...any) *Error {
	return build(RateLimited, cause, format, args...)
}
func CircuitOpenf(cause error, format string, args ...any) *Error {
	return build(CircuitOpen, cause, format, args...)
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
