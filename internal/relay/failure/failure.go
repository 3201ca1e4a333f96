// Package failure maps chain and relay errors to a small set of categories
// that decide whether the queue retries an item.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Category is the classified kind of a failed submission.
type Category string

const (
	CategoryValidation   Category = "ValidationError"
	CategorySubmission   Category = "SubmissionError"
	CategoryVerification Category = "VerificationFailed"
	CategoryTransaction  Category = "TransactionError"
	CategoryNetwork      Category = "NetworkError"
	CategoryUnknown      Category = "UnknownError"
)

// HTTPStatus maps a category to the status the HTTP surface answers with.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryVerification:
		return http.StatusUnprocessableEntity
	case CategoryNetwork, CategoryTransaction:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RetryableByCaller reports whether a client may reasonably resubmit later.
func (c Category) RetryableByCaller() bool {
	return c == CategoryNetwork || c == CategoryTransaction
}

// Error carries the classification of an underlying error.
type Error struct {
	Category  Category
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and wraps it. Already classified errors are returned as is.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	c := Classify(err)
	return &Error{Category: c.Category, Retryable: c.Retryable, Err: err}
}

// Validation builds a non-retryable validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// CategoryOf returns the category of err, classifying it if needed.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	return Wrap(err).Category
}

// IsRetryable reports whether the queue should retry err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Wrap(err).Retryable
}
