package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// InternalError is the rich error type carried through the system. It wraps
// an underlying cause, an operator-safe hint, and optional reportable
// details, and is marked with one of the package sentinels.
type InternalError struct {
	cause             error
	hint              string
	reportableDetails map[string]interface{}
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *InternalError) Unwrap() error {
	return e.cause
}

// Hint returns the operator-safe hint attached to the error, if any.
func (e *InternalError) Hint() string {
	return e.hint
}

// ReportableDetails returns structured details safe to log.
func (e *InternalError) ReportableDetails() map[string]interface{} {
	return e.reportableDetails
}

// ErrorBuilder builds an InternalError fluently.
type ErrorBuilder struct {
	err *InternalError
}

// NewError starts building an error with the given message.
func NewError(message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &InternalError{cause: errors.New(message)},
	}
}

// NewErrorf starts building an error with a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorBuilder {
	return NewError(fmt.Sprintf(format, args...))
}

// WithError starts building an error that wraps an existing error.
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err: &InternalError{cause: err},
	}
}

// WithHint attaches an operator-safe hint.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err.hint = hint
	return b
}

// WithHintf attaches a formatted operator-safe hint.
func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	b.err.hint = fmt.Sprintf(format, args...)
	return b
}

// WithReportableDetails attaches structured details safe to log and report.
func (b *ErrorBuilder) WithReportableDetails(details map[string]interface{}) *ErrorBuilder {
	b.err.reportableDetails = details
	return b
}

// Mark finalizes the builder, marking the error with the given sentinel so
// the Is* predicates match it.
func (b *ErrorBuilder) Mark(sentinel error) error {
	b.err.cause = errors.Mark(b.err.cause, sentinel)
	return b.err
}
