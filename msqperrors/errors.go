// Package msqperrors implements the error taxonomy of the MS-SQP solver core:
// QPFailure, UsageError, ProviderError, and NumericalDegeneracy. All four are
// sentinel-comparable via errors.Is while still carrying a wrapped cause via
// github.com/pkg/errors, matching the teacher's error-wrapping idiom.
package msqperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which branch of the §7 taxonomy an error belongs to.
type Kind string

const (
	// KindQPFailure means the QP back-end reported a non-success status. Fatal for the
	// current Run; the iteration log may be inspected but no PrimalSolution is updated.
	KindQPFailure Kind = "QPFailure"
	// KindUsageError means the caller queried the iteration log (or another post-solve
	// artifact) before any solve occurred.
	KindUsageError Kind = "UsageError"
	// KindProviderError means a cloned provider panicked or returned an error during
	// evaluation inside the parallel section.
	KindProviderError Kind = "ProviderError"
	// KindNumericalDegeneracy means a defect or merit value became non-finite.
	KindNumericalDegeneracy Kind = "NumericalDegeneracy"
)

// Error is the concrete error type returned for every taxonomy member.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the wrapped cause, so github.com/pkg/errors.Cause walks through an *Error to
// the originating error.
func (e *Error) Cause() error { return e.cause }

// Is reports whether target is an *Error of the same Kind, so errors.Is(err, msqperrors.QPFailure("", nil))
// style checks work without comparing messages.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

func wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

// QPFailure builds a KindQPFailure error from a back-end status description.
func QPFailure(status string, cause error) *Error {
	if cause != nil {
		return wrap(KindQPFailure, cause, "qp back-end reported status "+status)
	}
	return newf(KindQPFailure, "qp back-end reported status %s", status)
}

// UsageErrorf builds a KindUsageError error.
func UsageErrorf(format string, args ...interface{}) *Error {
	return newf(KindUsageError, format, args...)
}

// ProviderError wraps a panic/error raised by a cloned provider during evaluation.
func ProviderError(stage int, cause error) *Error {
	return wrap(KindProviderError, cause, fmt.Sprintf("provider evaluation failed at stage %d", stage))
}

// NumericalDegeneracy builds a KindNumericalDegeneracy error describing which quantity went non-finite.
func NumericalDegeneracy(what string) *Error {
	return newf(KindNumericalDegeneracy, "%s is non-finite", what)
}

// IsKind reports whether err (or any error it wraps) is a msqperrors.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
