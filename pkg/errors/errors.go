// SPDX-License-Identifier: Apache-2.0

// Package errors adds stack traces and multi-error aggregation for this
// module's exec and workerpool packages.
package errors

import (
	pkgerrors "github.com/pkg/errors"
	k8serrors "k8s.io/apimachinery/pkg/util/errors"
)

// WithStack annotates err with a stack trace, matching github.com/pkg/errors.
func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

// Wrap annotates err with a message and a stack trace.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Causer mirrors github.com/pkg/errors's Cause() wrapping.
type Causer interface {
	Cause() error
}

// StackTracer mirrors github.com/pkg/errors's StackTrace() wrapping.
type StackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Cause walks a Causer chain to the deepest error, like pkgerrors.Cause.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// StackTrace returns the deepest StackTrace in a Cause chain, or nil.
func StackTrace(err error) pkgerrors.StackTrace {
	var stackErr error
	for {
		if _, ok := err.(StackTracer); ok {
			stackErr = err
		}
		if causerErr, ok := err.(Causer); ok {
			err = causerErr.Cause()
		} else {
			break
		}
	}
	if stackErr != nil {
		return stackErr.(StackTracer).StackTrace()
	}
	return nil
}

// NewAggregate flattens and reduces a slice of errors into one error value,
// returning nil if errlist is empty or contains only nils.
func NewAggregate(errlist []error) error {
	agg := k8serrors.Reduce(k8serrors.Flatten(k8serrors.NewAggregate(errlist)))
	if agg == nil {
		return nil
	}
	return WithStack(agg)
}

// Errors returns the deepest Aggregate in a Cause chain, or nil.
func Errors(err error) []error {
	var agg k8serrors.Aggregate
	for {
		if v, ok := err.(k8serrors.Aggregate); ok {
			agg = v
		}
		if causerErr, ok := err.(Causer); ok {
			err = causerErr.Cause()
		} else {
			break
		}
	}
	if agg != nil {
		return agg.Errors()
	}
	return nil
}
