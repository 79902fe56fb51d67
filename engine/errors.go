// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per the taxonomy in the filter-execution error
// design: each kind carries its own recovery policy.
type Kind string

const (
	// KindInvalidSpec covers parser syntax errors, unknown directives, the
	// THRESHHOLD misspelling, and REQUIRES cycles. Fatal at search setup.
	KindInvalidSpec Kind = "invalid_spec"
	// KindMissingDependency means a REQUIRES edge names an absent filter.
	KindMissingDependency Kind = "missing_dependency"
	// KindFilterEval means a filter's eval returned an error or crashed.
	// Recovered per-object (treated as a drop); escalates to fatal after
	// MaxConsecFails consecutive failures on the same filter.
	KindFilterEval Kind = "filter_eval_error"
	// KindOptimizerNoData signals the StatsTracker lacks samples for a
	// filter in the candidate prefix; recovered locally by the driver.
	KindOptimizerNoData Kind = "optimizer_nodata"
	// KindCancelled means the search was cancelled externally.
	KindCancelled Kind = "cancelled"
	// KindCollaboratorUnavailable covers object-store/blob-store failures,
	// retried with backoff before becoming fatal.
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
)

// Error is the error type returned across package boundaries in this
// module. It carries enough structure for callers to branch on Kind
// without parsing message text, while still formatting a readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel errors for conditions callers commonly branch on with errors.Is.
var (
	// ErrNoData is returned by an Optimizer step when StatsTracker lacks
	// MinSamples for a filter in the candidate prefix (spec §4.4, §4.5, §4.6).
	ErrNoData = errors.New("optimizer: insufficient samples, needs more data")
	// ErrCancelled is returned when a search is cancelled cooperatively.
	ErrCancelled = errors.New("search cancelled")
	// ErrEvalFailed marks a single filter invocation failure on one object.
	ErrEvalFailed = errors.New("filter evaluation failed")
)

// ExitCode maps an error's Kind to the CLI exit code from spec §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindInvalidSpec, KindMissingDependency:
			return 1
		case KindFilterEval, KindCollaboratorUnavailable:
			return 2
		case KindCancelled:
			return 3
		}
	}
	if errors.Is(err, ErrCancelled) {
		return 3
	}
	return 2
}
