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
	"context"
	"errors"
	"log/slog"
)

// ErrEndOfStream is returned by ObjectStore.Next when the corpus is
// exhausted.
var ErrEndOfStream = errors.New("object store: end of stream")

// ObjectRecord is the per in-flight object state tracked during a search
// (spec §3). Identity and Body are supplied by the ObjectStore
// collaborator; Attributes and Scores accumulate as filters run.
type ObjectRecord struct {
	ID   string
	Body []byte

	// Attributes holds filter-emitted attribute bytes, keyed by attribute
	// name. Populated incrementally as filters run (or are served from the
	// Attribute Cache).
	Attributes map[string][]byte
	// Scores holds each filter's score, keyed by filter index, for filters
	// that have already run on this object.
	Scores map[int]int32
	// Ran records which filter indices have already executed on this
	// object, whether the result came from the Attribute Cache or a
	// fresh invocation.
	Ran map[int]bool
}

// NewObjectRecord allocates an ObjectRecord with initialized maps.
func NewObjectRecord(id string, body []byte) *ObjectRecord {
	return &ObjectRecord{
		ID:         id,
		Body:       body,
		Attributes: make(map[string][]byte),
		Scores:     make(map[int]int32),
		Ran:        make(map[int]bool),
	}
}

// ObjectStore produces candidate objects in arbitrary order (spec §6).
// Implementations must be safe for concurrent use by multiple workers.
type ObjectStore interface {
	// Next returns the next candidate, or ErrEndOfStream when exhausted.
	Next(ctx context.Context) (*ObjectRecord, error)
}

// BlobStore retrieves filter code or reference blobs by content signature
// (spec §6).
type BlobStore interface {
	Get(ctx context.Context, signature string) ([]byte, error)
}

// FilterRuntime executes one filter against one object. Eval must be
// deterministic given an identical (filter signature, object) pair, since
// the Attribute Cache relies on that determinism to skip re-evaluation.
type FilterRuntime interface {
	Eval(ctx context.Context, filt *Filter, obj *ObjectRecord) (score int32, emitted map[string][]byte, err error)
}

// ResultSink delivers a passing object downstream (spec §6).
type ResultSink interface {
	Emit(ctx context.Context, obj *ObjectRecord) error
}

// Logger is the structured-logging collaborator interface named in spec
// §6. SlogLogger adapts a *slog.Logger to it; most internal packages just
// take a *slog.Logger directly, but collaborators crossing the external
// boundary use this narrower interface.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
}

// SlogLogger adapts *slog.Logger to the Logger collaborator interface.
type SlogLogger struct{ L *slog.Logger }

func (s SlogLogger) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l := s.L
	if l == nil {
		l = slog.Default()
	}
	l.Log(ctx, level, msg, args...)
}
