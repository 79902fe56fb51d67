// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fsobjects implements engine.ObjectStore and engine.ResultSink
// against a plain directory of files — the reference collaborator
// implementation used by `diamond run` for local corpora. Production
// deployments are expected to supply their own ObjectStore backed by
// whatever object storage or RPC transport fronts their corpus (spec §1:
// those collaborators are explicitly out of scope for this core).
package fsobjects

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/diamondcore/engine"
)

// Store walks a directory once at construction and serves its files as
// ObjectRecords in lexical order.
type Store struct {
	mu    sync.Mutex
	paths []string
	next  int
}

// Open lists dir's regular files and returns a Store over them.
func Open(dir string) (*Store, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "walking object directory "+dir, err)
	}
	return &Store{paths: paths}, nil
}

// Next implements engine.ObjectStore.
func (s *Store) Next(ctx context.Context) (*engine.ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.paths) {
		return nil, engine.ErrEndOfStream
	}
	path := s.paths[s.next]
	s.next++

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "reading "+path, err)
	}
	return engine.NewObjectRecord(path, body), nil
}

// Len returns the total object count discovered at Open time.
func (s *Store) Len() int { return len(s.paths) }

// Sink copies passing objects into an output directory, preserving their
// base file name.
type Sink struct {
	dir string
}

// NewSink ensures dir exists and returns a Sink writing into it.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "creating result directory "+dir, err)
	}
	return &Sink{dir: dir}, nil
}

// Emit implements engine.ResultSink.
func (s *Sink) Emit(ctx context.Context, obj *engine.ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := filepath.Join(s.dir, filepath.Base(obj.ID))
	if err := os.WriteFile(dest, obj.Body, 0o644); err != nil {
		return fmt.Errorf("fsobjects: writing %s: %w", dest, err)
	}
	return nil
}
