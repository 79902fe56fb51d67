// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/diamondcore/engine"
	"github.com/AleutianAI/diamondcore/engine/parser"
)

type fixedStore struct {
	mu   sync.Mutex
	objs []*engine.ObjectRecord
	i    int
}

func (s *fixedStore) Next(ctx context.Context) (*engine.ObjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.objs) {
		return nil, engine.ErrEndOfStream
	}
	o := s.objs[s.i]
	s.i++
	return o, nil
}

type passRuntime struct{}

func (passRuntime) Eval(ctx context.Context, filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	return int32(filt.Threshold) + 1, nil, nil
}

type discardSink struct {
	mu sync.Mutex
	n  int
}

func (s *discardSink) Emit(ctx context.Context, obj *engine.ObjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nil
}

const tinySpec = `
FILTER gate
THRESHOLD 0
EVAL_FUNCTION ALWAYS_PASS
OUT_OBJECT UNMODIFIED 0

FILTER APPLICATION
THRESHOLD 0
EVAL_FUNCTION ALWAYS_PASS
OUT_OBJECT UNMODIFIED 0
`

func TestManager_StartRunsToCompletion(t *testing.T) {
	tb, err := parser.Parse(strings.NewReader(tinySpec), parser.DefaultContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := NewManager(nil, nil)
	sink := &discardSink{}
	handle, err := m.Start(context.Background(), tb, Scope{"k": "v"}, Collaborators{
		ObjectStore:   &fixedStore{objs: []*engine.ObjectRecord{engine.NewObjectRecord("o1", nil)}},
		FilterRuntime: passRuntime{},
		ResultSink:    sink,
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sink.n != 1 {
		t.Fatalf("expected 1 object emitted, got %d", sink.n)
	}

	got, ok := m.Get(handle.ID)
	if !ok || got != handle {
		t.Fatal("Manager should track the started handle by ID")
	}
}

func TestManager_CancelStopsARunningSearch(t *testing.T) {
	tb, err := parser.Parse(strings.NewReader(tinySpec), parser.DefaultContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := NewManager(nil, nil)
	handle, err := m.Start(context.Background(), tb, nil, Collaborators{
		ObjectStore:   &blockingStore{},
		FilterRuntime: passRuntime{},
		ResultSink:    &discardSink{},
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.Cancel(handle.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case <-handle.done:
	case <-time.After(2 * time.Second):
		t.Fatal("search did not stop within timeout after Cancel")
	}
}

func TestManager_UnknownIDReturnsError(t *testing.T) {
	m := NewManager(nil, nil)
	if _, err := m.Stats("nope"); err == nil {
		t.Fatal("expected an error for an unknown search id")
	}
	if err := m.Cancel("nope"); err == nil {
		t.Fatal("expected an error cancelling an unknown search id")
	}
}

// blockingStore blocks Next until ctx is cancelled, modeling a store with
// no more ready objects until the search is told to stop.
type blockingStore struct{}

func (blockingStore) Next(ctx context.Context) (*engine.ObjectRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
