// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fsobjects

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/diamondcore/engine"
)

func TestStore_ServesFilesThenEndOfStream(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}

	seen := 0
	for {
		_, err := store.Next(context.Background())
		if errors.Is(err, engine.ErrEndOfStream) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen++
		if seen > 2 {
			t.Fatal("Store served more objects than were written")
		}
	}
	if seen != 2 {
		t.Fatalf("served %d objects, want 2", seen)
	}
}

func TestStore_RespectsCancellation(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Next(ctx); err == nil {
		t.Fatal("expected Next to respect a cancelled context")
	}
}

func TestSink_WritesPassingObjects(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	obj := engine.NewObjectRecord("result.txt", []byte("payload"))
	if err := sink.Emit(context.Background(), obj); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("reading emitted object: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("emitted content = %q, want %q", got, "payload")
	}
}
