// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/diamondcore/engine/permutation"
)

func newTestTracker(t *testing.T, n int) *Tracker {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = "f"
	}
	return New(n, DefaultConfig(), names, prometheus.NewRegistry())
}

func TestSelectivityUnseenIsHalf(t *testing.T) {
	tr := newTestTracker(t, 1)
	if got := tr.Selectivity(0); got != 0.5 {
		t.Errorf("unseen selectivity = %v, want 0.5", got)
	}
}

func TestRecordUpdatesSelectivityAndCost(t *testing.T) {
	tr := newTestTracker(t, 1)
	tr.Record(0, true, 100, "f")
	tr.Record(0, true, 100, "f")
	tr.Record(0, false, 100, "f")

	sel := tr.Selectivity(0)
	wantSel := laplace(2, 3)
	if sel != wantSel {
		t.Errorf("Selectivity = %v, want %v", sel, wantSel)
	}
	if cost := tr.Cost(0); cost != 100 {
		t.Errorf("Cost = %v, want 100", cost)
	}
	if seen := tr.Seen(0); seen != 3 {
		t.Errorf("Seen = %v, want 3", seen)
	}
}

// TestSelectivityBounds checks spec §8's invariant that Laplace smoothing
// always keeps selectivity strictly within (0, 1).
func TestSelectivityBounds(t *testing.T) {
	tr := newTestTracker(t, 1)
	for i := 0; i < 50; i++ {
		tr.Record(0, false, 10, "f")
	}
	if sel := tr.Selectivity(0); sel <= 0 || sel >= 1 {
		t.Errorf("selectivity %v should stay strictly within (0,1) even after all-drop history", sel)
	}
	tr2 := newTestTracker(t, 1)
	for i := 0; i < 50; i++ {
		tr2.Record(0, true, 10, "f")
	}
	if sel := tr2.Selectivity(0); sel <= 0 || sel >= 1 {
		t.Errorf("selectivity %v should stay strictly within (0,1) even after all-pass history", sel)
	}
}

func TestEvaluateNoDataBelowMinSamples(t *testing.T) {
	tr := newTestTracker(t, 2)
	perm := permutation.Identity(2)
	_, missing, ok := tr.Evaluate(perm)
	if ok {
		t.Fatal("expected needs-data outcome with zero samples")
	}
	if missing != 0 {
		t.Errorf("missing filter = %d, want 0 (first unseen in prefix)", missing)
	}
}

func TestEvaluateComputesExpectedCost(t *testing.T) {
	cfg := Config{MinSamples: 1, DefaultCost: 1.0}
	tr := New(2, cfg, []string{"a", "b"}, prometheus.NewRegistry())
	tr.Record(0, true, 10, "a")  // selectivity(a) = laplace(1,1) = 2/3, cost(a) = 10
	tr.Record(1, false, 20, "b") // cost(b) = 20

	perm := permutation.Identity(2) // [a, b]
	score, _, ok := tr.Evaluate(perm)
	if !ok {
		t.Fatal("expected a valid evaluation once both filters have samples")
	}
	wantSelA := laplace(1, 1)
	want := 10.0 + 20.0*wantSelA
	if score != want {
		t.Errorf("Evaluate score = %v, want %v", score, want)
	}
}

func TestSnapshotAllConcurrentSafe(t *testing.T) {
	tr := newTestTracker(t, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(fid int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Record(fid, j%2 == 0, uint64(j), "f")
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			_ = tr.SnapshotAll([]string{"a", "b", "c", "d"})
		}
		close(done)
	}()
	wg.Wait()
	<-done
}
