// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimizer

import (
	"testing"

	"github.com/AleutianAI/diamondcore/engine"
	"github.com/AleutianAI/diamondcore/engine/permutation"
)

func TestHillClimb_NoDataOnFirstStep(t *testing.T) {
	po := buildPO(t, []*engine.Filter{{Name: "a"}, {Name: "b"}})
	tr := newTracker(2)
	// Nothing recorded yet: MinSamples (1) is unmet, so the very first
	// candidate swap must report RCNoData rather than a bogus score.
	hc := NewHillClimb(po, nil)
	hc.Reset(permutation.Identity(2))
	out := hc.Step(tr)
	if out.Result != RCNoData {
		t.Fatalf("expected RCNoData before any samples exist, got %v", out.Result)
	}
}

func TestHillClimb_ConvergesToLowerCostOrder(t *testing.T) {
	po := buildPO(t, []*engine.Filter{{Name: "cheap"}, {Name: "expensive"}})
	tr := newTracker(2)
	// cheap (index 0): low cost, low selectivity (drops a lot == good early)
	for i := 0; i < 5; i++ {
		tr.Record(0, false, 1, "cheap")
	}
	// expensive (index 1): high cost
	for i := 0; i < 5; i++ {
		tr.Record(1, true, 1000, "expensive")
	}

	hc := NewHillClimb(po, nil)
	seed := permutation.Identity(2)
	seed.Swap(0, 1) // start as [expensive, cheap] — the worse order
	hc.Reset(seed)

	var final *permutation.Permutation
	for i := 0; i < 10; i++ {
		out := hc.Step(tr)
		if out.Result == RCNoData {
			t.Fatalf("unexpected NODATA with pre-seeded samples")
		}
		final = out.Permutation
		if out.Result == RCComplete {
			break
		}
	}
	if final == nil || final.At(0) != 0 {
		t.Fatalf("expected HillClimb to move cheap (0) to the front, final=%v", final)
	}
}

// TestHillClimb_NoNewSamplesIsDeterministic verifies spec §8's optimizer
// determinism property: re-running Step from the same seed against an
// unchanged tracker always proposes the same sequence of outcomes.
func TestHillClimb_NoNewSamplesIsDeterministic(t *testing.T) {
	po := buildPO(t, []*engine.Filter{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	tr := newTracker(3)
	for i := 0; i < 5; i++ {
		tr.Record(0, true, 5, "a")
		tr.Record(1, true, 10, "b")
		tr.Record(2, true, 1, "c")
	}

	run := func() []Result {
		hc := NewHillClimb(po, nil)
		hc.Reset(permutation.Identity(3))
		var results []Result
		for i := 0; i < 10; i++ {
			out := hc.Step(tr)
			results = append(results, out.Result)
			if out.Result == RCComplete {
				break
			}
		}
		return results
	}

	r1, r2 := run(), run()
	if len(r1) != len(r2) {
		t.Fatalf("step count differs across identical runs: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("result at step %d differs: %v vs %v", i, r1[i], r2[i])
		}
	}
}
