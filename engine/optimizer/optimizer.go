// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimizer implements the two permutation searches named in
// spec §4.5 and §4.6: HillClimb (local search over adjacent swaps) and
// BestFirst (priority-queue-driven prefix construction). Both are driven
// one Step at a time by the Execution Driver, which interleaves
// optimization with object processing so that "needs data" suspensions
// resolve by running more objects rather than blocking.
package optimizer

import (
	"github.com/AleutianAI/diamondcore/engine/partialorder"
	"github.com/AleutianAI/diamondcore/engine/permutation"
	"github.com/AleutianAI/diamondcore/engine/stats"
)

// Result is the outcome of one Optimizer.Step call.
type Result int

const (
	// RCContinue means progress was made; call Step again.
	RCContinue Result = iota
	// RCComplete means the optimizer converged; Permutation in the
	// returned Outcome is the new current_perm.
	RCComplete
	// RCNoData means StatsTracker lacks samples for a filter in the
	// candidate; the driver should run Outcome.Permutation on the next
	// object (without finalizing it) and retry.
	RCNoData
)

func (r Result) String() string {
	switch r {
	case RCComplete:
		return "RC_COMPLETE"
	case RCNoData:
		return "RC_NODATA"
	default:
		return "RC_CONTINUE"
	}
}

// Outcome is returned by every Step call.
type Outcome struct {
	Result      Result
	Permutation *permutation.Permutation
	// MissingFilter is set (>=0) only when Result == RCNoData: the filter
	// index StatsTracker needs more samples for.
	MissingFilter int
}

// Optimizer is implemented by HillClimb and BestFirst.
type Optimizer interface {
	// Reset seeds (or reseeds) the optimizer from the driver's current
	// permutation before a fresh optimization pass.
	Reset(seed *permutation.Permutation)
	// Step advances the search by one unit of work and reports Outcome.
	Step(tracker *stats.Tracker) Outcome
}

// MakeValidPerm completes a partial permutation into a valid total order
// by running a bubble-sort-like topological pass over the tail positions
// [prefixSize, n): for each pair i<j in the tail, if po[perm[i]][perm[j]]
// is GT, swap them (spec §4.6). This is not a general topological sort —
// it relies on being re-run to fixpoint, which the bounded pass below
// achieves for the tail sizes this optimizer ever produces (n <= a few
// hundred filters in practice).
func MakeValidPerm(perm *permutation.Permutation, prefixSize, n int, po *partialorder.PartialOrder) {
	for pass := 0; pass < n; pass++ {
		swapped := false
		for i := prefixSize; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				if po.Get(perm.At(i), perm.At(j)) == partialorder.GT {
					perm.Swap(i, j)
					swapped = true
				}
			}
		}
		if !swapped {
			break
		}
	}
}
