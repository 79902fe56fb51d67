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
	"log/slog"

	"github.com/AleutianAI/diamondcore/engine/partialorder"
	"github.com/AleutianAI/diamondcore/engine/permutation"
	"github.com/AleutianAI/diamondcore/engine/stats"
)

// HillClimb implements spec §4.5: local search over adjacent swaps,
// constrained by the partial order, maximizing -E[cost]. One Step call
// evaluates at most one candidate swap (i, j), so the driver can bound
// total work across a search by limiting total Step calls to
// MaxOptSteps.
type HillClimb struct {
	po     *partialorder.PartialOrder
	logger *slog.Logger

	best      *permutation.Permutation
	candidate *permutation.Permutation

	i, j     int
	improved bool
}

// NewHillClimb constructs a HillClimb bound to the given partial order.
func NewHillClimb(po *partialorder.PartialOrder, logger *slog.Logger) *HillClimb {
	if logger == nil {
		logger = slog.Default()
	}
	return &HillClimb{po: po, logger: logger}
}

// Reset seeds HillClimb from the driver's current permutation and resets
// the (i, j) swap cursor to the start of a fresh pass.
func (h *HillClimb) Reset(seed *permutation.Permutation) {
	h.best = seed.Dup()
	h.candidate = seed.Dup()
	h.i, h.j = 0, 1
	h.improved = false
}

// Step advances the (i, j) swap cursor past invalid swaps to the next swap
// that is valid under the partial order and evaluates it (spec §4.5 step
// 1), or returns RCComplete when a pass ends without improvement: the
// swap is valid only if elements[i] and elements[j] are pairwise
// incomparable, and every element strictly between them is incomparable
// with both. This restricts HillClimb to swaps that represent a legal
// reordering of a contiguous block, never violating po.
func (h *HillClimb) Step(tracker *stats.Tracker) Outcome {
	n := h.best.Len()
	if n <= 1 {
		return Outcome{Result: RCComplete, Permutation: h.best}
	}

	for {
		if h.i >= n-1 {
			// Pass complete.
			if !h.improved {
				return Outcome{Result: RCComplete, Permutation: h.best}
			}
			h.improved = false
			h.i, h.j = 0, 1
			continue
		}
		if h.j >= n {
			h.i++
			h.j = h.i + 1
			continue
		}

		i, j := h.i, h.j
		h.j++

		if !h.swapIsValid(i, j) {
			continue
		}

		h.candidate.Copy(h.best)
		h.candidate.Swap(i, j)

		score, missing, ok := tracker.Evaluate(h.candidate)
		if !ok {
			return Outcome{Result: RCNoData, Permutation: h.candidate, MissingFilter: missing}
		}

		bestScore, _, bestOK := tracker.Evaluate(h.best)
		if !bestOK {
			// Shouldn't happen since best was itself already evaluated
			// successfully to get here, but stay defensive.
			return Outcome{Result: RCNoData, Permutation: h.best, MissingFilter: -1}
		}

		if score < bestScore {
			h.logger.Debug("hillclimb: accepted swap",
				slog.Int("i", i), slog.Int("j", j),
				slog.Float64("old_cost", bestScore), slog.Float64("new_cost", score))
			h.best.Copy(h.candidate)
			h.improved = true
		}

		return Outcome{Result: RCContinue, Permutation: h.best}
	}
}

// swapIsValid checks spec §4.5 step 1 against the current best
// permutation's elements at positions i and j.
func (h *HillClimb) swapIsValid(i, j int) bool {
	a, b := h.best.At(i), h.best.At(j)
	if h.po.Comparable(a, b) {
		return false
	}
	for k := i + 1; k < j; k++ {
		mid := h.best.At(k)
		if h.po.Comparable(mid, a) || h.po.Comparable(mid, b) {
			return false
		}
	}
	return true
}
