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

type bfState int

const (
	bfInit bfState = iota
	bfVisit
	bfExpand
	bfDone
)

// BestFirst implements spec §4.6: priority-queue-driven construction of
// permutations prefix by prefix. State machine:
//
//	INIT   seed the heap with every length-1 permutation starting with a
//	       po.IsMin element.
//	VISIT  pop the max-scoring permutation; if full length, done; else
//	       expand it.
//	EXPAND append each not-yet-placed filter to the popped prefix, check
//	       validity, score, push; return to VISIT.
//	DONE   drain the heap and reset to INIT for the next search.
type BestFirst struct {
	po     *partialorder.PartialOrder
	logger *slog.Logger
	n      int

	heap  *maxHeap
	seq   uint64
	state bfState

	current heapItem // the prefix popped in VISIT, pending EXPAND
	nextJ   int       // cursor over filters not yet placed in current, for EXPAND
}

// NewBestFirst constructs a BestFirst bound to the given partial order
// covering n filters.
func NewBestFirst(po *partialorder.PartialOrder, n int, logger *slog.Logger) *BestFirst {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestFirst{
		po:     po,
		logger: logger,
		n:      n,
		heap:   newMaxHeap(n * n),
		state:  bfInit,
	}
}

// Reset drains the heap (the DONE-state behavior) and returns to INIT.
// BestFirst ignores the seed permutation: it always (re)builds from
// scratch via po.IsMin roots, matching spec §4.6's INIT description.
func (b *BestFirst) Reset(seed *permutation.Permutation) {
	b.heap.Reset()
	b.state = bfInit
	b.seq = 0
}

// Step advances the state machine by one transition.
func (b *BestFirst) Step(tracker *stats.Tracker) Outcome {
	switch b.state {
	case bfInit:
		return b.doInit(tracker)
	case bfVisit:
		return b.doVisit()
	case bfExpand:
		return b.doExpand(tracker)
	default: // bfDone
		b.heap.Reset()
		b.state = bfInit
		return b.doInit(tracker)
	}
}

func (b *BestFirst) doInit(tracker *stats.Tracker) Outcome {
	for root := 0; root < b.n; root++ {
		if !b.po.IsMin(root) {
			continue
		}
		perm := permutation.New(b.n)
		perm.Set(0, root)
		placed := map[int]bool{root: true}
		pos := 1
		for f := 0; f < b.n; f++ {
			if !placed[f] {
				perm.Set(pos, f)
				pos++
			}
		}
		perm.SetSize(1)

		score, missing, ok := tracker.Evaluate(perm)
		if !ok {
			b.state = bfVisit
			return Outcome{Result: RCNoData, Permutation: perm, MissingFilter: missing}
		}
		b.seq++
		b.heap.Push(heapItem{perm: perm, key: -score, seq: b.seq})
	}
	b.state = bfVisit
	return Outcome{Result: RCContinue}
}

func (b *BestFirst) doVisit() Outcome {
	top, ok := b.heap.Pop()
	if !ok {
		// Heap exhausted without reaching a full-length permutation. This
		// happens when INIT found no roots (a REQUIRES cycle is rejected
		// earlier by partialorder.Build, so that case is defensive) or
		// when an earlier Step returned RCNoData before pushing its
		// remaining roots or children. Fall back to a validated identity
		// order.
		fallback := permutation.Identity(b.n)
		MakeValidPerm(fallback, 0, b.n, b.po)
		b.state = bfDone
		return Outcome{Result: RCComplete, Permutation: fallback}
	}
	if top.perm.PrefixSize >= b.n {
		b.state = bfDone
		return Outcome{Result: RCComplete, Permutation: top.perm}
	}
	b.current = top
	b.nextJ = 0
	b.state = bfExpand
	return Outcome{Result: RCContinue, Permutation: top.perm}
}

func (b *BestFirst) doExpand(tracker *stats.Tracker) Outcome {
	prefix := b.current.perm
	prefixSize := prefix.PrefixSize

	for b.nextJ < b.n {
		candidateFilter := b.nextJ
		b.nextJ++

		// Skip filters already in the prefix.
		alreadyPlaced := false
		for i := 0; i < prefixSize; i++ {
			if prefix.At(i) == candidateFilter {
				alreadyPlaced = true
				break
			}
		}
		if alreadyPlaced {
			continue
		}

		child := prefix.Dup()
		// Move candidateFilter into position prefixSize.
		srcPos := child.IndexOf(candidateFilter)
		child.Swap(prefixSize, srcPos)
		child.SetSize(prefixSize + 1)

		if !child.IsValidPartialPerm(b.po, child.PrefixSize) {
			continue
		}

		score, missing, ok := tracker.Evaluate(child)
		if !ok {
			b.state = bfVisit
			return Outcome{Result: RCNoData, Permutation: child, MissingFilter: missing}
		}

		b.seq++
		evicted := b.heap.Push(heapItem{perm: child, key: -score, seq: b.seq})
		if evicted {
			b.logger.Debug("bestfirst: heap at capacity, weakest candidate evicted",
				slog.Int("heap_cap", b.n*b.n))
		}
	}

	b.state = bfVisit
	return Outcome{Result: RCContinue}
}
