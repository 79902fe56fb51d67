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

import "github.com/AleutianAI/diamondcore/engine/permutation"

// heapItem is one entry in BestFirst's priority queue: a candidate
// permutation scored by negated expected cost (higher key wins), with a
// monotonic seq for stable tie-breaking on equal keys.
type heapItem struct {
	perm *permutation.Permutation
	key  float64 // -E[cost]; larger is better
	seq  uint64
}

// less reports whether a has lower priority than b (max-heap ordering:
// higher key first; on a tie, earlier insertion — smaller seq — wins, so
// it must sort as "greater").
func less(a, b heapItem) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq > b.seq
}

// maxHeap is a bounded, array-based binary max-heap. Capacity is fixed at
// construction per spec §4.6 ("heap capacity is n^2"); once full, a
// pushed item is kept only if it outranks the current minimum, which is
// then evicted. This bounds memory without ever silently dropping a
// superior candidate.
type maxHeap struct {
	data []heapItem
	cap  int
}

func newMaxHeap(capacity int) *maxHeap {
	if capacity < 1 {
		capacity = 1
	}
	return &maxHeap{data: make([]heapItem, 0, capacity), cap: capacity}
}

func (h *maxHeap) Len() int { return len(h.data) }

// Push inserts item, evicting the current minimum if the heap is already
// at capacity and item outranks it.
func (h *maxHeap) Push(item heapItem) (evicted bool) {
	if len(h.data) < h.cap {
		h.data = append(h.data, item)
		h.siftUp(len(h.data) - 1)
		return false
	}
	minIdx := h.findMinLeaf()
	if less(h.data[minIdx], item) {
		h.data[minIdx] = item
		// The replaced slot may now violate heap order in either
		// direction; re-establish it both ways to stay correct
		// regardless of which leaf held the minimum.
		h.siftUp(minIdx)
		h.siftDown(minIdx)
		return true
	}
	return true // item dropped: it did not outrank the current minimum
}

// findMinLeaf scans the heap for its minimum element. A max-heap does not
// track its minimum directly; with capacity bounded to n^2 this linear
// scan is cheap relative to the Evaluate() cost of producing the
// candidate in the first place.
func (h *maxHeap) findMinLeaf() int {
	minIdx := 0
	for i := 1; i < len(h.data); i++ {
		if less(h.data[i], h.data[minIdx]) {
			minIdx = i
		}
	}
	return minIdx
}

// Pop removes and returns the maximum element.
func (h *maxHeap) Pop() (heapItem, bool) {
	if len(h.data) == 0 {
		return heapItem{}, false
	}
	top := h.data[0]
	last := len(h.data) - 1
	h.data[0] = h.data[last]
	h.data = h.data[:last]
	if len(h.data) > 0 {
		h.siftDown(0)
	}
	return top, true
}

// Reset drops all entries, releasing retained Permutations — this is the
// DONE-state drain named in spec §9's open question about best_first
// memory: every slot of the backing array is zeroed before the slice is
// truncated, so Go's GC reclaims the Permutations and there is no explicit
// pmDelete to match, but the drain point itself is preserved so a
// cancelled search does not retain a full heap's worth of candidate
// permutations into the next search.
func (h *maxHeap) Reset() {
	clear(h.data[:cap(h.data)])
	h.data = h.data[:0]
}

func (h *maxHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(h.data[parent], h.data[i]) {
			return
		}
		h.data[parent], h.data[i] = h.data[i], h.data[parent]
		i = parent
	}
}

// siftDown is an iterative, correct max-heap sift-down. Design note (spec
// §9 open question): the reference implementation's recursive heapify
// compared data[i].key against the right child's key (rather than against
// data[largest].key), which could demote a correct root. This version
// compares both children against the running largest candidate, as a
// max-heap sift-down must.
func (h *maxHeap) siftDown(i int) {
	n := len(h.data)
	for {
		largest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && less(h.data[largest], h.data[left]) {
			largest = left
		}
		if right < n && less(h.data[largest], h.data[right]) {
			largest = right
		}
		if largest == i {
			return
		}
		h.data[i], h.data[largest] = h.data[largest], h.data[i]
		i = largest
	}
}
