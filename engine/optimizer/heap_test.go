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

import "testing"

func TestMaxHeap_PopOrdersByKeyDescending(t *testing.T) {
	h := newMaxHeap(10)
	keys := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	for i, k := range keys {
		h.Push(heapItem{key: k, seq: uint64(i)})
	}
	var popped []float64
	for h.Len() > 0 {
		item, ok := h.Pop()
		if !ok {
			t.Fatal("Pop reported empty heap while Len() > 0")
		}
		popped = append(popped, item.key)
	}
	for i := 1; i < len(popped); i++ {
		if popped[i] > popped[i-1] {
			t.Fatalf("Pop order not descending: %v", popped)
		}
	}
}

func TestMaxHeap_TieBrokenByInsertionOrder(t *testing.T) {
	h := newMaxHeap(10)
	h.Push(heapItem{key: 1, seq: 1})
	h.Push(heapItem{key: 1, seq: 2})
	top, _ := h.Pop()
	if top.seq != 1 {
		t.Errorf("tie should favor earlier insertion (seq=1), got seq=%d", top.seq)
	}
}

func TestMaxHeap_EvictsMinimumAtCapacity(t *testing.T) {
	h := newMaxHeap(2)
	h.Push(heapItem{key: 1, seq: 1})
	h.Push(heapItem{key: 2, seq: 2})
	if h.Len() != 2 {
		t.Fatalf("expected heap at capacity, len=%d", h.Len())
	}
	// A lower-keyed item should be dropped outright: the weakest survivor
	// (key=1) is not displaced.
	h.Push(heapItem{key: 0, seq: 3})
	if h.Len() != 2 {
		t.Fatalf("heap should not grow past capacity, len=%d", h.Len())
	}
	// A higher-keyed item should evict the current minimum (key=1).
	h.Push(heapItem{key: 10, seq: 4})
	seen := map[uint64]bool{}
	for h.Len() > 0 {
		item, _ := h.Pop()
		seen[item.seq] = true
	}
	if !seen[2] || !seen[4] {
		t.Errorf("expected survivors seq=2 (key=2) and seq=4 (key=10), got %v", seen)
	}
	if seen[1] {
		t.Error("weakest original item (seq=1, key=1) should have been evicted")
	}
}

func TestMaxHeap_ResetClearsContents(t *testing.T) {
	h := newMaxHeap(4)
	h.Push(heapItem{key: 1, seq: 1})
	h.Push(heapItem{key: 2, seq: 2})
	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("Reset should empty the heap, len=%d", h.Len())
	}
}

// TestMaxHeap_SiftDownMaintainsHeapPropertyAtScale guards against the
// heapify asymmetry bug noted in the sift-down implementation: every
// parent must remain >= both of its children after a sequence of pushes
// and pops that exercise sift-down from arbitrary internal nodes.
func TestMaxHeap_SiftDownMaintainsHeapPropertyAtScale(t *testing.T) {
	h := newMaxHeap(64)
	vals := []float64{50, 40, 30, 20, 10, 45, 35, 25, 15, 5, 60, 1, 2, 3, 4, 100}
	for i, v := range vals {
		h.Push(heapItem{key: v, seq: uint64(i)})
	}
	// Pop a few to force sift-down from the root repeatedly, then verify
	// heap order holds across what remains.
	for i := 0; i < 3; i++ {
		h.Pop()
	}
	for i, item := range h.data {
		left, right := 2*i+1, 2*i+2
		if left < len(h.data) && less(item, h.data[left]) {
			t.Errorf("heap property violated: parent %v weaker than left child %v", item, h.data[left])
		}
		if right < len(h.data) && less(item, h.data[right]) {
			t.Errorf("heap property violated: parent %v weaker than right child %v", item, h.data[right])
		}
	}
}
