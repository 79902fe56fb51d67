// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package permutation implements the fixed-capacity, partially-ordered
// permutation used throughout the optimizer (spec §4.3). Design note
// (spec §9): the reference implementation's trailing flexible array is
// replaced here by a plain Go slice sized once at construction; capacity
// and "prefix length" remain distinct concepts in the public contract but
// no particular memory layout is implied.
package permutation

import (
	"fmt"

	"github.com/AleutianAI/diamondcore/engine/partialorder"
)

// Permutation holds elements[0..n-1], a permutation of {0..n-1}, plus a
// PrefixSize in [0, n] marking how many leading positions are fixed.
type Permutation struct {
	elements   []int
	PrefixSize int
}

// New allocates a Permutation of capacity n with PrefixSize 0.
func New(n int) *Permutation {
	return &Permutation{elements: make([]int, n)}
}

// Identity returns the n-element identity permutation [0,1,...,n-1] with
// PrefixSize == n (a fully specified total order).
func Identity(n int) *Permutation {
	p := New(n)
	for i := range p.elements {
		p.elements[i] = i
	}
	p.PrefixSize = n
	return p
}

// Len returns the permutation's capacity.
func (p *Permutation) Len() int { return len(p.elements) }

// At returns the filter index at position i.
func (p *Permutation) At(i int) int { return p.elements[i] }

// Set assigns the filter index at position i.
func (p *Permutation) Set(i, v int) { p.elements[i] = v }

// Elements returns the live backing slice. Callers must not retain it
// across a Swap/Set on the same Permutation without copying.
func (p *Permutation) Elements() []int { return p.elements }

// Dup returns a deep copy of p: every element, including the tail past
// PrefixSize, and PrefixSize itself.
func (p *Permutation) Dup() *Permutation {
	cp := &Permutation{elements: make([]int, len(p.elements)), PrefixSize: p.PrefixSize}
	copy(cp.elements, p.elements)
	return cp
}

// Copy overwrites dst's first PrefixSize-worth of content from src,
// matching src's PrefixSize. Both must share the same capacity.
func (p *Permutation) Copy(src *Permutation) {
	if len(p.elements) != len(src.elements) {
		panic("permutation: Copy requires matching capacity")
	}
	copy(p.elements[:src.PrefixSize], src.elements[:src.PrefixSize])
	p.PrefixSize = src.PrefixSize
}

// CopyWithTail copies the entire backing array from src, including
// positions at or beyond PrefixSize — design note (spec §9,
// "pmCopyAll"): this preserves the tail of filters not yet fixed into the
// prefix so an optimizer expanding a candidate doesn't need to
// reconstruct which filters remain unplaced.
func (p *Permutation) CopyWithTail(src *Permutation) {
	p.Copy(src)
	copy(p.elements, src.elements)
}

// Swap exchanges the filter indices at positions i and j.
func (p *Permutation) Swap(i, j int) {
	p.elements[i], p.elements[j] = p.elements[j], p.elements[i]
}

// SetSize sets PrefixSize, clamped to [0, Len()].
func (p *Permutation) SetSize(k int) {
	if k < 0 {
		k = 0
	}
	if k > len(p.elements) {
		k = len(p.elements)
	}
	p.PrefixSize = k
}

// Equal reports whether p and other hold identical elements and
// PrefixSize.
func (p *Permutation) Equal(other *Permutation) bool {
	if other == nil || len(p.elements) != len(other.elements) || p.PrefixSize != other.PrefixSize {
		return false
	}
	for i := range p.elements {
		if p.elements[i] != other.elements[i] {
			return false
		}
	}
	return true
}

// String renders the permutation as "[a b c | tail...]" with '|' marking
// PrefixSize, for logs and tests.
func (p *Permutation) String() string {
	s := "["
	for i, v := range p.elements {
		if i == p.PrefixSize && i != 0 && i != len(p.elements) {
			s += "| "
		}
		s += fmt.Sprintf("%d ", v)
	}
	return s + "]"
}

// IndexOf returns the position holding filter index v, or -1 if absent.
func (p *Permutation) IndexOf(v int) int {
	for i, e := range p.elements {
		if e == v {
			return i
		}
	}
	return -1
}

// IsTopologicallyValid reports whether p is a valid ordering under po up
// to PrefixSize: for every i<j<PrefixSize and every k>=j in the table,
// po[elements[i]][elements[k]] must not be GT (spec §3).
func (p *Permutation) IsTopologicallyValid(po *partialorder.PartialOrder) bool {
	n := len(p.elements)
	limit := p.PrefixSize
	if limit > n {
		limit = n
	}
	for i := 0; i < limit; i++ {
		for j := i + 1; j < limit; j++ {
			for k := j; k < n; k++ {
				if po.Get(p.elements[i], p.elements[k]) == partialorder.GT {
					return false
				}
			}
		}
	}
	return true
}

// IsValidPartialPerm reports whether the prefix [0, prefixSize) respects
// po against every element outside the prefix: no in-prefix element may
// be GT an out-of-prefix element (spec §4.6 EXPAND state).
func (p *Permutation) IsValidPartialPerm(po *partialorder.PartialOrder, prefixSize int) bool {
	n := len(p.elements)
	for i := 0; i < prefixSize; i++ {
		for j := prefixSize; j < n; j++ {
			if po.Get(p.elements[i], p.elements[j]) == partialorder.GT {
				return false
			}
		}
	}
	return true
}
