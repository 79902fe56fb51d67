// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package partialorder represents and closes the LT/GT/EQ/INCOMPARABLE
// relation over filter indices derived from REQUIRES edges (spec §4.2).
package partialorder

import (
	"fmt"

	"github.com/AleutianAI/diamondcore/engine"
)

// Relation is one cell of the partial-order matrix.
type Relation int8

const (
	Incomparable Relation = iota
	LT
	GT
	EQ
)

func (r Relation) String() string {
	switch r {
	case LT:
		return "LT"
	case GT:
		return "GT"
	case EQ:
		return "EQ"
	default:
		return "INCOMPARABLE"
	}
}

func inverse(r Relation) Relation {
	switch r {
	case LT:
		return GT
	case GT:
		return LT
	default:
		return r
	}
}

// PartialOrder is an n*n matrix of Relation over filter indices. Created
// once from a Table's REQUIRES edges and never mutated afterward (spec
// §3 lifecycle).
type PartialOrder struct {
	n    int
	cell []Relation // row-major, n*n
}

func (p *PartialOrder) idx(u, v int) int { return u*p.n + v }

// Get returns po[u][v]. Callers do not query u==v (spec §4.2: we leave
// po[i][i] as Incomparable and never query reflexively).
func (p *PartialOrder) Get(u, v int) Relation { return p.cell[p.idx(u, v)] }

func (p *PartialOrder) set(u, v int, r Relation) {
	p.cell[p.idx(u, v)] = r
	p.cell[p.idx(v, u)] = inverse(r)
}

// N returns the number of filters this partial order covers.
func (p *PartialOrder) N() int { return p.n }

// Comparable reports whether u and v have any relation other than
// Incomparable.
func (p *PartialOrder) Comparable(u, v int) bool {
	return p.Get(u, v) != Incomparable
}

// Incomparable reports the negation of Comparable.
func (p *PartialOrder) Incomparable(u, v int) bool {
	return p.Get(u, v) == Incomparable
}

// IsMin reports whether u has no GT predecessor: no v with po[v][u] == LT
// (equivalently po[u][v] == GT for no v — u is never required to come
// after anything).
func (p *PartialOrder) IsMin(u int) bool {
	for v := 0; v < p.n; v++ {
		if v == u {
			continue
		}
		if p.Get(u, v) == GT {
			return false
		}
	}
	return true
}

// Build constructs a PartialOrder from a filter table's REQUIRES edges and
// computes its transitive closure (spec §4.2).
//
// For each edge "a REQUIRES b" (a.Requires contains b's name), we set
// po[b][a] = LT: b must run before a. Closure uses the Warshall-style
// triple loop from spec §4.2: for every k, i, j, if po[i][j] is
// Incomparable and po[i][k] == po[k][j] != Incomparable, set
// po[i][j] = po[i][k].
//
// Returns an invalid_spec error if the closure derives both LT and GT
// between the same pair, which indicates a cycle in REQUIRES.
func Build(t *engine.Table) (*PartialOrder, error) {
	n := t.Len()
	p := &PartialOrder{n: n, cell: make([]Relation, n*n)}

	for _, f := range t.Filters {
		for _, dep := range f.Requires {
			b, ok := t.ByName(dep)
			if !ok {
				return nil, engine.Wrap(engine.KindMissingDependency,
					fmt.Sprintf("filter %q requires undefined filter %q", f.Name, dep), nil)
			}
			a := f.Index
			if b == a {
				return nil, engine.NewError(engine.KindInvalidSpec,
					fmt.Sprintf("filter %q requires itself", f.Name))
			}
			if existing := p.Get(b, a); existing != Incomparable && existing != LT {
				return nil, engine.NewError(engine.KindInvalidSpec,
					fmt.Sprintf("contradictory REQUIRES relation between %q and %q", t.Filters[b].Name, f.Name))
			}
			p.set(b, a, LT)
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if i == k {
				continue
			}
			ik := p.Get(i, k)
			if ik == Incomparable {
				continue
			}
			for j := 0; j < n; j++ {
				if j == i || j == k {
					continue
				}
				if p.Get(k, j) != ik {
					continue
				}
				if ij := p.Get(i, j); ij == Incomparable {
					p.set(i, j, ik)
				} else if ij != ik {
					return nil, engine.NewError(engine.KindInvalidSpec,
						fmt.Sprintf("REQUIRES cycle detected between %q and %q", t.Filters[i].Name, t.Filters[j].Name))
				}
			}
		}
	}

	if err := p.checkConsistent(t); err != nil {
		return nil, err
	}
	return p, nil
}

// checkConsistent verifies antisymmetry held after closure: no pair ended
// up both LT and GT by way of separate derivation paths landing on the
// same cell twice (set() already enforces the inverse invariant, so this
// is a defensive re-scan for cycles the triple loop could otherwise hide).
func (p *PartialOrder) checkConsistent(t *engine.Table) error {
	for i := 0; i < p.n; i++ {
		for j := i + 1; j < p.n; j++ {
			if p.Get(i, j) != Incomparable && p.Get(i, j) == p.Get(j, i) {
				return engine.NewError(engine.KindInvalidSpec,
					fmt.Sprintf("REQUIRES cycle detected between %q and %q", t.Filters[i].Name, t.Filters[j].Name))
			}
		}
	}
	return nil
}
