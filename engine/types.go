// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine holds the shared data model, error taxonomy, and
// collaborator interfaces of the adaptive filter-execution core: the
// engine that decides, at runtime and per object, in what order to
// evaluate a user-supplied pipeline of scoring predicates.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Limits on filter-spec fields, overridable via parser.Context for tests.
const (
	MaxNameLen = 128
	MaxFuncLen = 128
	MaxDeps    = 32
)

// OutputType classifies how a filter's eval transforms the object it runs
// against, per spec §3.
type OutputType int

const (
	OutputUnmodified OutputType = iota
	OutputNew
	OutputClone
	OutputCopyAttr
)

func (t OutputType) String() string {
	switch t {
	case OutputUnmodified:
		return "UNMODIFIED"
	case OutputNew:
		return "NEW"
	case OutputClone:
		return "CLONE"
	case OutputCopyAttr:
		return "COPY_ATTR"
	default:
		return "UNKNOWN"
	}
}

// Filter is immutable after parsing. See spec §3.
type Filter struct {
	// Index is this filter's position in its owning FilterTable. Set by
	// the table builder, not the parser.
	Index int

	Name      string
	Threshold int
	Merit     int
	Args      []string

	InObjectSize int
	OutType      OutputType
	OutObjectSize int

	InitFunction string
	EvalFunction string
	FiniFunction string

	// Requires lists dependency filter names, in declaration order.
	Requires []string
}

// Signature is a content hash of the filter's code identity: entry points,
// args, and dependency names. The Attribute Cache (spec §4.8) keys on
// (signature, object identity) so that changing a filter's arguments or
// dependencies invalidates stale cache entries without any explicit
// invalidation call.
func (f *Filter) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "name=%s\ninit=%s\neval=%s\nfini=%s\n", f.Name, f.InitFunction, f.EvalFunction, f.FiniFunction)
	fmt.Fprintf(h, "args=%s\n", strings.Join(f.Args, "\x1f"))
	fmt.Fprintf(h, "requires=%s\n", strings.Join(f.Requires, "\x1f"))
	return hex.EncodeToString(h.Sum(nil))
}

// Passed reports whether score clears this filter's drop threshold.
func (f *Filter) Passed(score int32) bool {
	return int(score) >= f.Threshold
}

// ApplicationFilterName is the well-known name of the terminal filter whose
// score drives user-visible ranking (spec §3, GLOSSARY).
const ApplicationFilterName = "APPLICATION"

// Table is an ordered sequence of filters plus the designated APPLICATION
// index. Invariant: len(Filters) >= 1.
type Table struct {
	Filters []*Filter
	// Application is the index of the APPLICATION filter, or -1 if the
	// spec did not define one.
	Application int

	byName map[string]int
}

// NewTable builds a Table from parsed filters, resolving dependency names
// to indices and validating the acyclicity invariant is left to
// partialorder.Build — Table itself only validates that every dependency
// name resolves to a filter present in the table.
func NewTable(filters []*Filter) (*Table, error) {
	if len(filters) == 0 {
		return nil, NewError(KindInvalidSpec, "filter table must contain at least one filter")
	}
	t := &Table{Filters: filters, Application: -1, byName: make(map[string]int, len(filters))}
	for i, f := range filters {
		f.Index = i
		if _, dup := t.byName[f.Name]; dup {
			return nil, NewError(KindInvalidSpec, fmt.Sprintf("duplicate filter name %q", f.Name))
		}
		t.byName[f.Name] = i
		if f.Name == ApplicationFilterName {
			t.Application = i
		}
	}
	for _, f := range filters {
		for _, dep := range f.Requires {
			if _, ok := t.byName[dep]; !ok {
				return nil, Wrap(KindMissingDependency,
					fmt.Sprintf("filter %q requires undefined filter %q", f.Name, dep), nil)
			}
		}
	}
	return t, nil
}

// Len returns the number of filters in the table.
func (t *Table) Len() int { return len(t.Filters) }

// ByName resolves a filter name to its index. ok is false if absent.
func (t *Table) ByName(name string) (int, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// RequiresIndices returns f's dependencies resolved to table indices.
func (t *Table) RequiresIndices(f *Filter) []int {
	out := make([]int, 0, len(f.Requires))
	for _, dep := range f.Requires {
		if idx, ok := t.byName[dep]; ok {
			out = append(out, idx)
		}
	}
	return out
}
