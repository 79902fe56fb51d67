// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser reads the line-oriented filter-spec text format into an
// engine.Table (spec §4.1). Design note (spec §9): the reference
// implementation keeps parse state behind a module-level pointer; this
// package instead threads an explicit Context through the scanner, so
// multiple specs can be parsed concurrently with no shared state.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/diamondcore/engine"
)

// Context carries the limits and logger for one Parse call. Logger may be
// nil; the limits must be set, since a zero limit rejects every non-empty
// name. DefaultContext fills in the spec's named limits.
type Context struct {
	MaxName int
	MaxFunc int
	MaxDeps int
	Logger  *slog.Logger
}

// DefaultContext mirrors engine.MaxNameLen/MaxFuncLen/MaxDeps.
func DefaultContext() Context {
	return Context{MaxName: engine.MaxNameLen, MaxFunc: engine.MaxFuncLen, MaxDeps: engine.MaxDeps}
}

func (c Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// parseState is the scratch state for one Parse call — entirely local,
// never shared across goroutines.
type parseState struct {
	ctx     Context
	filters []*engine.Filter
	current *engine.Filter
	line    int
}

func fail(ps *parseState, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return engine.NewError(engine.KindInvalidSpec, fmt.Sprintf("line %d: %s", ps.line, msg))
}

// Parse reads a filter-spec document from r and returns the assembled
// Table. Parse is single-pass and holds no state outside ps, so the same
// package may be invoked concurrently from multiple goroutines parsing
// different specs (spec §4.1: "single-pass and re-entrant").
func Parse(r io.Reader, ctx Context) (*engine.Table, error) {
	ps := &parseState{ctx: ctx}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		ps.line++
		if err := ps.parseLine(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, engine.Wrap(engine.KindInvalidSpec, "reading filter spec", err)
	}
	if len(ps.filters) == 0 {
		return nil, engine.NewError(engine.KindInvalidSpec, "filter spec defines no filters")
	}
	return engine.NewTable(ps.filters)
}

func (ps *parseState) parseLine(raw string) error {
	line := stripComment(raw)
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	directive := fields[0]
	rest := fields[1:]

	switch directive {
	case "FILTER":
		if len(rest) != 1 {
			return fail(ps, "FILTER requires exactly one argument (name)")
		}
		name := rest[0]
		if len(name) > ps.ctx.MaxName {
			return fail(ps, "filter name %q exceeds MAX_NAME (%d)", name, ps.ctx.MaxName)
		}
		f := &engine.Filter{Name: name, Threshold: -1, Merit: 0, OutType: engine.OutputUnmodified}
		ps.filters = append(ps.filters, f)
		ps.current = f
		return nil

	case "THRESHHOLD":
		return fail(ps, "unknown directive THRESHHOLD — did you mean THRESHOLD?")

	case "THRESHOLD":
		return ps.intAttr(rest, "THRESHOLD", func(f *engine.Filter, v int) { f.Threshold = v })

	case "MERIT":
		return ps.intAttr(rest, "MERIT", func(f *engine.Filter, v int) { f.Merit = v })

	case "IN_OBJECT":
		return ps.intAttr(rest, "IN_OBJECT", func(f *engine.Filter, v int) { f.InObjectSize = v })

	case "OUT_OBJECT":
		if len(rest) != 2 {
			return fail(ps, "OUT_OBJECT requires a type and a size")
		}
		if ps.current == nil {
			return fail(ps, "OUT_OBJECT outside of a FILTER block")
		}
		outType, err := parseOutputType(rest[0])
		if err != nil {
			return fail(ps, "%v", err)
		}
		size, err := strconv.Atoi(rest[1])
		if err != nil {
			return fail(ps, "OUT_OBJECT size must be an integer, got %q", rest[1])
		}
		ps.current.OutType = outType
		ps.current.OutObjectSize = size
		return nil

	case "EVAL_FUNCTION":
		return ps.funcAttr(rest, "EVAL_FUNCTION", func(f *engine.Filter, v string) { f.EvalFunction = v })
	case "INIT_FUNCTION":
		return ps.funcAttr(rest, "INIT_FUNCTION", func(f *engine.Filter, v string) { f.InitFunction = v })
	case "FINI_FUNCTION":
		return ps.funcAttr(rest, "FINI_FUNCTION", func(f *engine.Filter, v string) { f.FiniFunction = v })

	case "ARG":
		if ps.current == nil {
			return fail(ps, "ARG outside of a FILTER block")
		}
		if len(rest) != 1 {
			return fail(ps, "ARG requires exactly one token")
		}
		ps.current.Args = append(ps.current.Args, rest[0])
		return nil

	case "REQUIRES":
		if ps.current == nil {
			return fail(ps, "REQUIRES outside of a FILTER block")
		}
		if len(rest) != 1 {
			return fail(ps, "REQUIRES requires exactly one filter name")
		}
		if len(ps.current.Requires) >= ps.ctx.MaxDeps {
			return fail(ps, "filter %q exceeds MAX_DEPS (%d)", ps.current.Name, ps.ctx.MaxDeps)
		}
		ps.current.Requires = append(ps.current.Requires, rest[0])
		return nil

	default:
		return fail(ps, "unknown directive %q", directive)
	}
}

func (ps *parseState) intAttr(rest []string, name string, set func(*engine.Filter, int)) error {
	if ps.current == nil {
		return fail(ps, "%s outside of a FILTER block", name)
	}
	if len(rest) != 1 {
		return fail(ps, "%s requires exactly one integer argument", name)
	}
	v, err := strconv.Atoi(rest[0])
	if err != nil {
		return fail(ps, "%s value must be an integer, got %q", name, rest[0])
	}
	set(ps.current, v)
	return nil
}

func (ps *parseState) funcAttr(rest []string, name string, set func(*engine.Filter, string)) error {
	if ps.current == nil {
		return fail(ps, "%s outside of a FILTER block", name)
	}
	if len(rest) != 1 {
		return fail(ps, "%s requires exactly one identifier argument", name)
	}
	if len(rest[0]) > ps.ctx.MaxFunc {
		return fail(ps, "%s value %q exceeds MAX_FUNC (%d)", name, rest[0], ps.ctx.MaxFunc)
	}
	set(ps.current, rest[0])
	return nil
}

func parseOutputType(tok string) (engine.OutputType, error) {
	switch tok {
	case "UNMODIFIED":
		return engine.OutputUnmodified, nil
	case "NEW":
		return engine.OutputNew, nil
	case "CLONE":
		return engine.OutputClone, nil
	case "COPY_ATTR":
		return engine.OutputCopyAttr, nil
	default:
		return 0, fmt.Errorf("OUT_OBJECT type must be one of UNMODIFIED, NEW, CLONE, COPY_ATTR, got %q", tok)
	}
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// ParseFile opens path and parses it.
func ParseFile(path string, ctx Context) (*engine.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidSpec, fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()
	return Parse(f, ctx)
}

// Pretty renders t back into the directive grammar Parse accepts,
// supporting the round-trip property from spec §8 (parse, pretty-print,
// re-parse yields an equivalent table).
func Pretty(t *engine.Table) string {
	var b strings.Builder
	for _, f := range t.Filters {
		fmt.Fprintf(&b, "FILTER %s\n", f.Name)
		fmt.Fprintf(&b, "THRESHOLD %d\n", f.Threshold)
		if f.Merit != 0 {
			fmt.Fprintf(&b, "MERIT %d\n", f.Merit)
		}
		if f.InitFunction != "" {
			fmt.Fprintf(&b, "INIT_FUNCTION %s\n", f.InitFunction)
		}
		if f.EvalFunction != "" {
			fmt.Fprintf(&b, "EVAL_FUNCTION %s\n", f.EvalFunction)
		}
		if f.FiniFunction != "" {
			fmt.Fprintf(&b, "FINI_FUNCTION %s\n", f.FiniFunction)
		}
		for _, a := range f.Args {
			fmt.Fprintf(&b, "ARG %s\n", a)
		}
		for _, d := range f.Requires {
			fmt.Fprintf(&b, "REQUIRES %s\n", d)
		}
		if f.InObjectSize != 0 {
			fmt.Fprintf(&b, "IN_OBJECT %d\n", f.InObjectSize)
		}
		fmt.Fprintf(&b, "OUT_OBJECT %s %d\n", f.OutType, f.OutObjectSize)
		b.WriteByte('\n')
	}
	return b.String()
}
