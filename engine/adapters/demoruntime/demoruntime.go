// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package demoruntime implements engine.FilterRuntime against a small
// registry of named, built-in eval functions rather than any dynamically
// loaded filter code — the core's own scope explicitly excludes how
// EVAL_FUNCTION bodies are compiled or sandboxed (spec §1: "the mechanism
// by which filter code is compiled, loaded, or sandboxed" is out of
// scope). This runtime exists so `diamond run` and the test suite have a
// real, deterministic FilterRuntime to exercise the optimizer and driver
// against without pulling in an actual scripting engine.
package demoruntime

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/diamondcore/engine"
)

// EvalFunc computes a filter's score and any emitted attributes for one
// object. Implementations should be pure functions of (filt, obj).
type EvalFunc func(filt *engine.Filter, obj *engine.ObjectRecord) (score int32, emitted map[string][]byte, err error)

// Runtime resolves each Filter's EvalFunction name against a registry of
// EvalFuncs, simulating per-filter cost with an optional artificial delay
// so StatsTracker.Cost has something realistic to measure in demos.
type Runtime struct {
	funcs map[string]EvalFunc
	delay time.Duration
}

// New constructs a Runtime pre-seeded with the built-in function set.
// delay, if nonzero, is slept before every Eval call to give cheap and
// expensive filters visibly different measured costs in a demo.
func New(delay time.Duration) *Runtime {
	r := &Runtime{funcs: make(map[string]EvalFunc), delay: delay}
	r.Register("ALWAYS_PASS", alwaysPass)
	r.Register("ALWAYS_FAIL", alwaysFail)
	r.Register("BYTE_LENGTH", byteLength)
	r.Register("SUBSTRING_MATCH", substringMatch)
	r.Register("BYTE_HISTOGRAM_PEAK", byteHistogramPeak)
	return r
}

// Register adds or replaces the eval function bound to name.
func (r *Runtime) Register(name string, fn EvalFunc) {
	r.funcs[name] = fn
}

// Eval implements engine.FilterRuntime.
func (r *Runtime) Eval(ctx context.Context, filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
	fn, ok := r.funcs[filt.EvalFunction]
	if !ok {
		return 0, nil, engine.Wrap(engine.KindFilterEval,
			fmt.Sprintf("no registered eval function %q for filter %q", filt.EvalFunction, filt.Name), nil)
	}
	return fn(filt, obj)
}

func alwaysPass(filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	return int32(filt.Threshold) + 1, nil, nil
}

func alwaysFail(filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	return int32(filt.Threshold) - 1, nil, nil
}

// byteLength scores an object by its body length, letting THRESHOLD act as
// a minimum-size gate.
func byteLength(filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	return int32(len(obj.Body)), nil, nil
}

// substringMatch scores 1 per occurrence of filt.Args[0] in the object
// body, emitting the match count as an attribute for downstream filters
// declaring this one in REQUIRES.
func substringMatch(filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	if len(filt.Args) == 0 {
		return 0, nil, engine.NewError(engine.KindFilterEval, "SUBSTRING_MATCH requires one ARG")
	}
	needle := []byte(filt.Args[0])
	count := bytes.Count(obj.Body, needle)
	emitted := map[string][]byte{filt.Name + ".count": []byte(fmt.Sprintf("%d", count))}
	return int32(count), emitted, nil
}

// byteHistogramPeak scores an object by its most frequent byte value's
// count, a stand-in for a cheap structural heuristic.
func byteHistogramPeak(filt *engine.Filter, obj *engine.ObjectRecord) (int32, map[string][]byte, error) {
	var hist [256]int
	for _, b := range obj.Body {
		hist[b]++
	}
	peak := 0
	for _, c := range hist {
		if c > peak {
			peak = c
		}
	}
	return int32(peak), nil, nil
}
