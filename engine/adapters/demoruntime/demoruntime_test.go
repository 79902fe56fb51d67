// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package demoruntime

import (
	"context"
	"testing"

	"github.com/AleutianAI/diamondcore/engine"
)

func TestAlwaysPassAndFail(t *testing.T) {
	rt := New(0)
	obj := engine.NewObjectRecord("o", []byte("x"))

	passFilt := &engine.Filter{Name: "p", Threshold: 5, EvalFunction: "ALWAYS_PASS"}
	score, _, err := rt.Eval(context.Background(), passFilt, obj)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !passFilt.Passed(score) {
		t.Fatalf("ALWAYS_PASS should clear its own threshold, score=%d", score)
	}

	failFilt := &engine.Filter{Name: "f", Threshold: 5, EvalFunction: "ALWAYS_FAIL"}
	score, _, err = rt.Eval(context.Background(), failFilt, obj)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if failFilt.Passed(score) {
		t.Fatalf("ALWAYS_FAIL should not clear its own threshold, score=%d", score)
	}
}

func TestByteLength(t *testing.T) {
	rt := New(0)
	obj := engine.NewObjectRecord("o", []byte("hello world"))
	filt := &engine.Filter{Name: "len", Threshold: 5, EvalFunction: "BYTE_LENGTH"}
	score, _, err := rt.Eval(context.Background(), filt, obj)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if score != int32(len(obj.Body)) {
		t.Fatalf("score = %d, want %d", score, len(obj.Body))
	}
}

func TestSubstringMatchEmitsCount(t *testing.T) {
	rt := New(0)
	obj := engine.NewObjectRecord("o", []byte("ababab"))
	filt := &engine.Filter{Name: "m", Threshold: 0, EvalFunction: "SUBSTRING_MATCH", Args: []string{"ab"}}
	score, emitted, err := rt.Eval(context.Background(), filt, obj)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if score != 3 {
		t.Fatalf("score = %d, want 3", score)
	}
	if string(emitted["m.count"]) != "3" {
		t.Fatalf("emitted count = %q, want 3", emitted["m.count"])
	}
}

func TestSubstringMatchRequiresArg(t *testing.T) {
	rt := New(0)
	obj := engine.NewObjectRecord("o", []byte("x"))
	filt := &engine.Filter{Name: "m", EvalFunction: "SUBSTRING_MATCH"}
	if _, _, err := rt.Eval(context.Background(), filt, obj); err == nil {
		t.Fatal("expected an error when SUBSTRING_MATCH has no ARG")
	}
}

func TestUnknownEvalFunctionErrors(t *testing.T) {
	rt := New(0)
	obj := engine.NewObjectRecord("o", []byte("x"))
	filt := &engine.Filter{Name: "m", EvalFunction: "NOT_REGISTERED"}
	if _, _, err := rt.Eval(context.Background(), filt, obj); err == nil {
		t.Fatal("expected an error for an unregistered eval function")
	}
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	rt := New(0)
	rt.Register("ALWAYS_PASS", func(f *engine.Filter, o *engine.ObjectRecord) (int32, map[string][]byte, error) {
		return -999, nil, nil
	})
	filt := &engine.Filter{Name: "p", Threshold: 0, EvalFunction: "ALWAYS_PASS"}
	score, _, err := rt.Eval(context.Background(), filt, engine.NewObjectRecord("o", nil))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if score != -999 {
		t.Fatalf("Register should override the builtin, got score=%d", score)
	}
}
