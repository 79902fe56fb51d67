// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/diamondcore/engine"
	"github.com/AleutianAI/diamondcore/engine/search"
)

const apiTestSpec = `FILTER gate
THRESHOLD 0
EVAL_FUNCTION ALWAYS_PASS
OUT_OBJECT UNMODIFIED 0

FILTER APPLICATION
THRESHOLD 0
EVAL_FUNCTION ALWAYS_PASS
OUT_OBJECT UNMODIFIED 0
`

type nullStore struct{}

func (nullStore) Next(ctx context.Context) (*engine.ObjectRecord, error) { return nil, engine.ErrEndOfStream }

type nullRuntime struct{}

func (nullRuntime) Eval(ctx context.Context, f *engine.Filter, o *engine.ObjectRecord) (int32, map[string][]byte, error) {
	return 0, nil, nil
}

type nullSink struct{}

func (nullSink) Emit(ctx context.Context, o *engine.ObjectRecord) error { return nil }

func newTestServer() *httptest.Server {
	gin.SetMode(gin.TestMode)
	manager := search.NewManager(nil, nil)
	h := NewHandlers(manager, search.Collaborators{
		ObjectStore:   nullStore{},
		FilterRuntime: nullRuntime{},
		ResultSink:    nullSink{},
	}, search.DefaultConfig(), nil)

	r := gin.New()
	RegisterRoutes(r.Group("/v1"), h)
	return httptest.NewServer(r)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStartSearch_InvalidSpecRejected(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"filter_spec": "BOGUS directive\n"})
	resp, err := http.Post(srv.URL+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an invalid filter spec", resp.StatusCode)
	}
}

func TestStartSearch_ThenFetchStats(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"filter_spec": apiTestSpec})
	resp, err := http.Post(srv.URL+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var started startSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.SearchID == "" {
		t.Fatal("expected a non-empty search id")
	}

	// The search completes almost immediately (nullStore has no objects),
	// but the stats endpoint should be reachable regardless of timing.
	time.Sleep(50 * time.Millisecond)
	statsResp, err := http.Get(srv.URL + "/v1/search/" + started.SearchID)
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer statsResp.Body.Close()
	if statsResp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", statsResp.StatusCode)
	}
}

func TestStats_UnknownSearchID(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/search/does-not-exist")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelSearch_UnknownID(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/search/does-not-exist/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
