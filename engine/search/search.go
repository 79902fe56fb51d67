// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search wires the parser, partial order, stats tracker,
// attribute cache, optimizer, and execution driver into the
// Search.start/stats/cancel surface exposed to collaborators (spec §6).
// This is the one package that owns a search's full lifecycle end to end.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/diamondcore/engine"
	"github.com/AleutianAI/diamondcore/engine/attrcache"
	"github.com/AleutianAI/diamondcore/engine/driver"
	"github.com/AleutianAI/diamondcore/engine/history"
	"github.com/AleutianAI/diamondcore/engine/optimizer"
	"github.com/AleutianAI/diamondcore/engine/partialorder"
	"github.com/AleutianAI/diamondcore/engine/permutation"
	"github.com/AleutianAI/diamondcore/engine/stats"
)

// OptimizerKind selects which Optimizer implementation a search uses.
type OptimizerKind string

const (
	OptimizerHillClimb OptimizerKind = "hillclimb"
	OptimizerBestFirst OptimizerKind = "bestfirst"
)

// Scope is the out-of-scope session/cookie payload named in spec §1 and
// §6 ("session bookkeeping, and the scope/cookie subsystem" are external
// collaborators). The core only carries it through for observability; it
// never inspects Scope's contents.
type Scope map[string]string

// Collaborators bundles the external interfaces spec §6 requires the
// core to be handed at search start.
type Collaborators struct {
	ObjectStore engine.ObjectStore
	FilterRuntime engine.FilterRuntime
	ResultSink  engine.ResultSink
}

// Config configures one search's stats, cache, driver, and optimizer.
type Config struct {
	Stats     stats.Config
	Cache     attrcache.Config
	Driver    driver.Config
	Optimizer OptimizerKind
}

// DefaultConfig mirrors the teacher's DefaultServiceConfig idiom.
func DefaultConfig() Config {
	return Config{
		Stats:     stats.DefaultConfig(),
		Cache:     attrcache.DefaultConfig(),
		Driver:    driver.DefaultConfig(),
		Optimizer: OptimizerHillClimb,
	}
}

// Handle is returned by Start and identifies one running or completed
// search (spec §6: Search.start returns a SearchHandle).
type Handle struct {
	ID        string
	Table     *engine.Table
	Scope     Scope
	StartedAt time.Time

	driver    *driver.Driver
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	mu        sync.Mutex
	endedAt   time.Time
	completed bool
}

// Wait blocks until the search finishes (store exhaustion, cancellation,
// or a fatal error) and returns the terminal error, if any.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runErr
}

// Stats returns a point-in-time snapshot (spec §6: Search.stats).
func (h *Handle) Stats() driver.Stats {
	return h.driver.Snapshot()
}

// Manager tracks in-flight and recently completed searches, and
// optionally records a durable history.Record for each one on
// completion.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	logger  *slog.Logger
	history *history.Store
}

// NewManager constructs a Manager. historyStore may be nil to disable the
// audit trail.
func NewManager(historyStore *history.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{handles: make(map[string]*Handle), logger: logger, history: historyStore}
}

// Start builds the PartialOrder, StatsTracker, Attribute Cache, and
// Optimizer for table, seeds the initial permutation with any
// topologically valid total order, and launches the Execution Driver
// across its worker pool (spec §6: Search.start). Start returns as soon
// as the driver goroutines are launched; use Handle.Wait to block for
// completion.
func (m *Manager) Start(ctx context.Context, table *engine.Table, scope Scope, collab Collaborators, cfg Config) (*Handle, error) {
	po, err := partialorder.Build(table)
	if err != nil {
		return nil, err
	}

	names := make([]string, table.Len())
	for i, f := range table.Filters {
		names[i] = f.Name
	}
	tracker := stats.New(table.Len(), cfg.Stats, names, nil)

	cache, err := attrcache.New(cfg.Cache, m.logger)
	if err != nil {
		return nil, fmt.Errorf("search: building attribute cache: %w", err)
	}

	seed := permutation.Identity(table.Len())
	optimizer.MakeValidPerm(seed, 0, table.Len(), po)
	seed.SetSize(table.Len())
	if !seed.IsTopologicallyValid(po) {
		return nil, engine.NewError(engine.KindInvalidSpec, "no valid total order exists for this filter table")
	}

	var opt optimizer.Optimizer
	switch cfg.Optimizer {
	case OptimizerBestFirst:
		opt = optimizer.NewBestFirst(po, table.Len(), m.logger)
	default:
		opt = optimizer.NewHillClimb(po, m.logger)
	}

	d := driver.New(table, po, tracker, cache, opt, collab.ObjectStore, collab.FilterRuntime, collab.ResultSink, seed, cfg.Driver, m.logger)

	searchCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:        uuid.NewString(),
		Table:     table,
		Scope:     scope,
		StartedAt: time.Now(),
		driver:    d,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()

	go m.run(searchCtx, h, cache)

	m.logger.Info("search started", slog.String("search_id", h.ID), slog.Int("filters", table.Len()))
	return h, nil
}

func (m *Manager) run(ctx context.Context, h *Handle, cache *attrcache.Cache) {
	defer close(h.done)
	defer cache.Close()

	err := h.driver.Run(ctx)

	h.mu.Lock()
	h.runErr = err
	h.endedAt = time.Now()
	h.completed = true
	h.mu.Unlock()

	if err != nil {
		m.logger.Warn("search ended with error", slog.String("search_id", h.ID), slog.Any("error", err))
	} else {
		m.logger.Info("search completed", slog.String("search_id", h.ID))
	}

	if m.history != nil {
		names := make([]string, h.Table.Len())
		for i, f := range h.Table.Filters {
			names[i] = f.Name
		}
		rec := history.FromSnapshot(h.ID, names, h.driver.Snapshot(), h.StartedAt, h.endedAt)
		if err := m.history.Save(rec); err != nil {
			m.logger.Warn("failed to persist search history", slog.String("search_id", h.ID), slog.Any("error", err))
		}
	}
}

// Get returns a tracked Handle by ID.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	return h, ok
}

// Stats returns the stats snapshot for a running or completed search
// (spec §6: Search.stats).
func (m *Manager) Stats(id string) (driver.Stats, error) {
	h, ok := m.Get(id)
	if !ok {
		return driver.Stats{}, engine.NewError(engine.KindInvalidSpec, "unknown search id "+id)
	}
	return h.Stats(), nil
}

// Cancel requests cooperative shutdown of a running search (spec §6:
// Search.cancel). Cancellation is asynchronous: Cancel returns at once,
// and each worker stops at its next filter boundary or object fetch, so
// an in-flight object is abandoned rather than finished.
func (m *Manager) Cancel(id string) error {
	h, ok := m.Get(id)
	if !ok {
		return engine.NewError(engine.KindInvalidSpec, "unknown search id "+id)
	}
	h.cancel()
	return nil
}
