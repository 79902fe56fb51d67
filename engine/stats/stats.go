// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats tracks per-filter running cost/pass-rate statistics and
// evaluates the expected cost of a permutation prefix (spec §4.4).
//
// StatsTracker is never persisted across searches (spec §1 Non-goal); the
// durable audit trail in engine/history records only a final snapshot,
// not the live tracker itself.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/diamondcore/engine/permutation"
)

// Config tunes the smoothing and default-cost behavior of a Tracker.
type Config struct {
	// MinSamples is the minimum objects_seen before a filter's cost/
	// selectivity is trusted enough to evaluate past it (spec §4.4).
	MinSamples uint64
	// DefaultCost is the mean-cost value reported for an unseen filter.
	DefaultCost float64
}

// DefaultConfig mirrors the teacher's DefaultServiceConfig idiom.
func DefaultConfig() Config {
	return Config{MinSamples: 10, DefaultCost: 1.0}
}

type filterCounters struct {
	mu          sync.Mutex
	objectsSeen uint64
	objectsPass uint64
	execTicks   uint64
}

// Tracker holds per-filter running counts behind a short-critical-section
// lock (spec §5: "a single lock held only for record"). Per-filter shards
// keep the lock's blast radius to one filter instead of the whole table.
type Tracker struct {
	cfg     Config
	filters []*filterCounters

	passRateGauge *prometheus.GaugeVec
	costGauge     *prometheus.GaugeVec
	recordedTotal *prometheus.CounterVec
}

// New builds a Tracker for n filters and registers its metrics on reg
// (the default registerer when nil), replacing any metrics a previous
// Tracker registered there. names is not used: metric labels come from
// the filterName passed to Record.
func New(n int, cfg Config, names []string, reg prometheus.Registerer) *Tracker {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Tracker{
		cfg:     cfg,
		filters: make([]*filterCounters, n),
	}
	for i := range t.filters {
		t.filters[i] = &filterCounters{}
	}

	t.passRateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diamond",
		Subsystem: "stats",
		Name:      "filter_selectivity",
		Help:      "Laplace-smoothed pass rate per filter.",
	}, []string{"filter"})
	t.costGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diamond",
		Subsystem: "stats",
		Name:      "filter_cost_ticks",
		Help:      "Mean execution ticks per filter invocation.",
	}, []string{"filter"})
	t.recordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diamond",
		Subsystem: "stats",
		Name:      "filter_records_total",
		Help:      "Count of StatsTracker.Record calls per filter and outcome.",
	}, []string{"filter", "outcome"})
	for _, c := range []prometheus.Collector{t.passRateGauge, t.costGauge, t.recordedTotal} {
		reg.Unregister(c) // one Tracker per search shares reg; the newest one's metrics win
		reg.MustRegister(c)
	}

	_ = names // labels are attached lazily in Record to avoid requiring names up front
	return t
}

// Record updates the running counts for filterID with the outcome of one
// invocation (spec §4.4).
func (t *Tracker) Record(filterID int, passed bool, ticks uint64, filterName string) {
	c := t.filters[filterID]
	c.mu.Lock()
	c.objectsSeen++
	if passed {
		c.objectsPass++
	}
	c.execTicks += ticks
	seen, pass, exec := c.objectsSeen, c.objectsPass, c.execTicks
	c.mu.Unlock()

	sel := laplace(pass, seen)
	cost := meanCost(exec, seen, t.cfg.DefaultCost)
	t.passRateGauge.WithLabelValues(filterName).Set(sel)
	t.costGauge.WithLabelValues(filterName).Set(cost)
	outcome := "drop"
	if passed {
		outcome = "pass"
	}
	t.recordedTotal.WithLabelValues(filterName, outcome).Inc()
}

func laplace(passed, seen uint64) float64 {
	return float64(passed+1) / float64(seen+2)
}

func meanCost(execTicks, seen uint64, def float64) float64 {
	if seen == 0 {
		return def
	}
	return float64(execTicks) / float64(seen)
}

// Selectivity returns the Laplace-smoothed pass rate for filterID, 0.5 if
// unseen (spec §4.4).
func (t *Tracker) Selectivity(filterID int) float64 {
	c := t.filters[filterID]
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objectsSeen == 0 {
		return 0.5
	}
	return laplace(c.objectsPass, c.objectsSeen)
}

// Cost returns the mean ticks per call for filterID, DefaultCost if
// unseen.
func (t *Tracker) Cost(filterID int) float64 {
	c := t.filters[filterID]
	c.mu.Lock()
	defer c.mu.Unlock()
	return meanCost(c.execTicks, c.objectsSeen, t.cfg.DefaultCost)
}

// Seen returns the objects_seen count for filterID.
func (t *Tracker) Seen(filterID int) uint64 {
	c := t.filters[filterID]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objectsSeen
}

// Evaluate computes the expected cost of perm's prefix (spec §4.4):
//
//	E[cost] = sum_{i=0}^{k-1} cost(perm[i]) * prod_{j<i} selectivity(perm[j])
//
// The optimizer maximizes -E[cost]; Evaluate returns the positive
// expected cost (lower is better) alongside an optional "needs data"
// signal: if any filter in the prefix has seen < MinSamples, score is
// ignored and needsData is the first such unseen filter's index.
func (t *Tracker) Evaluate(perm *permutation.Permutation) (score float64, needsData int, ok bool) {
	k := perm.PrefixSize
	upstream := 1.0
	total := 0.0
	for i := 0; i < k; i++ {
		fid := perm.At(i)
		if t.Seen(fid) < t.cfg.MinSamples {
			return 0, fid, false
		}
		total += t.Cost(fid) * upstream
		upstream *= t.Selectivity(fid)
	}
	return total, -1, true
}

// Snapshot captures a point-in-time copy of every filter's counters, for
// the search-history audit trail and the HTTP stats endpoint.
type Snapshot struct {
	FilterID    int
	Name        string
	ObjectsSeen uint64
	ObjectsPass uint64
	Selectivity float64
	Cost        float64
}

// SnapshotAll returns a Snapshot per filter, in index order.
func (t *Tracker) SnapshotAll(names []string) []Snapshot {
	out := make([]Snapshot, len(t.filters))
	for i := range t.filters {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		c := t.filters[i]
		c.mu.Lock()
		seen, pass := c.objectsSeen, c.objectsPass
		c.mu.Unlock()
		out[i] = Snapshot{
			FilterID:    i,
			Name:        name,
			ObjectsSeen: seen,
			ObjectsPass: pass,
			Selectivity: t.Selectivity(i),
			Cost:        t.Cost(i),
		}
	}
	return out
}
