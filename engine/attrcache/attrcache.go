// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package attrcache implements the Attribute Cache of spec §4.8:
// memoized filter outputs keyed by (filter signature, object identity),
// guaranteeing at-most-once evaluation of a given filter on a given
// object within one search session, regardless of how many times the
// optimizer reorders the permutation around it.
//
// Backed by ristretto, a cost-bounded, concurrent, TinyLFU-admission
// cache — the same library the teacher's own BadgerDB-backed cache sits
// next to in its dependency graph. The cache is bounded by total cost
// (entry bytes), without the disk-durability BadgerDB would otherwise
// impose. Eviction is not least-recently-used: ristretto admits entries
// through a TinyLFU filter and evicts by sampled least-frequently-used,
// and it may drop a Set rather than admit it.
package attrcache

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"
)

// Entry is what the cache stores per (filter signature, object identity)
// key: the filter's score and whatever attributes it emitted.
type Entry struct {
	Score   int32
	Emitted map[string][]byte
}

// costOf estimates an Entry's byte cost for ristretto's bookkeeping.
func costOf(e Entry) int64 {
	cost := int64(4) // score
	for k, v := range e.Emitted {
		cost += int64(len(k) + len(v))
	}
	return cost
}

// Cache wraps a ristretto.Cache scoped to one search session.
type Cache struct {
	c      *ristretto.Cache[string, Entry]
	logger *slog.Logger
}

// Config tunes the cache's size bound.
type Config struct {
	// MaxBytes bounds total cost (approximately total bytes) the cache
	// will hold before evicting.
	MaxBytes int64
	// NumCounters sizes ristretto's admission-frequency sketch; ristretto
	// recommends ~10x the expected number of distinct keys.
	NumCounters int64
}

// DefaultConfig bounds the cache at 256MiB, sized for a few hundred
// thousand distinct (filter, object) pairs.
func DefaultConfig() Config {
	return Config{MaxBytes: 256 << 20, NumCounters: 1e6}
}

// New constructs a Cache per Config.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("attrcache: new ristretto cache: %w", err)
	}
	return &Cache{c: c, logger: logger}, nil
}

// Key builds the cache key from a filter signature and object identity
// (spec §4.8).
func Key(filterSignature, objectID string) string {
	return filterSignature + "\x1f" + objectID
}

// Get returns the cached Entry for (filterSignature, objectID), if
// present. A cache_miss is the expected, normal path (spec §7) and is not
// logged as an error.
func (c *Cache) Get(filterSignature, objectID string) (Entry, bool) {
	v, ok := c.c.Get(Key(filterSignature, objectID))
	if !ok {
		return Entry{}, false
	}
	return v, true
}

// Set records the outcome of evaluating filterSignature against
// objectID. SetWithTTL is not used: entries live for the session, bounded
// only by the cost budget (spec §4.8 has no TTL, only size-based LRU
// eviction).
func (c *Cache) Set(filterSignature, objectID string, entry Entry) {
	c.c.Set(Key(filterSignature, objectID), entry, costOf(entry))
}

// Wait blocks until all pending cache writes have been applied to the
// internal store — ristretto buffers writes asynchronously by design, so
// tests that assert on a just-written key must call Wait first.
func (c *Cache) Wait() { c.c.Wait() }

// Close releases the cache's background goroutines.
func (c *Cache) Close() { c.c.Close() }

// Metrics exposes ristretto's built-in hit/miss/cost counters for the
// stats endpoint.
func (c *Cache) Metrics() *ristretto.Metrics { return c.c.Metrics }
