// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists a durable summary record of each completed
// search — final permutation, per-filter stats, object counts, duration —
// keyed by search ID. This is an audit trail, not the live StatsTracker:
// spec §1 is explicit that the core "does not persist learned statistics
// across searches," and nothing here feeds back into any live optimizer
// decision. It exists purely so Store.Load can answer "what happened in
// search X" after the fact.
//
// Modeled directly on the teacher's BadgerRouterCacheStore: gob-encoded
// values, a versioned key prefix, and BadgerDB's native TTL GC in place of
// application-level expiry bookkeeping.
package history

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/diamondcore/engine/driver"
)

const (
	keyPrefix  = "diamond/history/v1/"
	defaultTTL = 30 * 24 * time.Hour
)

// Record is one completed search's audit summary.
type Record struct {
	SearchID         string
	FilterNames      []string
	FinalPerm        []int
	ObjectsProcessed uint64
	ObjectsPassed    uint64
	PerFilter        []FilterSummary
	StartedAt        time.Time
	EndedAt          time.Time
}

// FilterSummary is the per-filter slice of a Record, decoupled from
// stats.Snapshot so this package does not need to import the live
// stats package's internal representation.
type FilterSummary struct {
	Name        string
	ObjectsSeen uint64
	ObjectsPass uint64
	Selectivity float64
	Cost        float64
}

// FromSnapshot builds a Record from a completed search's final driver
// snapshot.
func FromSnapshot(searchID string, filterNames []string, snap driver.Stats, started, ended time.Time) Record {
	r := Record{
		SearchID:         searchID,
		FilterNames:      filterNames,
		FinalPerm:        snap.CurrentPerm,
		ObjectsProcessed: snap.ObjectsProcessed,
		ObjectsPassed:    snap.ObjectsPassed,
		StartedAt:        started,
		EndedAt:          ended,
	}
	for _, s := range snap.PerFilter {
		r.PerFilter = append(r.PerFilter, FilterSummary{
			Name:        s.Name,
			ObjectsSeen: s.ObjectsSeen,
			ObjectsPass: s.ObjectsPass,
			Selectivity: s.Selectivity,
			Cost:        s.Cost,
		})
	}
	return r
}

// Store persists Records in a BadgerDB instance. The DB's lifecycle is
// owned by the caller — Store never opens or closes it.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open wraps an already-opened BadgerDB instance. ttl of 0 uses
// defaultTTL.
func Open(db *badger.DB, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{db: db, ttl: ttl, logger: logger}
}

func recordKey(searchID string) []byte {
	return []byte(keyPrefix + searchID)
}

// Save persists r, overwriting any prior record for the same SearchID.
// Persistence failure is non-fatal: the caller logs and moves on, per the
// same tolerance the teacher's RouterCacheStore applies to cache writes.
func (s *Store) Save(r Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("history: encode record: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(recordKey(r.SearchID), buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("history: write record %s: %w", r.SearchID, err)
	}
	return nil
}

// Load retrieves the Record for searchID. Returns (Record{}, false, nil)
// on cache miss (key absent or TTL-expired), matching the teacher's
// LoadEmbeddings contract.
func (s *Store) Load(searchID string) (Record, bool, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(searchID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("history: read record %s: %w", searchID, err)
	}
	return r, true, nil
}
