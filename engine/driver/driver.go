// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package driver implements the per-object Execution Driver of spec §4.7:
// fetch an object, run filters in the current order, short-circuit on
// drop, feed measurements to StatsTracker, and periodically invoke the
// active Optimizer.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/diamondcore/engine"
	"github.com/AleutianAI/diamondcore/engine/attrcache"
	"github.com/AleutianAI/diamondcore/engine/optimizer"
	"github.com/AleutianAI/diamondcore/engine/partialorder"
	"github.com/AleutianAI/diamondcore/engine/permutation"
	"github.com/AleutianAI/diamondcore/engine/stats"
)

var driverTracer = otel.Tracer("diamondcore/engine/driver")

var (
	objectsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diamond",
		Subsystem: "driver",
		Name:      "objects_total",
		Help:      "Objects processed by outcome: passed, dropped.",
	}, []string{"outcome"})

	optimizerStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diamond",
		Subsystem: "driver",
		Name:      "optimizer_steps_total",
		Help:      "Optimizer.Step invocations by result.",
	}, []string{"result"})

	reoptLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "diamond",
		Subsystem: "driver",
		Name:      "reopt_latency_seconds",
		Help:      "Wall-clock time spent inside one maybeReoptimize call.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Config tunes the driver's worker pool and reoptimization cadence (spec
// §4.7, §5).
type Config struct {
	// Workers is the size of the search-thread pool (spec §5: "a small
	// pool suffices").
	Workers int
	// ReoptInterval triggers a reoptimization pass every N objects.
	ReoptInterval uint64
	// MaxOptSteps bounds how many Optimizer.Step calls one reoptimization
	// pass may spend.
	MaxOptSteps int
	// MaxConsecFails aborts the search once the same filter fails on more
	// than this many consecutive objects (spec §7).
	MaxConsecFails uint64
	// SampleThreshold additionally triggers reoptimization the first time
	// any filter's sample count crosses this value (spec §4.7).
	SampleThreshold uint64
}

// DefaultConfig mirrors the teacher's DefaultServiceConfig idiom.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		ReoptInterval:   100,
		MaxOptSteps:     64,
		MaxConsecFails:  20,
		SampleThreshold: 10,
	}
}

// Driver is the Execution Driver of spec §4.7.
type Driver struct {
	table   *engine.Table
	po      *partialorder.PartialOrder
	tracker *stats.Tracker
	cache   *attrcache.Cache
	store   engine.ObjectStore
	runtime engine.FilterRuntime
	sink    engine.ResultSink
	logger  *slog.Logger
	cfg     Config
	opt     optimizer.Optimizer

	currentPerm atomic.Pointer[permutation.Permutation]

	objectsProcessed atomic.Uint64
	objectsPassed    atomic.Uint64

	consecFails   []atomic.Uint64
	sampleCrossed []atomic.Bool

	optMu sync.Mutex
}

// New constructs a Driver. seed becomes the initial current_perm and must
// already be a valid total order under po (e.g. from
// optimizer.MakeValidPerm applied to the identity permutation).
func New(
	table *engine.Table,
	po *partialorder.PartialOrder,
	tracker *stats.Tracker,
	cache *attrcache.Cache,
	opt optimizer.Optimizer,
	store engine.ObjectStore,
	runtime engine.FilterRuntime,
	sink engine.ResultSink,
	seed *permutation.Permutation,
	cfg Config,
	logger *slog.Logger,
) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		table:         table,
		po:            po,
		tracker:       tracker,
		cache:         cache,
		store:         store,
		runtime:       runtime,
		sink:          sink,
		logger:        logger,
		cfg:           cfg,
		opt:           opt,
		consecFails:   make([]atomic.Uint64, table.Len()),
		sampleCrossed: make([]atomic.Bool, table.Len()),
	}
	d.currentPerm.Store(seed)
	return d
}

// CurrentPerm returns the permutation workers are currently evaluating
// against, loaded atomically (spec §5: "no reader sees a torn
// permutation").
func (d *Driver) CurrentPerm() *permutation.Permutation {
	return d.currentPerm.Load()
}

// Stats is the public snapshot returned by Search.stats (spec §6).
type Stats struct {
	ObjectsProcessed uint64
	ObjectsPassed    uint64
	PerFilter        []stats.Snapshot
	CurrentPerm      []int
}

// Snapshot returns a point-in-time Stats value.
func (d *Driver) Snapshot() Stats {
	names := make([]string, d.table.Len())
	for i, f := range d.table.Filters {
		names[i] = f.Name
	}
	perm := d.currentPerm.Load()
	order := make([]int, perm.Len())
	copy(order, perm.Elements())
	return Stats{
		ObjectsProcessed: d.objectsProcessed.Load(),
		ObjectsPassed:    d.objectsPassed.Load(),
		PerFilter:        d.tracker.SnapshotAll(names),
		CurrentPerm:      order,
	}
}

// Run drives Config.Workers concurrent search threads against the object
// store until it is exhausted or ctx is cancelled. Cancellation is
// cooperative: workers check ctx between filter invocations and before
// each object fetch (spec §5).
func (d *Driver) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error { return d.worker(gctx) })
	}
	err := g.Wait()
	if errors.Is(err, engine.ErrEndOfStream) {
		return nil
	}
	return err
}

func (d *Driver) worker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return engine.Wrap(engine.KindCancelled, "search cancelled", ctx.Err())
		}
		obj, err := d.store.Next(ctx)
		for attempt, backoff := 1, 100*time.Millisecond; err != nil && attempt < 5 &&
			!errors.Is(err, engine.ErrEndOfStream) && ctx.Err() == nil; attempt++ {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(2*backoff, 30*time.Second)
			obj, err = d.store.Next(ctx)
		}
		if err != nil {
			if errors.Is(err, engine.ErrEndOfStream) {
				return nil
			}
			if ctx.Err() != nil {
				return engine.Wrap(engine.KindCancelled, "search cancelled", ctx.Err())
			}
			return engine.Wrap(engine.KindCollaboratorUnavailable, "object store", err)
		}
		if err := d.processObject(ctx, obj); err != nil {
			return err
		}
		n := d.objectsProcessed.Add(1)
		if n%d.cfg.ReoptInterval == 0 {
			d.maybeReoptimize(ctx)
		}
	}
}

func (d *Driver) processObject(ctx context.Context, obj *engine.ObjectRecord) error {
	ctx, span := driverTracer.Start(ctx, "driver.processObject",
		trace.WithAttributes(attribute.String("object.id", obj.ID)))
	defer span.End()

	perm := d.currentPerm.Load()
	for i := 0; i < perm.Len(); i++ {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return engine.Wrap(engine.KindCancelled, "search cancelled mid-object", ctx.Err())
		}

		filt := d.table.Filters[perm.At(i)]
		score, emitted, ticks, err := d.evalFilter(ctx, filt, obj)
		if err != nil {
			fails := d.consecFails[filt.Index].Add(1)
			d.logger.Warn("filter_eval_error, treating object as dropped",
				slog.String("filter", filt.Name), slog.String("object", obj.ID), slog.Any("error", err))
			if fails > d.cfg.MaxConsecFails {
				span.SetStatus(codes.Error, "filter eval failures exceeded threshold")
				return engine.Wrap(engine.KindFilterEval,
					"filter "+filt.Name+" exceeded MaxConsecFails", err)
			}
			objectsProcessedTotal.WithLabelValues("dropped").Inc()
			return nil
		}
		d.consecFails[filt.Index].Store(0)

		passed := filt.Passed(score)
		d.tracker.Record(filt.Index, passed, ticks, filt.Name)
		d.checkSampleThreshold(ctx, filt.Index)

		obj.Scores[filt.Index] = score
		obj.Ran[filt.Index] = true
		for k, v := range emitted {
			obj.Attributes[k] = v
		}

		if !passed {
			span.SetAttributes(attribute.String("dropped_by", filt.Name))
			objectsProcessedTotal.WithLabelValues("dropped").Inc()
			return nil
		}
	}

	if err := d.sink.Emit(ctx, obj); err != nil {
		return engine.Wrap(engine.KindCollaboratorUnavailable, "result sink", err)
	}
	d.objectsPassed.Add(1)
	objectsProcessedTotal.WithLabelValues("passed").Inc()
	return nil
}

func (d *Driver) evalFilter(ctx context.Context, filt *engine.Filter, obj *engine.ObjectRecord) (score int32, emitted map[string][]byte, ticks uint64, err error) {
	sig := filt.Signature()
	if entry, ok := d.cache.Get(sig, obj.ID); ok {
		return entry.Score, entry.Emitted, 0, nil
	}

	start := time.Now()
	score, emitted, err = d.runtime.Eval(ctx, filt, obj)
	elapsed := time.Since(start)
	ticks = uint64(elapsed.Nanoseconds())
	if err != nil {
		return 0, nil, ticks, errors.Join(engine.ErrEvalFailed, err)
	}
	d.cache.Set(sig, obj.ID, attrcache.Entry{Score: score, Emitted: emitted})
	return score, emitted, ticks, nil
}

func (d *Driver) checkSampleThreshold(ctx context.Context, filterID int) {
	if d.sampleCrossed[filterID].Load() {
		return
	}
	if d.tracker.Seen(filterID) >= d.cfg.SampleThreshold {
		if d.sampleCrossed[filterID].CompareAndSwap(false, true) {
			d.maybeReoptimize(ctx)
		}
	}
}

// maybeReoptimize invokes the active Optimizer for up to MaxOptSteps
// steps (spec §4.7). Only one goroutine runs the optimizer at a time;
// others skip this cycle rather than blocking, since reoptimization is
// best-effort.
func (d *Driver) maybeReoptimize(ctx context.Context) {
	if !d.optMu.TryLock() {
		return
	}
	defer d.optMu.Unlock()

	start := time.Now()
	defer func() { reoptLatency.Observe(time.Since(start).Seconds()) }()

	ctx, span := driverTracer.Start(ctx, "driver.maybeReoptimize")
	defer span.End()

	d.opt.Reset(d.currentPerm.Load())
	for step := 0; step < d.cfg.MaxOptSteps; step++ {
		outcome := d.opt.Step(d.tracker)
		optimizerStepsTotal.WithLabelValues(outcome.Result.String()).Inc()

		switch outcome.Result {
		case optimizer.RCNoData:
			// A NODATA candidate may only have its first PrefixSize
			// positions chosen; the tail still holds every unplaced
			// filter (permutation.CopyWithTail semantics), just not yet
			// ordered. Complete it into a fully valid total order before
			// publishing, so current_perm's invariant (always a
			// topologically valid total order, spec §4.7) never lapses
			// even while the optimizer is mid-search.
			completed := outcome.Permutation.Dup()
			n := completed.Len()
			optimizer.MakeValidPerm(completed, outcome.Permutation.PrefixSize, n, d.po)
			completed.SetSize(n)
			d.publish(completed, "nodata")
			return
		case optimizer.RCComplete:
			d.publish(outcome.Permutation, "complete")
			return
		case optimizer.RCContinue:
			continue
		}
	}
	d.logger.Debug("reoptimization budget exhausted without convergence",
		slog.Int("max_steps", d.cfg.MaxOptSteps))
}

// publish commits perm as the new current_perm, after verifying spec
// §4.7's correctness invariant: current_perm is always a topologically
// valid total order. A swap that would violate po is rejected before
// commit — in practice the optimizers never propose one, but this is the
// last line of defense the invariant promises.
func (d *Driver) publish(perm *permutation.Permutation, reason string) {
	if perm == nil {
		return
	}
	if perm.PrefixSize == perm.Len() && !perm.IsTopologicallyValid(d.po) {
		d.logger.Error("optimizer proposed a topologically invalid permutation, rejecting",
			slog.String("reason", reason), slog.String("perm", perm.String()))
		return
	}
	d.currentPerm.Store(perm)
	d.logger.Debug("current_perm updated", slog.String("reason", reason), slog.String("perm", perm.String()))
}
