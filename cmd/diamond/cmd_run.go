// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/diamondcore/engine/adapters/demoruntime"
	"github.com/AleutianAI/diamondcore/engine/adapters/fsobjects"
	"github.com/AleutianAI/diamondcore/engine/parser"
	"github.com/AleutianAI/diamondcore/engine/search"
)

var (
	runOutDir    string
	runOptimizer string
	runWorkers   int
	runDelay     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <spec-file> <corpus-dir>",
	Short: "run a search: parse a filter spec and evaluate every file in corpus-dir",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	runCmd.Flags().StringVar(&runOutDir, "out", "", "directory to write passing objects to (defaults to a temp directory)")
	runCmd.Flags().StringVar(&runOptimizer, "optimizer", "hillclimb", "optimizer to use: hillclimb or bestfirst")
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "search worker pool size")
	runCmd.Flags().DurationVar(&runDelay, "delay", 0, "artificial per-filter eval delay, for demoing cost-driven reordering")
}

func runSearch(cmd *cobra.Command, args []string) error {
	specPath, corpusDir := args[0], args[1]

	table, err := parser.ParseFile(specPath, parser.DefaultContext())
	if err != nil {
		return err
	}

	store, err := fsobjects.Open(corpusDir)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", slog.String("dir", corpusDir), slog.Int("objects", store.Len()))

	outDir := runOutDir
	if outDir == "" {
		outDir, err = os.MkdirTemp("", "diamond-results-*")
		if err != nil {
			return err
		}
	}
	sink, err := fsobjects.NewSink(outDir)
	if err != nil {
		return err
	}

	cfg := search.DefaultConfig()
	cfg.Driver.Workers = runWorkers
	switch runOptimizer {
	case "hillclimb":
		cfg.Optimizer = search.OptimizerHillClimb
	case "bestfirst":
		cfg.Optimizer = search.OptimizerBestFirst
	default:
		return fmt.Errorf("unknown optimizer %q: want hillclimb or bestfirst", runOptimizer)
	}

	manager := search.NewManager(nil, logger)
	handle, err := manager.Start(context.Background(), table, nil, search.Collaborators{
		ObjectStore:   store,
		FilterRuntime: demoruntime.New(runDelay),
		ResultSink:    sink,
	}, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Warn("cancellation requested, draining in-flight objects")
		manager.Cancel(handle.ID)
	}()

	runErr := handle.Wait()

	snap := handle.Stats()
	fmt.Printf("processed %d objects, %d passed\n", snap.ObjectsProcessed, snap.ObjectsPassed)
	fmt.Printf("final order: %v\n", snap.CurrentPerm)
	for _, s := range snap.PerFilter {
		fmt.Printf("  %-24s seen=%-6d pass=%-6d selectivity=%.3f cost=%.0fns\n",
			s.Name, s.ObjectsSeen, s.ObjectsPass, s.Selectivity, s.Cost)
	}
	fmt.Printf("results written to %s\n", outDir)

	return runErr
}
