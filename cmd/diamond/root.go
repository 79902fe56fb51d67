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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "diamond",
	Short: "diamond runs the adaptive filter-execution core against a local corpus",
	Long: "diamond is the reference CLI around the filter-execution engine: it parses a\n" +
		"filter-spec file, drives the optimizer and execution driver over a directory\n" +
		"of candidate objects, and can watch a running search's stats over HTTP.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
}
