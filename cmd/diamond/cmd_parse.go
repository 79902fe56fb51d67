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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/diamondcore/engine/parser"
	"github.com/AleutianAI/diamondcore/engine/partialorder"
)

var parseCmd = &cobra.Command{
	Use:   "parse <spec-file>",
	Short: "parse a filter-spec file and print the resolved table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := parser.ParseFile(args[0], parser.DefaultContext())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, parser.Pretty(table))

		po, err := partialorder.Build(table)
		if err != nil {
			return err
		}
		var minimal []string
		for i, f := range table.Filters {
			if po.IsMin(i) {
				minimal = append(minimal, f.Name)
			}
		}
		fmt.Fprintf(out, "\n%d filters, %d eligible to run first: %v\n", table.Len(), len(minimal), minimal)
		if table.Application >= 0 {
			fmt.Fprintf(out, "APPLICATION filter: %s (index %d)\n", table.Filters[table.Application].Name, table.Application)
		} else {
			fmt.Fprintln(out, "no APPLICATION filter declared")
		}
		return nil
	},
}
