// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog [file]",
	Short: "Print entries from a change log file",
	Long: `Print the entries of a JSONL change log written by a server running
with changelog.file set. Without an argument the configured file is read.`,
	Example: `  shiftsync changelog ./changes.jsonl             # Every entry
  shiftsync changelog --since 100 -o table         # Entries after clock 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since") //nolint:errcheck // flags are validated by cobra

		path := globalConfig.ChangeLog.File
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no change log file given and changelog.file is not set")
		}

		entries, err := changelog.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read change log: %w", err)
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.Clock > since {
				filtered = append(filtered, e)
			}
		}
		fmt.Print(cli.FormatChangeLog(filtered, outputFormat))
		return nil
	},
}

func init() {
	changelogCmd.Flags().Int64("since", 0, "only print entries with a clock above this value")
}
