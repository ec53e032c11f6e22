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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export, restore or inspect snapshots of the persisted store",
	Long: `Snapshots are JSON documents holding every live staff member and the
global clock. They are written to snapshot.dir, or to snapshot.bucket on S3
when a bucket is configured. Export and restore work on the persisted store
and need persist.driver set to postgres or sqlite.`,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the persisted store",
	Example: `  shiftsync snapshot export --persist-driver sqlite --persist-dsn ./shiftsync.db
  shiftsync snapshot export --snapshot-bucket backups -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := cli.NewSnapshotStore(ctx, globalConfig.Snapshot)
		if err != nil {
			return err
		}
		location, doc, err := cli.ExportSnapshot(ctx, globalConfig, store, commandLogger())
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("Exported %d staff member(s) at clock %d to '%s'", len(doc.Staff), doc.Clock, location),
			map[string]any{"location": location, "clock": doc.Clock, "staff": len(doc.Staff)})
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <location>",
	Short: "Replace the persisted store with a snapshot",
	Long: `Replace the persisted store with the snapshot at location, a file path
or an S3 key. Members missing from the snapshot are removed. Stop the server
first; a running server keeps its in-memory state.`,
	Example: `  shiftsync snapshot restore ./snapshots/snapshot-42-<id>.json --persist-driver sqlite --persist-dsn ./shiftsync.db`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := cli.NewSnapshotStore(ctx, globalConfig.Snapshot)
		if err != nil {
			return err
		}
		doc, err := cli.RestoreSnapshot(ctx, globalConfig, store, args[0], commandLogger())
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("Restored %d staff member(s) from '%s' at clock %d", len(doc.Staff), args[0], doc.Clock),
			map[string]any{"location": args[0], "clock": doc.Clock, "staff": len(doc.Staff)})
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <location>",
	Short: "Print the contents of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := cli.NewSnapshotStore(ctx, globalConfig.Snapshot)
		if err != nil {
			return err
		}
		doc, err := store.Import(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Print(cli.FormatSnapshot(doc, outputFormat))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{snapshotExportCmd, snapshotRestoreCmd, snapshotShowCmd} {
		c.Flags().String("snapshot-dir", "./snapshots", "snapshot directory")
		c.Flags().String("snapshot-bucket", "", "S3 bucket holding snapshots")
	}
	for _, c := range []*cobra.Command{snapshotExportCmd, snapshotRestoreCmd} {
		c.Flags().String("persist-driver", "none", "persistence driver: postgres or sqlite")
		c.Flags().String("persist-dsn", "", "persistence connection string")
	}
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotRestoreCmd, snapshotShowCmd)
}

// commandLogger logs to stderr at the configured level so command output
// on stdout stays machine readable.
func commandLogger() adapters.Logger {
	return adapters.NewLogger(os.Stderr, adapters.ParseLevel(globalConfig.LogLevel))
}
