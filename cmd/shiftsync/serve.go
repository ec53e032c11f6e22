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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST and websocket server",
	Long: `Run the shiftsync server. Staff records are served under /api/v1 and
clients receive change events over /api/v1/ws. SIGINT or SIGTERM sends a
server_shutdown notice to every client and stops gracefully.`,
	Example: `  shiftsync serve                                        # Serve on 0.0.0.0:8080
  shiftsync serve --port 9000 --strategy merge_changes   # Override settings
  shiftsync serve --persist-driver sqlite --persist-dsn ./shiftsync.db
  shiftsync serve --restore ./snapshots/snapshot-42-<id>.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		restore, _ := cmd.Flags().GetString("restore") //nolint:errcheck // flags are validated by cobra

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, globalConfig, cli.Options{
			ConfigFile:  viperConfig.ConfigFileUsed(),
			RestoreFrom: restore,
		})
		if err != nil {
			return err
		}
		return app.Run(ctx, nil)
	},
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "address to bind")
	serveCmd.Flags().Int("port", 8080, "port to listen on")
	serveCmd.Flags().String("strategy", "last_writer_wins", "conflict strategy: last_writer_wins, first_writer_wins, merge_changes or user_choice")
	serveCmd.Flags().Duration("heartbeat", 0, "client heartbeat window (default 30s)")
	serveCmd.Flags().String("persist-driver", "none", "persistence driver: none, postgres or sqlite")
	serveCmd.Flags().String("persist-dsn", "", "persistence connection string")
	serveCmd.Flags().String("changelog-file", "", "append change log entries to this JSONL file")
	serveCmd.Flags().String("snapshot-dir", "./snapshots", "directory for periodic snapshots")
	serveCmd.Flags().String("snapshot-bucket", "", "S3 bucket for periodic snapshots")
	serveCmd.Flags().String("tls-cert", "", "PEM certificate; enables HTTPS together with --tls-key")
	serveCmd.Flags().String("tls-key", "", "PEM private key for --tls-cert")
	serveCmd.Flags().String("tls-client-ca", "", "PEM CA bundle; requires client certificates signed by it")
	serveCmd.Flags().String("restore", "", "snapshot file or S3 key to load before serving")
}
