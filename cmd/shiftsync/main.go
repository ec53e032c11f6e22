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
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
	"github.com/jeremyhahn/go-shiftsync/pkg/config"
)

var (
	cfgFile      string
	outputFlag   string
	viperConfig  *viper.Viper
	globalConfig *config.Config
	outputFormat = cli.FormatText
)

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"host":            "server.host",
	"port":            "server.port",
	"strategy":        "conflict.strategy",
	"heartbeat":       "clients.heartbeat",
	"persist-driver":  "persist.driver",
	"persist-dsn":     "persist.dsn",
	"changelog-file":  "changelog.file",
	"snapshot-dir":    "snapshot.dir",
	"snapshot-bucket": "snapshot.bucket",
	"tls-cert":        "server.tls-cert",
	"tls-key":         "server.tls-key",
	"tls-client-ca":   "server.tls-client-ca",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shiftsync",
	Short: "Real-time staff schedule synchronization server",
	Long: `shiftsync keeps a versioned store of staff records, resolves conflicting
edits and pushes every change to connected websocket clients.

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (SHIFTSYNC_*, e.g. SHIFTSYNC_SERVER_PORT)
  - Configuration file (~/.shiftsync.yaml or ./.shiftsync.yaml)
  - Default values (lowest priority)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(outputFlag)
		if err != nil {
			return err
		}
		outputFormat = format

		viperConfig, err = config.InitConfig(cfgFile)
		if err != nil {
			return err
		}
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := viperConfig.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}

		globalConfig, err = config.Load(viperConfig)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shiftsync.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format: text, json or table")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(versionCmd)
}

func printResult(message string, data any) {
	fmt.Print(cli.FormatOperationResult(&cli.OperationResult{
		Success: true,
		Message: message,
		Data:    data,
	}, outputFormat))
}
