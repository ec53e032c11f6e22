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

	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
environment variables and flags. Connection strings and secret keys are
never printed.`,
	Example: `  shiftsync config                    # Print as key: value lines
  shiftsync config -o json            # Print as JSON
  shiftsync config --config prod.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := viperConfig.ConfigFileUsed(); used != "" && outputFormat == cli.FormatText {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
		}
		fmt.Print(cli.FormatConfig(globalConfig, outputFormat))
		return nil
	},
}
