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

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-shiftsync/pkg/cli"
	"github.com/jeremyhahn/go-shiftsync/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	// version must work without a readable config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(outputFlag)
		if err != nil {
			return err
		}
		outputFormat = format
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(cli.FormatVersion(version.GetInfo(), outputFormat))
	},
}
