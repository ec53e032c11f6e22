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

package cli

import "errors"

var (
	// ErrUnsupportedOutputFormat is returned when an unsupported output format is specified.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// ErrPersistenceRequired is returned by offline commands that need persist.driver.
	ErrPersistenceRequired = errors.New("persist.driver must be postgres or sqlite for this command")

	// ErrSnapshotLocationRequired is returned when a restore names no snapshot.
	ErrSnapshotLocationRequired = errors.New("snapshot location is required")
)
