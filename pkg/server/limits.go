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

package server

// Server-wide limits and configuration constants
const (
	// MaxRequestBodySize is the maximum size of a JSON request body in bytes (1 MB)
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxWebSocketMessageSize is the maximum size of an inbound client message in bytes (64 KB)
	MaxWebSocketMessageSize = 64 * 1024

	// MaxTopicsPerMessage is the maximum number of topics in one subscribe message
	MaxTopicsPerMessage = 32

	// DefaultReadTimeout is the default HTTP read timeout in seconds
	DefaultReadTimeout = 30

	// DefaultWriteTimeout is the default HTTP write timeout in seconds
	DefaultWriteTimeout = 30

	// DefaultIdleTimeout is the default HTTP keep-alive timeout in seconds
	DefaultIdleTimeout = 120

	// ShutdownTimeout bounds graceful shutdown in seconds
	ShutdownTimeout = 10
)
