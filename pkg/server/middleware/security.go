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

package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds the response headers set on every API response
type SecurityHeadersConfig struct {
	// EnableHSTS sets Strict-Transport-Security on TLS requests
	EnableHSTS bool

	// HSTSMaxAge is the HSTS max-age in seconds
	HSTSMaxAge int

	// NoStore sets Cache-Control: no-store
	NoStore bool

	// Extra headers set verbatim
	Extra map[string]string
}

// DefaultSecurityHeadersConfig returns headers suited to a JSON API
func DefaultSecurityHeadersConfig() *SecurityHeadersConfig {
	return &SecurityHeadersConfig{
		HSTSMaxAge: 31536000,
		NoStore:    true,
		Extra: map[string]string{
			"X-Content-Type-Options":  "nosniff",
			"X-Frame-Options":         "DENY",
			"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
			"Referrer-Policy":         "no-referrer",
		},
	}
}

// SecurityHeadersMiddleware creates a Gin middleware that sets security headers
func SecurityHeadersMiddleware(config *SecurityHeadersConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSecurityHeadersConfig()
	}
	hsts := "max-age=" + strconv.Itoa(config.HSTSMaxAge) + "; includeSubDomains"

	return func(c *gin.Context) {
		for k, v := range config.Extra {
			if v != "" {
				c.Header(k, v)
			}
		}
		if config.NoStore {
			c.Header("Cache-Control", "no-store")
		}
		if config.EnableHSTS && c.Request.TLS != nil && config.HSTSMaxAge > 0 {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
