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

package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		staff := v1.Group("/staff")
		{
			staff.POST("", handler.CreateStaff)
			staff.GET("", handler.ListStaff)
			staff.GET("/:id", handler.GetStaff)
			staff.PATCH("/:id", handler.UpdateStaff)
			staff.DELETE("/:id", handler.DeleteStaff)
		}

		v1.GET("/version", handler.GetVersion)
		v1.GET("/changelog", handler.GetChangeLog)
		v1.POST("/resolve", handler.Resolve)

		clients := v1.Group("/clients")
		{
			clients.GET("", handler.ListClients)
			clients.GET("/stats", handler.GetClientStats)
		}

		v1.GET("/metrics", handler.GetMetrics)
		v1.GET("/health", handler.HealthCheck)
		v1.GET("/ws", handler.WebSocket)
	}
}
