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

// Package rest exposes the record store, the conflict resolver and the
// client registry over a gin HTTP API.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/server"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/middleware"
)

// Server represents the REST API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	config     *ServerConfig
	tls        bool
}

// ServerConfig contains server configuration
type ServerConfig struct {
	// Host is the hostname to bind to (default: "0.0.0.0")
	Host string

	// Port is the port to listen on (default: 8080)
	Port int

	// EnableCORS enables CORS middleware
	EnableCORS bool

	// AllowedOrigins restricts CORS; empty allows any origin
	AllowedOrigins []string

	// EnableLogging enables request logging middleware
	EnableLogging bool

	// EnableRateLimit enables rate limiting middleware
	EnableRateLimit bool

	// RateLimitConfig is the rate limiting configuration
	RateLimitConfig *middleware.RateLimitConfig

	// EnableSecurityHeaders enables security headers middleware
	EnableSecurityHeaders bool

	// SecurityHeadersConfig is the security headers configuration
	SecurityHeadersConfig *middleware.SecurityHeadersConfig

	// EnableRequestID enables request ID middleware
	EnableRequestID bool

	// MaxRequestSize is the maximum request body size in bytes
	MaxRequestSize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Mode sets the Gin mode: "debug", "release", or "test" (default: "release")
	Mode string

	Logger adapters.Logger

	// AuditLogger records staff mutations and conflict resolutions
	AuditLogger audit.AuditLogger

	// EnableAudit enables audit logging (default: true)
	EnableAudit bool

	// TLSConfig enables HTTPS when it has a certificate
	TLSConfig *adapters.TLSConfig

	// Authenticator guards every route except health; nil disables authentication
	Authenticator adapters.Authenticator
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:                  "0.0.0.0",
		Port:                  8080,
		EnableCORS:            true,
		EnableLogging:         true,
		EnableRateLimit:       false,
		RateLimitConfig:       middleware.DefaultRateLimitConfig(),
		EnableSecurityHeaders: true,
		SecurityHeadersConfig: middleware.DefaultSecurityHeadersConfig(),
		EnableRequestID:       true,
		MaxRequestSize:        server.MaxRequestBodySize,
		ReadTimeout:           server.DefaultReadTimeout * time.Second,
		WriteTimeout:          server.DefaultWriteTimeout * time.Second,
		IdleTimeout:           server.DefaultIdleTimeout * time.Second,
		Mode:                  gin.ReleaseMode,
		Logger:                adapters.NewDefaultLogger(),
		AuditLogger:           audit.NewDefaultAuditLogger(),
		EnableAudit:           true,
	}
}

// NewServer creates a new REST API server
func NewServer(handlerConfig HandlerConfig, config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = adapters.NewDefaultLogger()
	}
	if config.AuditLogger == nil {
		if config.EnableAudit {
			config.AuditLogger = audit.NewDefaultAuditLogger()
		} else {
			config.AuditLogger = audit.NewNoOpAuditLogger()
		}
	}
	if handlerConfig.Logger == nil {
		handlerConfig.Logger = config.Logger
	}

	handler, err := NewHandler(handlerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ErrorHandlingMiddleware(config.Logger))

	// Middleware order: request ID, rate limit, security headers, CORS, audit, logging, size limit
	if config.EnableRequestID {
		router.Use(middleware.RequestIDMiddleware())
	}
	if config.EnableRateLimit {
		router.Use(middleware.RateLimitMiddleware(config.RateLimitConfig, config.Logger))
	}
	if config.EnableSecurityHeaders {
		router.Use(middleware.SecurityHeadersMiddleware(config.SecurityHeadersConfig))
	}
	if config.EnableCORS {
		router.Use(CORSMiddleware(config.AllowedOrigins))
	}
	if config.EnableAudit {
		router.Use(audit.AuditMiddleware(config.AuditLogger))
	}
	if config.EnableLogging {
		router.Use(LoggingMiddleware(config.Logger))
	}
	if config.MaxRequestSize > 0 {
		router.Use(RequestSizeLimitMiddleware(config.MaxRequestSize))
	}
	if config.Authenticator != nil {
		router.Use(AuthenticationMiddleware(config.Authenticator, config.Logger, config.AuditLogger))
	}

	SetupRoutes(router, handler)

	tlsConfig, err := config.TLSConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
			Handler:           router,
			TLSConfig:         tlsConfig,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		handler: handler,
		config:  config,
		tls:     tlsConfig != nil,
	}, nil
}

// Start starts the server and blocks until it stops. A graceful Shutdown
// is not reported as an error.
func (s *Server) Start() error {
	s.config.Logger.Info(context.Background(), "Starting REST API server",
		adapters.Field{Key: "address", Value: s.httpServer.Addr},
		adapters.Field{Key: "tls", Value: s.tls})
	if s.tls {
		// Certificates are already loaded into httpServer.TLSConfig.
		return ignoreClosed(s.httpServer.ListenAndServeTLS("", ""))
	}
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve serves on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.config.Logger.Info(context.Background(), "Starting REST API server",
		adapters.Field{Key: "address", Value: l.Addr().String()},
		adapters.Field{Key: "tls", Value: s.tls})
	if s.tls {
		return ignoreClosed(s.httpServer.ServeTLS(l, "", ""))
	}
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Logger.Info(ctx, "Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the handler
func (s *Server) Handler() *Handler {
	return s.handler
}

// TLSEnabled reports whether the server speaks HTTPS.
func (s *Server) TLSEnabled() bool {
	return s.tls
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.httpServer.Addr
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
