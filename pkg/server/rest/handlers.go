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
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/middleware"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/jeremyhahn/go-shiftsync/pkg/validation"
	"github.com/jeremyhahn/go-shiftsync/pkg/version"
)

// StaffStore is the record store served by the API.
type StaffStore interface {
	CreateStaff(ctx context.Context, req *staff.CreateRequest) (*staff.Member, error)
	GetStaff(ctx context.Context, id string) (*staff.Member, error)
	UpdateStaff(ctx context.Context, id string, req *staff.UpdateRequest) (*staff.Member, error)
	DeleteStaff(ctx context.Context, id string) error
	GetAllStaff(ctx context.Context, period int) ([]*staff.Member, error)
	Snapshot() ([]*staff.Member, int64)
	GetVersion() int64
	GetChangeLog() []changelog.Entry
	GetChangesSince(clock int64) []changelog.Entry
}

// ClientRegistry is the client registry served by the API.
type ClientRegistry interface {
	GetAllClients() []*clients.Client
	GetClientCount() int
	GetClientStats() clients.Stats
}

// Handler serves the REST API
type Handler struct {
	store     StaffStore
	registry  ClientRegistry
	resolver  *conflict.Resolver
	metrics   *metrics.Metrics
	logger    adapters.Logger
	websocket http.Handler
}

// HandlerConfig configures a Handler
type HandlerConfig struct {
	Store    StaffStore
	Registry ClientRegistry
	Resolver *conflict.Resolver
	Metrics  *metrics.Metrics
	Logger   adapters.Logger

	// WebSocket serves GET /api/v1/ws when set
	WebSocket http.Handler
}

// NewHandler creates a new Handler instance
func NewHandler(config HandlerConfig) (*Handler, error) {
	if config.Store == nil {
		return nil, errors.New("staff store is required")
	}
	if config.Registry == nil {
		return nil, errors.New("client registry is required")
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.Resolver == nil {
		config.Resolver = conflict.NewResolver(conflict.LastWriterWins, config.Logger)
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewMetrics()
	}
	return &Handler{
		store:     config.Store,
		registry:  config.Registry,
		resolver:  config.Resolver,
		metrics:   config.Metrics,
		logger:    config.Logger,
		websocket: config.WebSocket,
	}, nil
}

// CreateStaff handles staff creation
// @Summary Create a staff member
// @Tags staff
// @Accept json
// @Produce json
// @Param request body staff.CreateRequest true "New staff member"
// @Success 201 {object} staff.Member
// @Failure 400 {object} ErrorResponse
// @Router /staff [post]
func (h *Handler) CreateStaff(c *gin.Context) {
	var req staff.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	m, err := h.store.CreateStaff(ctx, &req)
	if err != nil {
		h.auditMutation(c, audit.EventStaffCreated, "", audit.ResultFailure, err)
		RespondWithDomainError(c, err)
		return
	}

	h.auditMutation(c, audit.EventStaffCreated, m.ID, audit.ResultSuccess, nil)
	c.JSON(http.StatusCreated, m)
}

// ListStaff handles listing staff members
// @Summary List staff members
// @Description Lists every member, or only those in the given period
// @Tags staff
// @Produce json
// @Param period query int false "Scheduling period"
// @Success 200 {object} StaffListResponse
// @Failure 400 {object} ErrorResponse
// @Router /staff [get]
func (h *Handler) ListStaff(c *gin.Context) {
	raw, filtered := c.GetQuery("period")
	if !filtered {
		members, clock := h.store.Snapshot()
		RespondWithStaffList(c, members, clock)
		return
	}

	period, err := strconv.Atoi(raw)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "period must be an integer")
		return
	}
	members, err := h.store.GetAllStaff(c.Request.Context(), period)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	RespondWithStaffList(c, members, h.store.GetVersion())
}

// GetStaff handles reading one staff member
// @Summary Get a staff member
// @Tags staff
// @Produce json
// @Param id path string true "Staff id"
// @Success 200 {object} staff.Member
// @Failure 404 {object} ErrorResponse
// @Router /staff/{id} [get]
func (h *Handler) GetStaff(c *gin.Context) {
	id, ok := staffID(c)
	if !ok {
		return
	}
	m, err := h.store.GetStaff(c.Request.Context(), id)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpdateStaff handles an optimistic update
// @Summary Update a staff member
// @Description Applies the supplied fields if version matches the stored version
// @Tags staff
// @Accept json
// @Produce json
// @Param id path string true "Staff id"
// @Param request body staff.UpdateRequest true "Fields to change plus the expected version"
// @Success 200 {object} staff.Member
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /staff/{id} [patch]
func (h *Handler) UpdateStaff(c *gin.Context) {
	id, ok := staffID(c)
	if !ok {
		return
	}
	var req staff.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.store.UpdateStaff(c.Request.Context(), id, &req)
	if err != nil {
		eventType := audit.EventStaffUpdated
		if common.IsKind(err, common.KindVersionConflict) {
			eventType = audit.EventVersionConflict
		}
		h.auditMutation(c, eventType, id, audit.ResultFailure, err)
		RespondWithDomainError(c, err)
		return
	}

	h.auditMutation(c, audit.EventStaffUpdated, id, audit.ResultSuccess, nil)
	c.JSON(http.StatusOK, m)
}

// DeleteStaff handles staff deletion
// @Summary Delete a staff member
// @Tags staff
// @Produce json
// @Param id path string true "Staff id"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /staff/{id} [delete]
func (h *Handler) DeleteStaff(c *gin.Context) {
	id, ok := staffID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteStaff(c.Request.Context(), id); err != nil {
		h.auditMutation(c, audit.EventStaffDeleted, id, audit.ResultFailure, err)
		RespondWithDomainError(c, err)
		return
	}

	h.auditMutation(c, audit.EventStaffDeleted, id, audit.ResultSuccess, nil)
	RespondWithSuccess(c, http.StatusOK, "staff member deleted", gin.H{"id": id})
}

// staffID returns the validated :id parameter or writes a 400.
func staffID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validation.ValidateStaffID(id); err != nil {
		RespondWithDomainError(c, err)
		return "", false
	}
	return id, true
}

// GetVersion returns the global clock
// @Summary Get the global clock
// @Tags sync
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /version [get]
func (h *Handler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{Version: h.store.GetVersion()})
}

// GetChangeLog returns change log entries, optionally only those after ?since
// @Summary Read the change log
// @Tags sync
// @Produce json
// @Param since query int false "Return entries with a clock above this value"
// @Success 200 {object} ChangeLogResponse
// @Failure 400 {object} ErrorResponse
// @Router /changelog [get]
func (h *Handler) GetChangeLog(c *gin.Context) {
	clock := h.store.GetVersion()
	raw, ok := c.GetQuery("since")
	if !ok {
		RespondWithChangeLog(c, h.store.GetChangeLog(), 0, clock)
		return
	}

	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		RespondWithError(c, http.StatusBadRequest, "since must be a non-negative integer")
		return
	}
	RespondWithChangeLog(c, h.store.GetChangesSince(since), since, clock)
}

// Resolve reconciles two snapshots of the same staff member
// @Summary Resolve a conflict
// @Description Resolves local against remote with the configured or supplied strategy
// @Tags sync
// @Accept json
// @Produce json
// @Param request body ResolveRequest true "Snapshots to reconcile"
// @Success 200 {object} ResolveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ResolveResponse
// @Router /resolve [post]
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resolver := h.resolver
	if req.Strategy != "" {
		strategy, err := conflict.ParseStrategy(req.Strategy)
		if err != nil {
			RespondWithDomainError(c, err)
			return
		}
		resolver = conflict.NewResolver(strategy, h.logger)
	}

	strategy := resolver.GetStrategy()
	resp := ResolveResponse{
		Strategy:       string(strategy),
		Conflicts:      []conflict.Detail{},
		HasConflict:    resolver.HasConflict(req.Local, req.Remote),
		CanAutoResolve: resolver.CanAutoResolve(req.Local, req.Remote),
	}

	resolved, details, err := resolver.ResolveConflictWithDetails(req.Local, req.Remote)
	h.auditResolution(c, req.Local.ID, strategy, len(details), err)

	switch {
	case common.IsKind(err, common.KindUserChoiceRequired):
		h.metrics.IncUserChoices()
		c.JSON(http.StatusConflict, resp)
		return
	case err != nil:
		RespondWithDomainError(c, err)
		return
	}

	h.metrics.IncConflictsResolved()
	resp.Resolved = resolved
	if details != nil {
		resp.Conflicts = details
	}
	c.JSON(http.StatusOK, resp)
}

// ListClients lists connected realtime clients
// @Summary List realtime clients
// @Tags clients
// @Produce json
// @Success 200 {object} ClientListResponse
// @Router /clients [get]
func (h *Handler) ListClients(c *gin.Context) {
	all := h.registry.GetAllClients()
	infos := make([]clients.Info, 0, len(all))
	for _, client := range all {
		infos = append(infos, client.Info())
	}
	c.JSON(http.StatusOK, ClientListResponse{Clients: infos, Count: len(infos)})
}

// GetClientStats returns registry statistics
// @Summary Realtime client statistics
// @Tags clients
// @Produce json
// @Success 200 {object} clients.Stats
// @Router /clients/stats [get]
func (h *Handler) GetClientStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.GetClientStats())
}

// GetMetrics returns the service counters
// @Summary Service counters
// @Tags health
// @Produce json
// @Success 200 {object} metrics.Snapshot
// @Router /metrics [get]
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// HealthCheck handles health check requests
// @Summary Health check
// @Description Check if the server is healthy
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Get(),
		Clock:   h.store.GetVersion(),
		Clients: h.registry.GetClientCount(),
	})
}

// WebSocket upgrades the request to a realtime client connection
func (h *Handler) WebSocket(c *gin.Context) {
	if h.websocket == nil {
		RespondWithError(c, http.StatusNotImplemented, "websocket transport is not enabled")
		return
	}
	h.websocket.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) auditMutation(c *gin.Context, eventType audit.EventType, id string, result audit.Result, err error) {
	auditLogger := audit.GetAuditLogger(c)
	_ = auditLogger.LogStaffMutation(c.Request.Context(), eventType, id, c.ClientIP(), //nolint:errcheck // audit never fails a request
		middleware.GetRequestIDFromGinContext(c), h.store.GetVersion(), result, err)
}

func (h *Handler) auditResolution(c *gin.Context, id string, strategy conflict.Strategy, conflicts int, err error) {
	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
	}
	auditLogger := audit.GetAuditLogger(c)
	_ = auditLogger.LogConflictResolution(c.Request.Context(), id, string(strategy), c.ClientIP(), //nolint:errcheck // audit never fails a request
		middleware.GetRequestIDFromGinContext(c), conflicts, result, err)
}
