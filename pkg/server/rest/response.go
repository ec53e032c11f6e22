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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"Conflict"`
	Code    int    `json:"code" example:"409"`
	Message string `json:"message,omitempty" example:"staff s1: version conflict"`

	// Kind is the error kind, e.g. version_conflict
	Kind string `json:"kind,omitempty" example:"version_conflict"`

	// Expected and Actual are set on version conflicts
	Expected int64 `json:"expected_version,omitempty"`
	Actual   int64 `json:"actual_version,omitempty"`
} // @name ErrorResponse

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message" example:"operation completed successfully"`
	Data    any    `json:"data,omitempty"`
} // @name SuccessResponse

// StaffListResponse lists staff members
type StaffListResponse struct {
	Staff []*staff.Member `json:"staff"`
	Count int             `json:"count" example:"2"`
	Clock int64           `json:"clock" example:"17"`
} // @name StaffListResponse

// VersionResponse carries the global clock
type VersionResponse struct {
	Version int64 `json:"version" example:"17"`
} // @name VersionResponse

// ChangeLogResponse lists change log entries
type ChangeLogResponse struct {
	Entries []changelog.Entry `json:"entries"`
	Count   int               `json:"count" example:"3"`
	Since   int64             `json:"since" example:"14"`
	Clock   int64             `json:"clock" example:"17"`
} // @name ChangeLogResponse

// ResolveRequest asks the resolver to reconcile two snapshots
type ResolveRequest struct {
	Local  *staff.Member `json:"local" binding:"required"`
	Remote *staff.Member `json:"remote" binding:"required"`

	// Strategy overrides the configured strategy for this call
	Strategy string `json:"strategy,omitempty" example:"merge_changes"`
} // @name ResolveRequest

// ResolveResponse is the outcome of a resolve call. Resolved is nil when the
// strategy requires a user choice.
type ResolveResponse struct {
	Strategy       string            `json:"strategy" example:"merge_changes"`
	Resolved       *staff.Member     `json:"resolved,omitempty"`
	Conflicts      []conflict.Detail `json:"conflicts"`
	HasConflict    bool              `json:"has_conflict"`
	CanAutoResolve bool              `json:"can_auto_resolve"`
} // @name ResolveResponse

// ClientListResponse lists connected realtime clients
type ClientListResponse struct {
	Clients []clients.Info `json:"clients"`
	Count   int            `json:"count" example:"4"`
} // @name ClientListResponse

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status" example:"healthy"`
	Version string `json:"version,omitempty" example:"0.1.0"`
	Clock   int64  `json:"clock" example:"17"`
	Clients int    `json:"clients" example:"4"`
} // @name HealthResponse

// RespondWithError writes an ErrorResponse with the given status code
func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// RespondWithDomainError maps err to a status code by its kind and writes it
func RespondWithDomainError(c *gin.Context, err error) {
	code := StatusForError(err)
	resp := ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: err.Error(),
	}

	var e *common.Error
	if errors.As(err, &e) {
		resp.Kind = e.Kind.String()
		if e.Kind == common.KindVersionConflict {
			resp.Expected = e.Expected
			resp.Actual = e.Actual
		}
		if e.Kind == common.KindInternal {
			resp.Message = "internal server error"
		}
	}
	_ = c.Error(err)
	c.JSON(code, resp)
}

// StatusForError returns the HTTP status for an error kind
func StatusForError(err error) int {
	switch common.KindOf(err) {
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindVersionConflict, common.KindUserChoiceRequired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess writes a SuccessResponse
func RespondWithSuccess(c *gin.Context, code int, message string, data any) {
	c.JSON(code, SuccessResponse{Message: message, Data: data})
}

// RespondWithStaffList writes a StaffListResponse
func RespondWithStaffList(c *gin.Context, members []*staff.Member, clock int64) {
	if members == nil {
		members = []*staff.Member{}
	}
	c.JSON(http.StatusOK, StaffListResponse{
		Staff: members,
		Count: len(members),
		Clock: clock,
	})
}

// RespondWithChangeLog writes a ChangeLogResponse
func RespondWithChangeLog(c *gin.Context, entries []changelog.Entry, since, clock int64) {
	if entries == nil {
		entries = []changelog.Entry{}
	}
	c.JSON(http.StatusOK, ChangeLogResponse{
		Entries: entries,
		Count:   len(entries),
		Since:   since,
		Clock:   clock,
	})
}
