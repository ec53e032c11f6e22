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

// Package staff defines the staff member record synchronized by shiftsync
// together with its create and update requests.
package staff

import (
	"strings"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/common"
)

// Resource is the resource name used in errors and audit records.
const Resource = "staff"

// Type classifies a staff member's employment.
type Type string

const (
	// TypeRegular is a full-time staff member.
	TypeRegular Type = "regular"

	// TypePartTime is a part-time staff member.
	TypePartTime Type = "part-time"

	// TypeTemporary is a staff member on a temporary contract.
	TypeTemporary Type = "temporary"
)

// ValidTypes returns the allowed staff types.
func ValidTypes() []Type {
	return []Type{TypeRegular, TypePartTime, TypeTemporary}
}

// Valid reports whether t is one of the allowed types.
func (t Type) Valid() bool {
	for _, v := range ValidTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// Member is the unit of synchronized state.
type Member struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Position   string    `json:"position"`
	Department string    `json:"department"`
	Type       Type      `json:"type"`
	Period     int       `json:"period"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a copy of m. Member holds no reference types so a shallow
// copy is a full copy.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// CreateRequest carries the fields of a new staff member.
type CreateRequest struct {
	Name       string `json:"name"`
	Position   string `json:"position"`
	Department string `json:"department"`
	Type       Type   `json:"type"`
	Period     int    `json:"period"`
}

// Validate checks the request against the create rules.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return common.Validation("", "create request is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return common.Validation("name", "must not be empty")
	}
	if !r.Type.Valid() {
		return common.Validation("type", "unknown staff type "+quote(string(r.Type)))
	}
	return nil
}

// UpdateRequest carries optional field changes plus the version the caller
// last observed. Nil fields are left untouched.
type UpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Position   *string `json:"position,omitempty"`
	Department *string `json:"department,omitempty"`
	Type       *Type   `json:"type,omitempty"`
	Version    int64   `json:"version"`
}

// Validate checks every supplied field.
func (r *UpdateRequest) Validate() error {
	if r == nil {
		return common.Validation("", "update request is required")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return common.Validation("name", "must not be empty")
	}
	if r.Type != nil && !r.Type.Valid() {
		return common.Validation("type", "unknown staff type "+quote(string(*r.Type)))
	}
	return nil
}

// Apply writes the supplied fields onto m and returns the changed values
// keyed by their JSON field name. Version and UpdatedAt are not touched.
func (r *UpdateRequest) Apply(m *Member) map[string]any {
	changes := make(map[string]any)
	if r.Name != nil {
		m.Name = *r.Name
		changes["name"] = *r.Name
	}
	if r.Position != nil {
		m.Position = *r.Position
		changes["position"] = *r.Position
	}
	if r.Department != nil {
		m.Department = *r.Department
		changes["department"] = *r.Department
	}
	if r.Type != nil {
		m.Type = *r.Type
		changes["type"] = string(*r.Type)
	}
	return changes
}

func quote(s string) string {
	return "\"" + s + "\""
}
