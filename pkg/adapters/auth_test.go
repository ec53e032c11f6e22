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

package adapters

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestPrincipal_HasRole(t *testing.T) {
	principal := &Principal{ID: "p1", Roles: []string{RoleReader, "viewer"}}

	tests := []struct {
		role     string
		expected bool
	}{
		{RoleReader, true},
		{"viewer", true},
		{RoleWriter, false},
		{RoleAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := principal.HasRole(tt.role); got != tt.expected {
				t.Errorf("HasRole(%s) = %v, want %v", tt.role, got, tt.expected)
			}
		})
	}

	var nilPrincipal *Principal
	if nilPrincipal.HasRole(RoleAdmin) {
		t.Error("nil principal should have no roles")
	}
}

func TestNoOpAuthenticator(t *testing.T) {
	auth := NewNoOpAuthenticator()
	ctx := context.Background()

	p, err := auth.AuthenticateHTTP(ctx, httptest.NewRequest("GET", "/api/v1/staff", nil))
	if err != nil {
		t.Fatalf("AuthenticateHTTP() error = %v", err)
	}
	if p.ID != "anonymous" {
		t.Errorf("ID = %q, want anonymous", p.ID)
	}
	if err := auth.ValidatePermission(ctx, p, "staff", ActionWrite); err != nil {
		t.Errorf("ValidatePermission() error = %v", err)
	}
}

func TestTokenAuthenticator(t *testing.T) {
	auth := NewTokenAuthenticator(
		map[string]string{"scheduler": "w-token", "empty": ""},
		map[string]string{"kiosk": "r-token"},
	)
	if auth.Len() != 2 {
		t.Errorf("Len() = %d, want 2", auth.Len())
	}

	tests := []struct {
		name     string
		header   string
		target   string
		wantID   string
		wantErr  error
		wantRole string
	}{
		{"bearer writer", "Bearer w-token", "/api/v1/staff", "scheduler", nil, RoleWriter},
		{"lowercase scheme", "bearer r-token", "/api/v1/staff", "kiosk", nil, RoleReader},
		{"raw header", "r-token", "/api/v1/staff", "kiosk", nil, RoleReader},
		{"query fallback", "", "/api/v1/ws?access_token=w-token", "scheduler", nil, RoleWriter},
		{"missing", "", "/api/v1/staff", "", ErrMissingCredentials, ""},
		{"unknown", "Bearer nope", "/api/v1/staff", "", ErrInvalidCredentials, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			p, err := auth.AuthenticateHTTP(context.Background(), req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthenticateHTTP() error = %v", err)
			}
			if p.ID != tt.wantID || !p.HasRole(tt.wantRole) {
				t.Errorf("principal = %+v, want %s with %s", p, tt.wantID, tt.wantRole)
			}
		})
	}
}

func TestTokenAuthenticatorPermissions(t *testing.T) {
	auth := NewTokenAuthenticator(nil, nil)
	ctx := context.Background()
	reader := &Principal{ID: "r", Roles: []string{RoleReader}}
	writer := &Principal{ID: "w", Roles: []string{RoleWriter}}
	admin := &Principal{ID: "a", Roles: []string{RoleAdmin}}
	nobody := &Principal{ID: "n"}

	tests := []struct {
		principal *Principal
		action    string
		allowed   bool
	}{
		{reader, ActionRead, true},
		{reader, ActionWrite, false},
		{writer, ActionRead, true},
		{writer, ActionWrite, true},
		{admin, ActionWrite, true},
		{nobody, ActionRead, false},
	}
	for _, tt := range tests {
		err := auth.ValidatePermission(ctx, tt.principal, "staff", tt.action)
		if tt.allowed && err != nil {
			t.Errorf("%s %s: unexpected error %v", tt.principal.ID, tt.action, err)
		}
		if !tt.allowed && !errors.Is(err, ErrInsufficientPermissions) {
			t.Errorf("%s %s: error = %v, want ErrInsufficientPermissions", tt.principal.ID, tt.action, err)
		}
	}
}
