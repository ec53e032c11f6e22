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
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when required credentials are missing.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInsufficientPermissions is returned when the authenticated principal lacks required permissions.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// Roles understood by the built-in authenticators.
const (
	RoleReader = "reader"
	RoleWriter = "writer"
	RoleAdmin  = "admin"
)

// Actions passed to ValidatePermission.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// AccessTokenParam is the query parameter checked when no Authorization
// header is present. Browsers cannot set headers on a websocket upgrade.
const AccessTokenParam = "access_token"

// Principal represents an authenticated caller.
type Principal struct {
	ID    string
	Name  string
	Type  string
	Roles []string
}

// HasRole checks if the principal has the specified role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// Authenticator is the pluggable authentication used by the HTTP surface.
type Authenticator interface {
	// AuthenticateHTTP returns the principal behind req or an error.
	AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error)

	// ValidatePermission returns ErrInsufficientPermissions if principal
	// may not perform action on resource.
	ValidatePermission(ctx context.Context, principal *Principal, resource, action string) error
}

// NoOpAuthenticator is an authenticator that allows all requests (no authentication).
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator creates a new no-op authenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

// AuthenticateHTTP allows all HTTP requests.
func (a *NoOpAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	return &Principal{
		ID:    "anonymous",
		Name:  "Anonymous",
		Type:  "anonymous",
		Roles: []string{RoleAdmin},
	}, nil
}

// ValidatePermission allows all operations.
func (a *NoOpAuthenticator) ValidatePermission(ctx context.Context, principal *Principal, resource, action string) error {
	return nil
}

// TokenAuthenticator checks bearer tokens against a fixed table.
type TokenAuthenticator struct {
	tokens map[string]*Principal
}

// NewTokenAuthenticator creates an authenticator for writers and readers,
// both keyed by principal name with the token as value.
func NewTokenAuthenticator(writers, readers map[string]string) *TokenAuthenticator {
	a := &TokenAuthenticator{tokens: make(map[string]*Principal, len(writers)+len(readers))}
	for name, token := range readers {
		a.add(name, token, RoleReader)
	}
	for name, token := range writers {
		a.add(name, token, RoleWriter)
	}
	return a
}

func (a *TokenAuthenticator) add(name, token, role string) {
	if token == "" {
		return
	}
	a.tokens[token] = &Principal{ID: name, Name: name, Type: "token", Roles: []string{role}}
}

// Len returns the number of configured tokens.
func (a *TokenAuthenticator) Len() int {
	return len(a.tokens)
}

// AuthenticateHTTP reads the bearer token from the Authorization header,
// falling back to the access_token query parameter.
func (a *TokenAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	token := BearerToken(req)
	if token == "" {
		return nil, ErrMissingCredentials
	}
	for known, principal := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			p := *principal
			p.Roles = slices.Clone(principal.Roles)
			return &p, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// ValidatePermission lets any role read and writers and admins write.
func (a *TokenAuthenticator) ValidatePermission(ctx context.Context, principal *Principal, resource, action string) error {
	switch {
	case principal.HasRole(RoleAdmin), principal.HasRole(RoleWriter):
		return nil
	case action == ActionRead && principal.HasRole(RoleReader):
		return nil
	}
	return ErrInsufficientPermissions
}

// BearerToken extracts the caller's token from req.
func BearerToken(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	return req.URL.Query().Get(AccessTokenParam)
}
