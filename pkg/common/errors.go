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

// Package common provides the error taxonomy shared by every shiftsync package.
package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error. The set of kinds is closed.
type ErrorKind int

const (
	// KindInternal is an unexpected failure inside shiftsync.
	KindInternal ErrorKind = iota

	// KindNotFound means the staff member or client id is unknown.
	KindNotFound

	// KindValidation means a supplied field value was rejected.
	KindValidation

	// KindVersionConflict means the caller's expected version did not match
	// the stored version. Callers re-read and retry.
	KindVersionConflict

	// KindUserChoiceRequired is returned by the user_choice conflict strategy.
	// It is a signal rather than a failure.
	KindUserChoiceRequired
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindVersionConflict:
		return "version_conflict"
	case KindUserChoiceRequired:
		return "user_choice_required"
	default:
		return "unknown"
	}
}

// Error is the tagged error returned by shiftsync operations.
type Error struct {
	Kind ErrorKind

	// Resource is the kind of thing the error refers to ("staff", "client").
	Resource string

	// ID identifies the staff member or client, if any.
	ID string

	// Field names the rejected field for validation errors.
	Field string

	// Expected and Actual carry the versions of a version conflict.
	Expected int64
	Actual   int64

	Message string
	Err     error
}

// Sentinel values for errors.Is. Matching is done on Kind, not identity.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrVersionConflict    = &Error{Kind: KindVersionConflict}
	ErrUserChoiceRequired = &Error{Kind: KindUserChoiceRequired}
	ErrInternal           = &Error{Kind: KindInternal}
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		if e.ID == "" {
			return "not found"
		}
		return fmt.Sprintf("%s not found: %s", e.resource(), e.ID)
	case KindValidation:
		switch {
		case e.Field != "" && e.Message != "":
			return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
		case e.Message != "":
			return "validation failed: " + e.Message
		default:
			return "validation failed"
		}
	case KindVersionConflict:
		if e.ID == "" {
			return "version conflict"
		}
		return fmt.Sprintf("version conflict on %s %s: expected %d, actual %d",
			e.resource(), e.ID, e.Expected, e.Actual)
	case KindUserChoiceRequired:
		return "user choice required to resolve conflict"
	default:
		msg := "internal error"
		if e.Message != "" {
			msg += ": " + e.Message
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

func (e *Error) resource() string {
	if e.Resource == "" {
		return "resource"
	}
	return e.Resource
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound returns a KindNotFound error for the given resource and id.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, ID: id}
}

// Validation returns a KindValidation error for the given field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// VersionConflict returns a KindVersionConflict error.
func VersionConflict(resource, id string, expected, actual int64) *Error {
	return &Error{
		Kind:     KindVersionConflict,
		Resource: resource,
		ID:       id,
		Expected: expected,
		Actual:   actual,
	}
}

// Internal wraps err as a KindInternal error.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a shiftsync error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
