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

// Package validation checks identifiers that arrive from clients before they
// reach the store or the client registry, and sanitizes values for logging.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeremyhahn/go-shiftsync/pkg/common"
)

const (
	// MaxIDLength bounds client and staff ids.
	MaxIDLength = 128

	// MaxTopicLength bounds subscription topics.
	MaxTopicLength = 64

	maxLogLength = 1000
)

var (
	// idPattern matches client and staff ids: uuids, slugs and
	// host:port or user@host style names.
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:@]+$`)

	// topicPattern matches lowercase topic names such as staff_update.
	topicPattern = regexp.MustCompile(`^[a-z0-9_\-\.]+$`)
)

// ValidateClientID validates a websocket client id.
func ValidateClientID(id string) error {
	return validateID("client_id", id)
}

// ValidateStaffID validates a staff member id.
func ValidateStaffID(id string) error {
	return validateID("id", id)
}

func validateID(field, id string) error {
	if id == "" {
		return common.Validation(field, "must not be empty")
	}
	// Length first so the pattern never runs on huge input.
	if len(id) > MaxIDLength {
		return common.Validation(field, fmt.Sprintf("too long (max %d characters)", MaxIDLength))
	}
	if hasControl(id) {
		return common.Validation(field, "contains control characters")
	}
	if !idPattern.MatchString(id) {
		return common.Validation(field, "contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, ., :, @)")
	}
	return nil
}

// ValidateTopic validates a subscription topic.
func ValidateTopic(topic string) error {
	if topic == "" {
		return common.Validation("topic", "must not be empty")
	}
	if len(topic) > MaxTopicLength {
		return common.Validation("topic", fmt.Sprintf("too long (max %d characters)", MaxTopicLength))
	}
	if !topicPattern.MatchString(topic) {
		return common.Validation("topic", fmt.Sprintf("invalid topic %q (allowed: a-z, 0-9, -, _, .)", SanitizeForLog(topic)))
	}
	return nil
}

// ValidateTopics validates every topic in topics.
func ValidateTopics(topics []string) error {
	for _, t := range topics {
		if err := ValidateTopic(t); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}
