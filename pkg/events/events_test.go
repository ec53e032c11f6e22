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

package events

import (
	"testing"

	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	e := New(TopicStaffUpdate, 7, nil)
	assert.Equal(t, TopicStaffUpdate, e.Type)
	assert.Equal(t, int64(7), e.Version)
	assert.NotNil(t, e.Data)
	assert.False(t, e.Timestamp.IsZero())
}

func TestStaffPayloadsCopyTheMember(t *testing.T) {
	m := &staff.Member{ID: "s1", Name: "A", Period: 2, Version: 3}

	created := StaffCreated(m)
	updated := StaffUpdated(m, map[string]any{"name": "A"})
	deleted := StaffDeleted(m)

	m.Name = "mutated"

	assert.Equal(t, "A", created["staff"].(*staff.Member).Name)
	assert.Equal(t, "A", updated["staff"].(*staff.Member).Name)
	assert.Equal(t, int64(3), updated["version"])
	assert.Equal(t, map[string]any{"name": "A"}, updated["changes"])
	assert.Equal(t, "s1", deleted["id"])
	assert.Equal(t, 2, deleted["period"])
}

func TestStaffTopics(t *testing.T) {
	assert.ElementsMatch(t, []string{"staff_create", "staff_update", "staff_delete"}, StaffTopics())
}
