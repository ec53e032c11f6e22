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

package conflict

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func member(name string, version int64, updated time.Time) *staff.Member {
	return &staff.Member{
		ID:         "s1",
		Name:       name,
		Position:   "Chef",
		Department: "Kitchen",
		Type:       staff.TypeRegular,
		Period:     1,
		Version:    version,
		UpdatedAt:  updated,
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"last_writer_wins", LastWriterWins, false},
		{"First-Writer-Wins", FirstWriterWins, false},
		{" merge_changes ", MergeChanges, false},
		{"user_choice", UserChoice, false},
		{"newest", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLastWriterWins(t *testing.T) {
	r := NewResolver(LastWriterWins, nil)
	local := member("Local Update", 1, now.Add(-time.Hour))
	remote := member("Remote Update", 2, now)

	got, err := r.ResolveConflict(local, remote)
	require.NoError(t, err)
	assert.Equal(t, "Remote Update", got.Name)
	assert.Equal(t, int64(2), got.Version)
	assert.NotSame(t, remote, got)

	got, err = r.ResolveConflict(remote, local)
	require.NoError(t, err)
	assert.Equal(t, "Remote Update", got.Name)
}

func TestLastWriterWinsTiePrefersRemote(t *testing.T) {
	r := NewResolver(LastWriterWins, nil)
	got, err := r.ResolveConflict(member("L", 5, now), member("R", 1, now))
	require.NoError(t, err)
	assert.Equal(t, "R", got.Name)
}

func TestFirstWriterWins(t *testing.T) {
	r := NewResolver(FirstWriterWins, nil)
	local := member("Local", 1, now.Add(-time.Hour))

	for _, remoteVersion := range []int64{0, 1, 99} {
		got, err := r.ResolveConflict(local, member("Remote", remoteVersion, now))
		require.NoError(t, err)
		assert.Equal(t, local, got)
		assert.NotSame(t, local, got)
	}
}

func TestMergeChangesOneSidedFields(t *testing.T) {
	r := NewResolver(MergeChanges, nil)
	local := &staff.Member{ID: "s1", Name: "Local Name", Department: "", Version: 1}
	remote := &staff.Member{ID: "s1", Name: "", Department: "Remote Dept", Version: 2}

	got, details, err := r.ResolveConflictWithDetails(local, remote)
	require.NoError(t, err)
	assert.Equal(t, "Local Name", got.Name)
	assert.Equal(t, "Remote Dept", got.Department)
	assert.Equal(t, int64(3), got.Version)
	assert.Empty(t, details)
}

func TestMergeChangesRecordsTrueConflicts(t *testing.T) {
	r := NewResolver(MergeChanges, nil)
	local := member("Alice", 4, now)
	local.Position = "Server"
	remote := member("Alicia", 2, now.Add(-time.Minute))
	remote.Type = staff.TypePartTime

	got, details, err := r.ResolveConflictWithDetails(local, remote)
	require.NoError(t, err)

	assert.Equal(t, "Alicia", got.Name)
	assert.Equal(t, "Chef", got.Position)
	assert.Equal(t, staff.TypePartTime, got.Type)
	assert.Equal(t, "Kitchen", got.Department)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, now, got.UpdatedAt)

	assert.Equal(t, []Detail{
		{Field: "name", Local: "Alice", Remote: "Alicia"},
		{Field: "position", Local: "Server", Remote: "Chef"},
		{Field: "type", Local: "regular", Remote: "part-time"},
	}, details)
}

func TestMergeVersionExceedsBothInputs(t *testing.T) {
	r := NewResolver(MergeChanges, nil)
	for _, pair := range [][2]int64{{1, 1}, {7, 3}, {3, 7}, {0, 0}} {
		got, err := r.ResolveConflict(member("a", pair[0], now), member("b", pair[1], now))
		require.NoError(t, err)
		assert.Greater(t, got.Version, max(pair[0], pair[1]))
	}
}

func TestUserChoice(t *testing.T) {
	r := NewResolver(UserChoice, nil)
	got, err := r.ResolveConflict(member("a", 1, now), member("b", 2, now))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, common.ErrUserChoiceRequired)
	assert.True(t, common.IsKind(err, common.KindUserChoiceRequired))

	got, details, err := r.ResolveConflictWithDetails(member("a", 1, now), member("a", 1, now))
	assert.Nil(t, got)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, common.ErrUserChoiceRequired)
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	local := member("Local", 1, now)
	remote := member("Remote", 2, now.Add(time.Second))
	localCopy, remoteCopy := *local, *remote

	for _, s := range Strategies() {
		r := NewResolver(s, nil)
		_, _, _ = r.ResolveConflictWithDetails(local, remote)
		assert.Equal(t, localCopy, *local, s)
		assert.Equal(t, remoteCopy, *remote, s)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := NewResolver(MergeChanges, nil)
	local := member("Local", 1, now)
	remote := member("Remote", 2, now)

	first, err := r.ResolveConflict(local, remote)
	require.NoError(t, err)
	second, err := r.ResolveConflict(local, remote)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveNilInputs(t *testing.T) {
	r := NewResolver(LastWriterWins, nil)
	_, err := r.ResolveConflict(nil, member("a", 1, now))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestHasConflict(t *testing.T) {
	r := NewResolver(LastWriterWins, nil)
	a := member("Same", 1, now)
	b := member("Same", 9, now.Add(time.Hour))
	assert.False(t, r.HasConflict(a, b))

	mutations := []func(m *staff.Member){
		func(m *staff.Member) { m.Name = "Other" },
		func(m *staff.Member) { m.Position = "Other" },
		func(m *staff.Member) { m.Department = "Other" },
		func(m *staff.Member) { m.Type = staff.TypeTemporary },
	}
	for _, mutate := range mutations {
		c := b.Clone()
		mutate(c)
		assert.True(t, r.HasConflict(a, c))
	}
}

func TestCanAutoResolveDependsOnlyOnStrategy(t *testing.T) {
	same := member("x", 1, now)
	for _, s := range Strategies() {
		r := NewResolver(s, nil)
		assert.Equal(t, s != UserChoice, r.CanAutoResolve(same, same), s)
	}
}

func TestGetSetStrategy(t *testing.T) {
	r := NewResolver("bogus", nil)
	assert.Equal(t, LastWriterWins, r.GetStrategy())

	require.NoError(t, r.SetStrategy(UserChoice))
	assert.Equal(t, UserChoice, r.GetStrategy())
	assert.False(t, r.CanAutoResolve(nil, nil))

	assert.Error(t, r.SetStrategy("bogus"))
	assert.Equal(t, UserChoice, r.GetStrategy())
}

func TestNewResolverWarnsOnUnknownStrategy(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver("newest_wins", adapters.NewLogger(&buf, adapters.WarnLevel))

	assert.Equal(t, LastWriterWins, r.GetStrategy())
	assert.Contains(t, buf.String(), "Unknown conflict strategy")
	assert.Contains(t, buf.String(), "newest_wins")

	buf.Reset()
	r = NewResolver("Merge-Changes", adapters.NewLogger(&buf, adapters.WarnLevel))
	assert.Equal(t, MergeChanges, r.GetStrategy())
	assert.Empty(t, buf.String())
}

func TestConcurrentResolveAndSetStrategy(t *testing.T) {
	r := NewResolver(LastWriterWins, nil)
	local := member("L", 1, now)
	remote := member("R", 2, now)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.ResolveConflict(local, remote)
		}()
		go func(i int) {
			defer wg.Done()
			_ = r.SetStrategy(Strategies()[i%len(Strategies())])
		}(i)
	}
	wg.Wait()
}
