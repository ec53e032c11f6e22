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

// Package conflict reconciles two divergent snapshots of the same staff member.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	// LastWriterWins keeps the snapshot with the later UpdatedAt. Remote wins a tie.
	LastWriterWins Strategy = "last_writer_wins"
	// FirstWriterWins always keeps the local snapshot.
	FirstWriterWins Strategy = "first_writer_wins"
	// MergeChanges merges field by field, preferring remote on a true conflict.
	MergeChanges Strategy = "merge_changes"
	// UserChoice never resolves automatically.
	UserChoice Strategy = "user_choice"
)

// Strategies returns every supported strategy.
func Strategies() []Strategy {
	return []Strategy{LastWriterWins, FirstWriterWins, MergeChanges, UserChoice}
}

// ParseStrategy parses a strategy name. Hyphens and case are ignored.
func ParseStrategy(s string) (Strategy, error) {
	normalized := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, strategy := range Strategies() {
		if strategy == normalized {
			return strategy, nil
		}
	}
	return "", common.Validation("strategy", fmt.Sprintf("unknown conflict strategy %q", s))
}

// Detail records one business field where both sides held different non-empty values.
type Detail struct {
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Resolver resolves conflicts under one configurable strategy. It never
// mutates its inputs and is safe for concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	strategy Strategy
	logger   adapters.Logger
}

// NewResolver creates a resolver. An unknown strategy is logged at warn
// level and replaced with LastWriterWins.
func NewResolver(strategy Strategy, logger adapters.Logger) *Resolver {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		logger.Warn(context.Background(), "Unknown conflict strategy, using default",
			adapters.Field{Key: "strategy", Value: string(strategy)},
			adapters.Field{Key: "default", Value: string(LastWriterWins)})
		parsed = LastWriterWins
	}
	return &Resolver{strategy: parsed, logger: logger}
}

// GetStrategy returns the configured strategy.
func (r *Resolver) GetStrategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetStrategy changes the strategy for subsequent calls.
func (r *Resolver) SetStrategy(strategy Strategy) error {
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.strategy = parsed
	r.mu.Unlock()
	return nil
}

// CanAutoResolve reports whether the configured strategy resolves without a human.
func (r *Resolver) CanAutoResolve(local, remote *staff.Member) bool {
	return r.GetStrategy() != UserChoice
}

// HasConflict reports whether any business field differs. Version and
// UpdatedAt are ignored.
func (r *Resolver) HasConflict(local, remote *staff.Member) bool {
	if local == nil || remote == nil {
		return local != remote
	}
	for _, f := range businessFields(local, remote) {
		if f.local != f.remote {
			return true
		}
	}
	return false
}

// ResolveConflict returns a new snapshot reconciling local and remote.
func (r *Resolver) ResolveConflict(local, remote *staff.Member) (*staff.Member, error) {
	resolved, _, err := r.ResolveConflictWithDetails(local, remote)
	return resolved, err
}

// ResolveConflictWithDetails resolves like ResolveConflict and also returns
// one Detail per business field where both sides were non-empty and differed.
func (r *Resolver) ResolveConflictWithDetails(local, remote *staff.Member) (*staff.Member, []Detail, error) {
	if local == nil || remote == nil {
		return nil, nil, common.Validation("snapshot", "both local and remote snapshots are required")
	}

	strategy := r.GetStrategy()
	var (
		resolved *staff.Member
		details  []Detail
	)
	switch strategy {
	case LastWriterWins:
		resolved = lastWriterWins(local, remote)
	case FirstWriterWins:
		resolved = local.Clone()
	case MergeChanges:
		resolved, details = merge(local, remote)
	case UserChoice:
		return nil, nil, common.ErrUserChoiceRequired
	default:
		return nil, nil, common.Internal(fmt.Sprintf("unhandled strategy %q", strategy), nil)
	}

	r.logger.Debug(context.Background(), "Conflict resolved",
		adapters.Field{Key: "staff_id", Value: resolved.ID},
		adapters.Field{Key: "strategy", Value: string(strategy)},
		adapters.Field{Key: "conflicts", Value: len(details)})
	return resolved, details, nil
}

func lastWriterWins(local, remote *staff.Member) *staff.Member {
	if local.UpdatedAt.After(remote.UpdatedAt) {
		return local.Clone()
	}
	return remote.Clone()
}

func merge(local, remote *staff.Member) (*staff.Member, []Detail) {
	resolved := remote.Clone()
	if resolved.ID == "" {
		resolved.ID = local.ID
	}

	var details []Detail
	values := make(map[string]string, 4)
	for _, f := range businessFields(local, remote) {
		switch {
		case f.local == "":
			values[f.name] = f.remote
		case f.remote == "":
			values[f.name] = f.local
		case f.local == f.remote:
			values[f.name] = f.local
		default:
			details = append(details, Detail{Field: f.name, Local: f.local, Remote: f.remote})
			values[f.name] = f.remote
		}
	}
	resolved.Name = values["name"]
	resolved.Position = values["position"]
	resolved.Department = values["department"]
	resolved.Type = staff.Type(values["type"])

	resolved.Version = max(local.Version, remote.Version) + 1
	if local.UpdatedAt.After(remote.UpdatedAt) {
		resolved.UpdatedAt = local.UpdatedAt
	}
	return resolved, details
}

type fieldPair struct {
	name   string
	local  string
	remote string
}

func businessFields(local, remote *staff.Member) []fieldPair {
	return []fieldPair{
		{"name", local.Name, remote.Name},
		{"position", local.Position, remote.Position},
		{"department", local.Department, remote.Department},
		{"type", string(local.Type), string(remote.Type)},
	}
}
