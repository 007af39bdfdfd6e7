// Package ledger keeps the append-only record of committed changes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/seoloop/internal/types"
)

// Store is the persistence the ledger needs. storage.Storage implements it.
type Store interface {
	InsertChange(ctx context.Context, rec *types.ChangeRecord) (bool, error)
	GetChange(ctx context.Context, id string) (*types.ChangeRecord, error)
	ListChanges(ctx context.Context, filter types.ChangeFilter) ([]*types.ChangeRecord, error)
	ResolveChange(ctx context.Context, id string, impact *types.MeasuredImpact) (bool, error)
}

// Ledger records committed fixes and their measured outcome.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a ledger over store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger.With("component", "ledger")}
}

// Record appends rec. Recording the same (repository, commit, file) twice
// keeps the first entry; the return value reports whether rec was new.
func (l *Ledger) Record(ctx context.Context, rec *types.ChangeRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ExpectedImpact == "" {
		rec.ExpectedImpact = types.ExpectedImpactFor(rec.Type)
	}
	if err := rec.Validate(); err != nil {
		return false, fmt.Errorf("invalid change record: %w", err)
	}
	// Outcomes are only ever written through Resolve
	rec.Impact = nil

	inserted, err := l.store.InsertChange(ctx, rec)
	if err != nil {
		return false, err
	}
	if !inserted {
		l.logger.Debug("change already recorded", "repo", rec.RepoID, "commit", rec.Commit, "file", rec.File)
	}
	return inserted, nil
}

// RecordCommit records one entry per file of a commit, built from the fixes
// applied to it. committed lists the files the commit changed. It returns
// the number of new entries.
func (l *Ledger) RecordCommit(ctx context.Context, repoID, commit string, applied []types.Fix, committed []string, at time.Time) (int, error) {
	added := 0
	for _, rec := range Records(repoID, commit, applied, committed, at) {
		ok, err := l.Record(ctx, rec)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Records groups applied fixes by file into change records for commit.
// A file touched by several fixes gets one record typed after its first fix.
// Fixes to files outside committed left nothing to record and are skipped.
func Records(repoID, commit string, applied []types.Fix, committed []string, at time.Time) []*types.ChangeRecord {
	inCommit := make(map[string]bool, len(committed))
	for _, p := range committed {
		inCommit[p] = true
	}

	var order []string
	byFile := make(map[string]*types.ChangeRecord)
	descs := make(map[string][]string)

	for _, fix := range applied {
		if !inCommit[fix.Path] {
			continue
		}
		rec, ok := byFile[fix.Path]
		if !ok {
			rec = &types.ChangeRecord{
				RepoID:         repoID,
				Timestamp:      at.UTC(),
				Type:           fix.IssueType,
				File:           fix.Path,
				Route:          fix.Route,
				Commit:         commit,
				ExpectedImpact: types.ExpectedImpactFor(fix.IssueType),
			}
			byFile[fix.Path] = rec
			order = append(order, fix.Path)
		}
		if fix.Description != "" {
			descs[fix.Path] = append(descs[fix.Path], fix.Description)
		}
	}

	records := make([]*types.ChangeRecord, 0, len(order))
	for _, p := range order {
		rec := byFile[p]
		rec.Description = strings.Join(descs[p], "; ")
		records = append(records, rec)
	}
	return records
}

// Pending returns every entry without a measured outcome, oldest first.
func (l *Ledger) Pending(ctx context.Context) ([]*types.ChangeRecord, error) {
	return l.store.ListChanges(ctx, types.ChangeFilter{Pending: true})
}

// Resolve stores the measured outcome of an entry. An outcome is written at
// most once; later calls leave it untouched and return false.
func (l *Ledger) Resolve(ctx context.Context, id string, impact *types.MeasuredImpact) (bool, error) {
	if impact == nil {
		return false, fmt.Errorf("impact is required")
	}
	if impact.MeasuredAt.IsZero() {
		impact.MeasuredAt = time.Now().UTC()
	}
	written, err := l.store.ResolveChange(ctx, id, impact)
	if err != nil {
		return false, err
	}
	if !written {
		l.logger.Debug("change already resolved", "id", id)
	}
	return written, nil
}

// Get returns one entry, or nil when id is unknown.
func (l *Ledger) Get(ctx context.Context, id string) (*types.ChangeRecord, error) {
	return l.store.GetChange(ctx, id)
}

// List returns the entries matching filter, oldest first.
func (l *Ledger) List(ctx context.Context, filter types.ChangeFilter) ([]*types.ChangeRecord, error) {
	return l.store.ListChanges(ctx, filter)
}
