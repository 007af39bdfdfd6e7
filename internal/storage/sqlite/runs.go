package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// CreateRun inserts a run row in its initial state
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, repo_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.RepoID, formatTime(run.StartedAt), string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to create run for %s: %w", run.RepoID, err)
	}
	return nil
}

// CompleteRun writes the outcome of a run
func (s *SQLiteStorage) CompleteRun(ctx context.Context, run *types.RunRecord) error {
	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET completed_at = ?, status = ?, commit_sha = ?, applied = ?, issues = ?, error = ?
		WHERE id = ?
	`, completedAt, string(run.Status), run.Commit, run.Applied, run.Issues, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs, optionally for one repository.
func (s *SQLiteStorage) ListRuns(ctx context.Context, repoID string, limit int) ([]*types.RunRecord, error) {
	query := `
		SELECT id, repo_id, started_at, completed_at, status, commit_sha, applied, issues, error
		FROM runs
	`
	args := []interface{}{}
	if repoID != "" {
		query += " WHERE repo_id = ?"
		args = append(args, repoID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []*types.RunRecord
	for rows.Next() {
		var run types.RunRecord
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.RepoID, &startedAt, &completedAt, &run.Status,
			&run.Commit, &run.Applied, &run.Issues, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		result = append(result, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}
