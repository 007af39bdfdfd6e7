package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

const changeColumns = `
	id, repo_id, timestamp, type, file, route, commit_sha, description, expected_impact,
	clicks_before, clicks_after, percent_change, window_days, measured_at
`

// InsertChange writes a ledger entry. A second entry for the same
// (repo, commit, file) is ignored and reported as not inserted.
func (s *SQLiteStorage) InsertChange(ctx context.Context, rec *types.ChangeRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (id, repo_id, timestamp, type, file, route, commit_sha,
		                     description, expected_impact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, commit_sha, file) DO NOTHING
	`,
		rec.ID,
		rec.RepoID,
		formatTime(rec.Timestamp),
		string(rec.Type),
		rec.File,
		rec.Route,
		rec.Commit,
		rec.Description,
		rec.ExpectedImpact,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert change (repo=%s, file=%s): %w", rec.RepoID, rec.File, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetChange returns one ledger entry, or nil when the id is unknown.
func (s *SQLiteStorage) GetChange(ctx context.Context, id string) (*types.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+changeColumns+` FROM changes WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query change %s: %w", id, err)
	}
	defer rows.Close()

	changes, err := scanChanges(rows)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return changes[0], nil
}

// ListChanges returns ledger entries oldest first.
func (s *SQLiteStorage) ListChanges(ctx context.Context, f types.ChangeFilter) ([]*types.ChangeRecord, error) {
	query := `SELECT ` + changeColumns + ` FROM changes WHERE 1=1`
	args := []interface{}{}

	if f.RepoID != "" {
		query += " AND repo_id = ?"
		args = append(args, f.RepoID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Pending {
		query += " AND measured_at IS NULL"
	}

	query += " ORDER BY timestamp ASC, id ASC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	return scanChanges(rows)
}

// ResolveChange stores the measured impact of a ledger entry. It only
// writes when no impact was stored before and reports whether it wrote.
func (s *SQLiteStorage) ResolveChange(ctx context.Context, id string, impact *types.MeasuredImpact) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE changes SET
			clicks_before = ?, clicks_after = ?, percent_change = ?,
			window_days = ?, measured_at = ?
		WHERE id = ? AND measured_at IS NULL
	`,
		impact.ClicksBefore,
		impact.ClicksAfter,
		impact.PercentChange,
		impact.WindowDays,
		formatTime(impact.MeasuredAt),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve change %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func scanChanges(rows *sql.Rows) ([]*types.ChangeRecord, error) {
	var result []*types.ChangeRecord

	for rows.Next() {
		var rec types.ChangeRecord
		var timestamp string
		var before, after, pct sql.NullFloat64
		var window sql.NullInt64
		var measuredAt sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.RepoID,
			&timestamp,
			&rec.Type,
			&rec.File,
			&rec.Route,
			&rec.Commit,
			&rec.Description,
			&rec.ExpectedImpact,
			&before,
			&after,
			&pct,
			&window,
			&measuredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}

		if rec.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}

		measured, err := parseNullTime(measuredAt)
		if err != nil {
			return nil, err
		}
		if measured != nil {
			rec.Impact = &types.MeasuredImpact{
				ClicksBefore:  before.Float64,
				ClicksAfter:   after.Float64,
				PercentChange: pct.Float64,
				WindowDays:    int(window.Int64),
				MeasuredAt:    *measured,
			}
		}

		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change rows: %w", err)
	}
	return result, nil
}
