package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// IncrementIfBelow bumps a daily budget counter when it is below limit
// (negative limit: always). The check and the write are one statement.
func (s *SQLiteStorage) IncrementIfBelow(ctx context.Context, repoID string, kind types.ResourceKind, day string, limit int) (bool, error) {
	if limit == 0 {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_counters (repo_id, resource, day, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(repo_id, resource, day) DO UPDATE SET count = count + 1
		WHERE ? < 0 OR count < ?
	`, repoID, string(kind), day, limit, limit)
	if err != nil {
		return false, fmt.Errorf("failed to increment %s counter for %s: %w", kind, repoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns a daily counter (0 when absent)
func (s *SQLiteStorage) Count(ctx context.Context, repoID string, kind types.ResourceKind, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM budget_counters WHERE repo_id = ? AND resource = ? AND day = ?`,
		repoID, string(kind), day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s counter for %s: %w", kind, repoID, err)
	}
	return n, nil
}
