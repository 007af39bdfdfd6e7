package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// ListIssues returns the issues of a repository ordered by severity then id.
func (s *SQLiteStorage) ListIssues(ctx context.Context, f types.IssueFilter) ([]types.Issue, error) {
	query := `
		SELECT id, repo_id, type, severity, path, pages, description,
		       auto_fixable, status, first_seen, last_seen
		FROM issues
		WHERE 1=1
	`
	args := []interface{}{}

	if f.RepoID != "" {
		query += " AND repo_id = ?"
		args = append(args, f.RepoID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}

	query += ` ORDER BY repo_id,
		CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 WHEN 'info' THEN 2 ELSE 3 END,
		id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var result []types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issue rows: %w", err)
	}
	return result, nil
}

func scanIssue(rows *sql.Rows) (types.Issue, error) {
	var issue types.Issue
	var pagesJSON, firstSeen, lastSeen string
	var autoFixable int

	err := rows.Scan(
		&issue.ID,
		&issue.RepoID,
		&issue.Type,
		&issue.Severity,
		&issue.Path,
		&pagesJSON,
		&issue.Description,
		&autoFixable,
		&issue.Status,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return issue, fmt.Errorf("failed to scan issue: %w", err)
	}

	issue.AutoFixable = autoFixable != 0
	if pagesJSON != "" && pagesJSON != "[]" {
		if err := json.Unmarshal([]byte(pagesJSON), &issue.Pages); err != nil {
			return issue, fmt.Errorf("failed to decode pages of issue %s: %w", issue.ID, err)
		}
	}
	if issue.FirstSeen, err = parseTime(firstSeen); err != nil {
		return issue, err
	}
	if issue.LastSeen, err = parseTime(lastSeen); err != nil {
		return issue, err
	}
	return issue, nil
}

// SaveIssues upserts issues in one transaction. Status and timestamps are
// written as given; reconciliation happens before this call.
func (s *SQLiteStorage) SaveIssues(ctx context.Context, issues []types.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (id, repo_id, type, severity, path, pages, description,
		                    auto_fixable, status, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
			severity = excluded.severity,
			pages = excluded.pages,
			description = excluded.description,
			auto_fixable = excluded.auto_fixable,
			status = excluded.status,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue upsert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		pages := issue.Pages
		if pages == nil {
			pages = []string{}
		}
		pagesJSON, err := json.Marshal(pages)
		if err != nil {
			return fmt.Errorf("failed to encode pages of issue %s: %w", issue.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			issue.ID,
			issue.RepoID,
			string(issue.Type),
			string(issue.Severity),
			issue.Path,
			string(pagesJSON),
			issue.Description,
			boolToInt(issue.AutoFixable),
			string(issue.Status),
			formatTime(issue.FirstSeen),
			formatTime(issue.LastSeen),
		); err != nil {
			return fmt.Errorf("failed to save issue %s: %w", issue.ID, err)
		}
	}

	return tx.Commit()
}

// SetIssueStatus changes the status of one issue. It returns false when no
// such issue exists.
func (s *SQLiteStorage) SetIssueStatus(ctx context.Context, repoID, issueID string, status types.IssueStatus) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("invalid issue status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status = ? WHERE repo_id = ? AND id = ?`,
		string(status), repoID, issueID)
	if err != nil {
		return false, fmt.Errorf("failed to update issue %s: %w", issueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
