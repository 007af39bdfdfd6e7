package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// InsertContent records a generated article.
func (s *SQLiteStorage) InsertContent(ctx context.Context, rec *types.ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_records (id, repo_id, slug, title, topic, path, commit_sha, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.RepoID, rec.Slug, rec.Title, rec.Topic, rec.Path, rec.Commit, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert content record %s: %w", rec.Slug, err)
	}
	return nil
}

// ListContent returns a repository's articles, newest first.
func (s *SQLiteStorage) ListContent(ctx context.Context, repoID string) ([]*types.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, slug, title, topic, path, commit_sha, created_at
		FROM content_records
		WHERE repo_id = ?
		ORDER BY created_at DESC
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content records: %w", err)
	}
	defer rows.Close()

	var result []*types.ContentRecord
	for rows.Next() {
		var rec types.ContentRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.RepoID, &rec.Slug, &rec.Title, &rec.Topic, &rec.Path, &rec.Commit, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan content record: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rows: %w", err)
	}
	return result, nil
}

// LatestContent returns the newest article of a repository, or nil.
func (s *SQLiteStorage) LatestContent(ctx context.Context, repoID string) (*types.ContentRecord, error) {
	var rec types.ContentRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, slug, title, topic, path, commit_sha, created_at
		FROM content_records
		WHERE repo_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, repoID).Scan(&rec.ID, &rec.RepoID, &rec.Slug, &rec.Title, &rec.Topic, &rec.Path, &rec.Commit, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest content for %s: %w", repoID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
