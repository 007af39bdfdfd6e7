package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// GetProfile returns the stored profile of a repository, or nil when none exists.
func (s *SQLiteStorage) GetProfile(ctx context.Context, repoID string) (*types.CodebaseProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE repo_id = ?`, repoID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", repoID, err)
	}

	var profile types.CodebaseProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for %s: %w", repoID, err)
	}
	return &profile, nil
}

// SaveProfile stores a profile, replacing the repository's previous one.
func (s *SQLiteStorage) SaveProfile(ctx context.Context, profile *types.CodebaseProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (repo_id, commit_sha, framework, data, scanned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			commit_sha = excluded.commit_sha,
			framework = excluded.framework,
			data = excluded.data,
			scanned_at = excluded.scanned_at
	`, profile.RepoID, profile.Commit, string(profile.Framework), string(data), formatTime(profile.ScannedAt))
	if err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", profile.RepoID, err)
	}
	return nil
}
