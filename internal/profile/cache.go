// Package profile maintains the per-repository codebase profile. A profile
// is rescanned only when the working copy's commit changes.
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/seoloop/internal/types"
)

// Store persists one profile per repository.
type Store interface {
	GetProfile(ctx context.Context, repoID string) (*types.CodebaseProfile, error)
	SaveProfile(ctx context.Context, profile *types.CodebaseProfile) error
}

// Cache returns the stored profile while the commit is unchanged and
// rescans otherwise.
type Cache struct {
	store   Store
	scanner Scanner
	logger  *slog.Logger
}

// NewCache creates a profile cache.
func NewCache(store Store, scanner Scanner, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, scanner: scanner, logger: logger}
}

// Get returns the profile of target at commit. hit reports whether the
// stored profile was reused without scanning.
func (c *Cache) Get(ctx context.Context, target types.RepositoryTarget, root, commit string) (*types.CodebaseProfile, bool, error) {
	if commit == "" {
		return nil, false, fmt.Errorf("commit is required to look up a profile")
	}

	cached, err := c.store.GetProfile(ctx, target.ID)
	if err != nil {
		// A broken cache entry only costs a rescan
		c.logger.Warn("failed to read cached profile", "repo", target.ID, "error", err)
		cached = nil
	}
	if cached != nil && cached.Commit == commit {
		return cached, true, nil
	}

	profile, err := c.scanner.Scan(ctx, target, root, commit)
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan %s: %w", target.ID, err)
	}

	if err := c.store.SaveProfile(ctx, profile); err != nil {
		return nil, false, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, false, nil
}
