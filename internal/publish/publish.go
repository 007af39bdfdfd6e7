// Package publish stages, commits and pushes applied fixes.
package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/seoloop/internal/git"
	"github.com/steveyegge/seoloop/internal/types"
)

// CommitResult describes a commit created and pushed by the gateway.
type CommitResult struct {
	Commit  string
	Branch  string
	Message string
	Files   []git.FileStat
}

// Paths returns the changed file paths in diff order.
func (r *CommitResult) Paths() []string {
	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	return paths
}

// Config configures a Gateway.
type Config struct {
	Git         git.Operations
	AuthorName  string
	AuthorEmail string
	Logger      *slog.Logger
}

// Gateway publishes working-copy changes to the remote branch.
type Gateway struct {
	git         git.Operations
	authorName  string
	authorEmail string
	logger      *slog.Logger
}

// NewGateway creates a gateway.
func NewGateway(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		git:         cfg.Git,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		logger:      logger.With("component", "publish"),
	}
}

// Publish commits and pushes the working copy at root.
//
// With no applied fixes nothing is staged, committed or pushed. When staging
// produces an empty diff (the fixes reproduced what was already there) the
// result is nil and no commit is made. A push failure is returned as
// *git.PushError; the local commit is left for the next sync to discard.
func (g *Gateway) Publish(ctx context.Context, root, branch string, applied []types.Fix) (*CommitResult, error) {
	if len(applied) == 0 {
		g.logger.Debug("nothing applied, skipping commit", "path", root)
		return nil, nil
	}

	if err := g.git.StageAll(ctx, root); err != nil {
		return nil, err
	}
	stats, err := g.git.StagedDiff(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		g.logger.Info("staged diff is empty, no commit created", "path", root, "applied", len(applied))
		return nil, nil
	}

	message := git.BuildCommitMessage(applied, stats)
	commit, err := g.git.Commit(ctx, root, git.CommitOptions{
		Message:     message,
		AuthorName:  g.authorName,
		AuthorEmail: g.authorEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	if err := g.git.Push(ctx, root, branch); err != nil {
		g.logger.Error("push failed", "branch", branch, "commit", commit, "rejected", git.IsPushRejected(err), "error", err)
		return nil, err
	}

	g.logger.Info("changes pushed", "branch", branch, "commit", commit, "files", len(stats))
	return &CommitResult{Commit: commit, Branch: branch, Message: message, Files: stats}, nil
}
