package git

import (
	"context"
	"fmt"
	"sort"
)

// Operations is the source-control surface the pipeline uses.
// Implemented by *Git; tests substitute fakes.
type Operations interface {
	// CloneOrSync makes dir an exact copy of the remote branch and returns HEAD.
	CloneOrSync(ctx context.Context, remoteURL, branch, dir string) (string, error)

	// Status lists the uncommitted changes of the working tree.
	Status(ctx context.Context, repoPath string) (*Status, error)

	// HeadCommit returns the commit hash at HEAD.
	HeadCommit(ctx context.Context, repoPath string) (string, error)

	// StageAll stages every change in the working tree (git add -A).
	StageAll(ctx context.Context, repoPath string) error

	// StagedDiff returns per-file statistics of the staged changes.
	StagedDiff(ctx context.Context, repoPath string) ([]FileStat, error)

	// Commit records the staged changes and returns the new commit hash.
	Commit(ctx context.Context, repoPath string, opts CommitOptions) (string, error)

	// Push publishes HEAD to the remote branch.
	Push(ctx context.Context, repoPath, branch string) error
}

// Status lists the uncommitted changes of a working copy.
type Status struct {
	Entries []StatusEntry
}

// StatusEntry is one path reported by git status. Index and Tree are the
// X and Y letters of the porcelain code; '?' in both marks an untracked file.
type StatusEntry struct {
	Path     string
	OrigPath string // source of a rename or copy
	Index    byte
	Tree     byte
}

// Clean reports whether nothing differs from HEAD.
func (s *Status) Clean() bool {
	return s == nil || len(s.Entries) == 0
}

// Paths returns the changed paths in sorted order.
func (s *Status) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}

// Untracked returns the set of untracked paths.
func (s *Status) Untracked() map[string]bool {
	untracked := make(map[string]bool)
	if s == nil {
		return untracked
	}
	for _, e := range s.Entries {
		if e.Index == '?' {
			untracked[e.Path] = true
		}
	}
	return untracked
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// AuthorName and AuthorEmail set the commit identity (optional, uses git config if empty)
	AuthorName  string
	AuthorEmail string
}

// FileStat summarizes the staged change of one file.
type FileStat struct {
	Path    string
	Added   int
	Deleted int
	Created bool
	Removed bool
	Binary  bool
}

// SyncError reports a failed clone or refresh; the repository is skipped for this run.
type SyncError struct {
	RemoteURL string
	Branch    string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to sync %s (%s): %v", e.RemoteURL, e.Branch, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// PushError reports that the remote refused or could not receive a push.
type PushError struct {
	Branch string
	Output string
	// Rejected is true when the remote refused a non-fast-forward update
	Rejected bool
	Err      error
}

func (e *PushError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("push to %s rejected: %s", e.Branch, e.Output)
	}
	return fmt.Sprintf("push to %s failed: %v: %s", e.Branch, e.Err, e.Output)
}

func (e *PushError) Unwrap() error { return e.Err }
