package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Git implements Operations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// run executes git with args in dir and returns stdout. Stderr is folded
// into the returned error.
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	// Never block on a credential prompt
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return string(out), fmt.Errorf("git %s failed: %w", args[0], err)
		}
		return string(out), fmt.Errorf("git %s failed: %w: %s", args[0], err, msg)
	}
	return string(out), nil
}

// CloneOrSync makes dir a clean copy of branch at the remote's tip.
// A missing working copy is shallow-cloned; an existing one is fetched and
// hard-reset, discarding any local modification or untracked file.
// SECURITY: dir must be a validated, trusted path.
func (g *Git) CloneOrSync(ctx context.Context, remoteURL, branch, dir string) (string, error) {
	wrap := func(err error) error {
		return &SyncError{RemoteURL: remoteURL, Branch: branch, Err: err}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if !os.IsNotExist(err) {
			return "", wrap(err)
		}
		// Leftovers from an interrupted clone are not a repository
		if err := os.RemoveAll(dir); err != nil {
			return "", wrap(fmt.Errorf("failed to clear %s: %w", dir, err))
		}
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", wrap(err)
		}
		if _, err := g.run(ctx, "", "clone", "--depth", "1", "--single-branch", "--branch", branch, remoteURL, dir); err != nil {
			return "", wrap(err)
		}
	} else {
		remoteRef := "refs/remotes/origin/" + branch
		steps := [][]string{
			{"remote", "set-url", "origin", remoteURL},
			{"fetch", "--depth", "1", "origin", "+refs/heads/" + branch + ":" + remoteRef},
			{"checkout", "-f", "-B", branch, remoteRef},
			{"reset", "--hard", remoteRef},
			{"clean", "-ffdx"},
		}
		for _, args := range steps {
			if _, err := g.run(ctx, dir, args...); err != nil {
				return "", wrap(err)
			}
		}
	}

	commit, err := g.HeadCommit(ctx, dir)
	if err != nil {
		return "", wrap(err)
	}
	return commit, nil
}

// HeadCommit returns the full hash of HEAD.
func (g *Git) HeadCommit(ctx context.Context, repoPath string) (string, error) {
	out, err := g.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(out), nil
}

// Status lists uncommitted changes, untracked files included.
func (g *Git) Status(ctx context.Context, repoPath string) (*Status, error) {
	out, err := g.run(ctx, repoPath, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return parseStatus(out)
}

// parseStatus reads NUL-separated porcelain v1 records ("XY path"). A rename
// or copy is followed by a record holding its source path.
func parseStatus(out string) (*Status, error) {
	st := &Status{}
	records := strings.Split(out, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}
		if len(rec) < 4 || rec[2] != ' ' {
			return nil, fmt.Errorf("unexpected git status record %q", rec)
		}
		e := StatusEntry{Index: rec[0], Tree: rec[1], Path: rec[3:]}
		if e.Index == 'R' || e.Index == 'C' {
			i++
			if i >= len(records) || records[i] == "" {
				return nil, fmt.Errorf("git status: %s has no source path", e.Path)
			}
			e.OrigPath = records[i]
		}
		st.Entries = append(st.Entries, e)
	}
	return st, nil
}

// StageAll stages all changes (git add -A).
func (g *Git) StageAll(ctx context.Context, repoPath string) error {
	if _, err := g.run(ctx, repoPath, "add", "-A"); err != nil {
		return fmt.Errorf("git add failed in %s: %w", repoPath, err)
	}
	return nil
}

// StagedDiff returns per-file statistics of what is staged. An empty result
// means committing would record nothing.
func (g *Git) StagedDiff(ctx context.Context, repoPath string) ([]FileStat, error) {
	names, err := g.run(ctx, repoPath, "diff", "--cached", "--name-only", "--no-renames")
	if err != nil {
		return nil, fmt.Errorf("git diff failed in %s: %w", repoPath, err)
	}
	if strings.TrimSpace(names) == "" {
		return nil, nil
	}

	patch, err := g.run(ctx, repoPath, "diff", "--cached", "--no-color", "--no-ext-diff", "--no-renames")
	if err != nil {
		return nil, fmt.Errorf("git diff failed in %s: %w", repoPath, err)
	}

	stats, err := ParseDiffStats(patch)
	if err != nil {
		// Fall back to names only; stats are informational
		stats = nil
		for _, name := range strings.Split(strings.TrimSpace(names), "\n") {
			stats = append(stats, FileStat{Path: name})
		}
	}
	return stats, nil
}

// ParseDiffStats parses a unified multi-file diff into per-file statistics.
func ParseDiffStats(patch string) ([]FileStat, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	stats := make([]FileStat, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		st := FileStat{
			Created: fd.OrigName == "/dev/null",
			Removed: fd.NewName == "/dev/null",
		}
		if st.Removed {
			st.Path = strings.TrimPrefix(fd.OrigName, "a/")
		} else {
			st.Path = strings.TrimPrefix(fd.NewName, "b/")
		}
		for _, h := range fd.Extended {
			if strings.HasPrefix(h, "Binary files") || strings.HasPrefix(h, "GIT binary patch") {
				st.Binary = true
			}
			if strings.HasPrefix(h, "new file mode") {
				st.Created = true
			}
			if strings.HasPrefix(h, "deleted file mode") {
				st.Removed = true
			}
		}
		if st.Path == "" || st.Path == "/dev/null" {
			st.Path = pathFromExtended(fd.Extended)
		}
		s := fd.Stat()
		// Stat counts a changed line once; git counts it as one add and one delete
		st.Added = int(s.Added + s.Changed)
		st.Deleted = int(s.Deleted + s.Changed)
		stats = append(stats, st)
	}
	return stats, nil
}

// pathFromExtended recovers the path from a "diff --git a/x b/x" header,
// used for binary files without ---/+++ lines.
func pathFromExtended(extended []string) string {
	for _, h := range extended {
		if strings.HasPrefix(h, "diff --git ") {
			fields := strings.Fields(h)
			if len(fields) >= 4 {
				return strings.TrimPrefix(fields[3], "b/")
			}
		}
	}
	return ""
}

// Commit records the staged changes and returns the new commit hash.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) Commit(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	var args []string
	if opts.AuthorName != "" && opts.AuthorEmail != "" {
		args = append(args,
			"-c", "user.name="+opts.AuthorName,
			"-c", "user.email="+opts.AuthorEmail)
	}
	args = append(args, "commit", "--no-verify", "-m", opts.Message)

	if _, err := g.run(ctx, repoPath, args...); err != nil {
		return "", fmt.Errorf("git commit failed in %s: %w", repoPath, err)
	}

	return g.HeadCommit(ctx, repoPath)
}

// Push publishes HEAD to branch on origin. Failures are *PushError.
func (g *Git) Push(ctx context.Context, repoPath, branch string) error {
	out, err := g.run(ctx, repoPath, "push", "--porcelain", "origin", "HEAD:refs/heads/"+branch)
	if err != nil {
		msg := err.Error()
		return &PushError{
			Branch:   branch,
			Output:   strings.TrimSpace(out),
			Rejected: strings.Contains(msg, "rejected") || strings.Contains(msg, "non-fast-forward") || strings.Contains(out, "[rejected]"),
			Err:      err,
		}
	}
	return nil
}

// IsPushRejected reports whether err is a push the remote refused.
func IsPushRejected(err error) bool {
	var pe *PushError
	return errors.As(err, &pe) && pe.Rejected
}
