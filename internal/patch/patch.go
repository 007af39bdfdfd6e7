// Package patch applies planned fixes to a working copy.
package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/seoloop/internal/types"
)

// PatchMismatchError reports a modify fix whose search text is not in the
// file, usually because the file changed after the fix was planned.
type PatchMismatchError struct {
	Path string
	Find string
}

func (e *PatchMismatchError) Error() string {
	find := e.Find
	if len(find) > 60 {
		find = find[:60] + "..."
	}
	return fmt.Sprintf("search text not found in %s: %q", e.Path, find)
}

// ErrPathEscape means a fix path points outside the working copy.
var ErrPathEscape = errors.New("path escapes the working copy")

// SkippedFix is a fix that was not applied, with the reason.
type SkippedFix struct {
	Fix types.Fix
	Err error
}

// Result of applying a batch of fixes.
type Result struct {
	Applied []types.Fix
	Skipped []SkippedFix
}

// AppliedCount is the number of fixes that changed the working copy.
func (r *Result) AppliedCount() int {
	return len(r.Applied)
}

// Applier applies fixes to working copies.
type Applier struct {
	logger *slog.Logger
}

// NewApplier creates an applier.
func NewApplier(logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{logger: logger.With("component", "patch")}
}

// Apply applies fixes in order. Fixes are independent: one that fails is
// recorded in Skipped and the rest still apply. A modify whose search text is
// absent leaves the file untouched.
func (a *Applier) Apply(root string, fixes []types.Fix) *Result {
	result := &Result{}
	for _, fix := range fixes {
		if err := applyOne(root, fix); err != nil {
			var mismatch *PatchMismatchError
			if errors.As(err, &mismatch) {
				a.logger.Warn("fix no longer matches file, skipping", "path", fix.Path, "issue", fix.IssueID)
			} else {
				a.logger.Error("failed to apply fix", "path", fix.Path, "issue", fix.IssueID, "error", err)
			}
			result.Skipped = append(result.Skipped, SkippedFix{Fix: fix, Err: err})
			continue
		}
		result.Applied = append(result.Applied, fix)
	}
	a.logger.Info("fixes applied", "applied", len(result.Applied), "skipped", len(result.Skipped))
	return result
}

// Apply is Applier.Apply with the default logger.
func Apply(root string, fixes []types.Fix) *Result {
	return NewApplier(nil).Apply(root, fixes)
}

func applyOne(root string, fix types.Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	full, err := Resolve(root, fix.Path)
	if err != nil {
		return err
	}

	switch fix.Action {
	case types.ActionCreate:
		return WriteFileAtomic(full, fix.Content)

	case types.ActionModify:
		content, err := os.ReadFile(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &PatchMismatchError{Path: fix.Path, Find: fix.Find}
			}
			return fmt.Errorf("failed to read %s: %w", fix.Path, err)
		}
		if !bytes.Contains(content, []byte(fix.Find)) {
			return &PatchMismatchError{Path: fix.Path, Find: fix.Find}
		}
		updated := bytes.Replace(content, []byte(fix.Find), []byte(fix.Replace), 1)
		return WriteFileAtomic(full, updated)

	case types.ActionDelete:
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", fix.Path, err)
		}
		return nil
	}
	return fmt.Errorf("invalid fix action %q", fix.Action)
}

// Resolve maps a repo-relative, slash-separated path to a filesystem path
// inside root, rejecting absolute paths and paths that climb out of root.
func Resolve(root, rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return filepath.Join(root, local), nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, creating parent directories. Existing permissions are kept.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
