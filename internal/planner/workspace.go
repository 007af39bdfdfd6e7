package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/patch"
	"github.com/steveyegge/seoloop/internal/types"
)

// workspace tracks file contents as they will be after the fixes planned so
// far, so later patches to the same file are computed against earlier ones.
type workspace struct {
	root   string
	zones  types.Zones
	files  map[string]string
	logger *slog.Logger
}

func newWorkspace(root string, zones types.Zones, logger *slog.Logger) *workspace {
	return &workspace{root: root, zones: zones, files: make(map[string]string), logger: logger}
}

func (w *workspace) read(p string) (string, bool, error) {
	if content, ok := w.files[p]; ok {
		return content, true, nil
	}
	full, err := patch.Resolve(w.root, p)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	w.files[p] = string(data)
	return w.files[p], true, nil
}

// draft collects the edits of one issue; they reach the workspace only on commit.
func (w *workspace) draft(issue types.Issue) *draft {
	return &draft{ws: w, issue: issue, files: make(map[string]string)}
}

type draft struct {
	ws    *workspace
	issue types.Issue
	files map[string]string
	fixes []types.Fix
}

func (d *draft) read(p string) (string, error) {
	if content, ok := d.files[p]; ok {
		return content, nil
	}
	content, ok, err := d.ws.read(p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s does not exist", p)
	}
	return content, nil
}

func (d *draft) guard(p string) error {
	if d.ws.zones.IsDanger(p) {
		return fmt.Errorf("%w: %s", ErrDangerZone, p)
	}
	if _, err := patch.Resolve(d.ws.root, p); err != nil {
		return err
	}
	return nil
}

// modify records an exact find/replace against the current planned content.
func (d *draft) modify(p, route, description string, edit framework.Patch) error {
	if err := d.guard(p); err != nil {
		return err
	}
	content, err := d.read(p)
	if err != nil {
		return err
	}
	if edit.Find == "" {
		return fmt.Errorf("empty search text for %s", p)
	}
	switch n := strings.Count(content, edit.Find); {
	case n == 0:
		return &patch.PatchMismatchError{Path: p, Find: edit.Find}
	case n > 1:
		d.ws.logger.Warn("search text is not unique, first occurrence will be replaced",
			"path", p, "occurrences", n)
	}

	d.files[p] = strings.Replace(content, edit.Find, edit.Replace, 1)
	d.fixes = append(d.fixes, types.Fix{
		Action:      types.ActionModify,
		Path:        p,
		Find:        edit.Find,
		Replace:     edit.Replace,
		Description: description,
		Route:       route,
	})
	return nil
}

// create records a whole-file write.
func (d *draft) create(fix types.Fix) error {
	if err := d.guard(fix.Path); err != nil {
		return err
	}
	fix.Action = types.ActionCreate
	d.files[fix.Path] = string(fix.Content)
	d.fixes = append(d.fixes, fix)
	return nil
}

func (d *draft) commit() []types.Fix {
	for p, content := range d.files {
		d.ws.files[p] = content
	}
	for i := range d.fixes {
		d.fixes[i].IssueID = d.issue.ID
		d.fixes[i].IssueType = d.issue.Type
	}
	return d.fixes
}
