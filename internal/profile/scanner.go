package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/types"
)

// Scanner builds a structural profile of a working copy.
type Scanner interface {
	Scan(ctx context.Context, target types.RepositoryTarget, root, commit string) (*types.CodebaseProfile, error)
}

// DefaultDangerZones are never modified regardless of configuration.
var DefaultDangerZones = []string{
	"node_modules/",
	".git/",
	"vendor/",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"bun.lockb",
	"go.sum",
	"*.lock",
	".env",
	".env.*",
	".github/",
}

// maxPageBytes bounds how much of one page file is read.
const maxPageBytes = 2 << 20

// FSScanner profiles a working copy on disk using the framework capabilities.
type FSScanner struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewFSScanner creates a scanner.
func NewFSScanner(logger *slog.Logger) *FSScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSScanner{now: time.Now, logger: logger}
}

// Scan detects the framework, lists pages with their metadata, records the
// SEO artifacts present and classifies zones. A repository whose structure
// cannot be read degrades to FrameworkUnknown instead of failing.
func (s *FSScanner) Scan(ctx context.Context, target types.RepositoryTarget, root, commit string) (*types.CodebaseProfile, error) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("working copy %s is not a directory", root)
	}

	profile := &types.CodebaseProfile{
		RepoID:    target.ID,
		Commit:    commit,
		Framework: types.FrameworkUnknown,
		ScannedAt: s.now().UTC(),
		Zones:     classifyZones(target.Settings.ExcludePaths),
	}

	detection, err := framework.Detect(root)
	if err != nil {
		var perr *framework.ProfileError
		if !errors.As(err, &perr) {
			return nil, err
		}
		profile.DegradedReason = perr.Error()
		profile.Artifacts = genericArtifacts(root)
		s.logger.Warn("framework detection degraded", "repo", target.ID, "error", perr)
		return profile, nil
	}
	profile.Framework = detection.Framework
	profile.FrameworkVersion = detection.Version
	profile.Variant = detection.Variant

	caps, ok := framework.Lookup(detection.Framework)
	if !ok {
		profile.DegradedReason = "no supported framework detected"
		profile.Artifacts = genericArtifacts(root)
		return profile, nil
	}

	profile.Dirs = caps.Dirs(root)

	files, err := caps.PageFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	var pageSchemas []string
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, schemas, err := readPage(caps, root, file)
		if err != nil {
			s.logger.Warn("skipping unreadable page", "repo", target.ID, "path", file, "error", err)
			continue
		}
		profile.Pages = append(profile.Pages, page)
		pageSchemas = append(pageSchemas, schemas...)
	}

	layouts, err := caps.LayoutFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	profile.Layouts = layouts

	profile.Artifacts = caps.Artifacts(root)
	for _, t := range pageSchemas {
		profile.Artifacts.SchemaTypes = appendUnique(profile.Artifacts.SchemaTypes, t)
	}

	s.logger.Info("scanned repository", "repo", target.ID, "framework", detection.String(),
		"pages", len(profile.Pages), "layouts", len(profile.Layouts))
	return profile, nil
}

// genericArtifacts checks the usual sitemap and robots locations so
// repository-level checks still work without a framework.
func genericArtifacts(root string) types.SEOArtifacts {
	var a types.SEOArtifacts
	for _, dir := range []string{".", "public", "static"} {
		for _, name := range []string{"sitemap.xml", "sitemap_index.xml", "sitemap-index.xml"} {
			rel := filepath.ToSlash(filepath.Join(dir, name))
			if fileIsRegular(filepath.Join(root, rel)) && !a.HasSitemap {
				a.HasSitemap, a.SitemapPath = true, rel
			}
		}
		rel := filepath.ToSlash(filepath.Join(dir, "robots.txt"))
		if fileIsRegular(filepath.Join(root, rel)) && !a.HasRobots {
			a.HasRobots, a.RobotsPath = true, rel
		}
	}
	return a
}

func fileIsRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func readPage(caps framework.Capabilities, root, file string) (types.PageInfo, []string, error) {
	full := filepath.Join(root, filepath.FromSlash(file))
	info, err := os.Stat(full)
	if err != nil {
		return types.PageInfo{}, nil, err
	}
	if info.Size() > maxPageBytes {
		return types.PageInfo{}, nil, fmt.Errorf("page is %d bytes", info.Size())
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return types.PageInfo{}, nil, err
	}

	route, dynamic := caps.Route(file)
	meta := caps.ExtractMeta(file, content)
	return types.PageInfo{
		Path:        file,
		Route:       route,
		Title:       meta.Title,
		Description: meta.Description,
		OGImage:     meta.OGImage,
		H1:          meta.H1,
		Images:      meta.Images,
		WordCount:   meta.WordCount,
		Dynamic:     dynamic,
		RuntimeMeta: meta.Dynamic,
	}, meta.SchemaTypes, nil
}

// classifyZones turns exclusion globs into danger zones on top of the defaults.
// Everything outside a danger zone is safe; Safe lists the top-level roots
// for display only.
func classifyZones(exclude []string) types.Zones {
	z := types.Zones{Safe: []string{"."}}
	z.Danger = append(z.Danger, DefaultDangerZones...)
	for _, pattern := range exclude {
		if pattern == "" {
			continue
		}
		z.Danger = appendUnique(z.Danger, pattern)
	}
	return z
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
