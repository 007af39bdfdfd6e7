package types

import (
	"path"
	"strings"
	"time"
)

// CodebaseProfile is the structural description of a repository at one commit.
// A profile is only valid while Commit matches the working copy's HEAD.
type CodebaseProfile struct {
	RepoID           string         `json:"repo_id"`
	Commit           string         `json:"commit"`
	Framework        Framework      `json:"framework"`
	FrameworkVersion string         `json:"framework_version,omitempty"`
	Variant          string         `json:"variant,omitempty"` // e.g. "app-router", "pages-router"
	Dirs             DirectoryRoles `json:"dirs"`
	Pages            []PageInfo     `json:"pages"`
	Layouts          []string       `json:"layouts"`
	Artifacts        SEOArtifacts   `json:"artifacts"`
	Zones            Zones          `json:"zones"`
	ScannedAt        time.Time      `json:"scanned_at"`

	// DegradedReason is set when framework detection failed and the profile
	// fell back to FrameworkUnknown.
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// DirectoryRoles records where a framework keeps its pages, components, assets and content.
type DirectoryRoles struct {
	Pages      string `json:"pages,omitempty"`
	Components string `json:"components,omitempty"`
	Assets     string `json:"assets,omitempty"`
	Content    string `json:"content,omitempty"`
	Public     string `json:"public,omitempty"`
}

// PageInfo is what the scanner learned about one routable page.
type PageInfo struct {
	Path        string     `json:"path"`  // repo-relative, slash separated
	Route       string     `json:"route"` // URL path, e.g. "/blog/hello"
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	OGImage     string     `json:"og_image,omitempty"`
	H1          string     `json:"h1,omitempty"`
	Images      []ImageRef `json:"images,omitempty"`
	WordCount   int        `json:"word_count"`

	// Dynamic marks parameterised routes ([slug], _id, ...), whose copy is data driven
	Dynamic bool `json:"dynamic,omitempty"`

	// RuntimeMeta means the page computes its metadata in code
	// (generateMetadata, expression props); literal values are unknown.
	RuntimeMeta bool `json:"runtime_meta,omitempty"`
}

// ImageRef is one image reference in a page.
type ImageRef struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	HasAlt bool   `json:"has_alt"`
	Tag    string `json:"tag"` // exact source text of the tag, used to build patches
}

// SEOArtifacts lists the repository-level SEO files already present.
type SEOArtifacts struct {
	HasSitemap  bool     `json:"has_sitemap"`
	HasRobots   bool     `json:"has_robots"`
	SchemaTypes []string `json:"schema_types,omitempty"`
	SitemapPath string   `json:"sitemap_path,omitempty"`
	RobotsPath  string   `json:"robots_path,omitempty"`
}

// HasStructuredData reports whether any JSON-LD type was found.
func (a SEOArtifacts) HasStructuredData() bool {
	return len(a.SchemaTypes) > 0
}

// Zones classifies paths into those the pipeline may modify and those it must not.
type Zones struct {
	Safe   []string `json:"safe"`
	Danger []string `json:"danger"`
}

// IsDanger reports whether a repo-relative path falls inside a danger zone.
// Danger entries are glob patterns or directory prefixes ending in "/".
func (z Zones) IsDanger(p string) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	for _, pattern := range z.Danger {
		if MatchZone(pattern, p) {
			return true
		}
	}
	return false
}

// MatchZone matches a single zone pattern against a cleaned repo-relative path.
func MatchZone(pattern, p string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/") {
		dir := strings.TrimSuffix(pattern, "/")
		return p == dir || strings.HasPrefix(p, pattern) || strings.Contains(p, "/"+pattern)
	}
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	// A bare pattern also matches anything below it and any basename
	if strings.HasPrefix(p, pattern+"/") {
		return true
	}
	if ok, _ := path.Match(pattern, path.Base(p)); ok && !strings.Contains(pattern, "/") {
		return true
	}
	return false
}

// Page returns the page with the given path, if the profile has one.
func (p *CodebaseProfile) Page(filePath string) (PageInfo, bool) {
	for _, page := range p.Pages {
		if page.Path == filePath {
			return page, true
		}
	}
	return PageInfo{}, false
}
