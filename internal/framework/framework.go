// Package framework detects which site generator a repository uses and
// implements the framework-specific knowledge the pipeline needs: where
// pages live, how to read their metadata and how to patch it.
package framework

import (
	"errors"
	"fmt"

	"github.com/steveyegge/seoloop/internal/types"
)

// Field is a page metadata field a patch can set.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldOGImage     Field = "og:image"
)

var (
	// ErrUnsupported means the framework cannot perform the requested change
	// on this file; the caller skips the issue.
	ErrUnsupported = errors.New("not supported for this framework")

	// ErrNeedSiteURL means the change needs the site's public URL and none is configured.
	ErrNeedSiteURL = errors.New("site_url is not configured")
)

// ProfileError reports that a repository's structure could not be read
// (e.g. an unparseable package.json). Profiling degrades to FrameworkUnknown.
type ProfileError struct {
	Path string
	Err  error
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("cannot profile %s: %v", e.Path, e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

// PageMeta is what ExtractMeta learns from one page source file.
type PageMeta struct {
	Title       string
	Description string
	OGImage     string
	H1          string
	Images      []types.ImageRef
	WordCount   int
	SchemaTypes []string

	// Dynamic means the page computes its metadata at runtime
	// (generateMetadata, data-driven head), so literal values are not known.
	Dynamic bool
}

// Value returns the current value of field.
func (m PageMeta) Value(field Field) string {
	switch field {
	case FieldTitle:
		return m.Title
	case FieldDescription:
		return m.Description
	case FieldOGImage:
		return m.OGImage
	}
	return ""
}

// Patch is an exact find/replace edit of one file. Find must occur in the
// file; only its first occurrence is replaced.
type Patch struct {
	Find    string
	Replace string
}

// ContentFormat is the markup a generated article is written in.
type ContentFormat string

const (
	FormatMarkdown ContentFormat = "markdown"
	FormatHTML     ContentFormat = "html"
)

// Capabilities is the per-framework operation set. Adding a framework means
// adding one implementation and registering it.
type Capabilities interface {
	Framework() types.Framework

	// Dirs names the directory roles of this framework in the repository at root.
	Dirs(root string) types.DirectoryRoles

	// PageFiles lists repo-relative, slash-separated page source files.
	PageFiles(root string) ([]string, error)

	// LayoutFiles lists shared layout files (where site-wide tags belong).
	LayoutFiles(root string) ([]string, error)

	// Route maps a page file to its URL path and reports whether it is parameterised.
	Route(path string) (route string, dynamic bool)

	// ExtractMeta reads page metadata from a page's source.
	ExtractMeta(path string, content []byte) PageMeta

	// MetaPatch sets field to value in a page, replacing an existing value or inserting one.
	MetaPatch(path string, content []byte, field Field, value string) (Patch, error)

	// SitemapFix creates a sitemap listing the profile's static routes.
	SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error)

	// RobotsFix creates a robots.txt allowing crawling and pointing at the sitemap.
	RobotsFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error)

	// SchemaPatch adds WebSite JSON-LD to a layout.
	SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error)

	// ContentPath returns where a generated article with slug belongs
	// (relative to contentDir when set) and the markup it must be written in.
	ContentPath(root, slug, contentDir string) (string, ContentFormat, error)

	// Artifacts reports the SEO artifacts already present in the repository.
	Artifacts(root string) types.SEOArtifacts
}

var registry = map[types.Framework]Capabilities{}

func register(c Capabilities) {
	registry[c.Framework()] = c
}

func init() {
	register(newAstro())
	register(newNext())
	register(newNuxt())
	register(newSvelteKit())
	register(newGatsby())
	register(newHugo())
	register(newHTML())
}

// Lookup returns the capability set of fw. FrameworkUnknown has none.
func Lookup(fw types.Framework) (Capabilities, bool) {
	c, ok := registry[fw]
	return c, ok
}
