package framework

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

// skipDirs are never walked for pages.
var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "vendor": true, "dist": true,
	".next": true, ".nuxt": true, ".output": true, ".svelte-kit": true,
	".astro": true, ".cache": true, "coverage": true,
}

// base holds what every framework implementation shares: directory roles,
// file walking, sitemap and robots generation and artifact detection.
type base struct {
	fw       types.Framework
	dirs     types.DirectoryRoles
	pageExts []string
	layouts  []string // candidate layout files or directories, repo-relative

	sitemapFiles []string // where an existing sitemap may live
	sitemapPkgs  []string // npm packages that generate one
	robotsFile   string   // where RobotsFix writes
	contentDir   string   // default article directory, empty when unsupported
	extraSkip    []string

	// listLayouts overrides LayoutFiles for artifact detection when the
	// embedding type lists layouts itself.
	listLayouts func(root string) ([]string, error)
}

func (b *base) Framework() types.Framework { return b.fw }

func (b *base) Dirs(string) types.DirectoryRoles { return b.dirs }

func (b *base) PageFiles(root string) ([]string, error) {
	return b.walk(root, b.dirs.Pages, b.pageExts...)
}

func (b *base) LayoutFiles(root string) ([]string, error) {
	var out []string
	for _, candidate := range b.layouts {
		full := filepath.Join(root, filepath.FromSlash(candidate))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			out = append(out, candidate)
			continue
		}
		files, err := b.walk(root, candidate, b.pageExts...)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// walk lists files under dir (repo-relative) with one of exts, sorted.
func (b *base) walk(root, dir string, exts ...string) ([]string, error) {
	start := filepath.Join(root, filepath.FromSlash(dir))
	if !dirExists(start) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != start && (skipDirs[name] || strings.HasPrefix(name, ".") || b.skip(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExt(d.Name(), exts) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

func (b *base) skip(name string) bool {
	for _, s := range b.extraSkip {
		if s == name {
			return true
		}
	}
	return false
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (b *base) RobotsFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	if b.robotsFile == "" {
		return types.Fix{}, ErrUnsupported
	}
	site, err := normalizeSite(siteURL)
	if err != nil {
		return types.Fix{}, err
	}
	return types.Fix{
		Action:      types.ActionCreate,
		Path:        b.robotsFile,
		Content:     robotsTxt(site),
		Description: "add robots.txt",
	}, nil
}

// staticSitemap creates an XML sitemap file at p.
func (b *base) staticSitemap(p string, profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	site, err := normalizeSite(siteURL)
	if err != nil {
		return types.Fix{}, err
	}
	data, err := sitemapXML(site, StaticRoutes(profile))
	if err != nil {
		return types.Fix{}, err
	}
	return types.Fix{
		Action:      types.ActionCreate,
		Path:        p,
		Content:     data,
		Description: fmt.Sprintf("add sitemap with %d routes", len(StaticRoutes(profile))),
	}, nil
}

func (b *base) Artifacts(root string) types.SEOArtifacts {
	var a types.SEOArtifacts
	for _, candidate := range b.sitemapFiles {
		if matches, _ := filepath.Glob(filepath.Join(root, filepath.FromSlash(candidate))); len(matches) > 0 {
			rel, _ := filepath.Rel(root, matches[0])
			a.HasSitemap = true
			a.SitemapPath = filepath.ToSlash(rel)
			break
		}
	}
	if !a.HasSitemap && len(b.sitemapPkgs) > 0 {
		if pkg, err := readPackageJSON(root); err == nil {
			for _, name := range b.sitemapPkgs {
				if _, ok := pkg.dep(name); ok {
					a.HasSitemap = true
					a.SitemapPath = "package.json:" + name
					break
				}
			}
		}
	}
	for _, candidate := range []string{b.robotsFile, "robots.txt", "public/robots.txt", "static/robots.txt", "app/robots.ts", "app/robots.js", "src/app/robots.ts"} {
		if candidate != "" && fileExists(filepath.Join(root, filepath.FromSlash(candidate))) {
			a.HasRobots = true
			a.RobotsPath = candidate
			break
		}
	}

	list := b.LayoutFiles
	if b.listLayouts != nil {
		list = b.listLayouts
	}
	layouts, _ := list(root)
	for _, l := range layouts {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(l)))
		if err != nil {
			continue
		}
		for _, t := range schemaTypes(data) {
			a.SchemaTypes = appendUnique(a.SchemaTypes, t)
		}
	}
	return a
}

func (b *base) contentPath(root, slug, contentDir, ext string) (string, error) {
	slug = strings.Trim(slug, "/")
	if slug == "" || strings.Contains(slug, "..") {
		return "", fmt.Errorf("invalid slug %q", slug)
	}
	dir := contentDir
	if dir == "" {
		dir = b.contentDir
	}
	if dir == "" {
		return "", ErrUnsupported
	}
	return path.Join(filepath.ToSlash(dir), slug+ext), nil
}

func readPackageJSON(root string) (packageJSON, error) {
	var pkg packageJSON
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return pkg, err
	}
	err = json.Unmarshal(data, &pkg)
	return pkg, err
}

// schemaTypes lists JSON-LD types declared in a source file. Blocks built
// in code (JSON.stringify, useHead) count as generic structured data.
func schemaTypes(content []byte) []string {
	found := scanMarkup(content).SchemaTypes
	if len(found) == 0 && strings.Contains(string(content), "application/ld+json") {
		found = []string{"JSON-LD"}
	}
	return found
}

// StaticRoutes returns the sorted, unique routes of non-dynamic pages.
func StaticRoutes(profile *types.CodebaseProfile) []string {
	seen := map[string]bool{}
	var routes []string
	for _, p := range profile.Pages {
		if p.Dynamic || p.Route == "" || seen[p.Route] {
			continue
		}
		seen[p.Route] = true
		routes = append(routes, p.Route)
	}
	sort.Strings(routes)
	return routes
}

func normalizeSite(siteURL string) (string, error) {
	site := strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if site == "" {
		return "", ErrNeedSiteURL
	}
	return site, nil
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func sitemapXML(site string, routes []string) ([]byte, error) {
	set := urlset{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, r := range routes {
		set.URLs = append(set.URLs, sitemapURL{Loc: site + r})
	}
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render sitemap: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

func robotsTxt(site string) []byte {
	return []byte("User-agent: *\nAllow: /\n\nSitemap: " + site + "/sitemap.xml\n")
}

// websiteJSON renders the WebSite JSON-LD object.
func websiteJSON(site, name, indent string) string {
	if name == "" {
		name = strings.TrimPrefix(strings.TrimPrefix(site, "https://"), "http://")
	}
	doc := map[string]string{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     name,
		"url":      site,
	}
	// map keys marshal sorted, which keeps output stable
	out, _ := json.MarshalIndent(doc, indent, "  ")
	return string(out)
}

// htmlSchemaPatch inserts a JSON-LD script before </head>.
func htmlSchemaPatch(content []byte, siteURL, siteName, scriptAttrs string) (Patch, error) {
	site, err := normalizeSite(siteURL)
	if err != nil {
		return Patch{}, err
	}
	s := string(content)
	if !strings.Contains(s, "</head>") {
		return Patch{}, ErrUnsupported
	}
	script := `  <script type="application/ld+json"` + scriptAttrs + ">\n    " +
		websiteJSON(site, siteName, "    ") + "\n  </script>\n  "
	return insertBefore("</head>", script), nil
}

// routeFromFile derives a URL path from a page file under pagesDir.
// Index files map to their directory; "[x]" and ":x" segments are dynamic;
// "(group)" segments are dropped.
func routeFromFile(file, pagesDir string, drop ...string) (string, bool) {
	rel := strings.TrimPrefix(file, strings.TrimSuffix(pagesDir, "/")+"/")
	if pagesDir == "" || pagesDir == "." {
		rel = file
	}
	if ext := path.Ext(rel); ext != "" {
		rel = strings.TrimSuffix(rel, ext)
	}
	var parts []string
	dynamic := false
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "index" || isDropped(seg, drop) {
			continue
		}
		if strings.HasPrefix(seg, "(") && strings.HasSuffix(seg, ")") {
			continue
		}
		if strings.Contains(seg, "[") || strings.HasPrefix(seg, ":") {
			dynamic = true
		}
		parts = append(parts, seg)
	}
	return "/" + strings.Join(parts, "/"), dynamic
}

func isDropped(seg string, drop []string) bool {
	for _, d := range drop {
		if seg == d {
			return true
		}
	}
	return false
}

// prependPatch inserts text at the start of content by anchoring on its first line.
func prependPatch(content []byte, text string) (Patch, error) {
	s := string(content)
	if strings.TrimSpace(s) == "" {
		return Patch{}, ErrUnsupported
	}
	first := s
	if i := strings.Index(s, "\n"); i >= 0 {
		first = s[:i+1]
	}
	return insertBefore(first, text), nil
}

// jsxText escapes text for a JSX child position.
func jsxText(s string) string {
	return strings.NewReplacer("{", "&#123;", "}", "&#125;").Replace(attrEscape(s))
}

// jsxTagFor renders the head tag for field in JSX.
func jsxTagFor(field Field, value string) string {
	if field == FieldTitle {
		return "<title>" + jsxText(value) + "</title>"
	}
	return htmlTagFor(field, value)
}
