package framework

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

// next covers both routers. The app router is chosen per file from its
// location, so a repository migrating between routers works page by page.
type next struct{ base }

func newNext() *next {
	n := &next{base{
		fw: types.FrameworkNext,
		dirs: types.DirectoryRoles{
			Pages:      "app",
			Components: "components",
			Assets:     "public",
			Public:     "public",
		},
		pageExts: []string{".js", ".jsx", ".ts", ".tsx", ".mdx"},
		sitemapFiles: []string{
			"public/sitemap.xml", "public/sitemap*.xml",
			"app/sitemap.ts", "app/sitemap.js", "app/sitemap.xml",
			"src/app/sitemap.ts", "src/app/sitemap.js",
		},
		sitemapPkgs: []string{"next-sitemap"},
		robotsFile:  "public/robots.txt",
	}}
	n.listLayouts = n.LayoutFiles
	return n
}

var pageRoots = []string{"app", "src/app", "pages", "src/pages"}

func (n *next) Dirs(root string) types.DirectoryRoles {
	d := n.dirs
	for _, r := range pageRoots {
		if dirExists(filepath.Join(root, filepath.FromSlash(r))) {
			d.Pages = r
			break
		}
	}
	if dirExists(filepath.Join(root, "src", "components")) {
		d.Components = "src/components"
	}
	return d
}

func (n *next) PageFiles(root string) ([]string, error) {
	var out []string
	for _, r := range pageRoots {
		files, err := n.walk(root, r, n.pageExts...)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if isAppDir(f) {
				if strings.TrimSuffix(path.Base(f), path.Ext(f)) == "page" {
					out = append(out, f)
				}
				continue
			}
			if isPagesPage(f, r) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func isPagesPage(file, dir string) bool {
	rel := strings.TrimPrefix(file, dir+"/")
	base := path.Base(rel)
	if strings.HasPrefix(rel, "api/") || strings.HasPrefix(base, "_") {
		return false
	}
	return !strings.Contains(base, ".test.") && !strings.Contains(base, ".spec.")
}

func isAppDir(file string) bool {
	return strings.HasPrefix(file, "app/") || strings.HasPrefix(file, "src/app/")
}

func (n *next) LayoutFiles(root string) ([]string, error) {
	var out []string
	for _, candidate := range []string{
		"app/layout.tsx", "app/layout.jsx", "app/layout.js",
		"src/app/layout.tsx", "src/app/layout.jsx", "src/app/layout.js",
		"pages/_document.tsx", "pages/_document.jsx", "pages/_document.js",
		"src/pages/_document.tsx", "src/pages/_document.js",
	} {
		if fileExists(filepath.Join(root, filepath.FromSlash(candidate))) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (n *next) Route(file string) (string, bool) {
	for _, r := range pageRoots {
		if strings.HasPrefix(file, r+"/") {
			if isAppDir(file) {
				return routeFromFile(file, r, "page")
			}
			return routeFromFile(file, r)
		}
	}
	return routeFromFile(file, "")
}

var (
	metadataExport = regexp.MustCompile(`export\s+const\s+metadata(?:\s*:\s*Metadata)?\s*=\s*\{`)
	exportDefault  = regexp.MustCompile(`(?m)^export\s+default\s`)
	literalValue   = `\s*:\s*(?:"([^"]*)"|'([^']*)'|` + "`([^`$]*)`" + `)`
	metaTitle      = regexp.MustCompile(`\btitle` + literalValue)
	metaDesc       = regexp.MustCompile(`\bdescription` + literalValue)
	metaImage      = regexp.MustCompile(`\bimages\s*:\s*\[?\s*(?:\{\s*url\s*:\s*)?(?:"([^"]*)"|'([^']*)')`)
)

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// metadataBlock returns the object literal of `export const metadata`, from
// the opening brace to its matching close.
func metadataBlock(s string) (start int, block string, ok bool) {
	loc := metadataExport.FindStringIndex(s)
	if loc == nil {
		return 0, "", false
	}
	depth := 0
	for i := loc[1] - 1; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return loc[0], s[loc[0] : i+1], true
			}
		}
	}
	return 0, "", false
}

// cutObject removes the object literal assigned to key from block and
// returns both parts.
func cutObject(block, key string) (rest, object string) {
	i := strings.Index(block, key)
	if i < 0 {
		return block, ""
	}
	open := strings.Index(block[i:], "{")
	if open < 0 {
		return block[:i], block[i:]
	}
	depth := 0
	for j := i + open; j < len(block); j++ {
		switch block[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return block[:i] + block[j+1:], block[i : j+1]
			}
		}
	}
	return block[:i], block[i:]
}

func (n *next) ExtractMeta(file string, content []byte) PageMeta {
	if isMarkdown(file) {
		return markdownMeta(content)
	}
	s := string(content)
	m := scanMarkup(content)
	meta := m.PageMeta

	if !isAppDir(file) {
		return meta
	}
	if strings.Contains(s, "generateMetadata") {
		meta.Dynamic = true
	}
	if _, block, ok := metadataBlock(s); ok {
		block, og := cutObject(block, "openGraph")
		if g := metaTitle.FindStringSubmatch(block); g != nil {
			meta.Title = firstGroup(g)
		}
		if g := metaDesc.FindStringSubmatch(block); g != nil {
			meta.Description = firstGroup(g)
		}
		if g := metaImage.FindStringSubmatch(og); g != nil {
			meta.OGImage = firstGroup(g)
		}
	}
	return meta
}

// metadataKey is the key of field in a Next.js Metadata object.
func metadataKey(field Field) string {
	if field == FieldDescription {
		return "description"
	}
	return "title"
}

func (n *next) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	if isMarkdown(file) {
		return Patch{}, ErrUnsupported
	}
	s := string(content)
	if !isAppDir(file) {
		return n.pagesRouterPatch(s, field, value)
	}
	if strings.Contains(s, "generateMetadata") || strings.Contains(s, `"use client"`) || strings.Contains(s, `'use client'`) {
		return Patch{}, ErrUnsupported
	}

	if _, block, ok := metadataBlock(s); ok {
		if field == FieldOGImage {
			if strings.Contains(block, "openGraph") {
				return Patch{}, ErrUnsupported
			}
			open := metadataExport.FindString(block)
			return insertAfter(open, fmt.Sprintf("\n  openGraph: { images: [%s] },", jsString(value))), nil
		}
		key := metadataKey(field)
		meta := n.ExtractMeta(file, content)
		if old := meta.Value(field); old != "" {
			if p, ok := replaceLiteral(block, key, old, value); ok {
				return p, nil
			}
			return Patch{}, ErrUnsupported
		}
		open := metadataExport.FindString(block)
		return insertAfter(open, fmt.Sprintf("\n  %s: %s,", key, jsString(value))), nil
	}

	def := exportDefault.FindString(s)
	if def == "" {
		return Patch{}, ErrUnsupported
	}
	var entry string
	if field == FieldOGImage {
		entry = fmt.Sprintf("  openGraph: { images: [%s] },\n", jsString(value))
	} else {
		entry = fmt.Sprintf("  %s: %s,\n", metadataKey(field), jsString(value))
	}
	return insertBefore(def, "export const metadata = {\n"+entry+"};\n\n"), nil
}

// pagesRouterPatch edits the next/head block of a pages-router page.
func (n *next) pagesRouterPatch(s string, field Field, value string) (Patch, error) {
	m := scanMarkup([]byte(s))
	if p, ok := replaceInMarkup(m, field, value); ok {
		return p, nil
	}
	if strings.Contains(s, "<Head>") {
		return insertAfter("<Head>", "\n        "+jsxTagFor(field, value)), nil
	}
	return Patch{}, ErrUnsupported
}

func (n *next) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	if profile.Variant != "app-router" {
		return n.staticSitemap("public/sitemap.xml", profile, siteURL)
	}
	site, err := normalizeSite(siteURL)
	if err != nil {
		return types.Fix{}, err
	}
	appDir := "app"
	if strings.HasPrefix(profile.Dirs.Pages, "src/") {
		appDir = "src/app"
	}
	routes := StaticRoutes(profile)
	var b strings.Builder
	b.WriteString("import type { MetadataRoute } from \"next\";\n\n")
	b.WriteString("export default function sitemap(): MetadataRoute.Sitemap {\n")
	b.WriteString("  return [\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "    { url: %s, lastModified: new Date() },\n", jsString(site+r))
	}
	b.WriteString("  ];\n}\n")
	return types.Fix{
		Action:      types.ActionCreate,
		Path:        appDir + "/sitemap.ts",
		Content:     []byte(b.String()),
		Description: fmt.Sprintf("add sitemap route with %d routes", len(routes)),
	}, nil
}

func (n *next) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	site, err := normalizeSite(siteURL)
	if err != nil {
		return Patch{}, err
	}
	m := scanMarkup(content)
	if m.bodyTag == "" {
		return Patch{}, ErrUnsupported
	}
	script := "\n        <script\n          type=\"application/ld+json\"\n" +
		"          dangerouslySetInnerHTML={{ __html: JSON.stringify(" + websiteJSON(site, siteName, "          ") + ") }}\n        />"
	return insertAfter(m.bodyTag, script), nil
}

func (n *next) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	p, err := n.contentPath(root, slug, contentDir, ".mdx")
	return p, FormatMarkdown, err
}
