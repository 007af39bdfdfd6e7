package framework

import (
	"fmt"
	"path"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

// hugo pages are Markdown files under content/ with YAML or TOML front matter.
type hugo struct{ base }

func newHugo() *hugo {
	return &hugo{base{
		fw: types.FrameworkHugo,
		dirs: types.DirectoryRoles{
			Pages:      "content",
			Components: "layouts/partials",
			Assets:     "assets",
			Content:    "content",
			Public:     "static",
		},
		pageExts: []string{".md", ".markdown"},
		layouts: []string{
			"layouts/_default/baseof.html",
			"layouts/partials/head.html",
			"layouts/partials/head/head.html",
		},
		robotsFile: "static/robots.txt",
		contentDir: "content/posts",
		extraSkip:  []string{"public", "resources"},
	}}
}

func (h *hugo) Route(file string) (string, bool) {
	dir, name := path.Split(file)
	switch strings.TrimSuffix(name, path.Ext(name)) {
	case "_index", "index":
		file = strings.TrimSuffix(dir, "/") + ".md"
	}
	route, _ := routeFromFile(file, h.dirs.Pages)
	if file == h.dirs.Pages+".md" {
		route = "/"
	}
	return route, false
}

func (h *hugo) ExtractMeta(file string, content []byte) PageMeta {
	return markdownMeta(content, "featured_image")
}

func (h *hugo) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	if field != FieldOGImage {
		return frontMatterPatch(content, markdownKey(field), value)
	}
	fm, ok := splitFrontMatter(content)
	if !ok {
		return prependPatch(content, fmt.Sprintf("---\nimages: [%s]\n---\n\n", jsString(value)))
	}
	if fm.err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrUnsupported, fm.err)
	}
	if _, exists := fm.fields["images"]; exists {
		return Patch{}, ErrUnsupported
	}
	sep := ": "
	if fm.delim == "+++" {
		sep = " = "
	}
	return insertAfter(fm.open, "images"+sep+"["+jsString(value)+"]\n"), nil
}

// SitemapFix is unsupported: Hugo renders sitemap.xml itself.
func (h *hugo) SitemapFix(*types.CodebaseProfile, string) (types.Fix, error) {
	return types.Fix{}, ErrUnsupported
}

func (h *hugo) Artifacts(root string) types.SEOArtifacts {
	a := h.base.Artifacts(root)
	if !a.HasSitemap {
		a.HasSitemap = true
		a.SitemapPath = "(built-in)"
	}
	return a
}

func (h *hugo) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	if strings.Contains(string(content), "</head>") {
		return htmlSchemaPatch(content, siteURL, siteName, "")
	}
	if path.Base(layoutPath) != "head.html" {
		return Patch{}, ErrUnsupported
	}
	site, err := normalizeSite(siteURL)
	if err != nil {
		return Patch{}, err
	}
	s := string(content)
	if strings.TrimSpace(s) == "" {
		return Patch{}, ErrUnsupported
	}
	script := "\n<script type=\"application/ld+json\">\n" + websiteJSON(site, siteName, "") + "\n</script>\n"
	return Patch{Find: s, Replace: strings.TrimRight(s, "\n") + script}, nil
}

func (h *hugo) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	p, err := h.contentPath(root, slug, contentDir, ".md")
	return p, FormatMarkdown, err
}
