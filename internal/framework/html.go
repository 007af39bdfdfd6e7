package framework

import (
	"path"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

// plainHTML is a hand-written static site: every .html file is a page.
type plainHTML struct{ base }

func newHTML() *plainHTML {
	return &plainHTML{base{
		fw: types.FrameworkHTML,
		dirs: types.DirectoryRoles{
			Pages:  ".",
			Assets: "assets",
			Public: ".",
		},
		pageExts:     []string{".html", ".htm"},
		layouts:      []string{"index.html"},
		sitemapFiles: []string{"sitemap.xml", "sitemap*.xml"},
		robotsFile:   "robots.txt",
		contentDir:   "blog",
	}}
}

func (h *plainHTML) Route(file string) (string, bool) {
	dir, name := path.Split(file)
	if strings.TrimSuffix(name, path.Ext(name)) == "index" {
		return "/" + strings.Trim(dir, "/"), false
	}
	return routeFromFile(file, ".")
}

func (h *plainHTML) ExtractMeta(file string, content []byte) PageMeta {
	return scanMarkup(content).PageMeta
}

func (h *plainHTML) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	m := scanMarkup(content)
	if p, ok := replaceInMarkup(m, field, value); ok {
		return p, nil
	}
	tag := htmlTagFor(field, value)
	if m.headTag != "" {
		return insertAfter(m.headTag, "\n    "+tag), nil
	}
	if m.htmlTag != "" {
		return insertAfter(m.htmlTag, "\n<head>\n    "+tag+"\n</head>"), nil
	}
	return Patch{}, ErrUnsupported
}

func (h *plainHTML) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	return h.staticSitemap("sitemap.xml", profile, siteURL)
}

func (h *plainHTML) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	return htmlSchemaPatch(content, siteURL, siteName, "")
}

func (h *plainHTML) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	p, err := h.contentPath(root, slug, contentDir, ".html")
	return p, FormatHTML, err
}
