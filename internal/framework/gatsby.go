package framework

import (
	"regexp"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

type gatsby struct{ base }

func newGatsby() *gatsby {
	return &gatsby{base{
		fw: types.FrameworkGatsby,
		dirs: types.DirectoryRoles{
			Pages:      "src/pages",
			Components: "src/components",
			Assets:     "src/images",
			Content:    "content",
			Public:     "static",
		},
		pageExts:     []string{".js", ".jsx", ".ts", ".tsx"},
		sitemapFiles: []string{"static/sitemap.xml", "static/sitemap*.xml"},
		sitemapPkgs:  []string{"gatsby-plugin-sitemap", "gatsby-plugin-advanced-sitemap"},
		robotsFile:   "static/robots.txt",
		contentDir:   "content/blog",
	}}
}

var headExport = regexp.MustCompile(`export\s+(?:const\s+Head\b|function\s+Head\b)`)

func (g *gatsby) Route(file string) (string, bool) {
	route, dynamic := routeFromFile(file, g.dirs.Pages)
	// File System Route API: {Model.field}.js
	return route, dynamic || strings.Contains(file, "{")
}

func (g *gatsby) ExtractMeta(file string, content []byte) PageMeta {
	meta := scanMarkup(content).PageMeta
	if headExport.Match(content) && meta.Title == "" && strings.Contains(string(content), "<Seo") {
		// Head delegates to an SEO component; its props are data driven
		meta.Dynamic = true
	}
	return meta
}

func (g *gatsby) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	s := string(content)
	m := scanMarkup(content)
	if p, ok := replaceInMarkup(m, field, value); ok {
		return p, nil
	}
	if m.Value(field) != "" {
		return Patch{}, ErrUnsupported
	}
	tag := jsxTagFor(field, value)

	if loc := headExport.FindStringIndex(s); loc != nil {
		frag := strings.Index(s[loc[0]:], "<>")
		if frag < 0 {
			return Patch{}, ErrUnsupported
		}
		anchor := s[loc[0] : loc[0]+frag+2]
		return insertAfter(anchor, "\n    "+tag), nil
	}

	def := exportDefault.FindString(s)
	if def == "" {
		return Patch{}, ErrUnsupported
	}
	return insertBefore(def, "export const Head = () => (\n  <>\n    "+tag+"\n  </>\n)\n\n"), nil
}

func (g *gatsby) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	return g.staticSitemap("static/sitemap.xml", profile, siteURL)
}

func (g *gatsby) SchemaPatch(string, []byte, string, string) (Patch, error) {
	// site-wide head tags live in gatsby-ssr onRenderBody
	return Patch{}, ErrUnsupported
}

func (g *gatsby) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	p, err := g.contentPath(root, slug+"/index", contentDir, ".md")
	return p, FormatMarkdown, err
}
