package framework

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

type astro struct{ base }

func newAstro() *astro {
	return &astro{base{
		fw: types.FrameworkAstro,
		dirs: types.DirectoryRoles{
			Pages:      "src/pages",
			Components: "src/components",
			Assets:     "src/assets",
			Content:    "src/content",
			Public:     "public",
		},
		pageExts:     []string{".astro", ".md", ".mdx", ".html"},
		layouts:      []string{"src/layouts"},
		sitemapFiles: []string{"public/sitemap.xml", "public/sitemap*.xml"},
		sitemapPkgs:  []string{"@astrojs/sitemap"},
		robotsFile:   "public/robots.txt",
		contentDir:   "src/pages/blog",
	}}
}

// componentProps are the <Layout> props Astro sites conventionally pass page metadata through.
var componentProps = map[Field][]string{
	FieldTitle:       {"title"},
	FieldDescription: {"description"},
	FieldOGImage:     {"image", "ogImage", "ogimage"},
}

func (a *astro) Route(file string) (string, bool) {
	return routeFromFile(file, a.dirs.Pages)
}

// splitAstro separates the component script fence from the template.
func splitAstro(content []byte) (script, template string) {
	s := string(content)
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", s
	}
	rest := trimmed[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", s
	}
	script = rest[:end]
	template = rest[end+4:]
	return script, template
}

func (a *astro) ExtractMeta(file string, content []byte) PageMeta {
	if isMarkdown(file) {
		return markdownMeta(content)
	}
	_, tmpl := splitAstro(content)
	m := scanMarkup([]byte(tmpl))
	meta := m.PageMeta
	if m.component != "" {
		fillFromProps(&meta, m.componentAttrs)
	}
	return meta
}

// fillFromProps copies literal metadata props of the wrapping layout
// component into meta. Expression props ({title}) are not literal values.
func fillFromProps(meta *PageMeta, attrs map[string]string) {
	get := func(field Field) string {
		for _, key := range componentProps[field] {
			if v, ok := attrs[strings.ToLower(key)]; ok {
				if strings.HasPrefix(v, "{") {
					meta.Dynamic = true
					return ""
				}
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	if meta.Title == "" {
		meta.Title = get(FieldTitle)
	}
	if meta.Description == "" {
		meta.Description = get(FieldDescription)
	}
	if meta.OGImage == "" {
		meta.OGImage = get(FieldOGImage)
	}
}

func (a *astro) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	if isMarkdown(file) {
		return frontMatterPatch(content, markdownKey(field), value)
	}
	_, tmpl := splitAstro(content)
	m := scanMarkup([]byte(tmpl))
	if p, ok := replaceInMarkup(m, field, value); ok {
		return p, nil
	}
	if m.component != "" {
		for _, key := range componentProps[field] {
			if _, ok := m.componentAttrs[strings.ToLower(key)]; ok {
				if p, ok := replaceAttr(m.component, key, value); ok {
					return p, nil
				}
				return Patch{}, ErrUnsupported
			}
		}
	}
	if m.headTag != "" {
		return insertAfter(m.headTag, "\n    "+htmlTagFor(field, value)), nil
	}
	if m.component != "" {
		// <Layout ...> takes the value as a prop
		name := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(m.component, "<"), ">"))[0]
		anchor := "<" + name
		return Patch{
			Find:    m.component,
			Replace: strings.Replace(m.component, anchor, fmt.Sprintf(`%s %s="%s"`, anchor, componentProps[field][0], attrEscape(value)), 1),
		}, nil
	}
	return Patch{}, ErrUnsupported
}

func (a *astro) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	return a.staticSitemap("public/sitemap.xml", profile, siteURL)
}

func (a *astro) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	return htmlSchemaPatch(content, siteURL, siteName, " is:inline")
}

func (a *astro) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	if contentDir == "" && dirExists(filepath.Join(root, "src", "content", "blog")) {
		contentDir = "src/content/blog"
	}
	p, err := a.contentPath(root, slug, contentDir, ".md")
	return p, FormatMarkdown, err
}

func isMarkdown(file string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	return ext == ".md" || ext == ".mdx" || ext == ".markdown"
}

// markdownKey is the front matter key holding field.
func markdownKey(field Field) string {
	switch field {
	case FieldTitle:
		return "title"
	case FieldDescription:
		return "description"
	}
	return "image"
}
