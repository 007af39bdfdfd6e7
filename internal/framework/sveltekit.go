package framework

import (
	"path"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

type svelteKit struct{ base }

func newSvelteKit() *svelteKit {
	return &svelteKit{base{
		fw: types.FrameworkSvelteKit,
		dirs: types.DirectoryRoles{
			Pages:      "src/routes",
			Components: "src/lib",
			Assets:     "src/lib/assets",
			Public:     "static",
		},
		pageExts:     []string{".svelte", ".md", ".svx"},
		layouts:      []string{"src/app.html"},
		sitemapFiles: []string{"static/sitemap.xml", "src/routes/sitemap.xml/+server.ts", "src/routes/sitemap.xml/+server.js"},
		robotsFile:   "static/robots.txt",
	}}
}

func (s *svelteKit) PageFiles(root string) ([]string, error) {
	files, err := s.walk(root, s.dirs.Pages, s.pageExts...)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if strings.HasPrefix(path.Base(f), "+page.") {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *svelteKit) Route(file string) (string, bool) {
	return routeFromFile(file, s.dirs.Pages, "+page")
}

func (s *svelteKit) ExtractMeta(file string, content []byte) PageMeta {
	if isMarkdown(file) || strings.HasSuffix(file, ".svx") {
		return markdownMeta(content)
	}
	meta := scanMarkup(content).PageMeta
	if strings.Contains(meta.Title, "{") || strings.Contains(meta.Description, "{") {
		meta.Dynamic = true
	}
	return meta
}

func (s *svelteKit) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	if isMarkdown(file) || strings.HasSuffix(file, ".svx") {
		return frontMatterPatch(content, markdownKey(field), value)
	}
	m := scanMarkup(content)
	if p, ok := replaceInMarkup(m, field, value); ok {
		return p, nil
	}
	if m.Value(field) != "" {
		return Patch{}, ErrUnsupported
	}
	tag := htmlTagFor(field, value)
	if m.svelteHead != "" {
		return insertAfter(m.svelteHead, "\n\t"+tag), nil
	}
	block := "<svelte:head>\n\t" + tag + "\n</svelte:head>\n"
	src := string(content)
	if i := strings.Index(src, "</script>"); i >= 0 {
		return insertAfter("</script>", "\n\n"+strings.TrimSuffix(block, "\n")), nil
	}
	return prependPatch(content, block+"\n")
}

func (s *svelteKit) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	return s.staticSitemap("static/sitemap.xml", profile, siteURL)
}

func (s *svelteKit) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	return htmlSchemaPatch(content, siteURL, siteName, "")
}

func (s *svelteKit) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	p, err := s.contentPath(root, slug, contentDir, ".md")
	return p, FormatMarkdown, err
}
