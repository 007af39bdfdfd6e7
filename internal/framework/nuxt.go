package framework

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

type nuxt struct{ base }

func newNuxt() *nuxt {
	return &nuxt{base{
		fw: types.FrameworkNuxt,
		dirs: types.DirectoryRoles{
			Pages:      "pages",
			Components: "components",
			Assets:     "assets",
			Content:    "content",
			Public:     "public",
		},
		pageExts:     []string{".vue"},
		layouts:      []string{"app.vue", "layouts/default.vue"},
		sitemapFiles: []string{"public/sitemap.xml", "public/sitemap*.xml"},
		sitemapPkgs:  []string{"@nuxtjs/sitemap", "nuxt-simple-sitemap"},
		robotsFile:   "public/robots.txt",
		contentDir:   "content/blog",
	}}
}

func (n *nuxt) Route(file string) (string, bool) {
	route, dynamic := routeFromFile(file, n.dirs.Pages)
	return route, dynamic || strings.Contains(file, "/_")
}

var (
	seoMetaCall = regexp.MustCompile(`useSeoMeta\(\s*\{`)
	useHeadCall = regexp.MustCompile(`useHead\(\s*\{`)
	scriptSetup = regexp.MustCompile(`<script\b[^>]*\bsetup\b[^>]*>`)
	seoKeys     = map[Field]string{FieldTitle: "title", FieldDescription: "description", FieldOGImage: "ogImage"}
)

// seoMetaValue reads a literal value of key from useSeoMeta/useHead.
func seoMetaValue(s, key string) (string, bool) {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + literalValue)
	if g := re.FindStringSubmatch(s); g != nil {
		return firstGroup(g), true
	}
	// present but computed
	return "", regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `\s*:`).MatchString(s)
}

func (n *nuxt) ExtractMeta(file string, content []byte) PageMeta {
	s := string(content)
	meta := scanMarkup(content).PageMeta
	for _, call := range []*regexp.Regexp{seoMetaCall, useHeadCall} {
		loc := call.FindStringIndex(s)
		if loc == nil {
			continue
		}
		block := s[loc[0]:]
		for field, key := range seoKeys {
			v, present := seoMetaValue(block, key)
			if present && v == "" {
				meta.Dynamic = true
			}
			if v == "" {
				continue
			}
			switch field {
			case FieldTitle:
				meta.Title = v
			case FieldDescription:
				meta.Description = v
			case FieldOGImage:
				meta.OGImage = v
			}
		}
	}
	return meta
}

func (n *nuxt) MetaPatch(file string, content []byte, field Field, value string) (Patch, error) {
	s := string(content)
	key := seoKeys[field]
	entry := fmt.Sprintf("\n  %s: %s,", key, jsString(value))

	if loc := seoMetaCall.FindStringIndex(s); loc != nil {
		block := s[loc[0]:]
		if old, present := seoMetaValue(block, key); present {
			if p, ok := replaceLiteral(block, key, old, value); ok && old != "" {
				return p, nil
			}
			return Patch{}, ErrUnsupported
		}
		return insertAfter(s[loc[0]:loc[1]], entry), nil
	}

	call := "\nuseSeoMeta({" + entry + "\n})\n"
	if tag := scriptSetup.FindString(s); tag != "" {
		return insertAfter(tag, call), nil
	}
	if strings.Contains(s, "<template") {
		return insertBefore("<template", "<script setup>"+call+"</script>\n\n"), nil
	}
	return Patch{}, ErrUnsupported
}

func (n *nuxt) SitemapFix(profile *types.CodebaseProfile, siteURL string) (types.Fix, error) {
	return n.staticSitemap("public/sitemap.xml", profile, siteURL)
}

func (n *nuxt) SchemaPatch(layoutPath string, content []byte, siteURL, siteName string) (Patch, error) {
	site, err := normalizeSite(siteURL)
	if err != nil {
		return Patch{}, err
	}
	s := string(content)
	head := "\nuseHead({\n  script: [\n    {\n      type: \"application/ld+json\",\n" +
		"      innerHTML: JSON.stringify(" + websiteJSON(site, siteName, "      ") + "),\n    },\n  ],\n})\n"
	if tag := scriptSetup.FindString(s); tag != "" {
		return insertAfter(tag, head), nil
	}
	if strings.Contains(s, "<template") {
		return insertBefore("<template", "<script setup>"+head+"</script>\n\n"), nil
	}
	return Patch{}, ErrUnsupported
}

func (n *nuxt) ContentPath(root, slug, contentDir string) (string, ContentFormat, error) {
	if contentDir == "" && !dirExists(filepath.Join(root, "content")) {
		return "", "", ErrUnsupported
	}
	p, err := n.contentPath(root, slug, contentDir, ".md")
	return p, FormatMarkdown, err
}
