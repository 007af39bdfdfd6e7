package content

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/steveyegge/seoloop/internal/types"
	"gopkg.in/yaml.v3"
)

// Document is a rendered-ready article.
type Document struct {
	Title       string
	Description string
	Date        time.Time
	Tags        []string
	Image       string // site-relative cover URL, optional
	BodyHTML    string // sanitized
}

var (
	policy = articlePolicy()

	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// articlePolicy allows the text markup articles are written in. Images,
// scripts, styles and h1 are dropped.
func articlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowElements(
		"h2", "h3", "h4", "p", "br", "hr",
		"ul", "ol", "li", "blockquote", "pre", "code",
		"strong", "em", "b", "i",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	return p
}

// Sanitize strips everything but article markup from generated HTML.
// Top-level headings are demoted since the page title is the h1.
func Sanitize(html string) (string, error) {
	html = strings.NewReplacer("<h1", "<h2", "</h1>", "</h2>", "<H1", "<h2", "</H1>", "</h2>").Replace(html)
	clean := strings.TrimSpace(policy.Sanitize(html))
	if clean == "" {
		return "", fmt.Errorf("article body is empty after sanitizing")
	}
	return clean, nil
}

type frontMatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date,omitempty"`
	PubDate     string   `yaml:"pubDate,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Image       string   `yaml:"image,omitempty"`
}

// RenderMarkdown renders doc as Markdown with YAML front matter. Astro
// content collections read pubDate; the other generators read date.
func RenderMarkdown(doc Document, fw types.Framework) ([]byte, error) {
	body, err := mdConverter.ConvertString(doc.BodyHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to convert article to markdown: %w", err)
	}

	fm := frontMatter{
		Title:       doc.Title,
		Description: doc.Description,
		Tags:        doc.Tags,
		Image:       doc.Image,
	}
	day := doc.Date.Format("2006-01-02")
	if fw == types.FrameworkAstro {
		fm.PubDate = day
	} else {
		fm.Date = day
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to render front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(body))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

var pageTemplate = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <meta name="description" content="{{.Description}}" />
{{- if .Image}}
  <meta property="og:image" content="{{.Image}}" />
{{- end}}
</head>
<body>
  <article>
    <h1>{{.Title}}</h1>
    <time datetime="{{.Day}}">{{.Day}}</time>
{{- if .Image}}
    <img src="{{.Image}}" alt="{{.Title}}" />
{{- end}}
    {{.Body}}
  </article>
</body>
</html>
`))

// RenderHTML renders doc as a standalone HTML page.
func RenderHTML(doc Document) []byte {
	var buf bytes.Buffer
	// The template and its inputs are fixed; Execute only fails on writer errors
	_ = pageTemplate.Execute(&buf, struct {
		Title, Description, Image, Day string
		Body                           template.HTML
	}{
		Title:       doc.Title,
		Description: doc.Description,
		Image:       doc.Image,
		Day:         doc.Date.Format("2006-01-02"),
		Body:        template.HTML(doc.BodyHTML),
	})
	return buf.Bytes()
}

// Slugify lowercases s and joins its words with hyphens, keeping at most
// 60 characters.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		cut := 60
		for cut > 0 && !utf8.RuneStart(slug[cut]) {
			cut--
		}
		slug = slug[:cut]
		if i := strings.LastIndexByte(slug, '-'); i > 30 {
			slug = slug[:i]
		}
		slug = strings.Trim(slug, "-")
	}
	return slug
}
