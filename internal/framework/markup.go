package framework

import (
	"bytes"
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/steveyegge/seoloop/internal/types"
	nethtml "golang.org/x/net/html"
)

// markup is the result of tokenizing an HTML-like source file (HTML, Astro,
// Svelte, Vue templates and JSX are all close enough for the tokenizer).
// The raw fields hold exact source text so patches can target it.
type markup struct {
	PageMeta

	titleRaw   string           // "<title>...</title>" as written
	metaRaw    map[Field]string // the meta tag carrying a field
	htmlTag    string           // raw <html ...> start tag
	headTag    string           // raw <head ...> start tag
	hasHeadEnd bool
	bodyTag    string // raw <body ...> start tag
	svelteHead string // raw <svelte:head> start tag

	// component is the first capitalized element wrapping the page
	// (e.g. <Layout title="...">); componentAttrs are its attributes.
	component      string
	componentAttrs map[string]string
}

// skipText marks elements whose text is not page copy.
var skipText = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
	"svelte:head": true, "noscript": true, "code": true, "pre": true,
}

func scanMarkup(content []byte) *markup {
	m := &markup{metaRaw: make(map[Field]string)}
	z := nethtml.NewTokenizer(bytes.NewReader(content))

	var (
		skipDepth  int
		inTitle    bool
		titleParts []string
		inH1       bool
		h1Parts    []string
		inJSONLD   bool
		words      int
	)

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		raw := string(z.Raw())

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			nameBytes, hasAttr := z.TagName()
			name := string(nameBytes)
			attrs := map[string]string{}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}

			switch name {
			case "html":
				m.htmlTag = raw
			case "head":
				if m.headTag == "" {
					m.headTag = raw
				}
			case "body":
				m.bodyTag = raw
			case "svelte:head":
				m.svelteHead = raw
			case "title":
				if m.titleRaw == "" && tt == nethtml.StartTagToken {
					inTitle = true
					m.titleRaw = raw
				}
			case "meta":
				m.readMeta(attrs, raw)
			case "h1":
				if m.H1 == "" && tt == nethtml.StartTagToken {
					inH1 = true
				}
			case "img", "image", "picture:img":
				m.Images = append(m.Images, imageRef(raw, attrs))
			case "script":
				if strings.EqualFold(attrs["type"], "application/ld+json") {
					inJSONLD = tt == nethtml.StartTagToken
					if tt == nethtml.SelfClosingTagToken || attrs["dangerouslysetinnerhtml"] != "" {
						m.SchemaTypes = appendUnique(m.SchemaTypes, "JSON-LD")
					}
				}
			}

			if m.component == "" && tt == nethtml.StartTagToken && len(raw) > 1 &&
				unicode.IsUpper(rune(raw[1])) && name != "image" && name != "head" {
				m.component = raw
				m.componentAttrs = attrs
			}
			if tt == nethtml.StartTagToken && skipText[name] {
				skipDepth++
			}

		case nethtml.EndTagToken:
			nameBytes, _ := z.TagName()
			name := string(nameBytes)
			switch name {
			case "title":
				if inTitle {
					inTitle = false
					m.titleRaw += raw
					m.Title = strings.TrimSpace(html.UnescapeString(strings.Join(titleParts, "")))
				}
			case "h1":
				if inH1 {
					inH1 = false
					m.H1 = collapseSpace(strings.Join(h1Parts, " "))
				}
			case "head":
				m.hasHeadEnd = true
			case "script":
				inJSONLD = false
			}
			if skipText[name] && skipDepth > 0 {
				skipDepth--
			}

		case nethtml.TextToken:
			if inTitle {
				m.titleRaw += raw
				titleParts = append(titleParts, raw)
				continue
			}
			if inJSONLD {
				for _, t := range jsonLDTypes(raw) {
					m.SchemaTypes = appendUnique(m.SchemaTypes, t)
				}
				continue
			}
			text := html.UnescapeString(raw)
			if inH1 {
				h1Parts = append(h1Parts, strings.TrimSpace(text))
			}
			if skipDepth == 0 {
				words += countCopyWords(text)
			}
		}
	}

	m.WordCount = words
	return m
}

func (m *markup) readMeta(attrs map[string]string, raw string) {
	key := strings.ToLower(attrs["name"])
	if key == "" {
		key = strings.ToLower(attrs["property"])
	}
	switch key {
	case "description":
		if m.Description == "" {
			m.Description = strings.TrimSpace(attrs["content"])
			m.metaRaw[FieldDescription] = raw
		}
	case "og:image":
		if m.OGImage == "" {
			m.OGImage = strings.TrimSpace(attrs["content"])
			m.metaRaw[FieldOGImage] = raw
		}
	}
}

func imageRef(raw string, attrs map[string]string) types.ImageRef {
	alt, hasAlt := attrs["alt"]
	return types.ImageRef{
		Src:    attrs["src"],
		Alt:    alt,
		HasAlt: hasAlt,
		Tag:    raw,
	}
}

// jsonLDTypes extracts @type values from a JSON-LD block. Blocks that are
// not literal JSON (template expressions) still count as structured data.
func jsonLDTypes(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return []string{"JSON-LD"}
	}
	var out []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch x := v.(type) {
		case []interface{}:
			for _, e := range x {
				walk(e)
			}
		case map[string]interface{}:
			switch t := x["@type"].(type) {
			case string:
				out = appendUnique(out, t)
			case []interface{}:
				for _, e := range t {
					if s, ok := e.(string); ok {
						out = appendUnique(out, s)
					}
				}
			}
			if g, ok := x["@graph"]; ok {
				walk(g)
			}
		}
	}
	walk(doc)
	if len(out) == 0 {
		out = []string{"JSON-LD"}
	}
	return out
}

var (
	exprPattern = regexp.MustCompile(`\{[^{}]*\}`)
	codeHints   = "=;(){}<>"
)

// countCopyWords counts human-readable words in a text token. Source code
// that leaks into text tokens (imports, JSX expressions) is not copy.
func countCopyWords(text string) int {
	text = exprPattern.ReplaceAllString(text, " ")
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsAny(line, codeHints) ||
			strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "export ") ||
			strings.HasPrefix(line, "//") {
			continue
		}
		for _, f := range strings.Fields(line) {
			if strings.IndexFunc(f, unicode.IsLetter) >= 0 {
				n++
			}
		}
	}
	return n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

// attrEscape escapes a value for a double-quoted HTML attribute.
func attrEscape(s string) string {
	return html.EscapeString(s)
}

// jsString quotes s as a double-quoted JavaScript string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// AltPatch returns the edit that adds alt text to an image reference. It
// handles HTML/JSX tags and Markdown images.
func AltPatch(ref types.ImageRef, alt string) (Patch, error) {
	tag := ref.Tag
	if tag == "" {
		return Patch{}, ErrUnsupported
	}
	if strings.HasPrefix(tag, "![") {
		// ![](src) or ![ ](src)
		end := strings.Index(tag, "](")
		if end < 0 {
			return Patch{}, ErrUnsupported
		}
		return Patch{Find: tag, Replace: "![" + mdEscape(alt) + tag[end:]}, nil
	}
	if !strings.HasPrefix(tag, "<") {
		return Patch{}, ErrUnsupported
	}
	// Insert right after the element name
	i := 1
	for i < len(tag) && !unicode.IsSpace(rune(tag[i])) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	return Patch{Find: tag, Replace: tag[:i] + ` alt="` + attrEscape(alt) + `"` + tag[i:]}, nil
}

func mdEscape(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

// insertAfter builds a patch inserting text right after anchor.
func insertAfter(anchor, text string) Patch {
	return Patch{Find: anchor, Replace: anchor + text}
}

// insertBefore builds a patch inserting text right before anchor.
func insertBefore(anchor, text string) Patch {
	return Patch{Find: anchor, Replace: text + anchor}
}

// htmlTagFor renders the head tag that carries field.
func htmlTagFor(field Field, value string) string {
	switch field {
	case FieldTitle:
		return "<title>" + html.EscapeString(value) + "</title>"
	case FieldDescription:
		return `<meta name="description" content="` + attrEscape(value) + `" />`
	case FieldOGImage:
		return `<meta property="og:image" content="` + attrEscape(value) + `" />`
	}
	return ""
}

// replaceInMarkup rewrites an existing value using the raw source captured
// by scanMarkup. ok is false when the value is not written literally.
func replaceInMarkup(m *markup, field Field, value string) (Patch, bool) {
	switch field {
	case FieldTitle:
		if m.titleRaw != "" && !strings.Contains(m.titleRaw, "{") {
			end := strings.Index(m.titleRaw, ">")
			closeIdx := strings.LastIndex(m.titleRaw, "</")
			if end >= 0 && closeIdx > end {
				return Patch{Find: m.titleRaw, Replace: m.titleRaw[:end+1] + html.EscapeString(value) + m.titleRaw[closeIdx:]}, true
			}
		}
	case FieldDescription, FieldOGImage:
		if raw, ok := m.metaRaw[field]; ok {
			if p, ok := replaceAttr(raw, "content", value); ok {
				return p, true
			}
		}
	}
	return Patch{}, false
}

// replaceAttr rewrites one quoted attribute inside a raw tag.
func replaceAttr(rawTag, attr, value string) (Patch, bool) {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(attr) + `\s*=\s*("[^"]*"|'[^']*')`)
	loc := re.FindStringSubmatchIndex(rawTag)
	if loc == nil {
		return Patch{}, false
	}
	newTag := rawTag[:loc[2]] + `"` + attrEscape(value) + `"` + rawTag[loc[3]:]
	return Patch{Find: rawTag, Replace: newTag}, true
}

// replaceLiteral rewrites key/value pairs written as JS object properties,
// JSX/HTML attributes or front matter (title: "x", title="x", title = 'x').
func replaceLiteral(content, key, old, value string) (Patch, bool) {
	if old == "" {
		return Patch{}, false
	}
	quoted := regexp.QuoteMeta(old)
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `(\s*[:=]\s*)(` +
		`"` + quoted + `"|'` + quoted + `'|` + "`" + quoted + "`" + `)`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return Patch{}, false
	}
	find := content[loc[0]:loc[1]]
	sep := content[loc[2]:loc[3]]
	return Patch{Find: find, Replace: key + sep + jsString(value)}, true
}
