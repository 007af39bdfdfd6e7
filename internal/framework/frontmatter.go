package framework

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/steveyegge/seoloop/internal/types"
	"gopkg.in/yaml.v3"
)

// frontMatter is the metadata block at the top of Markdown, MDX and Astro
// files: YAML between "---" lines or TOML between "+++" lines.
type frontMatter struct {
	delim  string // "---" or "+++"
	open   string // opening delimiter line including its newline
	block  string // text between the delimiters
	body   string // everything after the closing delimiter
	fields map[string]interface{}

	// err is set when the block does not parse; fields is then empty and
	// says nothing about which keys exist.
	err error
}

// splitFrontMatter separates the front matter from the rest of the file.
// ok is false when the file has none.
func splitFrontMatter(content []byte) (*frontMatter, bool) {
	s := string(content)
	s = strings.TrimPrefix(s, "\ufeff")
	var delim string
	switch {
	case strings.HasPrefix(s, "---\n"), strings.HasPrefix(s, "---\r\n"):
		delim = "---"
	case strings.HasPrefix(s, "+++\n"), strings.HasPrefix(s, "+++\r\n"):
		delim = "+++"
	default:
		return nil, false
	}

	nl := strings.Index(s, "\n")
	open := s[:nl+1]
	rest := s[nl+1:]

	end := -1
	for off := 0; off <= len(rest); {
		line := rest[off:]
		if i := strings.Index(line, "\n"); i >= 0 {
			line = line[:i]
		}
		if strings.TrimRight(line, "\r ") == delim {
			end = off
			break
		}
		next := strings.Index(rest[off:], "\n")
		if next < 0 {
			break
		}
		off += next + 1
	}
	if end < 0 {
		return nil, false
	}

	fm := &frontMatter{delim: delim, open: open, block: rest[:end]}
	body := rest[end+len(delim):]
	fm.body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")

	fields := map[string]interface{}{}
	var err error
	if delim == "---" {
		err = yaml.Unmarshal([]byte(fm.block), &fields)
	} else {
		err = toml.Unmarshal([]byte(fm.block), &fields)
	}
	if err != nil {
		fm.err = fmt.Errorf("front matter: %w", err)
		fields = map[string]interface{}{}
	}
	fm.fields = fields
	return fm, true
}

func (fm *frontMatter) str(key string) string {
	if fm == nil {
		return ""
	}
	switch v := fm.fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// line renders one key/value line in the block's syntax.
func (fm *frontMatter) line(key, value string) string {
	if fm != nil && fm.delim == "+++" {
		return fmt.Sprintf("%s = %s\n", key, jsString(value))
	}
	return fmt.Sprintf("%s: %s\n", key, jsString(value))
}

// frontMatterPatch sets key to value in the front matter of content,
// creating the block when the file has none.
func frontMatterPatch(content []byte, key, value string) (Patch, error) {
	fm, ok := splitFrontMatter(content)
	if !ok {
		s := string(content)
		if strings.TrimSpace(s) == "" {
			return Patch{}, ErrUnsupported
		}
		first := s
		if i := strings.Index(s, "\n"); i >= 0 {
			first = s[:i+1]
		}
		return insertBefore(first, "---\n"+(&frontMatter{delim: "---"}).line(key, value)+"---\n\n"), nil
	}
	if fm.err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrUnsupported, fm.err)
	}

	if old := fm.str(key); old != "" {
		if p, ok := replaceFrontMatterValue(fm, key, old, value); ok {
			return p, nil
		}
		return Patch{}, ErrUnsupported
	}
	if _, exists := fm.fields[key]; exists {
		// Present but not a plain string (list, table); leave it alone
		return Patch{}, ErrUnsupported
	}

	// The opening delimiter is the first occurrence in the file
	return insertAfter(fm.open, fm.line(key, value)), nil
}

func replaceFrontMatterValue(fm *frontMatter, key, old, value string) (Patch, bool) {
	if p, ok := replaceLiteral(fm.block, key, old, value); ok {
		return p, true
	}
	// Unquoted YAML scalar: key: value
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `:[ \t]*` + regexp.QuoteMeta(old) + `[ \t]*$`)
	if loc := re.FindStringIndex(fm.block); loc != nil {
		return Patch{Find: fm.block[loc[0]:loc[1]], Replace: strings.TrimSuffix(fm.line(key, value), "\n")}, true
	}
	return Patch{}, false
}

var (
	mdImage   = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	mdHeading = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	mdFence   = regexp.MustCompile("(?s)```.*?```")
)

// markdownMeta reads metadata from a Markdown/MDX page: front matter
// fields plus the body's first heading, images and word count.
func markdownMeta(content []byte, imageKeys ...string) PageMeta {
	fm, _ := splitFrontMatter(content)
	body := string(content)
	if fm != nil {
		body = fm.body
	}

	meta := PageMeta{
		Title:       fm.str("title"),
		Description: fm.str("description"),
	}
	if fm != nil && fm.err != nil {
		// Whatever the block says cannot be read, so it is not judged
		meta.Dynamic = true
	}
	for _, key := range append([]string{"ogImage", "og_image", "image", "images", "cover"}, imageKeys...) {
		if v := fm.str(key); v != "" {
			meta.OGImage = v
			break
		}
	}

	prose := mdFence.ReplaceAllString(body, " ")
	if m := mdHeading.FindStringSubmatch(prose); m != nil {
		meta.H1 = strings.TrimSpace(m[1])
	}
	for _, m := range mdImage.FindAllStringSubmatch(prose, -1) {
		meta.Images = append(meta.Images, types.ImageRef{
			Src:    m[2],
			Alt:    m[1],
			HasAlt: strings.TrimSpace(m[1]) != "",
			Tag:    m[0],
		})
	}

	// Inline HTML in Markdown can still carry images and JSON-LD
	inline := scanMarkup([]byte(prose))
	meta.Images = append(meta.Images, inline.Images...)
	meta.SchemaTypes = inline.SchemaTypes

	meta.WordCount = markdownWords(prose)
	return meta
}

func markdownWords(s string) int {
	s = mdImage.ReplaceAllString(s, " ")
	n := 0
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, "#*_>-`[]()!|")
		if f != "" && strings.ContainsAny(strings.ToLower(f), "abcdefghijklmnopqrstuvwxyz0123456789") {
			n++
		}
	}
	return n
}
