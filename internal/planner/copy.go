package planner

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/steveyegge/seoloop/internal/detector"
	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/types"
)

// fallbackTitle builds a title without AI: the page heading, else words
// from the route, else the site name. An over-long current title is cut at a
// word boundary instead.
func fallbackTitle(page types.PageInfo, meta framework.PageMeta, siteName, current string) string {
	if current != "" {
		return clampWords(current, detector.MaxTitleLength)
	}

	base := firstNonEmpty(meta.H1, page.H1, routeWords(page.Route), siteName, "Home")
	if siteName != "" && !strings.Contains(strings.ToLower(base), strings.ToLower(siteName)) {
		if withSite := base + " | " + siteName; utf8.RuneCountInString(withSite) <= detector.MaxTitleLength {
			base = withSite
		}
	}
	return clampWords(base, detector.MaxTitleLength)
}

// fallbackDescription builds a description without AI.
func fallbackDescription(page types.PageInfo, meta framework.PageMeta, siteName, current string) string {
	if current != "" {
		return clampWords(current, detector.MaxDescriptionLength)
	}

	subject := firstNonEmpty(meta.H1, page.H1, meta.Title, page.Title, routeWords(page.Route))
	var text string
	switch {
	case subject != "" && siteName != "":
		text = fmt.Sprintf("%s on %s. Read the full page for details.", subject, siteName)
	case subject != "":
		text = fmt.Sprintf("%s. Read the full page for details.", subject)
	case siteName != "":
		text = fmt.Sprintf("Welcome to %s.", siteName)
	default:
		text = "Read the full page for details."
	}
	return clampWords(text, detector.MaxDescriptionLength)
}

// clampWords cuts s to at most max runes, at the last word boundary when
// there is one, without trailing separators.
func clampWords(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;:|-–", r)
	})
}

// cleanCopy strips whitespace runs and wrapping quotes from generated text.
func cleanCopy(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'“”`)
	return strings.TrimSpace(s)
}

// routeWords turns the last route segment into title-cased words.
func routeWords(route string) string {
	seg := path.Base(strings.Trim(route, "/"))
	if seg == "." || seg == "" {
		return ""
	}
	return titleWords(seg)
}

// routeSlug names a page's generated assets: "/" is "home",
// "/blog/hello" is "blog-hello".
func routeSlug(route string) string {
	r := strings.Trim(route, "/")
	if r == "" {
		return "home"
	}
	var b strings.Builder
	for _, c := range strings.ToLower(r) {
		switch {
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			b.WriteRune(c)
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		return "page"
	}
	return slug
}

// altFromSrc derives readable alt text from an image file name.
func altFromSrc(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	name := path.Base(src)
	name = strings.TrimSuffix(name, path.Ext(name))
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(name))
	if len(words) == 0 {
		return "Image"
	}
	text := strings.ToLower(strings.Join(words, " "))
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}

func titleWords(s string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
