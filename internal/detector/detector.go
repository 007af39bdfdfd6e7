// Package detector turns a codebase profile into classified SEO issues.
// Detection is a pure function of the profile: no I/O, deterministic output.
package detector

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/steveyegge/seoloop/internal/types"
)

const (
	// MaxTitleLength is where search engines start truncating titles
	MaxTitleLength = 60
	// MaxDescriptionLength is where snippets get truncated
	MaxDescriptionLength = 155
	// MinWordCount is the thin content threshold
	MinWordCount = 300
)

// Rule inspects a profile and reports issues of one kind.
type Rule struct {
	Name  string
	Check func(p *types.CodebaseProfile, pages []types.PageInfo) []types.Issue
}

// Rules run in this order; output order follows it.
var Rules = []Rule{
	{"page-meta", pageMetaRule},
	{"open-graph", ogImageRule},
	{"alt-text", altTextRule},
	{"thin-content", thinContentRule},
	{"repository-artifacts", artifactRule},
	{"duplicates", duplicateRule},
}

// Detect runs every rule against profile. Issues carry the profile's repo
// id and status open; ids depend only on (type, path).
func Detect(profile *types.CodebaseProfile) []types.Issue {
	if profile == nil {
		return nil
	}
	pages := append([]types.PageInfo(nil), profile.Pages...)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })

	var out []types.Issue
	for _, rule := range Rules {
		for _, issue := range rule.Check(profile, pages) {
			issue.RepoID = profile.RepoID
			out = append(out, issue)
		}
	}
	return out
}

// literalMeta reports whether a page's metadata can be judged from source.
func literalMeta(page types.PageInfo) bool {
	return !page.RuntimeMeta
}

func pageMetaRule(_ *types.CodebaseProfile, pages []types.PageInfo) []types.Issue {
	var out []types.Issue
	for _, page := range pages {
		if !literalMeta(page) {
			continue
		}
		fixable := !page.Dynamic
		switch n := utf8.RuneCountInString(page.Title); {
		case strings.TrimSpace(page.Title) == "":
			out = append(out, types.NewIssue(types.IssueMissingTitle, types.SeverityCritical, page.Path, fixable,
				"%s has no <title>", routeOrPath(page)))
		case n > MaxTitleLength:
			out = append(out, types.NewIssue(types.IssueTitleTooLong, types.SeverityWarning, page.Path, fixable,
				"title of %s is %d characters (max %d)", routeOrPath(page), n, MaxTitleLength))
		}
		switch n := utf8.RuneCountInString(page.Description); {
		case strings.TrimSpace(page.Description) == "":
			out = append(out, types.NewIssue(types.IssueMissingDescription, types.SeverityWarning, page.Path, fixable,
				"%s has no meta description", routeOrPath(page)))
		case n > MaxDescriptionLength:
			out = append(out, types.NewIssue(types.IssueDescriptionTooLong, types.SeverityInfo, page.Path, fixable,
				"meta description of %s is %d characters (max %d)", routeOrPath(page), n, MaxDescriptionLength))
		}
	}
	return out
}

func ogImageRule(_ *types.CodebaseProfile, pages []types.PageInfo) []types.Issue {
	var out []types.Issue
	for _, page := range pages {
		if !literalMeta(page) || strings.TrimSpace(page.OGImage) != "" {
			continue
		}
		out = append(out, types.NewIssue(types.IssueMissingOGImage, types.SeverityInfo, page.Path, !page.Dynamic,
			"%s has no og:image", routeOrPath(page)))
	}
	return out
}

func altTextRule(_ *types.CodebaseProfile, pages []types.PageInfo) []types.Issue {
	var out []types.Issue
	for _, page := range pages {
		var missing []string
		for _, img := range page.Images {
			if !img.HasAlt {
				missing = append(missing, img.Src)
			}
		}
		if len(missing) == 0 {
			continue
		}
		out = append(out, types.NewIssue(types.IssueMissingAltText, types.SeverityWarning, page.Path, true,
			"%d image(s) without alt text on %s: %s", len(missing), routeOrPath(page), strings.Join(missing, ", ")))
	}
	return out
}

func thinContentRule(_ *types.CodebaseProfile, pages []types.PageInfo) []types.Issue {
	var out []types.Issue
	for _, page := range pages {
		if page.Dynamic || page.WordCount >= MinWordCount {
			continue
		}
		out = append(out, types.NewIssue(types.IssueThinContent, types.SeverityInfo, page.Path, false,
			"%s has %d words (fewer than %d)", routeOrPath(page), page.WordCount, MinWordCount))
	}
	return out
}

func artifactRule(p *types.CodebaseProfile, _ []types.PageInfo) []types.Issue {
	var out []types.Issue
	if !p.Artifacts.HasSitemap {
		out = append(out, types.NewIssue(types.IssueMissingSitemap, types.SeverityCritical, "", true,
			"no sitemap found"))
	}
	if !p.Artifacts.HasRobots {
		out = append(out, types.NewIssue(types.IssueMissingRobots, types.SeverityWarning, "", true,
			"no robots.txt found"))
	}
	if !p.Artifacts.HasStructuredData() {
		out = append(out, types.NewIssue(types.IssueMissingStructuredData, types.SeverityInfo, "", true,
			"no JSON-LD structured data in layouts or pages"))
	}
	return out
}

// duplicateRule yields one issue per group of pages sharing a value.
func duplicateRule(_ *types.CodebaseProfile, pages []types.PageInfo) []types.Issue {
	var out []types.Issue
	out = append(out, duplicates(pages, types.IssueDuplicateTitle, types.SeverityWarning, "title",
		func(p types.PageInfo) string { return p.Title })...)
	out = append(out, duplicates(pages, types.IssueDuplicateDescription, types.SeverityInfo, "meta description",
		func(p types.PageInfo) string { return p.Description })...)
	return out
}

func duplicates(pages []types.PageInfo, t types.IssueType, sev types.Severity, label string, value func(types.PageInfo) string) []types.Issue {
	groups := map[string][]string{}
	var order []string
	for _, page := range pages {
		v := strings.TrimSpace(value(page))
		if v == "" || !literalMeta(page) {
			continue
		}
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], page.Path)
	}

	var out []types.Issue
	for _, v := range order {
		members := groups[v]
		if len(members) < 2 {
			continue
		}
		// pages are sorted, so members[0] is the smallest path
		issue := types.NewIssue(t, sev, members[0], false,
			"%d pages share the %s %q", len(members), label, v)
		issue.Pages = members
		out = append(out, issue)
	}
	return out
}

func routeOrPath(page types.PageInfo) string {
	if page.Route != "" {
		return page.Route
	}
	return page.Path
}

// Summary counts issues by severity for logs and reports.
func Summary(issues []types.Issue) string {
	counts := map[types.Severity]int{}
	for _, i := range issues {
		counts[i.Severity]++
	}
	return fmt.Sprintf("%d critical, %d warning, %d info",
		counts[types.SeverityCritical], counts[types.SeverityWarning], counts[types.SeverityInfo])
}
