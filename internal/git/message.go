package git

import (
	"fmt"
	"strings"

	"github.com/steveyegge/seoloop/internal/types"
)

// BuildCommitMessage produces the commit message for a batch of applied
// fixes: a summary line, then one line per changed file naming what was done.
func BuildCommitMessage(fixes []types.Fix, stats []FileStat) string {
	var order []string
	byPath := make(map[string][]string)
	issues := make(map[string]bool)
	for _, f := range fixes {
		if _, ok := byPath[f.Path]; !ok {
			order = append(order, f.Path)
		}
		desc := f.Description
		if desc == "" {
			desc = fmt.Sprintf("%s %s", f.Action, f.IssueType)
		}
		byPath[f.Path] = append(byPath[f.Path], desc)
		if f.IssueID != "" {
			issues[f.IssueID] = true
		}
	}

	statFor := make(map[string]FileStat, len(stats))
	for _, s := range stats {
		statFor[s.Path] = s
	}

	var b strings.Builder
	if len(issues) == 0 {
		fmt.Fprintf(&b, "seo: update %s\n", plural(len(order), "file"))
	} else {
		fmt.Fprintf(&b, "seo: fix %s in %s\n", plural(len(issues), "issue"), plural(len(order), "file"))
	}
	b.WriteString("\n")
	for _, p := range order {
		fmt.Fprintf(&b, "- %s: %s", p, strings.Join(byPath[p], "; "))
		if s, ok := statFor[p]; ok {
			if s.Binary {
				b.WriteString(" (binary)")
			} else {
				fmt.Fprintf(&b, " (+%d -%d)", s.Added, s.Deleted)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
