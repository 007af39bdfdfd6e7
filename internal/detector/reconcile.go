package detector

import (
	"sort"
	"time"

	"github.com/steveyegge/seoloop/internal/types"
)

// Reconcile merges a fresh detection into the stored issues of a repository.
//   - ignored issues stay ignored
//   - a fixed issue that is detected again reopens
//   - an open issue that is no longer detected becomes fixed
//
// The result holds every issue that must be persisted, sorted by id.
func Reconcile(existing, detected []types.Issue, now time.Time) []types.Issue {
	byID := make(map[string]types.Issue, len(existing))
	for _, issue := range existing {
		byID[issue.ID] = issue
	}

	seen := make(map[string]bool, len(detected))
	var out []types.Issue
	for _, issue := range detected {
		seen[issue.ID] = true
		issue.LastSeen = now
		issue.FirstSeen = now
		issue.Status = types.IssueOpen
		if prev, ok := byID[issue.ID]; ok {
			if !prev.FirstSeen.IsZero() {
				issue.FirstSeen = prev.FirstSeen
			}
			if prev.Status == types.IssueIgnored {
				issue.Status = types.IssueIgnored
			}
		}
		out = append(out, issue)
	}

	for _, prev := range existing {
		if seen[prev.ID] {
			continue
		}
		if prev.Status == types.IssueOpen {
			prev.Status = types.IssueFixed
			out = append(out, prev)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Open returns the issues a planner may act on.
func Open(issues []types.Issue) []types.Issue {
	var out []types.Issue
	for _, issue := range issues {
		if issue.Status == types.IssueOpen {
			out = append(out, issue)
		}
	}
	return out
}
