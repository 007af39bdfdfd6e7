package types

import (
	"fmt"
	"time"
)

// ChangeRecord is a ledger entry for one committed fix. Everything except
// Impact is immutable once written; Impact is filled in exactly once.
type ChangeRecord struct {
	ID             string          `json:"id"`
	RepoID         string          `json:"repo_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Type           IssueType       `json:"type"`
	File           string          `json:"file"`
	Route          string          `json:"route,omitempty"` // page route when the change is page scoped
	Commit         string          `json:"commit"`
	Description    string          `json:"description"`
	ExpectedImpact string          `json:"expected_impact"`
	Impact         *MeasuredImpact `json:"impact,omitempty"`
}

// MeasuredImpact is the traffic delta attributed to a change.
type MeasuredImpact struct {
	ClicksBefore  float64   `json:"clicks_before"`
	ClicksAfter   float64   `json:"clicks_after"`
	PercentChange float64   `json:"percent_change"`
	WindowDays    int       `json:"window_days"`
	MeasuredAt    time.Time `json:"measured_at"`
}

// Validate checks required fields before the record is written
func (c *ChangeRecord) Validate() error {
	if c.RepoID == "" {
		return fmt.Errorf("repo_id is required")
	}
	if c.Commit == "" {
		return fmt.Errorf("commit is required")
	}
	if c.File == "" {
		return fmt.Errorf("file is required")
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// ExpectedImpactFor returns the human note stored with a change of the given type.
func ExpectedImpactFor(t IssueType) string {
	switch t {
	case IssueMissingTitle, IssueTitleTooLong:
		return "better SERP title rendering and click-through rate"
	case IssueMissingDescription, IssueDescriptionTooLong:
		return "controlled SERP snippet, higher click-through rate"
	case IssueMissingOGImage:
		return "richer social previews and referral traffic"
	case IssueMissingAltText:
		return "image search visibility and accessibility"
	case IssueMissingSitemap:
		return "faster and more complete indexing"
	case IssueMissingRobots:
		return "explicit crawl directives and sitemap discovery"
	case IssueMissingStructuredData:
		return "eligibility for rich results"
	case IssueContentPublished:
		return "new long-tail impressions from published content"
	}
	return "improved search visibility"
}

// IssueContentPublished marks ledger entries created by content publishing
// rather than by an issue fix.
const IssueContentPublished IssueType = "content-published"

// ContentRecord tracks one generated article.
type ContentRecord struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repo_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Topic     string    `json:"topic"`
	Path      string    `json:"path"`
	Commit    string    `json:"commit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStatus is the outcome of one repository pipeline run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunNoop      RunStatus = "noop"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

// RunRecord is the persisted summary of one repository pipeline run.
type RunRecord struct {
	ID          string     `json:"id"`
	RepoID      string     `json:"repo_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	Commit      string     `json:"commit,omitempty"` // commit created by the run, if any
	Applied     int        `json:"applied"`
	Issues      int        `json:"issues"`
	Error       string     `json:"error,omitempty"`
}

// ChangeFilter is used to filter ledger queries
type ChangeFilter struct {
	RepoID string
	Type   IssueType
	// Pending restricts to entries without a measured impact
	Pending bool
	Limit   int
}
