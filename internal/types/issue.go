package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// IssueType classifies a detected SEO defect
type IssueType string

const (
	IssueMissingTitle          IssueType = "missing-meta-title"
	IssueTitleTooLong          IssueType = "title-too-long"
	IssueMissingDescription    IssueType = "missing-meta-description"
	IssueDescriptionTooLong    IssueType = "description-too-long"
	IssueMissingOGImage        IssueType = "missing-og-image"
	IssueMissingAltText        IssueType = "missing-alt-text"
	IssueThinContent           IssueType = "thin-content"
	IssueMissingSitemap        IssueType = "missing-sitemap"
	IssueMissingRobots         IssueType = "missing-robots"
	IssueMissingStructuredData IssueType = "missing-structured-data"
	IssueDuplicateTitle        IssueType = "duplicate-title"
	IssueDuplicateDescription  IssueType = "duplicate-description"
)

// Severity ranks issues for planning. Lower Rank sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns the planning order of the severity (critical first)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	}
	return 3
}

// IssueStatus is the persisted lifecycle state of an issue
type IssueStatus string

const (
	IssueOpen    IssueStatus = "open"
	IssueFixed   IssueStatus = "fixed"
	IssueIgnored IssueStatus = "ignored"
)

// IsValid checks if the status value is valid
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueOpen, IssueFixed, IssueIgnored:
		return true
	}
	return false
}

// Issue is a detected, classified SEO defect with a stable identity.
type Issue struct {
	ID          string      `json:"id"`
	RepoID      string      `json:"repo_id"`
	Type        IssueType   `json:"type"`
	Severity    Severity    `json:"severity"`
	Path        string      `json:"path"`            // affected page or file; empty for repository-level issues
	Pages       []string    `json:"pages,omitempty"` // all member pages for group issues
	Description string      `json:"description"`
	AutoFixable bool        `json:"auto_fixable"`
	Status      IssueStatus `json:"status"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
}

// IssueID derives the stable identifier of an issue from its type and path.
// Detection on unchanged input always yields the same ids.
func IssueID(t IssueType, path string) string {
	sum := sha256.Sum256([]byte(string(t) + "\x00" + path))
	return "seo-" + hex.EncodeToString(sum[:])[:12]
}

// NewIssue builds an issue with its id filled in and status open.
func NewIssue(t IssueType, sev Severity, path string, autoFixable bool, format string, args ...interface{}) Issue {
	return Issue{
		ID:          IssueID(t, path),
		Type:        t,
		Severity:    sev,
		Path:        path,
		Description: fmt.Sprintf(format, args...),
		AutoFixable: autoFixable,
		Status:      IssueOpen,
	}
}

// FixAction is the kind of file operation a Fix performs
type FixAction string

const (
	ActionCreate FixAction = "create"
	ActionModify FixAction = "modify"
	ActionDelete FixAction = "delete"
)

// Fix is a single-file change resolving one issue.
type Fix struct {
	IssueID     string    `json:"issue_id"`
	IssueType   IssueType `json:"issue_type"`
	Action      FixAction `json:"action"`
	Path        string    `json:"path"`
	Find        string    `json:"find,omitempty"`    // modify: exact substring to replace (first occurrence)
	Replace     string    `json:"replace,omitempty"` // modify: replacement text
	Content     []byte    `json:"content,omitempty"` // create: full file content
	Description string    `json:"description"`
	Route       string    `json:"route,omitempty"`
}

// Validate checks that the fix carries what its action needs
func (f Fix) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("fix path is required")
	}
	switch f.Action {
	case ActionCreate:
		return nil
	case ActionModify:
		if f.Find == "" {
			return fmt.Errorf("modify fix for %s has an empty search string", f.Path)
		}
		return nil
	case ActionDelete:
		return nil
	}
	return fmt.Errorf("invalid fix action %q", f.Action)
}

// IssueFilter is used to filter issue queries
type IssueFilter struct {
	RepoID string
	Status IssueStatus
	Type   IssueType
}
