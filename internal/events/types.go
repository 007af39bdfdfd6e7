package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents a step of the per-repository pipeline.
type EventType string

const (
	// EventTypeRunStarted indicates a repository run acquired its lock and started
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates a repository run finished (any outcome)
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeSynced indicates the working copy was cloned or refreshed
	EventTypeSynced EventType = "synced"
	// EventTypeProfileCacheHit indicates the stored profile matched HEAD
	EventTypeProfileCacheHit EventType = "profile_cache_hit"
	// EventTypeProfileScanned indicates a fresh profile scan
	EventTypeProfileScanned EventType = "profile_scanned"
	// EventTypeIssuesDetected indicates detection and reconciliation finished
	EventTypeIssuesDetected EventType = "issues_detected"
	// EventTypePlanCreated indicates the planner produced fixes
	EventTypePlanCreated EventType = "plan_created"
	// EventTypeBudgetDenied indicates a metered step was skipped for budget
	EventTypeBudgetDenied EventType = "budget_denied"
	// EventTypePatchesApplied indicates patch application finished
	EventTypePatchesApplied EventType = "patches_applied"
	// EventTypePatchSkipped indicates a fix whose search text was not found
	EventTypePatchSkipped EventType = "patch_skipped"
	// EventTypeCommitted indicates a commit was created and pushed
	EventTypeCommitted EventType = "committed"
	// EventTypeLedgerRecorded indicates ledger entries were written
	EventTypeLedgerRecorded EventType = "ledger_recorded"
	// EventTypeContentPlanned indicates an article was generated
	EventTypeContentPlanned EventType = "content_planned"
	// EventTypeImpactMeasured indicates a ledger entry got its measured impact
	EventTypeImpactMeasured EventType = "impact_measured"
	// EventTypeReportSent indicates the run report email was delivered
	EventTypeReportSent EventType = "report_sent"
	// EventTypeEventCleanupCompleted indicates old events were pruned
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
	// EventTypeError indicates a step failed
	EventTypeError EventType = "error"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo is routine progress
	SeverityInfo EventSeverity = "info"
	// SeverityWarning is a degraded but non-fatal outcome
	SeverityWarning EventSeverity = "warning"
	// SeverityError is a failed step
	SeverityError EventSeverity = "error"
)

// Event is one entry of the activity feed.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RepoID is the repository the event belongs to (empty for batch-level events)
	RepoID string `json:"repo_id"`
	// RunID is the run that produced the event
	RunID string `json:"run_id"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// EventFilter is used for querying events.
type EventFilter struct {
	// RepoID filters events by repository
	RepoID string
	// RunID filters events by run
	RunID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// Limit limits the number of events returned
	Limit int
}

// New creates an event stamped with a fresh id and the current time.
func New(eventType EventType, repoID, runID string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RepoID:    repoID,
		RunID:     runID,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}
