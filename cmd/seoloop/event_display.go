package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/steveyegge/seoloop/internal/events"
)

// displayActivityEvent formats and prints a single event with consistent two-line format
func displayActivityEvent(event *events.Event) {
	if shouldSkipEvent(event) {
		return
	}

	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Local().Format("01-02 15:04:05")

	repoID := event.RepoID
	if repoID == "" {
		repoID = "-"
	}
	repo := color.New(color.FgGreen).Sprint(repoID)
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	// Keep line 1 within ~80 columns
	maxMessageLen := 60 - len(repoID) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		repo,
		eventType,
		severityColor.Sprint(message),
	)

	metadata := extractEventMetadata(event)
	if len(metadata) > 0 {
		gray := color.New(color.FgHiBlack)
		fmt.Printf("  %s\n", gray.Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventEmoji returns the appropriate emoji for each event type
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeRunStarted:
		return "🚀"
	case events.EventTypeRunCompleted:
		if event.Severity == events.SeverityError {
			return "❌"
		}
		return "🏁"
	case events.EventTypeSynced:
		return "🔄"
	case events.EventTypeProfileCacheHit:
		return "💾"
	case events.EventTypeProfileScanned:
		return "🔍"
	case events.EventTypeIssuesDetected:
		return "🩺"
	case events.EventTypePlanCreated:
		return "🧠"
	case events.EventTypeBudgetDenied:
		return "💸"
	case events.EventTypePatchesApplied:
		return "📝"
	case events.EventTypePatchSkipped:
		return "🚫"
	case events.EventTypeCommitted:
		return "🌿"
	case events.EventTypeLedgerRecorded:
		return "📒"
	case events.EventTypeContentPlanned:
		return "✍️"
	case events.EventTypeImpactMeasured:
		return "📈"
	case events.EventTypeReportSent:
		return "📧"
	}

	switch event.Severity {
	case events.SeverityInfo:
		return "ℹ️"
	case events.SeverityWarning:
		return "⚠️"
	case events.SeverityError:
		return "❌"
	default:
		return "•"
	}
}

// getSeverityColor returns the appropriate color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata extracts the key metadata fields for each event type
// as a pipe-separated string, truncated to ~70 chars.
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeRunStarted:
		fields = []string{getStringField(event.Data, "branch", "")}

	case events.EventTypeRunCompleted:
		// run_completed: status | duration | applied | error
		status := getStringField(event.Data, "status", "unknown")
		duration := getStringField(event.Data, "duration", "")
		applied := fmt.Sprintf("%d applied", getIntField(event.Data, "applied", 0))
		errMsg := truncateString(getStringField(event.Data, "error", ""), 30)
		fields = []string{status, duration, applied, errMsg}

	case events.EventTypeSynced:
		fields = []string{shortSHA(getStringField(event.Data, "commit", ""))}

	case events.EventTypeProfileScanned:
		// profile_scanned: framework | pages | degraded
		framework := getStringField(event.Data, "framework", "unknown")
		pages := fmt.Sprintf("%d pages", getIntField(event.Data, "pages", 0))
		degraded := truncateString(getStringField(event.Data, "degraded", ""), 30)
		fields = []string{framework, pages, degraded}

	case events.EventTypeIssuesDetected:
		fields = []string{fmt.Sprintf("%d open", getIntField(event.Data, "open", 0))}

	case events.EventTypePlanCreated:
		// plan_created: fixes | skipped | deferred
		fixes := fmt.Sprintf("%d fixes", getIntField(event.Data, "fixes", 0))
		skipped := fmt.Sprintf("%d skipped", getIntField(event.Data, "skipped", 0))
		deferred := fmt.Sprintf("%d deferred", getIntField(event.Data, "deferred", 0))
		fields = []string{fixes, skipped, deferred}

	case events.EventTypeBudgetDenied:
		kind := getStringField(event.Data, "kind", "unknown")
		limit := fmt.Sprintf("limit %d/day", getIntField(event.Data, "limit", 0))
		fields = []string{kind, limit}

	case events.EventTypePatchesApplied:
		applied := fmt.Sprintf("%d applied", getIntField(event.Data, "applied", 0))
		skipped := fmt.Sprintf("%d skipped", getIntField(event.Data, "skipped", 0))
		fields = []string{applied, skipped}

	case events.EventTypePatchSkipped:
		path := truncateString(getStringField(event.Data, "path", ""), 40)
		fields = []string{path, getStringField(event.Data, "issue_id", "")}

	case events.EventTypeCommitted:
		// committed: commit | files
		commit := shortSHA(getStringField(event.Data, "commit", ""))
		files := fmt.Sprintf("%d files", getSliceLen(event.Data, "files"))
		fields = []string{commit, files}

	case events.EventTypeLedgerRecorded:
		commit := shortSHA(getStringField(event.Data, "commit", ""))
		records := fmt.Sprintf("%d records", getIntField(event.Data, "records", 0))
		fields = []string{commit, records}

	case events.EventTypeContentPlanned:
		fields = []string{truncateString(getStringField(event.Data, "path", ""), 50)}

	case events.EventTypeImpactMeasured:
		resolved := fmt.Sprintf("%d measured", getIntField(event.Data, "resolved", 0))
		pending := fmt.Sprintf("%d pending", getIntField(event.Data, "pending", 0))
		failed := fmt.Sprintf("%d failed", getIntField(event.Data, "failed", 0))
		fields = []string{resolved, pending, failed}

	default:
		if err, ok := event.Data["error"].(string); ok {
			fields = append(fields, truncateString(err, 50))
		}
		if duration := getIntField(event.Data, "duration_ms", 0); duration > 0 {
			fields = append(fields, formatDurationMs(duration))
		}
	}

	if len(fields) == 0 {
		return ""
	}
	return truncateString(joinFields(fields), 70)
}

// Helper functions to safely extract typed fields from event data
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	switch val := data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	return defaultValue
}

// getSliceLen handles both in-memory []string and decoded []interface{} values.
func getSliceLen(data map[string]interface{}, key string) int {
	switch val := data[key].(type) {
	case []string:
		return len(val)
	case []interface{}:
		return len(val)
	}
	return 0
}

// formatDurationMs formats milliseconds into a human-readable duration
func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins non-empty metadata fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// shouldSkipEvent returns true for routine maintenance events that clutter the feed
func shouldSkipEvent(event *events.Event) bool {
	switch event.Type {
	case events.EventTypeEventCleanupCompleted, events.EventTypeProfileCacheHit:
		return !verbose
	}
	return false
}

// truncateString truncates a string to maxLen, adding "..." if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
