package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/events"
)

// Note: displayActivityEvent and related helper functions are in event_display.go

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent pipeline events",
	Long: `Display recent activity from the pipeline.

Shows events from the events table including:
- Repository runs starting and finishing
- Syncs, profile scans and issue detection
- Plans, applied patches and skipped fixes
- Commits, ledger entries and generated articles
- Budget denials and errors

Examples:
  seoloop activity                        # Show last 20 events
  seoloop activity -n 50                  # Show last 50 events
  seoloop activity --repo marketing-site  # Show events for one repository
  seoloop activity --run <run-id>         # Show events for one run
  seoloop activity --type committed       # Show only commits
  seoloop activity --severity error       # Show only errors`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		repoID, _ := cmd.Flags().GetString("repo")
		runID, _ := cmd.Flags().GetString("run")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")

		filter := events.EventFilter{
			RepoID: repoID,
			RunID:  runID,
			Limit:  limit,
		}
		if eventType != "" {
			filter.Type = events.EventType(eventType)
		}
		if severity != "" {
			filter.Severity = events.EventSeverity(severity)
		}

		eventList, err := store.GetEvents(context.Background(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
			os.Exit(1)
		}

		if len(eventList) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No events found matching the criteria\n\n", yellow("✨"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Recent Activity (%d events):\n\n", cyan("📋"), len(eventList))

		// Newest last, so the feed reads top to bottom
		for i := len(eventList) - 1; i >= 0; i-- {
			displayActivityEvent(eventList[i])
		}

		fmt.Println()
	},
}

func init() {
	activityCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	activityCmd.Flags().StringP("repo", "r", "", "Filter events by repository ID")
	activityCmd.Flags().String("run", "", "Filter events by run ID")
	activityCmd.Flags().StringP("type", "t", "", "Filter by event type (e.g., committed, patch_skipped, error)")
	activityCmd.Flags().StringP("severity", "s", "", "Filter by severity (info, warning, error)")
	rootCmd.AddCommand(activityCmd)
}
