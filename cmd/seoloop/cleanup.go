package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/pipeline"
	"github.com/steveyegge/seoloop/internal/storage"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Cleanup and maintenance commands",
	Long:  `Commands for cleaning up old data and leftover run locks.`,
}

var cleanupEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Delete old activity events",
	Long: `Delete activity events older than the retention period.

"seoloop run" already does this at the end of every batch when
event_retention_days is set; this command runs it on demand.

Examples:
  seoloop cleanup events                     # Use the configured retention
  seoloop cleanup events --retention-days 7  # Keep one week`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("retention-days")
		if days <= 0 {
			days = cfg.EventRetentionDays
		}
		if days <= 0 {
			fmt.Fprintf(os.Stderr, "Error: no retention configured (set event_retention_days or --retention-days)\n")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		start := time.Now()
		deleted, err := store.CleanupEventsByAge(ctx, days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: event cleanup failed: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted %s event(s) older than %d days in %v\n",
			green("✓"), formatNumber(deleted), days, time.Since(start).Round(time.Millisecond))
	},
}

var cleanupLocksCmd = &cobra.Command{
	Use:   "locks [repo-id...]",
	Short: "Remove run locks left behind by dead processes",
	Long: `Remove repository lock files whose owning process no longer exists.

Runs take over stale locks on their own; this command tidies them up for
"seoloop status". Locks held by live processes are never touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		targets, err := selectTargets(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		locker := storage.NewRepoLocker(pipeline.LockDir(cfg.WorkDir))
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		cleared := 0
		for _, target := range targets {
			ok, err := locker.ClearStale(target.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", red("✗"), target.ID, err)
				continue
			}
			if ok {
				fmt.Printf("%s Removed stale lock for %s\n", green("✓"), target.ID)
				cleared++
			}
		}
		if cleared == 0 {
			fmt.Printf("%s No stale locks found\n", green("✓"))
		}
	},
}

// formatNumber formats a count with thousands separators
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}
	return string(out)
}

func init() {
	cleanupEventsCmd.Flags().Int("retention-days", 0, "Delete events older than this many days (default: configured retention)")
	cleanupCmd.AddCommand(cleanupEventsCmd)
	cleanupCmd.AddCommand(cleanupLocksCmd)
	rootCmd.AddCommand(cleanupCmd)
}
