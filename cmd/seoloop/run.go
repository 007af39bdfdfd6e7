package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/pipeline"
	"github.com/steveyegge/seoloop/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [repo-id...]",
	Short: "Run the SEO pipeline for every (or the named) repository",
	Long: `Run the full pipeline once.

For each repository: sync, profile, detect, plan, apply, commit, push and
record. Afterwards pending ledger entries whose measurement window has
elapsed are measured, and the run report is emailed when SMTP is configured.

A failing repository does not stop the others. The exit status is non-zero
only when the run could not start (configuration, credentials, database).

Examples:
  seoloop run                     # All configured repositories
  seoloop run marketing-site      # One repository
  seoloop run --no-report         # Skip the email report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAI(); err != nil {
			return err
		}
		targets, err := selectTargets(args)
		if err != nil {
			return err
		}
		noReport, _ := cmd.Flags().GetBool("no-report")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner, cleanup, err := newRunner(ctx, !noReport)
		if err != nil {
			return err
		}
		defer cleanup()

		batch := runner.RunBatch(ctx, targets)
		printBatch(batch)
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("no-report", false, "Do not email the run report")
	rootCmd.AddCommand(runCmd)
}

func printBatch(batch *pipeline.BatchReport) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== seoloop run ==="))
	for _, rep := range batch.Repos {
		icon, c := statusStyle(rep.Status)
		fmt.Printf("%s %-24s %s", icon, rep.RepoID, c.Sprint(rep.Status))
		if rep.Commit != "" {
			fmt.Printf("  %s", shortSHA(rep.Commit))
		}
		fmt.Println()

		fmt.Printf("  %s\n", gray(fmt.Sprintf("%d open issue(s) | %d planned | %d applied | %d skipped | %d recorded",
			rep.Issues, rep.Planned, rep.Applied, len(rep.Skipped)+rep.Mismatched, rep.Recorded)))
		if rep.Article != "" {
			fmt.Printf("  📝 published %q\n", rep.Article)
		}
		if rep.ContentErr != nil {
			fmt.Printf("  %s\n", color.YellowString("content: %v", rep.ContentErr))
		}
		if rep.Err != nil {
			fmt.Printf("  %s\n", color.RedString("%v", rep.Err))
		}
		if verbose {
			for _, s := range rep.Skipped {
				fmt.Printf("    %s %s %s\n", gray("skip"), s.Type, gray(s.Reason))
			}
		}
	}

	fmt.Println()
	if batch.ImpactErr != nil {
		fmt.Printf("%s %v\n", color.RedString("Impact measurement failed:"), batch.ImpactErr)
	} else {
		s := batch.Impact
		fmt.Printf("Impact: %d pending, %d measured, %d not due, %d without property, %d failed\n",
			s.Pending, s.Resolved, s.NotDue, s.NoProperty, s.Failed)
	}
	if batch.ReportErr != nil {
		fmt.Printf("%s %v\n", color.RedString("Report email failed:"), batch.ReportErr)
	} else if batch.ReportSent {
		fmt.Println("Report email sent")
	}
	fmt.Printf("%s\n\n", gray(fmt.Sprintf("%d repositories, %d committed, %d failed in %s",
		len(batch.Repos), batch.Committed(), batch.Failed(), batch.CompletedAt.Sub(batch.StartedAt).Round(1e9))))
}

func statusStyle(status types.RunStatus) (string, *color.Color) {
	switch status {
	case types.RunSucceeded:
		return "✅", color.New(color.FgGreen)
	case types.RunNoop:
		return "➖", color.New(color.FgWhite)
	case types.RunTimedOut:
		return "⏱️", color.New(color.FgYellow)
	case types.RunFailed:
		return "❌", color.New(color.FgRed)
	}
	return "•", color.New(color.FgWhite)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
