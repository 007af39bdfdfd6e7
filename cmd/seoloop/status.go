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
	"github.com/steveyegge/seoloop/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [repo-id...]",
	Short: "Show recent runs and lock holders per repository",
	Long: `Display, for each configured repository, who holds its run lock and the
outcome of its most recent runs.

A lock whose owning process is gone is marked stale; "seoloop cleanup locks"
removes those.

Examples:
  seoloop status                          # All repositories, last 3 runs
  seoloop status marketing-site -n 10     # One repository, last 10 runs`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		targets, err := selectTargets(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		locker := storage.NewRepoLocker(pipeline.LockDir(cfg.WorkDir))

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== seoloop status ==="))

		for _, target := range targets {
			fmt.Printf("%s %s\n", yellow(target.ID+":"), gray(target.EffectiveBranch()))

			info, alive, err := locker.Inspect(target.ID)
			switch {
			case err != nil:
				fmt.Printf("  %s %v\n", color.RedString("lock:"), err)
			case info == nil:
				fmt.Printf("  %s\n", gray("not locked"))
			case alive:
				fmt.Printf("  %s PID %d on %s since %s\n", color.GreenString("● running"),
					info.PID, info.Hostname, info.StartedAt.Local().Format("15:04:05"))
			default:
				fmt.Printf("  %s PID %d on %s (%v ago)\n", color.YellowString("⚠ stale lock"),
					info.PID, info.Hostname, time.Since(info.StartedAt).Round(time.Second))
			}

			runs, err := store.ListRuns(ctx, target.ID, limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
				os.Exit(1)
			}
			if len(runs) == 0 {
				fmt.Printf("  %s\n", gray("no runs yet"))
			}
			for _, run := range runs {
				printRun(run)
			}
			fmt.Println()
		}
	},
}

func printRun(run *types.RunRecord) {
	icon, c := statusStyle(run.Status)
	duration := "running"
	if run.CompletedAt != nil {
		duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
	}
	line := fmt.Sprintf("  %s %s %s %s", icon, run.StartedAt.Local().Format("2006-01-02 15:04"),
		c.Sprint(run.Status), duration)
	if run.Commit != "" {
		line += fmt.Sprintf(" %s (%d applied)", shortSHA(run.Commit), run.Applied)
	}
	fmt.Println(line)
	if run.Error != "" {
		fmt.Printf("    %s\n", color.RedString(truncateString(run.Error, 70)))
	}
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 3, "Number of recent runs to show per repository")
	rootCmd.AddCommand(statusCmd)
}
