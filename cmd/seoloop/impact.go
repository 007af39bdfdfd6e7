package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/impact"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/types"
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Show the mean measured impact per change type",
	Long: `Aggregate measured ledger entries by change type, best first.

With --measure, first attribute Search Console clicks to every pending entry
whose measurement window has passed (requires analytics credentials).

Examples:
  seoloop impact                          # Aggregate what is measured
  seoloop impact --measure                # Measure due entries, then aggregate
  seoloop impact --repo marketing-site    # One repository`,
	RunE: func(cmd *cobra.Command, args []string) error {
		measure, _ := cmd.Flags().GetBool("measure")
		repoID, _ := cmd.Flags().GetString("repo")
		ctx := context.Background()
		l := ledger.New(store, logger)

		if measure {
			correlator, err := newCorrelator(ctx, l)
			if err != nil {
				return fmt.Errorf("failed to create analytics source: %w", err)
			}
			if correlator == nil {
				return fmt.Errorf("analytics credentials are not configured")
			}
			sum, err := correlator.Run(ctx)
			fmt.Printf("Measured %d of %d pending change(s) (%d not due, %d without property, %d failed)\n",
				sum.Resolved, sum.Pending, sum.NotDue, sum.NoProperty, sum.Failed)
			if err != nil {
				return err
			}
		}

		records, err := l.List(ctx, types.ChangeFilter{RepoID: repoID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ledger: %v\n", err)
			os.Exit(1)
		}
		agg := impact.AggregateRecords(records)
		if len(agg) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No measured changes yet\n\n", yellow("✨"))
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Impact by Change Type ==="))
		for _, ti := range agg {
			mean := fmt.Sprintf("%+7.1f%%", ti.MeanPercentChange)
			switch {
			case ti.MeanPercentChange > 0:
				mean = color.GreenString(mean)
			case ti.MeanPercentChange < 0:
				mean = color.RedString(mean)
			}
			fmt.Printf("  %-26s %s  n=%d\n", ti.Type, mean, ti.SampleSize)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	impactCmd.Flags().Bool("measure", false, "Measure due pending entries first")
	impactCmd.Flags().StringP("repo", "r", "", "Restrict to one repository")
	rootCmd.AddCommand(impactCmd)
}
