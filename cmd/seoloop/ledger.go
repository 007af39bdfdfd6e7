package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger [repo-id]",
	Short: "List committed changes and their measured impact",
	Long: `List the change ledger, newest first.

Every committed fix is one entry. Once its measurement window has passed,
the entry carries the click change attributed to it.

Examples:
  seoloop ledger                          # Last 20 entries
  seoloop ledger marketing-site -n 100    # Last 100 for one repository
  seoloop ledger --pending                # Entries still awaiting measurement
  seoloop ledger --type missing-og-image  # One change type`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		pending, _ := cmd.Flags().GetBool("pending")
		changeType, _ := cmd.Flags().GetString("type")

		filter := types.ChangeFilter{
			Type:    types.IssueType(changeType),
			Pending: pending,
			Limit:   limit,
		}
		if len(args) == 1 {
			filter.RepoID = args[0]
		}

		records, err := ledger.New(store, logger).List(context.Background(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ledger: %v\n", err)
			os.Exit(1)
		}

		if len(records) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No ledger entries found\n\n", yellow("✨"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s %d change(s):\n\n", cyan("📒"), len(records))
		for _, rec := range records {
			fmt.Printf("%s %s %s %s %s\n",
				rec.Timestamp.Local().Format("2006-01-02 15:04"),
				color.GreenString(rec.RepoID),
				shortSHA(rec.Commit),
				color.MagentaString(string(rec.Type)),
				formatImpact(rec.Impact))
			fmt.Printf("  %s\n", gray(joinFields([]string{
				truncateString(rec.File, 30),
				rec.Route,
				truncateString(rec.Description, 40),
			})))
		}
		fmt.Println()
	},
}

func init() {
	ledgerCmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	ledgerCmd.Flags().Bool("pending", false, "Only entries without a measured impact")
	ledgerCmd.Flags().StringP("type", "t", "", "Filter by change type")
	rootCmd.AddCommand(ledgerCmd)
}

// formatImpact renders a measured impact as a colored percentage, or
// "pending" when the entry has not been measured.
func formatImpact(m *types.MeasuredImpact) string {
	if m == nil {
		return color.New(color.FgHiBlack).Sprint("pending")
	}
	text := fmt.Sprintf("%+.1f%% (%.0f → %.0f clicks)", m.PercentChange, m.ClicksBefore, m.ClicksAfter)
	switch {
	case m.PercentChange > 0:
		return color.GreenString(text)
	case m.PercentChange < 0:
		return color.RedString(text)
	}
	return text
}
