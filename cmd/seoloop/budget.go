package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/budget"
)

var budgetCmd = &cobra.Command{
	Use:   "budget [repo-id...]",
	Short: "Show daily usage of metered AI operations",
	Long: `Display how much of each repository's daily budget for AI copy,
article generation and image generation has been used.

Days are counted in the configured time zone.

Examples:
  seoloop budget                          # Today, all repositories
  seoloop budget marketing-site           # Today, one repository
  seoloop budget --day 2026-05-04         # A past day`,
	Run: func(cmd *cobra.Command, args []string) {
		day, _ := cmd.Flags().GetString("day")
		if day != "" {
			if _, err := time.Parse(budget.DayLayout, day); err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid day %q (want YYYY-MM-DD)\n", day)
				os.Exit(1)
			}
		}

		targets, err := selectTargets(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		guard, cleanup, err := newGuard(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize budget guard: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		if day == "" {
			day = guard.Today()
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Daily Budget %s ===", day)))

		for _, target := range targets {
			lines, err := guard.Usage(ctx, target.ID, day)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s\n", yellow(target.ID+":"))
			for _, line := range lines {
				if line.Limit == budget.Unlimited {
					fmt.Printf("  %-8s %d (unlimited)\n", line.Kind, line.Used)
					continue
				}
				percent := 100.0
				if line.Limit > 0 {
					percent = float64(line.Used) / float64(line.Limit) * 100
				}
				fmt.Printf("  %-8s %d / %d %s\n", line.Kind, line.Used, line.Limit, renderProgressBar(percent, 20))
			}
			fmt.Println()
		}
	},
}

func init() {
	budgetCmd.Flags().String("day", "", "Calendar day to report (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(budgetCmd)
}

// renderProgressBar renders a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100.0 * float64(width))

	var barColor *color.Color
	if percent >= 100 {
		barColor = color.New(color.FgRed, color.Bold)
	} else if percent >= 80 {
		barColor = color.New(color.FgYellow)
	} else {
		barColor = color.New(color.FgGreen)
	}

	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += barColor.Sprint("█")
		} else {
			bar += color.New(color.FgHiBlack).Sprint("░")
		}
	}
	return fmt.Sprintf("[%s]", bar)
}
