package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/types"
)

var issuesCmd = &cobra.Command{
	Use:   "issues [repo-id]",
	Short: "List detected SEO issues",
	Long: `List the issues the last runs detected.

Open issues are listed by default. Use --status to see fixed or ignored ones.

Examples:
  seoloop issues                          # Open issues across all repositories
  seoloop issues marketing-site           # Open issues for one repository
  seoloop issues --status fixed           # Issues resolved by a commit
  seoloop issues --type missing-meta-title`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		issueType, _ := cmd.Flags().GetString("type")

		filter := types.IssueFilter{
			Status: types.IssueStatus(status),
			Type:   types.IssueType(issueType),
		}
		if len(args) == 1 {
			filter.RepoID = args[0]
		}
		if status != "" && !filter.Status.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: invalid status %q (open, fixed, ignored)\n", status)
			os.Exit(1)
		}

		issues, err := store.ListIssues(context.Background(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing issues: %v\n", err)
			os.Exit(1)
		}

		if len(issues) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("\n%s No %s issues\n\n", green("✨"), status)
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s %d issue(s):\n\n", cyan("🩺"), len(issues))
		for _, issue := range issues {
			sev := getIssueSeverityColor(issue.Severity)
			fix := ""
			if issue.AutoFixable {
				fix = " 🔧"
			}
			fmt.Printf("%s %-10s %s %s%s\n", issue.ID, sev.Sprint(issue.Severity), issue.RepoID, issue.Type, fix)
			where := issue.Path
			if where == "" {
				where = "(repository)"
			}
			fmt.Printf("  %s\n", gray(fmt.Sprintf("%s | %s | last seen %s",
				truncateString(where, 30), truncateString(issue.Description, 40), issue.LastSeen.Local().Format("2006-01-02"))))
		}
		fmt.Println()
	},
}

var issuesIgnoreCmd = &cobra.Command{
	Use:   "ignore <repo-id> <issue-id>",
	Short: "Stop planning fixes for an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setIssueStatus(args[0], args[1], types.IssueIgnored)
	},
}

var issuesReopenCmd = &cobra.Command{
	Use:   "reopen <repo-id> <issue-id>",
	Short: "Return an ignored or fixed issue to open",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setIssueStatus(args[0], args[1], types.IssueOpen)
	},
}

func setIssueStatus(repoID, issueID string, status types.IssueStatus) error {
	ok, err := store.SetIssueStatus(context.Background(), repoID, issueID, status)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	if !ok {
		return fmt.Errorf("issue %s not found in %s", issueID, repoID)
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %s is now %s\n", green("✓"), issueID, status)
	return nil
}

func getIssueSeverityColor(severity types.Severity) *color.Color {
	switch severity {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func init() {
	issuesCmd.Flags().StringP("status", "s", string(types.IssueOpen), "Filter by status (open, fixed, ignored)")
	issuesCmd.Flags().StringP("type", "t", "", "Filter by issue type")
	issuesCmd.AddCommand(issuesIgnoreCmd)
	issuesCmd.AddCommand(issuesReopenCmd)
	rootCmd.AddCommand(issuesCmd)
}
