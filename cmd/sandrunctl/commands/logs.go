package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumicore/sandrun/internal/analysis"
	"github.com/lumicore/sandrun/pkg/models"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the execution log and its derived analysis",
}

var logsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show recent failures and successes",
	RunE:  runLogsSummary,
}

var logsAnalysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Show the fix-rate and pattern analysis report",
	RunE:  runLogsAnalysis,
}

var logsSessionCmd = &cobra.Command{
	Use:   "session <session_id>",
	Short: "Show one session's attempt history",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsSession,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsSummaryCmd, logsAnalysisCmd, logsSessionCmd)
}

func runLogsSummary(cmd *cobra.Command, args []string) error {
	var summary struct {
		Failures  []models.LogEntry `json:"failures"`
		Successes []models.LogEntry `json:"successes"`
	}
	if _, err := getJSON("/logs/summary", &summary); err != nil {
		printError("%v", err)
		return err
	}

	printInfo(cmd, "Recent failures (%d):", len(summary.Failures))
	for _, entry := range summary.Failures {
		printInfo(cmd, "  %s  %-18s  %s", entry.LogID, entry.Category, entry.ErrorMessage)
	}

	printInfo(cmd, "\nRecent successes (%d):", len(summary.Successes))
	for _, entry := range summary.Successes {
		printInfo(cmd, "  %s  session=%s", entry.LogID, entry.SessionID)
	}
	return nil
}

func runLogsAnalysis(cmd *cobra.Command, args []string) error {
	var report analysis.Report
	if _, err := getJSON("/logs/analysis", &report); err != nil {
		printError("%v", err)
		return err
	}

	printInfo(cmd, "Total failures: %d   Total successes: %d   Overall fix rate: %.2f",
		report.TotalFailures, report.TotalSuccesses, report.OverallFixRate)
	printInfo(cmd, "")
	for _, cat := range report.Categories {
		printInfo(cmd, "%-18s  failures=%-4d fixed=%-4d fix_rate=%.2f",
			cat.Category, cat.FailureCount, cat.FixedCount, cat.FixRate)
	}
	if report.Context != "" {
		printInfo(cmd, "\n%s", report.Context)
	}
	return nil
}

func runLogsSession(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	var session models.Session
	status, err := getJSON(fmt.Sprintf("/logs/session/%s", sessionID), &session)
	if err != nil {
		printError("%v", err)
		return err
	}
	if status == 404 {
		printInfo(cmd, "session %s not found", sessionID)
		return nil
	}

	printInfo(cmd, "session %s (resolved: %v)", session.SessionID, session.Resolved())
	for _, attempt := range session.AttemptIDs {
		printInfo(cmd, "  %s", attempt)
	}
	return nil
}
