package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags).
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "sandrunctl",
	Short: "A client for the sandboxed script execution engine",
	Long: `sandrunctl submits guest programs to a sandrun server, polls
execution logs, and inspects the fix-rate analysis the server computes
over past attempts.`,
	Version: version,
	Example: `  # Run a script against the configured server
  sandrunctl run myscript.py

  # Run with a session so retries link together
  sandrunctl run myscript.py --session-id abc123 --previous-attempt-id xyz789

  # Cancel a running job
  sandrunctl cancel <job_id>

  # Show recent failures and the fix-rate analysis
  sandrunctl logs summary
  sandrunctl logs analysis`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sandrunctl version %s (commit: %s, built: %s)\n", version, commit, buildDate))

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "sandrun server base URL")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode (errors only)")
}

// isVerbose returns true if verbose flag is set.
func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

// isQuiet returns true if quiet flag is set.
func isQuiet(cmd *cobra.Command) bool {
	quiet, _ := cmd.Flags().GetBool("quiet")
	return quiet
}

// printInfo prints informational messages (unless quiet mode).
func printInfo(cmd *cobra.Command, format string, args ...interface{}) {
	if !isQuiet(cmd) {
		fmt.Fprintf(os.Stdout, format+"\n", args...)
	}
}

// printVerbose prints verbose messages (only in verbose mode).
func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if isVerbose(cmd) {
		fmt.Fprintf(os.Stdout, "[VERBOSE] "+format+"\n", args...)
	}
}

// printError prints error messages.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
