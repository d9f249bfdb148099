package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	status, err := postJSON(fmt.Sprintf("/run/%s/cancel", jobID), &resp)
	if err != nil {
		printError("cancel request failed: %v", err)
		return err
	}

	if resp.Cancelled {
		printInfo(cmd, "job %s cancelled", jobID)
	} else {
		printInfo(cmd, "job %s was not running (status %d)", jobID, status)
	}
	return nil
}
