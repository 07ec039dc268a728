package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var waitForCompletion bool

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Re-process a job's failed pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&waitForCompletion, "wait", false, "block until the job reaches a terminal state")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	pages, err := postRetry(jobID)
	if err != nil {
		return err
	}
	fmt.Printf("retrying %d page(s) for job %s: %v\n", len(pages), jobID, pages)

	if !waitForCompletion {
		return nil
	}

	s := newWaitSpinner(fmt.Sprintf("waiting for job %s to finish", jobID))
	s.Start()
	defer s.Stop()

	for {
		job, err := fetchJob(jobID)
		if err != nil {
			return err
		}
		if job.Status == "completed" || job.Status == "failed" {
			s.Stop()
			if job.Status == "completed" {
				fmt.Println(color.GreenString("job %s completed", jobID))
			} else {
				fmt.Println(color.RedString("job %s failed: %s", jobID, job.Error))
			}
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}
