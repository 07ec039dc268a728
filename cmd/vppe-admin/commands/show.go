package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show detailed status for a single job",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	job, err := fetchJob(args[0])
	if err != nil {
		return err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "status:      %s\n", colorStatus(job.Status))
	fmt.Fprintf(&body, "file:        %s\n", job.PDFFilename)
	fmt.Fprintf(&body, "language:    %s\n", job.Language)
	fmt.Fprintf(&body, "pages:       %d/%d completed (%d succeeded, %d failed)\n",
		job.PagesCompleted, job.TotalPages, job.PagesSucceeded, job.PagesFailed)
	if len(job.FailedPages) > 0 {
		fmt.Fprintf(&body, "failed:      %v\n", job.FailedPages)
	}
	fmt.Fprintf(&body, "created:     %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Fprintf(&body, "started:     %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(&body, "completed:   %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(&body, "duration:    %s\n", formatDuration(job.CompletedAt.Sub(job.CreatedAt)))
	}
	if job.Error != "" {
		fmt.Fprintf(&body, "error:       %s\n", job.Error)
	}

	box(fmt.Sprintf("job %s", job.ID), strings.TrimRight(body.String(), "\n"))
	return nil
}
