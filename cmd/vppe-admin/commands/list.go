package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known jobs",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	jobs, err := listJobs()
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPAGES\tFAILED\tFILE")
	fmt.Fprintln(w, strings.Repeat("-", 8)+"\t"+strings.Repeat("-", 10)+"\t"+strings.Repeat("-", 7)+"\t"+strings.Repeat("-", 6)+"\t"+strings.Repeat("-", 20))
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
			job.ID, colorStatus(job.Status), job.PagesCompleted, job.TotalPages, job.PagesFailed, job.PDFFilename)
	}
	return w.Flush()
}

// colorStatus mirrors the knowledge-engine orchestrator UI's convention
// of coloring status strings for quick visual scanning.
func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "processing", "assembling":
		return color.YellowString(status)
	default:
		return status
	}
}
