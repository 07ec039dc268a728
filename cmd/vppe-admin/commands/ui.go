package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
)

// box prints a bordered block, adapted from knowledge-engine's
// cmd/orchestrator/ui.Box for vppe-admin's job-detail output.
func box(title, content string) {
	lines := strings.Split(content, "\n")
	width := len(title)
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}
	if width < 40 {
		width = 40
	}

	fmt.Printf("┌%s┐\n", strings.Repeat("─", width+2))
	if title != "" {
		fmt.Printf("│ %-*s │\n", width, title)
		fmt.Printf("├%s┤\n", strings.Repeat("─", width+2))
	}
	for _, line := range lines {
		fmt.Printf("│ %-*s │\n", width, line)
	}
	fmt.Printf("└%s┘\n", strings.Repeat("─", width+2))
}

func keyValue(key, value string) {
	fmt.Printf("  %s: %s\n", key, value)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// newWaitSpinner mirrors knowledge-engine's ui.Spinner, used by retry's
// --wait flag while polling for a job to reach a terminal state.
func newWaitSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return s
}
