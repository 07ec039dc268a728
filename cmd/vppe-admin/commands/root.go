// Package commands implements vppe-admin's cobra subcommands, grounded
// on libs/knowledge-engine/cmd/orchestrator/commands/root.go's
// global-flag/PersistentPreRunE pattern.
package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "vppe-admin",
	Short: "Operator CLI for the PDF-to-EPUB conversion service",
	Long:  "vppe-admin lists and inspects conversion jobs, triggers retries, and forces cleanup sweeps against a running vppe-server.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "vppe-server base URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
