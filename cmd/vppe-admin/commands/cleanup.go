package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Force an immediate TTL cleanup sweep",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if err := forceCleanup(); err != nil {
		return err
	}
	fmt.Println("cleanup sweep completed")
	return nil
}
