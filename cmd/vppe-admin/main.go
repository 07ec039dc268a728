// Command vppe-admin is an operator CLI for the conversion service:
// list/show jobs, trigger a retry, or force an out-of-band cleanup
// sweep. Entrypoint shape grounded on
// libs/knowledge-engine/cmd/orchestrator's main.go/root.go split.
package main

import (
	"fmt"
	"os"

	"github.com/spherical/vppe/cmd/vppe-admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
