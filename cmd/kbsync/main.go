// Command kbsync manages the dual-store knowledge base: create records,
// reconcile drift, and check index integrity.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kbsync/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		// Single-line cause; commands have already printed any
		// structured output they wanted.
		fmt.Fprintln(os.Stderr, "kbsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
