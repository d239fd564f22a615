// Command statekeep dispatches events to file-backed state domains.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/statekeep/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
