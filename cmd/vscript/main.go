// Command vscript validates, converts, inspects, runs and stores visual
// script programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vscript/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
