// Command bumpcheck runs end-to-end scenarios against a version-bump CI
// action.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bumpcheck/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
