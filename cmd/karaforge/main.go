// Package main is the entry point for the karaforge CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/karaforge/karaforge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Command failures were already reported through the output
		// formatter; anything else (flag typos, unknown subcommands)
		// still needs printing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
