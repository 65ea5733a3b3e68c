package main

import (
	"fmt"
	"os"

	"github.com/servetable/servetable/internal/cli"
	"github.com/servetable/servetable/internal/cli/ui"
)

// Set via -ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError(err))
		os.Exit(1)
	}
}
