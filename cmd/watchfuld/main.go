package main

import (
	"os"
)

// These variables are populated by the build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := newRootCmd(os.Stdout)
	cmd.Version = version + " (" + commit + ")"
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
