// Package main is the entry point for the prat terminal chat client.
package main

import (
	"fmt"
	"os"

	"github.com/pratchat/prat/internal/prattui"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var _ = []string{commit, date}

func main() {
	if err := prattui.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
