// Package main is the entry point for the screenrec application.
package main

import (
	"os"

	"github.com/jmylchreest/screenrec/cmd/screenrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
