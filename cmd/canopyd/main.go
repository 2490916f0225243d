// Package main provides the entry point for canopyd.
package main

import (
	"os"

	"github.com/canopy-project/canopy/cmd/canopyd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
