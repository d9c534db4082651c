// Package main provides the leapdata CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapdata/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
