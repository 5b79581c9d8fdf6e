// Package main provides the entry point for the vaultscope CLI.
package main

import (
	"os"

	"github.com/vaultscope/vaultscope/cmd/vaultscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
