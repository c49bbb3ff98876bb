// Package main is the entry point for the loveledger CLI.
package main

import (
	"os"

	"github.com/LoveLedger/LoveLedger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
