package main

import (
	"os"

	"github.com/wonny/loflimit/cmd/loflimit/commands"
)

// main is the entry point for the loflimit CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
