package main

import (
	"os"

	"github.com/venue-ops/collab/cmd/collabctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
