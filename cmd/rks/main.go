package main

import (
	"os"

	"github.com/okian/rks/cmd/rks/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
