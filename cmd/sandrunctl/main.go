package main

import (
	"os"

	"github.com/lumicore/sandrun/cmd/sandrunctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
