package main

import (
	"os"

	"olmbox/cmd/olmbox/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
