package main

import (
	"os"

	"apwire/cmd/apcheck/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
