package main

import (
	"os"

	"e2e_messaging/cmd/client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
