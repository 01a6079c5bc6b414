package main

import (
	"fmt"
	"os"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
