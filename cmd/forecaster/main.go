package main

import (
	"os"

	"github.com/rustyeddy/forecaster/cmd/forecaster/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
