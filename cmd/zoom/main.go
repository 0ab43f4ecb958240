package main

import (
	"os"

	"github.com/psantana5/stopwatch/cmd/zoom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
