package main

import (
	"os"

	"github.com/xiyo/replica-builder/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
