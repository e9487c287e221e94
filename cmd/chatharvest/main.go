package main

import (
	"os"

	"github.com/ppiankov/chatharvest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
