package main

import (
	"os"

	"github.com/mailtrail-systems/mailtrail/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
