package main

import (
	"os"

	"github.com/aegisguard/aegis/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
