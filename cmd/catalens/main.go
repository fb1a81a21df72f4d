package main

import (
	"os"

	"github.com/arcadia-data/catalens/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
