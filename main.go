package main

import (
	"os"

	"github.com/gpuhunt/listing-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
