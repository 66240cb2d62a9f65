package main

import (
	"os"

	"github.com/hkuds/runbox/cmd/runbox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
