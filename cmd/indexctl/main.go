package main

import (
	"os"

	"pressindex/cmd/indexctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
