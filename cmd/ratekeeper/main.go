package main

import (
	"os"

	"github.com/solatis/ratekeeper/cmd/ratekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
