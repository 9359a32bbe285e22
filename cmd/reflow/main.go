package main

import (
	"os"

	"github.com/reflow-ui/reflow/cmd/reflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
