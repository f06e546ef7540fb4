package main

import (
	"errors"
	"fmt"
	"os"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The report already says what went wrong.
		if !errors.Is(err, errVerdictFailed) && !errors.Is(err, errSimulationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
