package main

import (
	"os"

	"github.com/alexisbeaulieu97/loom/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// newLogger builds the CLI logger: quiet by default, debug with
// --verbose.
func newLogger(flags *rootFlags, component string) (ports.Logger, error) {
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	return logging.New(logging.Options{
		Writer:    os.Stderr,
		Level:     level,
		Layer:     "cli",
		Component: component,
	})
}
