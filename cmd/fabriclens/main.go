// Command fabriclens analyzes InfiniBand fabric diagnostic dumps and
// reports a health score with the anomalies behind it.
//
// Usage:
//
//	fabriclens analyze /data/ibdiagnet2 --format text
//	fabriclens tables /data/ibdiagnet2/ibdiagnet2.db_csv
//	fabriclens analyzers
//	fabriclens serve --listen :8080
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error onto the process exit status
func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

// exitError carries a specific exit status out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
