package cli

import (
	"fmt"
	"io"

	"github.com/3leaps/swissfetch/internal/fault"
)

// Handler is the program entrypoint for CLI execution.
//
// The main package sets it in init so tests can call Run in-process.
var Handler func(args []string, stdout, stderr io.Writer) int

// Run invokes Handler and returns its exit status.
func Run(args []string, stdout, stderr io.Writer) int {
	if Handler == nil {
		fmt.Fprintln(stderr, "internal error: cli handler not configured")
		return fault.ExitInternal
	}
	return Handler(args, stdout, stderr)
}
