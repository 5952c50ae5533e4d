package console

import (
	"fmt"
	"io"
	"time"
)

// Check is one line of the startup checklist.
type Check struct {
	Label string
	OK    bool
}

// PrintStartup prints the startup checklist, one line at a time.
func PrintStartup(w io.Writer, checks []Check, delay time.Duration) {
	fmt.Fprintln(w, "  starting up...")

	for _, c := range checks {
		time.Sleep(delay)
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, c.Label)
	}
	fmt.Fprintln(w)
}
