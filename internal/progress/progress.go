// Package progress renders LoadStatus snapshots (spec.md §3, "Load status
// snapshot") to a terminal, redrawing in place the way the teacher's batch
// scheduler does; when the output isn't a terminal, each snapshot is
// appended as plain lines instead.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"

	"github.com/eeks-rt/eeks"
)

// Renderer prints a LoadStatus snapshot, overwriting its previous render
// when attached to a terminal.
type Renderer struct {
	out        io.Writer
	isTerminal bool
	lastLines  int
}

// NewRenderer returns a Renderer writing to out. Terminal detection
// consults both isatty (are we a tty at all) and an ioctl probe (can we
// actually query terminal attributes), matching the teacher's own
// belt-and-suspenders isTerminal check.
func NewRenderer(out *os.File) *Renderer {
	term := isatty.IsTerminal(out.Fd())
	if term {
		if _, err := unix.IoctlGetTermios(int(out.Fd()), unix.TCGETS); err != nil {
			term = false
		}
	}
	return &Renderer{out: out, isTerminal: term}
}

// Observer returns an eeks.Observer that renders every snapshot it
// receives.
func (r *Renderer) Observer() eeks.Observer {
	return func(status eeks.LoadStatus) { r.Render(status) }
}

// Render prints status. On a terminal, it first erases the previous
// render's lines with the same cursor-restore trick the teacher's
// scheduler uses (`\033[%dA` to move the cursor back up); on a non-
// terminal it just appends, since there is no cursor to restore.
func (r *Renderer) Render(status eeks.LoadStatus) {
	lines := render(status)
	if !r.isTerminal {
		for _, l := range lines {
			fmt.Fprintln(r.out, l)
		}
		return
	}

	if r.lastLines > 0 {
		fmt.Fprintf(r.out, "\033[%dA", r.lastLines)
	}
	maxLen := 0
	for _, l := range lines {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	for _, l := range lines {
		if pad := maxLen - len(l); pad > 0 {
			l += strings.Repeat(" ", pad)
		}
		fmt.Fprintln(r.out, l)
	}
	r.lastLines = len(lines)
}

func render(status eeks.LoadStatus) []string {
	var lines []string
	lines = append(lines, fmt.Sprintf("pending: %d, completed: %d", len(status.Pending), len(status.Completed)))
	for _, p := range status.Pending {
		kind := "soft"
		if p.HardReload {
			kind = "hard"
		}
		lines = append(lines, fmt.Sprintf("  %s (%s)", p.Name, kind))
	}
	for _, name := range status.Completed {
		lines = append(lines, fmt.Sprintf("  done: %s", name))
	}
	return lines
}
