package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Console renders events as status lines. On a terminal the line of the
// current item is rewritten in place; otherwise only final events are
// printed, one per line.
type Console struct {
	out  io.Writer
	tty  bool
	open bool // a status line without newline is pending

	done    *color.Color
	warn    *color.Color
	fail    *color.Color
	faint   *color.Color
	nameLen int
}

// NewConsole creates a console on out. Colours and in-place updates are
// enabled when out is a terminal.
func NewConsole(out io.Writer) *Console {
	return newConsole(out, isTerminal(out))
}

func newConsole(out io.Writer, tty bool) *Console {
	c := &Console{
		out:     out,
		tty:     tty,
		done:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		faint:   color.New(color.Faint),
		nameLen: 50,
	}
	for _, col := range []*color.Color{c.done, c.warn, c.fail, c.faint} {
		if tty {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Notify renders e
func (c *Console) Notify(e Event) {
	if e.Phase == Info {
		c.finishLine()
		fmt.Fprintln(c.out, e.Message)
		return
	}
	if !e.Final && !c.tty {
		return
	}

	line := c.format(e)
	if c.tty {
		// \x1b[K clears the rest of the previous status line
		fmt.Fprint(c.out, "\r"+line+"\x1b[K")
		c.open = true
		if e.Final {
			c.finishLine()
		}
		return
	}
	fmt.Fprintln(c.out, line)
}

// Printf writes a plain line, ending any pending status line first
func (c *Console) Printf(format string, args ...any) {
	c.finishLine()
	fmt.Fprintf(c.out, format, args...)
	if !strings.HasSuffix(format, "\n") {
		fmt.Fprintln(c.out)
	}
}

func (c *Console) finishLine() {
	if c.open {
		fmt.Fprintln(c.out)
		c.open = false
	}
}

func (c *Console) format(e Event) string {
	var b strings.Builder
	if e.Total > 0 {
		w := len(fmt.Sprint(e.Total))
		fmt.Fprintf(&b, "[%*d/%d] ", w, e.Index, e.Total)
	}
	fmt.Fprintf(&b, "%-*s ", c.nameLen, e.Item)

	msg := e.Message
	switch e.Phase {
	case Done:
		msg = c.done.Sprint(msg)
	case Skipped:
		msg = c.warn.Sprint(msg)
	case Failed:
		msg = c.fail.Sprint(msg)
	case Unchanged:
		msg = c.faint.Sprint(msg)
	}
	b.WriteString(msg)
	return strings.TrimRight(b.String(), " ")
}
