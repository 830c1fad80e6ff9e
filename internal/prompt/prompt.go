// Package prompt asks the user to confirm pushes and resolve conflicts.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/lettersync/lettersync/internal/letter"
)

// Terminal reads answers line by line from in and writes questions to out
type Terminal struct {
	in  *bufio.Reader
	out io.Writer

	banner *color.Color
	ask    *color.Color
	added  *color.Color
	remove *color.Color
	hunk   *color.Color
}

// NewTerminal creates a prompt. Colours follow fatih/color's detection of
// the standard output.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		banner: color.New(color.BgRed, color.FgWhite),
		ask:    color.New(color.FgCyan),
		added:  color.New(color.FgGreen),
		remove: color.New(color.FgRed),
		hunk:   color.New(color.FgBlue),
	}
}

// Confirm asks a yes/no question that defaults to no
func (t *Terminal) Confirm(ctx context.Context, msg string) (bool, error) {
	fmt.Fprintf(t.out, "%s (y/N) ", msg)
	answer, err := t.readAnswer(ctx)
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "yes", nil
}

// ResolveConflict shows the conflict and asks whether to continue. Answering
// "d" prints a diff from the Alma version to the local one and asks again.
// End of input counts as no.
func (t *Terminal) ResolveConflict(ctx context.Context, c letter.Conflict) (bool, error) {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.banner.Sprintf("\n\n  Conflict: %s\n", c.Message))

	question := fmt.Sprintf("Continue with %s? [y: yes, n: no, d: diff] ", c.Filename)
	for {
		fmt.Fprint(t.out, t.ask.Sprint(question))
		answer, err := t.readAnswer(ctx)
		if err != nil {
			return false, err
		}
		if answer != "" {
			answer = answer[:1]
		}
		if answer != "d" {
			return answer == "y", nil
		}
		if err := t.showDiff(c.Remote, c.Local); err != nil {
			return false, err
		}
	}
}

func (t *Terminal) showDiff(remote, local letter.Content) error {
	diff, err := Diff(remote, local)
	if err != nil {
		return err
	}

	fmt.Fprintln(t.out)
	for _, line := range difflib.SplitLines(diff) {
		line = strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "+"):
			line = t.added.Sprint(line)
		case strings.HasPrefix(line, "-"):
			line = t.remove.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			line = t.hunk.Sprint(line)
		}
		fmt.Fprintln(t.out, line)
	}
	return nil
}

// Diff returns the unified diff from the Alma version to the local one
func Diff(remote, local letter.Content) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(remote.Text),
		B:        difflib.SplitLines(local.Text),
		FromFile: "Alma",
		ToFile:   "Local",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute diff: %w", err)
	}
	return diff, nil
}

// readAnswer returns the next line, trimmed and lowercased. End of input
// yields an empty answer.
func (t *Terminal) readAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}
