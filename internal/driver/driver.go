// Package driver defines the browser automation capabilities lettersync
// consumes and a go-rod implementation of them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by non-waiting lookups that match nothing
	ErrNotFound = errors.New("element not found")
	// ErrTimeout is returned when a wait expires
	ErrTimeout = errors.New("timed out waiting for element")
)

// By selects the query language of a Selector
type By int

const (
	ByCSS By = iota
	ByXPath
)

// Selector locates elements on the current page
type Selector struct {
	By    By
	Value string
}

// CSS returns a CSS selector
func CSS(v string) Selector {
	return Selector{By: ByCSS, Value: v}
}

// XPath returns an XPath selector
func XPath(v string) Selector {
	return Selector{By: ByXPath, Value: v}
}

const xpathPrefix = "xpath:"

// Parse turns a configuration string into a Selector. Strings starting
// with "xpath:" are XPath, everything else is CSS.
func Parse(s string) Selector {
	if rest, ok := strings.CutPrefix(s, xpathPrefix); ok {
		return XPath(rest)
	}
	return CSS(s)
}

// Indexed formats a selector template containing %d with a row index
func Indexed(template string, index int) Selector {
	return Parse(fmt.Sprintf(template, index))
}

// Child appends a CSS descendant step to a CSS selector
func (s Selector) Child(css string) Selector {
	return Selector{By: s.By, Value: s.Value + " " + css}
}

// String returns the selector in configuration syntax
func (s Selector) String() string {
	if s.By == ByXPath {
		return xpathPrefix + s.Value
	}
	return s.Value
}

// TextEquals returns an XPath selector for any element whose text is exactly text
func TextEquals(text string) Selector {
	return XPath(fmt.Sprintf(`//*[text() = %s]`, xpathLiteral(text)))
}

// xpathLiteral quotes s for use in an XPath expression
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

// Driver is the UI automation surface used to talk to Alma. Lookups act on
// the current window; Wait* block until the condition holds or the timeout
// expires with ErrTimeout.
type Driver interface {
	// Navigate loads a path relative to the Alma base URL
	Navigate(ctx context.Context, path string) error
	// Exists reports whether at least one element matches, without waiting
	Exists(ctx context.Context, sel Selector) (bool, error)
	// Count returns the number of matching elements, without waiting
	Count(ctx context.Context, sel Selector) (int, error)
	// Text returns the visible text of the first match, without waiting
	Text(ctx context.Context, sel Selector) (string, error)
	// Properties returns a DOM property of every match
	Properties(ctx context.Context, sel Selector, name string) ([]string, error)
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error
	WaitClickable(ctx context.Context, sel Selector, timeout time.Duration) error
	// Click waits for the element with the default timeout and clicks it
	Click(ctx context.Context, sel Selector) error
	ScrollIntoViewAndClick(ctx context.Context, sel Selector) error
	// ExecuteScript runs a block of JavaScript statements in the page
	ExecuteScript(ctx context.Context, script string) error
	SetFiles(ctx context.Context, sel Selector, paths []string) error
	CurrentWindow(ctx context.Context) (string, error)
	// Windows lists window handles, oldest first
	Windows(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	SetWindowSize(ctx context.Context, width, height int) error
	PageSource(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}
