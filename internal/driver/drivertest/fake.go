// Package drivertest provides a scripted in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lettersync/lettersync/internal/driver"
)

// Element is a fake DOM node set. Count is the number of nodes the
// selector matches; zero means one.
type Element struct {
	Text  string
	Count int
	Props map[string][]string
}

// Fake is a page whose elements are keyed by selector string. Handlers let
// tests script what clicks and navigation do to the page.
type Fake struct {
	Elements map[string]*Element

	OnClick    map[string]func(f *Fake) error
	OnNavigate func(f *Fake, path string) error
	OnScript   func(f *Fake, script string) error

	// WaitErrs queues errors returned by successive WaitFor calls on a selector
	WaitErrs map[string][]error
	// LookupErrs fails non-waiting lookups on a selector
	LookupErrs map[string]error

	Navigations []string
	Clicks      []string
	Scripts     []string
	Files       map[string][]string

	WindowList []string
	Current    string
	Sources    map[string]string
	Sizes      [][2]int
	Closed     bool
}

var _ driver.Driver = (*Fake)(nil)

// New returns an empty fake with a single window "main"
func New() *Fake {
	return &Fake{
		Elements:   make(map[string]*Element),
		OnClick:    make(map[string]func(f *Fake) error),
		WaitErrs:   make(map[string][]error),
		LookupErrs: make(map[string]error),
		Files:      make(map[string][]string),
		WindowList: []string{"main"},
		Current:    "main",
		Sources:    make(map[string]string),
	}
}

// Set places an element with the given text on the page
func (f *Fake) Set(sel, text string) *Element {
	el := &Element{Text: text}
	f.Elements[sel] = el
	return el
}

// Remove takes elements off the page
func (f *Fake) Remove(sels ...string) {
	for _, s := range sels {
		delete(f.Elements, s)
	}
}

// Has reports whether the selector is on the page
func (f *Fake) Has(sel string) bool {
	_, ok := f.Elements[sel]
	return ok
}

// ClickCount returns how often sel was clicked
func (f *Fake) ClickCount(sel string) int {
	n := 0
	for _, c := range f.Clicks {
		if c == sel {
			n++
		}
	}
	return n
}

func (f *Fake) Navigate(_ context.Context, path string) error {
	f.Navigations = append(f.Navigations, path)
	if f.OnNavigate != nil {
		return f.OnNavigate(f, path)
	}
	return nil
}

func (f *Fake) Exists(_ context.Context, sel driver.Selector) (bool, error) {
	if err := f.LookupErrs[sel.String()]; err != nil {
		return false, err
	}
	return f.Has(sel.String()), nil
}

func (f *Fake) Count(_ context.Context, sel driver.Selector) (int, error) {
	el, ok := f.Elements[sel.String()]
	if !ok {
		return 0, nil
	}
	if el.Count == 0 {
		return 1, nil
	}
	return el.Count, nil
}

func (f *Fake) Text(_ context.Context, sel driver.Selector) (string, error) {
	el, ok := f.Elements[sel.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", driver.ErrNotFound, sel)
	}
	return el.Text, nil
}

func (f *Fake) Properties(_ context.Context, sel driver.Selector, name string) ([]string, error) {
	el, ok := f.Elements[sel.String()]
	if !ok {
		return nil, nil
	}
	return el.Props[name], nil
}

func (f *Fake) WaitFor(_ context.Context, sel driver.Selector, _ time.Duration) error {
	key := sel.String()
	if errs := f.WaitErrs[key]; len(errs) > 0 {
		f.WaitErrs[key] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	if !f.Has(key) {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, key)
	}
	return nil
}

func (f *Fake) WaitClickable(ctx context.Context, sel driver.Selector, timeout time.Duration) error {
	return f.WaitFor(ctx, sel, timeout)
}

func (f *Fake) Click(_ context.Context, sel driver.Selector) error {
	key := sel.String()
	if !f.Has(key) {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, key)
	}
	f.Clicks = append(f.Clicks, key)
	if h, ok := f.OnClick[key]; ok {
		return h(f)
	}
	return nil
}

func (f *Fake) ScrollIntoViewAndClick(ctx context.Context, sel driver.Selector) error {
	return f.Click(ctx, sel)
}

func (f *Fake) ExecuteScript(_ context.Context, script string) error {
	f.Scripts = append(f.Scripts, script)
	if f.OnScript != nil {
		return f.OnScript(f, script)
	}
	return nil
}

func (f *Fake) SetFiles(_ context.Context, sel driver.Selector, paths []string) error {
	key := sel.String()
	if !f.Has(key) {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, key)
	}
	f.Files[key] = append([]string(nil), paths...)
	return nil
}

func (f *Fake) CurrentWindow(_ context.Context) (string, error) {
	return f.Current, nil
}

func (f *Fake) Windows(_ context.Context) ([]string, error) {
	return append([]string(nil), f.WindowList...), nil
}

func (f *Fake) SwitchWindow(_ context.Context, handle string) error {
	for _, w := range f.WindowList {
		if w == handle {
			f.Current = handle
			return nil
		}
	}
	return fmt.Errorf("no such window %q", handle)
}

func (f *Fake) SetWindowSize(_ context.Context, width, height int) error {
	f.Sizes = append(f.Sizes, [2]int{width, height})
	return nil
}

func (f *Fake) PageSource(_ context.Context) (string, error) {
	return f.Sources[f.Current], nil
}

func (f *Fake) Screenshot(_ context.Context, path string) error {
	return os.WriteFile(path, []byte("PNG:"+f.Current), 0644)
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
