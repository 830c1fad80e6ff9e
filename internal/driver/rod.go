package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures the rod-backed driver
type Options struct {
	BaseURL        string
	Bin            string
	DebuggerURL    string
	UserDataDir    string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Timeout        time.Duration
}

// Rod implements Driver on top of a Chrome DevTools session
type Rod struct {
	opts     Options
	logger   *slog.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	order    []proto.TargetTargetID
}

// Launch attaches to DebuggerURL when set, otherwise starts a local Chrome
func Launch(ctx context.Context, opts Options, logger *slog.Logger) (*Rod, error) {
	d := &Rod{opts: opts, logger: logger}

	controlURL := opts.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		d.launcher = l
		controlURL = u
	}

	logger.Debug("connecting to browser", "control_url", controlURL)
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		d.cleanup()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	d.page = page
	d.order = append(d.order, page.TargetID)

	if err := d.SetWindowSize(ctx, opts.ViewportWidth, opts.ViewportHeight); err != nil {
		logger.Warn("failed to set viewport", "error", err)
	}

	return d, nil
}

// Navigate loads a path relative to the base URL
func (d *Rod) Navigate(ctx context.Context, path string) error {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = strings.TrimRight(d.opts.BaseURL, "/") + path
	}

	d.logger.Debug("navigating", "url", url)
	p := d.page.Context(ctx).Timeout(d.opts.Timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return classify(fmt.Errorf("navigate to %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return classify(fmt.Errorf("load %s: %w", url, err))
	}
	return nil
}

// Exists reports whether sel matches anything right now
func (d *Rod) Exists(ctx context.Context, sel Selector) (bool, error) {
	els, err := d.elements(ctx, sel)
	if err != nil {
		return false, err
	}
	return len(els) > 0, nil
}

// Count returns the number of current matches
func (d *Rod) Count(ctx context.Context, sel Selector) (int, error) {
	els, err := d.elements(ctx, sel)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// Text returns the trimmed text of the first match
func (d *Rod) Text(ctx context.Context, sel Selector) (string, error) {
	els, err := d.elements(ctx, sel)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	text, err := els.First().Text()
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", sel, err)
	}
	return strings.TrimSpace(text), nil
}

// Properties returns a DOM property of every match as strings
func (d *Rod) Properties(ctx context.Context, sel Selector, name string) ([]string, error) {
	els, err := d.elements(ctx, sel)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, err := el.Property(name)
		if err != nil {
			return nil, fmt.Errorf("read property %s of %s: %w", name, sel, err)
		}
		values = append(values, v.Str())
	}
	return values, nil
}

// WaitFor blocks until sel is present
func (d *Rod) WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := d.find(tctx, sel); err != nil {
		return classify(fmt.Errorf("wait for %s: %w", sel, err))
	}
	return nil
}

// WaitClickable blocks until sel is present, visible and enabled
func (d *Rod) WaitClickable(ctx context.Context, sel Selector, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := d.find(tctx, sel)
	if err == nil {
		err = el.WaitVisible()
	}
	if err == nil {
		err = el.WaitEnabled()
	}
	if err != nil {
		return classify(fmt.Errorf("wait for clickable %s: %w", sel, err))
	}
	return nil
}

// Click waits for sel and clicks it
func (d *Rod) Click(ctx context.Context, sel Selector) error {
	el, err := d.wait(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

// ScrollIntoViewAndClick scrolls sel into the viewport before clicking
func (d *Rod) ScrollIntoViewAndClick(ctx context.Context, sel Selector) error {
	el, err := d.wait(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s: %w", sel, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

// ExecuteScript runs script as the body of a function in the page
func (d *Rod) ExecuteScript(ctx context.Context, script string) error {
	if _, err := d.page.Context(ctx).Eval("() => {\n" + script + "\n}"); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}

// SetFiles selects local files on a file input
func (d *Rod) SetFiles(ctx context.Context, sel Selector, paths []string) error {
	el, err := d.wait(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.SetFiles(paths); err != nil {
		return fmt.Errorf("set files on %s: %w", sel, err)
	}
	return nil
}

// CurrentWindow returns the handle of the active page
func (d *Rod) CurrentWindow(_ context.Context) (string, error) {
	return string(d.page.TargetID), nil
}

// Windows returns all page handles in the order they were first seen
func (d *Rod) Windows(_ context.Context) ([]string, error) {
	pages, err := d.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	open := make(map[proto.TargetTargetID]bool, len(pages))
	for _, p := range pages {
		open[p.TargetID] = true
	}

	order := d.order[:0]
	known := make(map[proto.TargetTargetID]bool, len(pages))
	for _, id := range d.order {
		if open[id] {
			order = append(order, id)
			known[id] = true
		}
	}
	for _, p := range pages {
		if !known[p.TargetID] {
			order = append(order, p.TargetID)
		}
	}
	d.order = order

	handles := make([]string, 0, len(order))
	for _, id := range order {
		handles = append(handles, string(id))
	}
	return handles, nil
}

// SwitchWindow makes the page with the given handle current
func (d *Rod) SwitchWindow(_ context.Context, handle string) error {
	page, err := d.browser.PageFromTarget(proto.TargetTargetID(handle))
	if err != nil {
		return fmt.Errorf("switch to window %s: %w", handle, err)
	}
	if _, err := page.Activate(); err != nil {
		return fmt.Errorf("activate window %s: %w", handle, err)
	}
	d.page = page
	return nil
}

// SetWindowSize sets the viewport of the current page
func (d *Rod) SetWindowSize(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(d.page.Context(ctx))
}

// PageSource returns the serialized DOM of the current page
func (d *Rod) PageSource(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

// Screenshot saves a PNG of the current viewport to path
func (d *Rod) Screenshot(ctx context.Context, path string) error {
	data, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Close shuts the browser down and removes launcher leftovers
func (d *Rod) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	d.cleanup()
	return err
}

func (d *Rod) cleanup() {
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
}

// elements returns the current matches without waiting
func (d *Rod) elements(ctx context.Context, sel Selector) (rod.Elements, error) {
	p := d.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if sel.By == ByXPath {
		els, err = p.ElementsX(sel.Value)
	} else {
		els, err = p.Elements(sel.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sel, err)
	}
	return els, nil
}

// find retries the lookup until it matches or ctx is done
func (d *Rod) find(ctx context.Context, sel Selector) (*rod.Element, error) {
	p := d.page.Context(ctx)
	if sel.By == ByXPath {
		return p.ElementX(sel.Value)
	}
	return p.Element(sel.Value)
}

// wait finds sel within the default timeout and rebinds it to ctx
func (d *Rod) wait(ctx context.Context, sel Selector) (*rod.Element, error) {
	tctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	el, err := d.find(tctx, sel)
	if err != nil {
		return nil, classify(fmt.Errorf("wait for %s: %w", sel, err))
	}
	return el.Context(ctx), nil
}

// classify maps deadline errors onto ErrTimeout
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
