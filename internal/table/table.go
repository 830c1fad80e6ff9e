// Package table drives the Alma configuration listings that hold letters.
// One Table type serves every listing variant; the variants differ only in
// the selectors of their config.TableConfig.
package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/lettersync/lettersync/internal/config"
	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/letter"
)

// ErrWrongPage is returned when a record page does not show the expected letter
var ErrWrongPage = errors.New("unexpected letter page")

// Options carries the navigation settings shared by all tables
type Options struct {
	StartPath   string
	Timeout     time.Duration
	SaveTimeout time.Duration
	SettleDelay time.Duration
}

// OptionsFromConfig extracts table options from the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StartPath:   cfg.Alma.StartPath,
		Timeout:     cfg.Browser.Timeout,
		SaveTimeout: cfg.Sync.SaveTimeout,
		SettleDelay: cfg.Sync.SettleDelay,
	}
}

// Table is one configuration listing page
type Table struct {
	drv    driver.Driver
	cfg    config.TableConfig
	pages  config.PageConfig
	opts   Options
	logger *slog.Logger
}

// New creates a table for the given listing variant
func New(drv driver.Driver, cfg config.TableConfig, pages config.PageConfig, opts Options, logger *slog.Logger) *Table {
	return &Table{
		drv:    drv,
		cfg:    cfg,
		pages:  pages,
		opts:   opts,
		logger: logger.With("table", cfg.Name),
	}
}

// FromConfig creates one table per configured variant, in order
func FromConfig(drv driver.Driver, cfg *config.Config, logger *slog.Logger) []*Table {
	opts := OptionsFromConfig(cfg)
	tables := make([]*Table, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		tables = append(tables, New(drv, tc, cfg.Pages, opts, logger))
	}
	return tables
}

// Name returns the page name of the listing
func (t *Table) Name() string {
	return t.cfg.Name
}

// Open shows the listing. It does nothing when the listing is already
// displayed; otherwise it walks start page, configuration menu, General
// and the subpage link.
func (t *Table) Open(ctx context.Context) error {
	ok, err := t.drv.Exists(ctx, driver.Parse(t.cfg.Table))
	if err != nil {
		t.logger.Debug("listing lookup failed, navigating", "error", err)
	}
	if ok {
		return nil
	}

	t.logger.Info("opening table")
	if err := Home(ctx, t.drv, t.opts, t.pages); err != nil {
		return err
	}
	if err := t.drv.Click(ctx, driver.TextEquals(t.cfg.Name)); err != nil {
		return fmt.Errorf("failed to open %s: %w", t.cfg.Name, err)
	}
	if err := t.drv.WaitFor(ctx, driver.Parse(t.cfg.Table), t.opts.Timeout); err != nil {
		return fmt.Errorf("failed to open %s: %w", t.cfg.Name, err)
	}
	return nil
}

// Read lists the rows currently shown. Indices are positional and only
// valid until the next Read.
func (t *Table) Read(ctx context.Context) ([]letter.Info, error) {
	n, err := t.drv.Count(ctx, driver.Parse(t.cfg.Row))
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	// Only the first page of the listing is read
	rows := make([]letter.Info, 0, n)
	for i := 0; i < n; i++ {
		name, err := t.drv.Text(ctx, driver.Indexed(t.cfg.NameColumn, i))
		if err != nil {
			return nil, fmt.Errorf("failed to read name of row %d: %w", i, err)
		}

		var channel string
		if t.cfg.ChannelColumn != "" {
			channel, err = t.drv.Text(ctx, driver.Indexed(t.cfg.ChannelColumn, i))
			if err != nil && !errors.Is(err, driver.ErrNotFound) {
				return nil, fmt.Errorf("failed to read channel of row %d: %w", i, err)
			}
		}

		rows = append(rows, letter.Info{Name: name, Index: i, Channel: channel})
	}

	t.logger.Debug("read table", "rows", len(rows))
	return rows, nil
}

// OpenLetter opens the record of info and returns the content of its
// Template tab. A record page for another letter yields ErrWrongPage.
func (t *Table) OpenLetter(ctx context.Context, info letter.Info) (letter.Content, error) {
	if err := t.Open(ctx); err != nil {
		return letter.Content{}, err
	}

	nameSel := driver.Indexed(t.cfg.NameColumn, info.Index)
	if err := t.drv.WaitFor(ctx, nameSel, t.opts.Timeout); err != nil {
		return letter.Content{}, err
	}
	if err := sleep(ctx, t.opts.SettleDelay); err != nil {
		return letter.Content{}, err
	}

	if err := t.drv.ScrollIntoViewAndClick(ctx, nameSel.Child("a")); err != nil {
		return letter.Content{}, fmt.Errorf("failed to open %s: %w", info.UniqueName(), err)
	}
	if err := sleep(ctx, t.opts.SettleDelay); err != nil {
		return letter.Content{}, err
	}

	if err := t.assertPage(ctx, info); err != nil {
		return letter.Content{}, err
	}

	tab := driver.Parse(t.pages.TemplateTab)
	if err := t.drv.WaitFor(ctx, tab, t.opts.Timeout); err != nil {
		return letter.Content{}, err
	}
	if err := t.drv.ScrollIntoViewAndClick(ctx, tab); err != nil {
		return letter.Content{}, fmt.Errorf("failed to open template tab: %w", err)
	}

	textarea := driver.Parse(t.pages.TemplateTextarea)
	if err := t.drv.WaitFor(ctx, textarea, t.opts.Timeout); err != nil {
		return letter.Content{}, err
	}
	text, err := t.drv.Text(ctx, textarea)
	if err != nil {
		return letter.Content{}, fmt.Errorf("failed to read template: %w", err)
	}

	return letter.NewContent(text, info.Filename()), nil
}

// CloseLetter leaves a record page through its cancel button. It does
// nothing when no record is open.
func (t *Table) CloseLetter(ctx context.Context) error {
	open, err := t.drv.Exists(ctx, driver.Parse(t.pages.PageTitle))
	if err != nil || !open {
		return err
	}
	if err := t.drv.ScrollIntoViewAndClick(ctx, driver.Parse(t.pages.CancelButton)); err != nil {
		return fmt.Errorf("failed to close letter: %w", err)
	}
	return nil
}

// PutContents replaces the template of the open record by script and saves
// it.
func (t *Table) PutContents(ctx context.Context, info letter.Info, content letter.Content) error {
	if err := t.assertPage(ctx, info); err != nil {
		return err
	}

	script, err := setValueScript(driver.Parse(t.pages.TemplateTextarea), content.Text)
	if err != nil {
		return err
	}
	if err := t.drv.ExecuteScript(ctx, script); err != nil {
		return fmt.Errorf("failed to set template: %w", err)
	}

	// Letters that were never customized only offer "Customize"
	btn := driver.Parse(t.pages.SaveButton)
	ok, err := t.drv.Exists(ctx, btn)
	if err != nil {
		return fmt.Errorf("failed to look up save button: %w", err)
	}
	if !ok {
		btn = driver.Parse(t.pages.CustomizeButton)
	}
	if err := t.drv.Click(ctx, btn); err != nil {
		return fmt.Errorf("failed to save %s: %w", info.UniqueName(), err)
	}

	if err := t.drv.WaitFor(ctx, driver.Parse(t.pages.ListingReady), t.opts.SaveTimeout); err != nil {
		return fmt.Errorf("save of %s not confirmed: %w", info.UniqueName(), err)
	}
	return nil
}

// IsCustomized reports whether the row holds a local customization rather
// than the vendor or network default
func (t *Table) IsCustomized(ctx context.Context, info letter.Info) (bool, error) {
	if t.cfg.CustomizedColumn == "" {
		return false, fmt.Errorf("table %s has no customized column", t.cfg.Name)
	}

	sel := driver.Indexed(t.cfg.CustomizedColumn, info.Index)
	if err := t.drv.WaitFor(ctx, sel, t.opts.Timeout); err != nil {
		return false, err
	}
	text, err := t.drv.Text(ctx, sel)
	if err != nil {
		return false, err
	}
	return text != "-" && text != "Network", nil
}

// assertPage checks that the record page of info is displayed
func (t *Table) assertPage(ctx context.Context, info letter.Info) error {
	if err := t.drv.WaitFor(ctx, driver.Parse(t.pages.TemplateTab), t.opts.Timeout); err != nil {
		return err
	}
	title := driver.Parse(t.pages.PageTitle)
	if err := t.drv.WaitFor(ctx, title, t.opts.Timeout); err != nil {
		return err
	}
	got, err := t.drv.Text(ctx, title)
	if err != nil {
		return err
	}
	if got != info.Name {
		return fmt.Errorf("%w: %q != %q", ErrWrongPage, got, info.Name)
	}
	return nil
}

// Home navigates to the start page and opens the General configuration menu
func Home(ctx context.Context, drv driver.Driver, opts Options, pages config.PageConfig) error {
	if err := drv.Navigate(ctx, opts.StartPath); err != nil {
		return fmt.Errorf("failed to open start page: %w", err)
	}
	menu := driver.Parse(pages.ConfigurationMenu)
	if err := drv.WaitClickable(ctx, menu, opts.Timeout); err != nil {
		return fmt.Errorf("configuration menu not available: %w", err)
	}
	if err := drv.Click(ctx, menu); err != nil {
		return fmt.Errorf("failed to open configuration menu: %w", err)
	}
	if err := drv.Click(ctx, driver.Parse(pages.GeneralMenu)); err != nil {
		return fmt.Errorf("failed to open general configuration: %w", err)
	}
	return nil
}

// WaitForLogin opens the start page and waits until the configuration menu
// shows up, giving the user time to complete single sign-on
func WaitForLogin(ctx context.Context, drv driver.Driver, opts Options, pages config.PageConfig, timeout time.Duration) error {
	if err := drv.Navigate(ctx, opts.StartPath); err != nil {
		return fmt.Errorf("failed to open start page: %w", err)
	}
	if err := drv.WaitFor(ctx, driver.Parse(pages.ConfigurationMenu), timeout); err != nil {
		return fmt.Errorf("not logged in to Alma: %w", err)
	}
	return nil
}

// setValueScript builds a statement assigning value to the element at sel.
// Both strings are embedded as JSON literals, which are valid JavaScript.
func setValueScript(sel driver.Selector, value string) (string, error) {
	// json.Marshal would replace invalid bytes with U+FFFD
	if !utf8.ValidString(value) {
		return "", errors.New("template is not valid UTF-8")
	}
	v, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode template: %w", err)
	}
	q, err := json.Marshal(sel.Value)
	if err != nil {
		return "", fmt.Errorf("failed to encode selector: %w", err)
	}

	var lookup string
	if sel.By == driver.ByXPath {
		lookup = fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", q)
	} else {
		lookup = fmt.Sprintf("document.querySelector(%s)", q)
	}
	return fmt.Sprintf("%s.value = %s;", lookup, v), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
