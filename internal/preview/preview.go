// Package preview renders letters through the Alma "Notification Template"
// page and saves the resulting HTML and a screenshot next to the input.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lettersync/lettersync/internal/config"
	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/fsutil"
	"github.com/lettersync/lettersync/internal/progress"
	"github.com/lettersync/lettersync/internal/table"
)

var (
	// ErrFileNotFound is returned for a missing input file
	ErrFileNotFound = errors.New("file not found")
	// ErrUnknownLanguage is returned when Alma does not offer the language
	ErrUnknownLanguage = errors.New("language not found")
)

// Elements of the Notification Template page
var (
	uploadButton    = driver.CSS("#cbuttonupload")
	languageSelect  = driver.CSS("#pageBeanuserPreferredLanguage")
	languageOptions = driver.CSS("#pageBeanuserPreferredLanguage_hiddenSelect option")
	fileInput       = driver.CSS("#pageBeannewFormFile")
	messages        = driver.CSS(".infoErrorMessages")
	runButton       = driver.CSS("#PAGE_BUTTONS_admconfigure_notification_templaterun_xsl")
)

var preferredLanguage = regexp.MustCompile(`<preferred_language>[a-z]+</preferred_language>`)

func languageItem(label string) driver.Selector {
	return driver.XPath(fmt.Sprintf(`//ul[@id="pageBeanuserPreferredLanguage_hiddenSelect_list"]/li[@title="%s"]/a`, label))
}

// Options configures the preview page
type Options struct {
	Table    table.Options
	PageName string
	Width    int
	Height   int
	// RunDelay is how long to wait for the output window after clicking run
	RunDelay time.Duration
}

// OptionsFromConfig extracts preview options from the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Table:    table.OptionsFromConfig(cfg),
		PageName: cfg.Preview.PageName,
		Width:    cfg.Preview.ScreenshotWidth,
		Height:   cfg.Preview.ScreenshotHeight,
		RunDelay: time.Second,
	}
}

// Output lists the files written for one run
type Output struct {
	HTML string
	PNG  string // empty when the screenshot failed
}

// Page is the Notification Template page
type Page struct {
	drv      driver.Driver
	pages    config.PageConfig
	opts     Options
	observer progress.Observer
	logger   *slog.Logger
}

// New creates a preview page
func New(drv driver.Driver, pages config.PageConfig, opts Options, observer progress.Observer, logger *slog.Logger) *Page {
	if observer == nil {
		observer = progress.Discard
	}
	return &Page{drv: drv, pages: pages, opts: opts, observer: observer, logger: logger}
}

// Open shows the page unless its upload button is already there
func (p *Page) Open(ctx context.Context) error {
	if ok, _ := p.drv.Exists(ctx, uploadButton); ok {
		return nil
	}

	p.logger.Info("opening preview page", "page", p.opts.PageName)
	if err := table.Home(ctx, p.drv, p.opts.Table, p.pages); err != nil {
		return err
	}
	if err := p.drv.Click(ctx, driver.TextEquals(p.opts.PageName)); err != nil {
		return fmt.Errorf("failed to open %s: %w", p.opts.PageName, err)
	}
	if err := p.drv.WaitFor(ctx, uploadButton, p.opts.Table.Timeout); err != nil {
		return fmt.Errorf("failed to open %s: %w", p.opts.PageName, err)
	}
	return nil
}

// Run renders file with the given language. The outputs are written as
// <file root>_<lang>.html and .png.
func (p *Page) Run(ctx context.Context, file, lang string) (Output, error) {
	if !fsutil.IsFile(file) {
		return Output{}, fmt.Errorf("%w: %s", ErrFileNotFound, file)
	}
	if err := p.Open(ctx); err != nil {
		return Output{}, err
	}

	root := strings.TrimSuffix(file, filepath.Ext(file))
	out := Output{
		HTML: fmt.Sprintf("%s_%s.html", root, lang),
		PNG:  fmt.Sprintf("%s_%s.png", root, lang),
	}

	tmp, err := writeWithLanguage(file, lang)
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = os.Remove(tmp)
	}()

	if err := p.selectLanguage(ctx, lang); err != nil {
		return Output{}, err
	}

	if err := p.drv.SetFiles(ctx, fileInput, []string{tmp}); err != nil {
		return Output{}, fmt.Errorf("failed to select file: %w", err)
	}
	if err := p.drv.Click(ctx, uploadButton); err != nil {
		return Output{}, fmt.Errorf("failed to upload: %w", err)
	}
	if err := p.drv.WaitFor(ctx, messages, p.opts.Table.Timeout); err != nil {
		return Output{}, fmt.Errorf("upload not confirmed: %w", err)
	}
	if err := p.drv.WaitClickable(ctx, runButton, p.opts.Table.Timeout); err != nil {
		return Output{}, err
	}

	main, err := p.drv.CurrentWindow(ctx)
	if err != nil {
		return Output{}, err
	}
	if err := p.drv.Click(ctx, runButton); err != nil {
		return Output{}, fmt.Errorf("failed to run template: %w", err)
	}
	defer func() {
		if err := p.drv.SwitchWindow(ctx, main); err != nil {
			p.logger.Warn("failed to switch back to main window", "error", err)
		}
	}()

	if err := sleep(ctx, p.opts.RunDelay); err != nil {
		return Output{}, err
	}
	if err := p.switchToOutput(ctx); err != nil {
		return Output{}, err
	}

	if err := p.drv.SetWindowSize(ctx, p.opts.Width, p.opts.Height); err != nil {
		p.logger.Warn("failed to resize output window", "error", err)
	}

	source, err := p.drv.PageSource(ctx)
	if err != nil {
		return Output{}, err
	}
	if err := fsutil.WriteFileAtomic(out.HTML, []byte(source), 0644); err != nil {
		return Output{}, fmt.Errorf("failed to write %s: %w", out.HTML, err)
	}

	if err := p.drv.Screenshot(ctx, out.PNG); err != nil {
		p.logger.Warn("failed to save screenshot", "file", out.PNG, "error", err)
		out.PNG = ""
	}

	return out, nil
}

// RunResult collects the outputs of RunAll
type RunResult struct {
	Outputs []Output
	Failed  int
}

// RunAll renders every file in every language. Missing files and unknown
// languages fail only their own run.
func (p *Page) RunAll(ctx context.Context, files, langs []string) (RunResult, error) {
	var res RunResult
	total := len(files) * len(langs)

	for n, file := range files {
		for m, lang := range langs {
			ev := progress.Event{
				Item:  fmt.Sprintf("%s (%s)", filepath.Base(file), lang),
				Index: n*len(langs) + m + 1,
				Total: total,
			}
			ev.Phase = progress.Working
			ev.Message = "testing..."
			p.observer.Notify(ev)

			out, err := p.Run(ctx, file, lang)
			ev.Final = true
			if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrUnknownLanguage) {
				res.Failed++
				ev.Phase = progress.Failed
				ev.Message = err.Error()
				p.observer.Notify(ev)
				continue
			}
			if err != nil {
				return res, err
			}

			res.Outputs = append(res.Outputs, out)
			ev.Phase = progress.Done
			ev.Message = "saved " + out.HTML
			if out.PNG != "" {
				ev.Message += " and " + out.PNG
			}
			p.observer.Notify(ev)
		}
	}
	return res, nil
}

func (p *Page) selectLanguage(ctx context.Context, lang string) error {
	if err := p.drv.Click(ctx, languageSelect); err != nil {
		return fmt.Errorf("failed to open language list: %w", err)
	}

	values, err := p.drv.Properties(ctx, languageOptions, "value")
	if err != nil {
		return err
	}
	labels, err := p.drv.Properties(ctx, languageOptions, "innerText")
	if err != nil {
		return err
	}

	label := ""
	for i, v := range values {
		if v == lang && i < len(labels) {
			label = labels[i]
			break
		}
	}
	if label == "" {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, lang)
	}

	item := languageItem(label)
	if err := p.drv.WaitClickable(ctx, item, p.opts.Table.Timeout); err != nil {
		return err
	}
	if err := p.drv.Click(ctx, item); err != nil {
		return fmt.Errorf("failed to select language %s: %w", lang, err)
	}
	return nil
}

// switchToOutput activates the newest window. When that one still shows the
// raw stylesheet the window before it holds the output.
func (p *Page) switchToOutput(ctx context.Context) error {
	handles, err := p.drv.Windows(ctx)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return errors.New("no browser window open")
	}

	if err := p.drv.SwitchWindow(ctx, handles[len(handles)-1]); err != nil {
		return err
	}
	source, err := p.drv.PageSource(ctx)
	if err != nil {
		return err
	}
	if strings.HasPrefix(source, "<xsl") && len(handles) > 1 {
		p.logger.Debug("newest window shows the stylesheet, using previous one")
		return p.drv.SwitchWindow(ctx, handles[len(handles)-2])
	}
	return nil
}

// writeWithLanguage copies file to a temp file with its preferred language
// replaced by lang and returns the temp path
func writeWithLanguage(file, lang string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	data = preferredLanguage.ReplaceAllLiteral(data, []byte("<preferred_language>"+lang+"</preferred_language>"))

	tmp, err := os.CreateTemp("", "lettersync-preview-*"+filepath.Ext(file))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
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
