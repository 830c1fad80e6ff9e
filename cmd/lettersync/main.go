package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lettersync/lettersync/internal/config"
	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/preview"
	"github.com/lettersync/lettersync/internal/progress"
	"github.com/lettersync/lettersync/internal/prompt"
	"github.com/lettersync/lettersync/internal/status"
	"github.com/lettersync/lettersync/internal/storage"
	"github.com/lettersync/lettersync/internal/sync"
	"github.com/lettersync/lettersync/internal/table"
)

const defaultConfigFile = "lettersync.yaml"

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Test command flags
	languages []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lettersync",
	Short: "Synchronize Alma letter templates with local files",
	Long: `lettersync keeps the XSL templates of Alma letters in a local directory,
so they can be edited with any editor and kept under version control.

It drives the Alma administration UI in a Chrome browser. The first run opens
the login page; complete the single sign-on there and lettersync continues.`,
	SilenceUsage: true,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download letters that changed in Alma",
	Long: `Pull opens every letter of the Components and Letters configuration tables
and stores those whose content differs from status.json.

Local files with unpushed edits are only overwritten after confirmation.`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

var pullDefaultsCmd = &cobra.Command{
	Use:   "pull-defaults",
	Short: "Download the default versions of the letters",
	Long: `Pull-defaults stores the vendor default of every letter without local
customization under defaults/. Keeping that directory under version control
shows when Alma changes its defaults.`,
	Args: cobra.NoArgs,
	RunE: runPullDefaults,
}

var pushCmd = &cobra.Command{
	Use:   "push [files...]",
	Short: "Upload local changes to Alma",
	Long: `Push uploads the given letter files. Without arguments, every file with
edits that were never pushed is uploaded after a single confirmation.

Letters that changed in Alma since the last pull are only overwritten after
confirmation.`,
	RunE: runPush,
}

var testCmd = &cobra.Command{
	Use:   "test <files...>",
	Short: "Render notification data through a letter",
	Long: `Test uploads notification data XML files to the Notification Template page,
runs them once per language and saves the output as <file>_<lang>.html and
a screenshot as <file>_<lang>.png.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local letters with unpushed changes",
	Long: `Status compares the letter files in the working directory with status.json.
It does not start a browser.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lettersync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+defaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Test command flags
	testCmd.Flags().StringSliceVar(&languages, "lang", []string{"en"}, "languages to render, comma separated")

	// Add commands
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pullDefaultsCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds what every command needs. drv is nil for commands that do not
// talk to Alma.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	console *progress.Console
	ledger  *status.Ledger
	engine  *sync.Engine
	drv     driver.Driver
}

func newApp(ctx context.Context, browser bool) (*app, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ledger, err := status.Open(cfg.StatusFilePath())
	if err != nil {
		return nil, err
	}

	console := progress.NewConsole(os.Stdout)
	term := prompt.NewTerminal(os.Stdin, os.Stdout)
	store := storage.NewLocal(cfg.Paths.Root, ledger, term, logger)
	exclude := letter.ExcludeSuffixes(cfg.Sync.ExcludeSuffixes)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		console: console,
		ledger:  ledger,
		engine:  sync.NewEngine(ledger, store, term, console, exclude, logger),
	}

	if !browser {
		return a, nil
	}

	drv, err := driver.Launch(ctx, driver.Options{
		BaseURL:        cfg.Alma.URL,
		Bin:            cfg.Browser.Bin,
		DebuggerURL:    cfg.Browser.DebuggerURL,
		UserDataDir:    cfg.Browser.UserDataDir,
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Timeout:        cfg.Browser.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.drv = drv

	console.Printf("Waiting for Alma login at %s", cfg.StartURL())
	if err := table.WaitForLogin(ctx, drv, table.OptionsFromConfig(cfg), cfg.Pages, cfg.Browser.LoginTimeout); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) tables() []sync.Table {
	var ts []sync.Table
	for _, t := range table.FromConfig(a.drv, a.cfg, a.logger) {
		ts = append(ts, t)
	}
	return ts
}

func (a *app) close() {
	if a.drv == nil {
		return
	}
	if err := a.drv.Close(); err != nil {
		a.logger.Warn("failed to close browser", "error", err)
	}
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Pull(ctx, a.tables()...)
	a.console.Printf("%s", res)
	if err != nil {
		a.logger.Error("pull failed", "error", err)
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d letter(s) failed", res.Failed)
	}
	return nil
}

func runPullDefaults(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.PullDefaults(ctx, a.tables()...)
	a.console.Printf("Fetched %d new, %d changed default letters", res.New, res.Changed)
	if err != nil {
		a.logger.Error("pull-defaults failed", "error", err)
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d letter(s) failed", res.Failed)
	}
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Push(ctx, a.tables(), args)
	if !res.Aborted {
		a.console.Printf("%s", res)
	}
	if err != nil {
		a.logger.Error("push failed", "error", err)
		return err
	}
	if n := res.NotFound + res.Failed; n > 0 {
		return fmt.Errorf("%d file(s) could not be pushed", n)
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	page := preview.New(a.drv, a.cfg.Pages, preview.OptionsFromConfig(a.cfg), a.console, a.logger)
	if err := page.Open(ctx); err != nil {
		return err
	}

	res, err := page.RunAll(ctx, args, languages)
	if err != nil {
		a.logger.Error("test failed", "error", err)
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d test run(s) failed", res.Failed)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), false)
	if err != nil {
		return err
	}

	files, err := a.engine.LocalStatus()
	if err != nil {
		return err
	}

	modified := 0
	for _, f := range files {
		if f.State == sync.StateClean {
			continue
		}
		if f.State == sync.StateModified {
			modified++
		}
		a.console.Printf("%-10s %s", f.State, f.File)
	}
	a.console.Printf("%d letter(s) tracked, %d modified", a.ledger.Len(), modified)
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr, stdout carries
	// the progress lines.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigFile
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"alma", cfg.Alma.URL,
		"root", cfg.Paths.Root,
		"status_file", cfg.StatusFilePath(),
		"tables", len(cfg.Tables))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
