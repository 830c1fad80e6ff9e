package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lettersync configuration
type Config struct {
	Alma    AlmaConfig    `yaml:"alma"`
	Browser BrowserConfig `yaml:"browser"`
	Paths   PathsConfig   `yaml:"paths"`
	Sync    SyncConfig    `yaml:"sync"`
	Pages   PageConfig    `yaml:"pages"`
	Tables  []TableConfig `yaml:"tables"`
	Preview PreviewConfig `yaml:"preview"`
}

// AlmaConfig configures the Alma instance
type AlmaConfig struct {
	URL       string `yaml:"url"`
	StartPath string `yaml:"start_path"`
}

// BrowserConfig configures the automated browser session
type BrowserConfig struct {
	Bin            string        `yaml:"bin"`
	DebuggerURL    string        `yaml:"debugger_url"`
	UserDataDir    string        `yaml:"user_data_dir"`
	Headless       bool          `yaml:"headless"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	Timeout        time.Duration `yaml:"timeout"`
	LoginTimeout   time.Duration `yaml:"login_timeout"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	Root       string `yaml:"root"`
	StatusFile string `yaml:"status_file"`
}

// SyncConfig configures pull/push behavior
type SyncConfig struct {
	// ExcludeSuffixes lists unique-name suffixes that are never pulled.
	// Used to step around rows the Alma UI cannot open.
	ExcludeSuffixes []string      `yaml:"exclude_suffixes"`
	SaveTimeout     time.Duration `yaml:"save_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
}

// PageConfig holds the selectors shared by every configuration page.
// Values prefixed with "xpath:" are XPath expressions, everything else is CSS.
type PageConfig struct {
	ConfigurationMenu string `yaml:"configuration_menu"`
	GeneralMenu       string `yaml:"general_menu"`
	PageTitle         string `yaml:"page_title"`
	TemplateTab       string `yaml:"template_tab"`
	TemplateTextarea  string `yaml:"template_textarea"`
	CancelButton      string `yaml:"cancel_button"`
	SaveButton        string `yaml:"save_button"`
	CustomizeButton   string `yaml:"customize_button"`
	ListingReady      string `yaml:"listing_ready"`
}

// TableConfig describes one listing page variant. Column selectors are
// format strings taking the zero-based row index.
type TableConfig struct {
	Name             string `yaml:"name"`
	Table            string `yaml:"table"`
	Row              string `yaml:"row"`
	NameColumn       string `yaml:"name_column"`
	ChannelColumn    string `yaml:"channel_column"`
	CustomizedColumn string `yaml:"customized_column"`
}

// PreviewConfig configures the notification template test page
type PreviewConfig struct {
	PageName         string `yaml:"page_name"`
	ScreenshotWidth  int    `yaml:"screenshot_width"`
	ScreenshotHeight int    `yaml:"screenshot_height"`
}

const (
	ComponentsConfiguration = "Components Configuration"
	LettersConfiguration    = "Letters Configuration"
)

// DefaultTables returns the two built-in listing variants
func DefaultTables() []TableConfig {
	return []TableConfig{
		{
			Name:             ComponentsConfiguration,
			Table:            "#filesAndLabels",
			Row:              ".jsRecordContainer",
			NameColumn:       "#SELENIUM_ID_filesAndLabels_ROW_%d_COL_letterXslcfgFilefilename",
			CustomizedColumn: "#SELENIUM_ID_filesAndLabels_ROW_%d_COL_customized",
		},
		{
			Name:             LettersConfiguration,
			Table:            "#lettersOnPage",
			Row:              ".jsRecordContainer",
			NameColumn:       "#SELENIUM_ID_lettersOnPage_ROW_%d_COL_letterNameForUI",
			ChannelColumn:    "#SELENIUM_ID_lettersOnPage_ROW_%d_COL_channel",
			CustomizedColumn: "#SELENIUM_ID_lettersOnPage_ROW_%d_COL_customized",
		},
	}
}

// DefaultPages returns the record page selectors of the Alma UI
func DefaultPages() PageConfig {
	return PageConfig{
		ConfigurationMenu: "#ALMA_MENU_TOP_NAV_configuration",
		GeneralMenu:       `xpath://*[@href="#CONF_MENU6"]`,
		PageTitle:         ".pageTitle",
		TemplateTab:       "#cnew_letter_labeltemplate_span a",
		TemplateTextarea:  "#pageBeanfileContent",
		CancelButton:      "#PAGE_BUTTONS_cbuttonnavigationcancel",
		SaveButton:        "#PAGE_BUTTONS_cbuttonsave",
		CustomizeButton:   "#PAGE_BUTTONS_cbuttoncustomize",
		ListingReady:      ".typeD table",
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in path-like string fields
func (c *Config) expandEnv() {
	c.Alma.URL = os.ExpandEnv(c.Alma.URL)
	c.Browser.Bin = os.ExpandEnv(c.Browser.Bin)
	c.Browser.DebuggerURL = os.ExpandEnv(c.Browser.DebuggerURL)
	c.Browser.UserDataDir = os.ExpandEnv(c.Browser.UserDataDir)
	c.Paths.Root = os.ExpandEnv(c.Paths.Root)
	c.Paths.StatusFile = os.ExpandEnv(c.Paths.StatusFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Page selectors are merged field by field so a config file only needs to
// override what differs on its Alma release.
func (c *Config) applyDefaults() {
	if c.Alma.StartPath == "" {
		c.Alma.StartPath = "/mng/action/home.do"
	}
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 20 * time.Second
	}
	if c.Browser.LoginTimeout == 0 {
		c.Browser.LoginTimeout = 5 * time.Minute
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1400
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 1000
	}
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.StatusFile == "" {
		c.Paths.StatusFile = "status.json"
	}
	if c.Sync.SaveTimeout == 0 {
		c.Sync.SaveTimeout = 40 * time.Second
	}
	if c.Sync.SettleDelay == 0 {
		c.Sync.SettleDelay = 200 * time.Millisecond
	}
	if len(c.Tables) == 0 {
		c.Tables = DefaultTables()
	}
	if c.Preview.PageName == "" {
		c.Preview.PageName = "Notification Template"
	}
	if c.Preview.ScreenshotWidth == 0 {
		c.Preview.ScreenshotWidth = 1000
	}
	if c.Preview.ScreenshotHeight == 0 {
		c.Preview.ScreenshotHeight = 600
	}

	def := DefaultPages()
	p := &c.Pages
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&p.ConfigurationMenu, def.ConfigurationMenu},
		{&p.GeneralMenu, def.GeneralMenu},
		{&p.PageTitle, def.PageTitle},
		{&p.TemplateTab, def.TemplateTab},
		{&p.TemplateTextarea, def.TemplateTextarea},
		{&p.CancelButton, def.CancelButton},
		{&p.SaveButton, def.SaveButton},
		{&p.CustomizeButton, def.CustomizeButton},
		{&p.ListingReady, def.ListingReady},
	} {
		if *f.dst == "" {
			*f.dst = f.val
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Alma.URL == "" {
		return fmt.Errorf("alma.url is required")
	}
	if !strings.HasPrefix(c.Alma.URL, "https://") && !strings.HasPrefix(c.Alma.URL, "http://") {
		return fmt.Errorf("alma.url must be an http(s) URL: %s", c.Alma.URL)
	}
	if !strings.HasPrefix(c.Alma.StartPath, "/") {
		return fmt.Errorf("alma.start_path must start with /: %s", c.Alma.StartPath)
	}

	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive")
	}
	if c.Browser.LoginTimeout <= 0 {
		return fmt.Errorf("browser.login_timeout must be positive")
	}
	if c.Sync.SaveTimeout <= 0 {
		return fmt.Errorf("sync.save_timeout must be positive")
	}

	if c.Paths.Root == "" {
		return fmt.Errorf("paths.root is required")
	}
	if c.Paths.StatusFile == "" {
		return fmt.Errorf("paths.status_file is required")
	}

	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	seen := make(map[string]bool)
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d].name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Table == "" || t.Row == "" {
			return fmt.Errorf("tables[%d] (%s): table and row selectors are required", i, t.Name)
		}
		if !strings.Contains(t.NameColumn, "%d") {
			return fmt.Errorf("tables[%d] (%s): name_column must contain %%d", i, t.Name)
		}
		if t.ChannelColumn != "" && !strings.Contains(t.ChannelColumn, "%d") {
			return fmt.Errorf("tables[%d] (%s): channel_column must contain %%d", i, t.Name)
		}
		if t.CustomizedColumn != "" && !strings.Contains(t.CustomizedColumn, "%d") {
			return fmt.Errorf("tables[%d] (%s): customized_column must contain %%d", i, t.Name)
		}
	}

	for _, s := range c.Sync.ExcludeSuffixes {
		if s == "" {
			return fmt.Errorf("sync.exclude_suffixes must not contain empty entries")
		}
	}

	return nil
}

// StatusFilePath returns the path to the status ledger. A relative
// status_file is resolved against the letters root.
func (c *Config) StatusFilePath() string {
	if filepath.IsAbs(c.Paths.StatusFile) {
		return c.Paths.StatusFile
	}
	return filepath.Join(c.Paths.Root, c.Paths.StatusFile)
}

// StartURL returns the absolute URL of the Alma start page
func (c *Config) StartURL() string {
	return strings.TrimRight(c.Alma.URL, "/") + c.Alma.StartPath
}

// Table returns the table variant with the given page name
func (c *Config) Table(name string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableConfig{}, false
}
