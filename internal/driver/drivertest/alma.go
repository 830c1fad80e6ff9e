package drivertest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lettersync/lettersync/internal/config"
	"github.com/lettersync/lettersync/internal/driver"
)

// Row is a letter shown in a fake listing
type Row struct {
	Name       string
	Channel    string
	Customized string // "-", "Network" or a user name
	Template   string
	// Title overrides the record page title, to simulate a mismatch
	Title string
}

// Alma scripts a Fake to behave like the configuration listings of Alma:
// start page, menus, listings, record pages, template tab and saving.
type Alma struct {
	*Fake
	Pages  config.PageConfig
	Tables map[string]*Listing

	current *Listing
	record  int
	pending *string
}

// Listing is one fake configuration table
type Listing struct {
	Config config.TableConfig
	Rows   []*Row
	// Saves counts successful saves per row index
	Saves map[int]int
}

// NewAlma returns a fake Alma with the given listings. The driver starts on
// a blank page.
func NewAlma(pages config.PageConfig, listings ...*Listing) *Alma {
	a := &Alma{
		Fake:   New(),
		Pages:  pages,
		Tables: make(map[string]*Listing),
		record: -1,
	}
	for _, l := range listings {
		if l.Saves == nil {
			l.Saves = make(map[int]int)
		}
		a.Tables[l.Config.Name] = l
	}

	a.OnNavigate = func(f *Fake, path string) error {
		a.clearPage()
		a.Set(pages.ConfigurationMenu, "Configuration")
		return nil
	}
	a.OnClick[pages.ConfigurationMenu] = func(f *Fake) error {
		a.Set(pages.GeneralMenu, "General")
		return nil
	}
	a.OnClick[pages.GeneralMenu] = func(f *Fake) error {
		for name, l := range a.Tables {
			l := l
			link := driver.TextEquals(name).String()
			a.Set(link, name)
			a.OnClick[link] = func(f *Fake) error {
				a.showListing(l)
				return nil
			}
		}
		return nil
	}
	a.OnScript = func(f *Fake, script string) error {
		_, value, ok := strings.Cut(script, ".value = ")
		if !ok {
			return fmt.Errorf("unexpected script %q", script)
		}
		var v string
		if err := json.Unmarshal([]byte(strings.TrimSuffix(value, ";")), &v); err != nil {
			return fmt.Errorf("script value is not a string literal: %w", err)
		}
		a.pending = &v
		return nil
	}
	return a
}

// NewListing builds a listing from a variant config and rows
func NewListing(cfg config.TableConfig, rows ...*Row) *Listing {
	return &Listing{Config: cfg, Rows: rows, Saves: make(map[int]int)}
}

// ShowListing puts the named listing on screen, as if navigated to
func (a *Alma) ShowListing(name string) {
	a.clearPage()
	a.showListing(a.Tables[name])
}

func (a *Alma) clearPage() {
	for k := range a.Elements {
		delete(a.Elements, k)
	}
	a.current = nil
	a.record = -1
	a.pending = nil
}

func (a *Alma) showListing(l *Listing) {
	a.clearPage()
	a.current = l

	c := l.Config
	a.Set(c.Table, "")
	a.Set(a.Pages.ListingReady, "")
	if len(l.Rows) > 0 {
		a.Set(c.Row, "").Count = len(l.Rows)
	}
	for i, r := range l.Rows {
		i := i
		nameSel := fmt.Sprintf(c.NameColumn, i)
		a.Set(nameSel, r.Name)
		a.Set(nameSel+" a", r.Name)
		a.OnClick[nameSel+" a"] = func(f *Fake) error {
			a.openRecord(l, i)
			return nil
		}
		if c.ChannelColumn != "" && r.Channel != "" {
			a.Set(fmt.Sprintf(c.ChannelColumn, i), r.Channel)
		}
		if c.CustomizedColumn != "" {
			a.Set(fmt.Sprintf(c.CustomizedColumn, i), r.Customized)
		}
	}
}

func (a *Alma) openRecord(l *Listing, i int) {
	a.clearPage()
	a.current = l
	a.record = i

	r := l.Rows[i]
	title := r.Title
	if title == "" {
		title = r.Name
	}
	a.Set(a.Pages.PageTitle, title)
	a.Set(a.Pages.TemplateTab, "Template")
	a.Set(a.Pages.CancelButton, "Cancel")

	save := a.Pages.SaveButton
	if r.Customized == "-" || r.Customized == "Network" {
		save = a.Pages.CustomizeButton
	}
	a.Set(save, "Save")
	a.OnClick[save] = func(f *Fake) error {
		if a.pending != nil {
			r.Template = *a.pending
			if r.Customized == "-" || r.Customized == "Network" {
				r.Customized = "lettersync"
			}
		}
		l.Saves[i]++
		a.showListing(l)
		return nil
	}
	a.OnClick[a.Pages.CancelButton] = func(f *Fake) error {
		a.showListing(l)
		return nil
	}
	a.OnClick[a.Pages.TemplateTab] = func(f *Fake) error {
		a.Set(a.Pages.TemplateTextarea, r.Template)
		return nil
	}
}
