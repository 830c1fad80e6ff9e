// Package sync moves letters between the Alma configuration listings and
// the local working copy.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/progress"
	"github.com/lettersync/lettersync/internal/status"
	"github.com/lettersync/lettersync/internal/storage"
	"github.com/lettersync/lettersync/internal/table"
)

// Table is a configuration listing holding letters
type Table interface {
	Name() string
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]letter.Info, error)
	OpenLetter(ctx context.Context, info letter.Info) (letter.Content, error)
	CloseLetter(ctx context.Context) error
	PutContents(ctx context.Context, info letter.Info, content letter.Content) error
	IsCustomized(ctx context.Context, info letter.Info) (bool, error)
}

var _ Table = (*table.Table)(nil)

// Prompter asks the user for decisions
type Prompter interface {
	storage.Resolver
	Confirm(ctx context.Context, msg string) (bool, error)
}

// Engine runs pull, pull-defaults and push
type Engine struct {
	ledger   *status.Ledger
	store    *storage.Local
	prompter Prompter
	observer progress.Observer
	exclude  letter.Exclusion
	logger   *slog.Logger
}

// NewEngine creates a new sync engine. A nil observer discards progress
// and a nil exclusion keeps every letter.
func NewEngine(ledger *status.Ledger, store *storage.Local, prompter Prompter, observer progress.Observer, exclude letter.Exclusion, logger *slog.Logger) *Engine {
	if observer == nil {
		observer = progress.Discard
	}
	if exclude == nil {
		exclude = letter.ExcludeSuffixes(nil)
	}
	return &Engine{
		ledger:   ledger,
		store:    store,
		prompter: prompter,
		observer: observer,
		exclude:  exclude,
		logger:   logger,
	}
}

// Pull downloads letters whose remote hash differs from the ledger. Tables
// are processed in order and their counts added up. A second timeout on
// the same letter aborts the run.
func (e *Engine) Pull(ctx context.Context, tables ...Table) (PullResult, error) {
	var total PullResult
	for _, t := range tables {
		res, err := e.pullTable(ctx, t, false)
		total.Add(res)
		if err != nil {
			return total, fmt.Errorf("failed to pull %s: %w", t.Name(), err)
		}
	}
	return total, nil
}

// PullDefaults downloads the vendor default of every letter that carries
// no local customization into the defaults tree. Customized letters only
// show the customized text and are skipped.
func (e *Engine) PullDefaults(ctx context.Context, tables ...Table) (PullResult, error) {
	var total PullResult
	for _, t := range tables {
		res, err := e.pullTable(ctx, t, true)
		total.Add(res)
		if err != nil {
			return total, fmt.Errorf("failed to pull defaults of %s: %w", t.Name(), err)
		}
	}
	return total, nil
}

func (e *Engine) pullTable(ctx context.Context, t Table, defaults bool) (PullResult, error) {
	var res PullResult
	logger := e.logger.With("table", t.Name(), "defaults", defaults)

	if err := t.Open(ctx); err != nil {
		return res, err
	}
	rows, err := t.Read(ctx)
	if err != nil {
		return res, err
	}
	logger.Info("pulling letters", "count", len(rows))

	for i, info := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev := progress.Event{Item: info.Filename(), Index: i + 1, Total: len(rows)}
		id := info.UniqueName()

		if e.exclude(id) {
			res.Excluded++
			e.final(ev, progress.Skipped, "excluded")
			continue
		}

		if defaults {
			if err := t.Open(ctx); err != nil {
				return res, err
			}
			customized, err := t.IsCustomized(ctx, info)
			if err != nil {
				return res, err
			}
			if customized {
				res.Skipped++
				e.final(ev, progress.Skipped, "customized, no default shown")
				continue
			}
		}

		e.notify(ev, progress.Working, "checking...")
		content, err := e.openWithRetry(ctx, t, info, ev)
		if errors.Is(err, table.ErrWrongPage) {
			logger.Warn("letter page mismatch", "letter", id, "error", err)
			res.Failed++
			e.final(ev, progress.Failed, "unexpected page")
			if err := t.CloseLetter(ctx); err != nil {
				return res, err
			}
			continue
		}
		if err != nil {
			return res, err
		}

		e.notify(ev, progress.Working, "closing...")
		if err := t.CloseLetter(ctx); err != nil {
			return res, err
		}

		if err := content.Validate(); err != nil {
			logger.Warn("remote letter is not well-formed", "letter", id, "error", err)
		}

		old := e.ledger.Checksum(id)
		if defaults {
			old = e.ledger.DefaultChecksum(id)
		}
		if content.Hash() == old {
			res.Unchanged++
			e.final(ev, progress.Unchanged, "no changes")
			continue
		}

		if defaults {
			if err := e.store.StoreDefault(info, content); err != nil {
				return res, err
			}
		} else {
			stored, err := e.store.Store(ctx, info, content, "")
			if errors.Is(err, storage.ErrInvalidEncoding) {
				logger.Warn("local letter left untouched", "letter", id, "error", err)
				res.Failed++
				e.final(ev, progress.Failed, "local file is not valid UTF-8")
				continue
			}
			if err != nil {
				return res, err
			}
			if !stored {
				res.Skipped++
				e.final(ev, progress.Skipped, "skipped due to conflict")
				continue
			}
		}

		if old == "" {
			res.New++
			e.final(ev, progress.Done, fmt.Sprintf("fetched new letter @ %s", letter.ShortHash(content.Hash())))
		} else {
			res.Changed++
			e.final(ev, progress.Done, fmt.Sprintf("updated from %s to %s", letter.ShortHash(old), letter.ShortHash(content.Hash())))
		}
		logger.Debug("stored letter", "letter", id, "checksum", content.Hash())
	}

	return res, nil
}

// openWithRetry opens a letter, retrying exactly once on a timeout
func (e *Engine) openWithRetry(ctx context.Context, t Table, info letter.Info, ev progress.Event) (letter.Content, error) {
	content, err := t.OpenLetter(ctx, info)
	if !errors.Is(err, driver.ErrTimeout) {
		return content, err
	}

	e.logger.Debug("timeout opening letter, retrying", "letter", info.UniqueName(), "error", err)
	e.notify(ev, progress.Working, "retrying...")
	return t.OpenLetter(ctx, info)
}

func (e *Engine) notify(ev progress.Event, phase progress.Phase, msg string) {
	ev.Phase = phase
	ev.Message = msg
	e.observer.Notify(ev)
}

func (e *Engine) final(ev progress.Event, phase progress.Phase, msg string) {
	ev.Final = true
	e.notify(ev, phase, msg)
}

func (e *Engine) info(msg string) {
	e.observer.Notify(progress.Event{Phase: progress.Info, Message: msg})
}
