package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/progress"
	"github.com/lettersync/lettersync/internal/storage"
	"github.com/lettersync/lettersync/internal/table"
)

// row locates a letter in one of the listings
type row struct {
	table Table
	info  letter.Info
}

// Push uploads local letters. With no files, every letter whose local file
// differs from the ledger is pushed after a single confirmation. A letter
// that changed in Alma since the last sync is only overwritten when the
// user agrees.
func (e *Engine) Push(ctx context.Context, tables []Table, files []string) (PushResult, error) {
	var res PushResult

	rows, order, err := e.index(ctx, tables)
	if err != nil {
		return res, err
	}

	if len(files) == 0 {
		for _, name := range order {
			modified, err := e.store.IsModified(rows[name].info)
			if err != nil {
				return res, err
			}
			if modified {
				files = append(files, name)
			}
		}

		if len(files) == 0 {
			e.info("Found no modified files.")
			return res, nil
		}

		e.info(fmt.Sprintf("Found %d modified file(s):", len(files)))
		for _, f := range files {
			e.info(" - " + strings.TrimPrefix(f, "./"))
		}
		ok, err := e.prompter.Confirm(ctx, "Push the file(s) to Alma?")
		if err != nil {
			return res, err
		}
		if !ok {
			e.info("Aborting")
			res.Aborted = true
			return res, nil
		}
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := e.fileKey(f)
		ev := progress.Event{Item: name, Index: i + 1, Total: len(files)}

		r, ok := rows[name]
		if !ok {
			res.NotFound++
			e.final(ev, progress.Failed, "file not found")
			continue
		}

		pushed, err := e.pushOne(ctx, r, ev)
		if err != nil {
			return res, fmt.Errorf("failed to push %s: %w", name, err)
		}
		switch pushed {
		case pushDone:
			res.Pushed++
		case pushSkipped:
			res.Skipped++
		case pushFailed:
			res.Failed++
		}
	}

	return res, nil
}

type pushOutcome int

const (
	pushDone pushOutcome = iota
	pushSkipped
	pushFailed
)

func (e *Engine) pushOne(ctx context.Context, r row, ev progress.Event) (pushOutcome, error) {
	id := r.info.UniqueName()
	e.notify(ev, progress.Working, "pushing")

	local, err := e.store.GetContent(e.store.Path(r.info))
	if errors.Is(err, storage.ErrInvalidEncoding) {
		e.logger.Warn("local letter cannot be pushed", "letter", id, "error", err)
		e.final(ev, progress.Failed, "local file is not valid UTF-8")
		return pushFailed, nil
	}
	if err != nil {
		return pushFailed, err
	}
	if local.IsEmpty() {
		e.final(ev, progress.Failed, "local file is empty or missing")
		return pushFailed, nil
	}

	old := e.ledger.Checksum(id)

	remote, err := r.table.OpenLetter(ctx, r.info)
	if errors.Is(err, table.ErrWrongPage) {
		e.logger.Warn("letter page mismatch", "letter", id, "error", err)
		e.final(ev, progress.Failed, "unexpected page")
		return pushFailed, r.table.CloseLetter(ctx)
	}
	if err != nil {
		return pushFailed, err
	}

	if remote.Hash() != old {
		ok, err := e.prompter.ResolveConflict(ctx, letter.Conflict{
			Filename: r.info.Filename(),
			Message:  "The remote version has changed. Overwrite remote version?",
			Local:    local,
			Remote:   remote,
		})
		if err != nil {
			return pushFailed, err
		}
		if !ok {
			e.final(ev, progress.Skipped, "skipped")
			return pushSkipped, r.table.CloseLetter(ctx)
		}
	}

	if err := r.table.PutContents(ctx, r.info, local); err != nil {
		return pushFailed, err
	}
	e.final(ev, progress.Done, fmt.Sprintf("updated from %s to %s", letter.ShortHash(old), letter.ShortHash(local.Hash())))

	if err := e.ledger.SetChecksum(id, local.Hash()); err != nil {
		return pushDone, err
	}
	if err := e.ledger.SetModified(id, ""); err != nil {
		return pushDone, err
	}
	return pushDone, nil
}

// index reads every table and maps derived filenames to rows. The first
// table wins when two listings derive the same filename.
func (e *Engine) index(ctx context.Context, tables []Table) (map[string]row, []string, error) {
	rows := make(map[string]row)
	var order []string
	for _, t := range tables {
		if err := t.Open(ctx); err != nil {
			return nil, nil, err
		}
		infos, err := t.Read(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, info := range infos {
			name := info.Filename()
			if _, dup := rows[name]; dup {
				e.logger.Warn("duplicate letter filename", "file", name, "table", t.Name())
				continue
			}
			rows[name] = row{table: t, info: info}
			order = append(order, name)
		}
	}
	return rows, order, nil
}

// fileKey turns a path given on the command line into the "./Name.xsl"
// form derived from listing rows. Paths below the storage root are made
// relative to it.
func (e *Engine) fileKey(path string) string {
	p := filepath.Clean(path)
	root := filepath.Clean(e.store.Root())

	if filepath.IsAbs(p) {
		if absRoot, err := filepath.Abs(root); err == nil {
			if rel, err := filepath.Rel(absRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
				p = rel
			}
		}
	} else if root != "." {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return "./" + filepath.ToSlash(p)
}
