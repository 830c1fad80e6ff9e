package sync

import (
	"errors"
	"path/filepath"

	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/storage"
)

// LocalState describes a local letter file relative to the ledger
type LocalState string

const (
	// StateClean means the file matches the last synced version
	StateClean LocalState = "clean"
	// StateModified means the file has edits that were never pushed
	StateModified LocalState = "modified"
	// StateUntracked means the ledger has no entry for the file
	StateUntracked LocalState = "untracked"
	// StateMissing means the ledger tracks a letter whose file is gone
	StateMissing LocalState = "missing"
	// StateInvalid means the file is not UTF-8 and cannot be pushed
	StateInvalid LocalState = "invalid"
)

// FileStatus is the local state of one letter file
type FileStatus struct {
	File  string
	ID    string
	State LocalState
}

// LocalStatus compares the letter files below the storage root with the
// ledger. It needs no browser.
func (e *Engine) LocalStatus() ([]FileStatus, error) {
	ids := make(map[string]string)
	for _, id := range e.ledger.IDs() {
		if e.ledger.Checksum(id) == "" {
			continue
		}
		ids[letter.Info{Name: id}.Filename()] = id
	}

	files, err := e.store.Discover()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(files))
	out := make([]FileStatus, 0, len(files))
	for _, rel := range files {
		name := "./" + filepath.ToSlash(rel)
		seen[name] = true

		id, tracked := ids[name]
		if !tracked {
			out = append(out, FileStatus{File: name, State: StateUntracked})
			continue
		}

		content, err := e.store.GetContent(filepath.Join(e.store.Root(), rel))
		if errors.Is(err, storage.ErrInvalidEncoding) {
			out = append(out, FileStatus{File: name, ID: id, State: StateInvalid})
			continue
		}
		if err != nil {
			return nil, err
		}
		state := StateClean
		if content.Hash() != e.ledger.Checksum(id) {
			state = StateModified
		}
		out = append(out, FileStatus{File: name, ID: id, State: state})
	}

	for _, id := range e.ledger.IDs() {
		name := letter.Info{Name: id}.Filename()
		if _, ok := ids[name]; ok && !seen[name] {
			out = append(out, FileStatus{File: name, ID: id, State: StateMissing})
		}
	}

	return out, nil
}
