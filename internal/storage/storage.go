// Package storage reads and writes letter files in the local working copy.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/lettersync/lettersync/internal/fsutil"
	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/status"
)

// DefaultsDir is the subtree holding the vendor default letters
const DefaultsDir = "defaults"

// ErrInvalidEncoding is returned for a letter file that is not valid UTF-8
var ErrInvalidEncoding = errors.New("file is not valid UTF-8")

// Resolver decides whether a conflicting write may proceed
type Resolver interface {
	ResolveConflict(ctx context.Context, c letter.Conflict) (bool, error)
}

// Local stores letters under a root directory and keeps the ledger in step
type Local struct {
	root     string
	ledger   *status.Ledger
	resolver Resolver
	logger   *slog.Logger
}

// NewLocal creates a storage rooted at root
func NewLocal(root string, ledger *status.Ledger, resolver Resolver, logger *slog.Logger) *Local {
	return &Local{
		root:     root,
		ledger:   ledger,
		resolver: resolver,
		logger:   logger,
	}
}

// Root returns the letters directory
func (s *Local) Root() string {
	return s.root
}

// Path returns where the letter is stored
func (s *Local) Path(info letter.Info) string {
	return filepath.Join(s.root, info.Filename())
}

// DefaultPath returns where the default variant of the letter is stored
func (s *Local) DefaultPath(info letter.Info) string {
	return filepath.Join(s.root, DefaultsDir, info.Filename())
}

// GetContent reads a letter from disk. A missing file yields empty content,
// a file that is not UTF-8 yields ErrInvalidEncoding.
func (s *Local) GetContent(path string) (letter.Content, error) {
	if !fsutil.IsFile(path) {
		return letter.NewContent("", path), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return letter.Content{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return letter.Content{}, fmt.Errorf("%w: %s", ErrInvalidEncoding, path)
	}

	content := letter.NewContent(string(data), path)
	if err := content.Validate(); err != nil {
		s.logger.Warn("local letter is not well-formed", "file", path, "error", err)
	}
	return content, nil
}

// IsModified reports whether the local file has edits that were never pushed.
// A file that is not UTF-8 never matches a synced version and counts as
// modified.
func (s *Local) IsModified(info letter.Info) (bool, error) {
	local, err := s.GetContent(s.Path(info))
	if errors.Is(err, ErrInvalidEncoding) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !local.IsEmpty() && local.Hash() != s.ledger.Checksum(info.UniqueName()), nil
}

// Store writes a pulled letter to disk and records it in the ledger.
// If the local file has unpushed edits the resolver is asked first; a
// rejection returns false and leaves the file and the ledger untouched.
func (s *Local) Store(ctx context.Context, info letter.Info, content letter.Content, modified string) (bool, error) {
	path := s.Path(info)
	id := info.UniqueName()

	local, err := s.GetContent(path)
	if err != nil {
		return false, err
	}

	if !local.IsEmpty() && local.Hash() != s.ledger.Checksum(id) {
		ok, err := s.resolver.ResolveConflict(ctx, letter.Conflict{
			Filename: path,
			Message:  "Pulling in this file would cause local changes to be overwritten.",
			Local:    local,
			Remote:   content,
		})
		if err != nil {
			return false, fmt.Errorf("failed to resolve conflict for %s: %w", path, err)
		}
		if !ok {
			s.logger.Debug("conflict rejected, keeping local file", "file", path)
			return false, nil
		}
	}

	if err := fsutil.WriteFileAtomic(path, []byte(content.Text), 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := s.ledger.SetChecksum(id, content.Hash()); err != nil {
		return false, err
	}
	if err := s.ledger.SetModified(id, modified); err != nil {
		return false, err
	}

	return true, nil
}

// StoreDefault writes the vendor default of a letter. Defaults are never
// pushed, so local edits are overwritten without asking.
func (s *Local) StoreDefault(info letter.Info, content letter.Content) error {
	path := s.DefaultPath(info)
	if err := fsutil.WriteFileAtomic(path, []byte(content.Text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return s.ledger.SetDefaultChecksum(info.UniqueName(), content.Hash())
}
