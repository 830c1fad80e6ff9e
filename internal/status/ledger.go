// Package status persists the sync state of every letter in status.json.
package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lettersync/lettersync/internal/fsutil"
)

// Version is the status.json format version
const Version = 1

// DateLayout is the format of the modified field (DD/MM/YYYY)
const DateLayout = "02/01/2006"

// Entry is the sync state of one letter. Empty fields are never written.
type Entry struct {
	Checksum        string `json:"checksum,omitempty"`
	DefaultChecksum string `json:"default_checksum,omitempty"`
	Modified        string `json:"modified,omitempty"`
}

// file is the on-disk layout. Fields are declared in key order so the
// encoded object is sorted like its maps.
type file struct {
	Letters map[string]Entry `json:"letters"`
	Version int              `json:"version"`
}

// Ledger maps letter identifiers to their last synced state. Every setter
// rewrites the whole file before returning.
type Ledger struct {
	path    string
	letters map[string]Entry
	now     func() time.Time
}

// Open reads the ledger at path. A missing file yields an empty ledger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		letters: make(map[string]Entry),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse status file %s: %w", path, err)
	}
	if f.Version != 0 && f.Version != Version {
		return nil, fmt.Errorf("unsupported status file version %d", f.Version)
	}
	if f.Letters != nil {
		l.letters = f.Letters
	}

	return l, nil
}

// Path returns the location of status.json
func (l *Ledger) Path() string {
	return l.path
}

// Get returns the entry for id and whether one exists
func (l *Ledger) Get(id string) (Entry, bool) {
	e, ok := l.letters[id]
	return e, ok
}

// Checksum returns the last synced hash of id, or "" if never synced
func (l *Ledger) Checksum(id string) string {
	return l.letters[id].Checksum
}

// DefaultChecksum returns the last synced hash of the default variant of id
func (l *Ledger) DefaultChecksum(id string) string {
	return l.letters[id].DefaultChecksum
}

// Modified returns the last known modification date of id
func (l *Ledger) Modified(id string) string {
	return l.letters[id].Modified
}

// SetChecksum records the synced hash of id and saves
func (l *Ledger) SetChecksum(id, checksum string) error {
	return l.set(id, func(e *Entry) { e.Checksum = checksum })
}

// SetDefaultChecksum records the synced hash of the default variant of id and saves
func (l *Ledger) SetDefaultChecksum(id, checksum string) error {
	return l.set(id, func(e *Entry) { e.DefaultChecksum = checksum })
}

// SetModified records the modification date of id and saves. An empty
// date means today.
func (l *Ledger) SetModified(id, modified string) error {
	if modified == "" {
		modified = l.now().Format(DateLayout)
	}
	return l.set(id, func(e *Entry) { e.Modified = modified })
}

// IDs returns the tracked identifiers in sorted order
func (l *Ledger) IDs() []string {
	ids := make([]string, 0, len(l.letters))
	for id := range l.letters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked letters
func (l *Ledger) Len() int {
	return len(l.letters)
}

func (l *Ledger) set(id string, update func(e *Entry)) error {
	e := l.letters[id]
	update(&e)
	l.letters[id] = e
	return l.save()
}

var trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)

// save rewrites status.json in full
func (l *Ledger) save() error {
	data, err := l.encode()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save status file: %w", err)
	}
	return nil
}

func (l *Ledger) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file{Letters: l.letters, Version: Version}); err != nil {
		return nil, fmt.Errorf("failed to encode status file: %w", err)
	}
	data := bytes.ReplaceAll(buf.Bytes(), []byte("\r\n"), []byte("\n"))
	data = trailingSpace.ReplaceAll(data, nil)
	return escapeNonASCII(bytes.TrimSpace(data)), nil
}

// escapeNonASCII rewrites every non-ASCII character as a \uXXXX escape,
// using surrogate pairs outside the BMP. Non-ASCII bytes only occur inside
// JSON strings, so the document stays equivalent.
func escapeNonASCII(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r < utf8.RuneSelf {
			buf.WriteByte(byte(r))
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&buf, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&buf, `\u%04x`, r)
	}
	return buf.Bytes()
}
