// Package letter models Alma letter templates: their identity in a
// configuration listing and their normalized XSL text.
package letter

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Content is the normalized text of a letter
type Content struct {
	Text     string
	Filename string // for diagnostics only
}

// NewContent normalizes line endings and surrounding whitespace so that
// hashes do not depend on where the text came from.
func NewContent(text, filename string) Content {
	return Content{
		Text:     Normalize(text),
		Filename: filename,
	}
}

// Normalize converts CRLF and CR to LF and trims surrounding whitespace
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// IsEmpty reports whether the content has not been fetched or does not exist
func (c Content) IsEmpty() bool {
	return c.Text == ""
}

// Hash returns the hex SHA-1 of the normalized text. SHA-1 keeps existing
// status.json files valid.
func (c Content) Hash() string {
	sum := sha1.Sum([]byte(c.Text))
	return hex.EncodeToString(sum[:])
}

// Validate checks that non-empty content is well-formed XML.
// The returned error is meant to be reported, not to stop a sync.
func (c Content) Validate() error {
	if c.Text == "" {
		return nil
	}

	dec := xml.NewDecoder(strings.NewReader(c.Text))
	dec.Strict = true
	depth := 0
	roots := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s contains invalid XML: %w", c.name(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("%s contains invalid XML: text outside of root element", c.name())
			}
		}
	}

	if roots != 1 {
		return fmt.Errorf("%s contains invalid XML: expected one root element, found %d", c.name(), roots)
	}
	return nil
}

func (c Content) name() string {
	if c.Filename != "" {
		return c.Filename
	}
	return "The letter"
}

// ShortHash abbreviates a hash for progress output. An empty hash means the
// letter was never synced and is shown as "new".
func ShortHash(h string) string {
	if h == "" {
		return "new"
	}
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
