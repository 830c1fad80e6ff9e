package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LetterExtension is the extension of every letter file
const LetterExtension = ".xsl"

// IsLetterFile returns true if the file has the letter extension
func IsLetterFile(path string) bool {
	return filepath.Ext(path) == LetterExtension
}

// Discover finds all letter files below the root, relative to it.
// Hidden files and directories and the defaults tree are skipped.
func (s *Local) Discover() ([]string, error) {
	var files []string

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path != s.root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if rel == DefaultsDir {
				return filepath.SkipDir
			}
			return nil
		}

		if IsLetterFile(path) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
