package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindRecentAfter returns all files under dir whose mtime is after startTime.
func FindRecentAfter(dir string, startTime time.Time) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	return recentFiles, err
}

// FindByExt returns all files under dir with the given extension
// (case-insensitive, leading dot included, e.g. ".epub").
func FindByExt(dir string, ext string) ([]string, error) {
	var matches []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			matches = append(matches, path)
		}
		return nil
	})

	return matches, err
}
