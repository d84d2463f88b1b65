package file

import (
	"path/filepath"
	"strings"
)

// InsertSuffix inserts suffix before the extension of path,
// e.g. InsertSuffix("book.epub", ".zh") -> "book.zh.epub".
func InsertSuffix(path, suffix string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+suffix)
	}

	return filepath.Join(dir, filename[:lastDot]+suffix+filename[lastDot:])
}

// ReplaceExt swaps the extension of path for ext (dot optional).
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}
