// Package epub reads and writes EPUB containers. An opened archive keeps
// every entry's bytes and order so untouched entries round-trip
// byte-identical into the translated output.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Entry is one archive member in original order.
type Entry struct {
	Name string
	Data []byte
}

// Archive is a fully-loaded EPUB container.
type Archive struct {
	// Path is the file the archive was opened from; empty for in-memory
	// archives.
	Path string

	// Entries preserves the source order of all members.
	Entries []Entry

	// OPFPath is the package document location inside the archive.
	OPFPath string

	// Package is the parsed package document.
	Package *Package

	index map[string]int
}

// Open loads an EPUB file into memory.
func Open(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("epub: read %s: %w", path, err)
	}
	archive, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	archive.Path = path
	return archive, nil
}

// OpenBytes loads an EPUB from raw zip bytes.
func OpenBytes(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	archive := &Archive{index: make(map[string]int)}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		content, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}
		archive.index[f.Name] = len(archive.Entries)
		archive.Entries = append(archive.Entries, Entry{Name: f.Name, Data: content})
	}

	opfPath, err := findOPFPath(archive)
	if err != nil {
		return nil, err
	}
	opfData, ok := archive.Entry(opfPath)
	if !ok {
		return nil, fmt.Errorf("%w: package document %s missing", ErrInvalidArchive, opfPath)
	}
	pkg, err := parsePackage(opfPath, opfData)
	if err != nil {
		return nil, err
	}

	archive.OPFPath = opfPath
	archive.Package = pkg
	return archive, nil
}

// Entry returns the bytes of a named entry.
func (a *Archive) Entry(name string) ([]byte, bool) {
	idx, ok := a.index[name]
	if !ok {
		return nil, false
	}
	return a.Entries[idx].Data, true
}

// Replace swaps the bytes of an existing entry.
func (a *Archive) Replace(name string, data []byte) error {
	idx, ok := a.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	a.Entries[idx].Data = data
	return nil
}

// Documents lists the spine items that carry translatable markup, in
// reading order.
func (a *Archive) Documents() []SpineItem {
	var docs []SpineItem
	for _, item := range a.Package.Spine {
		if item.Translatable() {
			docs = append(docs, item)
		}
	}
	return docs
}

func readZipEntry(f *zip.File) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("%w: unsafe entry path %s", ErrInvalidArchive, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("epub: read entry %s: %w", f.Name, err)
	}
	return data, nil
}

// isSafePath rejects absolute paths and path traversal in entry names.
func isSafePath(name string) bool {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
