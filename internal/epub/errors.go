package epub

import "errors"

// Sentinel errors returned by the epub package.
var (
	// ErrInvalidArchive indicates the file is not a readable EPUB
	// (not a zip, or missing container.xml and any .opf file).
	ErrInvalidArchive = errors.New("epub: invalid archive")

	// ErrArchiveWrite indicates the translated archive could not be
	// written. Fatal for the job; the source file is never touched.
	ErrArchiveWrite = errors.New("epub: archive write failed")

	// ErrEntryNotFound indicates the requested entry does not exist in
	// the archive.
	ErrEntryNotFound = errors.New("epub: entry not found in archive")
)
