package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes the archive to path atomically: the zip is assembled
// in a temp file next to the target and renamed into place, so readers
// never observe a partial book. The mimetype entry is written first and
// uncompressed, as the container format requires.
func WriteFile(a *Archive, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeZip(tmp, a); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}
	tmpName = ""
	return nil
}

func writeZip(w io.Writer, a *Archive) error {
	zw := zip.NewWriter(w)

	// mimetype must be the first entry and stored uncompressed.
	if data, ok := a.Entry("mimetype"); ok {
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   "mimetype",
			Method: zip.Store,
		})
		if err != nil {
			return err
		}
		if _, err := entry.Write(data); err != nil {
			return err
		}
	}

	for _, e := range a.Entries {
		if e.Name == "mimetype" {
			continue
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		if _, err := entry.Write(e.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}
