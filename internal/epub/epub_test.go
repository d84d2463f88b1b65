package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOPF = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>吾輩は猫である</dc:title>
    <dc:creator>夏目漱石</dc:creator>
    <dc:language>ja</dc:language>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch%202.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover" href="cover.jpg" media-type="image/jpeg"/>
    <item id="css" href="style.css" media-type="text/css"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func buildTestEPUB(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string, method uint16) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	write("mimetype", "application/epub+zip", zip.Store)
	for name, content := range entries {
		write(name, content, zip.Deflate)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func defaultEntries() map[string]string {
	return map[string]string{
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/ch1.xhtml":        `<html><body><p>第一章</p></body></html>`,
		"OEBPS/ch 2.xhtml":       `<html><body><p>第二章</p></body></html>`,
		"OEBPS/cover.jpg":        "\xff\xd8fakejpeg",
		"OEBPS/style.css":        "p { margin: 0; }",
	}
}

func TestOpenBytesParsesPackage(t *testing.T) {
	archive, err := OpenBytes(buildTestEPUB(t, defaultEntries()))
	require.NoError(t, err)

	assert.Equal(t, "OEBPS/content.opf", archive.OPFPath)
	assert.Equal(t, "吾輩は猫である", archive.Package.Title)
	assert.Equal(t, "夏目漱石", archive.Package.Creator)
	assert.Equal(t, "ja", archive.Package.Language)

	docs := archive.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "OEBPS/ch1.xhtml", docs[0].Href)
	// Percent-escaped hrefs resolve to the real entry name.
	assert.Equal(t, "OEBPS/ch 2.xhtml", docs[1].Href)

	_, ok := archive.Entry(docs[1].Href)
	assert.True(t, ok)
}

func TestOpenBytesRejectsGarbage(t *testing.T) {
	_, err := OpenBytes([]byte("not a zip"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArchive))
}

func TestOpenBytesRequiresOPF(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("stray.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	require.NoError(t, zw.Close())

	_, err = OpenBytes(buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArchive))
}

func TestOpenBytesFallsBackToOPFScan(t *testing.T) {
	entries := defaultEntries()
	delete(entries, "META-INF/container.xml")

	archive, err := OpenBytes(buildTestEPUB(t, entries))
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/content.opf", archive.OPFPath)
}

func TestReplaceUnknownEntry(t *testing.T) {
	archive, err := OpenBytes(buildTestEPUB(t, defaultEntries()))
	require.NoError(t, err)

	err = archive.Replace("OEBPS/missing.xhtml", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEntryNotFound))
}

func TestWriteFileRoundTrip(t *testing.T) {
	archive, err := OpenBytes(buildTestEPUB(t, defaultEntries()))
	require.NoError(t, err)

	translated := []byte(`<html><body><p>第一章(譯)</p></body></html>`)
	require.NoError(t, archive.Replace("OEBPS/ch1.xhtml", translated))

	out := filepath.Join(t.TempDir(), "out", "book.zh.epub")
	require.NoError(t, WriteFile(archive, out))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(written), int64(len(written)))
	require.NoError(t, err)

	// mimetype is the first entry and stored uncompressed.
	require.NotEmpty(t, zr.File)
	assert.Equal(t, "mimetype", zr.File[0].Name)
	assert.Equal(t, zip.Store, zr.File[0].Method)

	reopened, err := OpenBytes(written)
	require.NoError(t, err)

	got, ok := reopened.Entry("OEBPS/ch1.xhtml")
	require.True(t, ok)
	assert.Equal(t, translated, got)

	// Untouched entries are byte-identical.
	for _, name := range []string{"OEBPS/cover.jpg", "OEBPS/style.css", "OEBPS/content.opf", "OEBPS/ch 2.xhtml"} {
		want, ok := archive.Entry(name)
		require.True(t, ok)
		gotData, ok := reopened.Entry(name)
		require.True(t, ok, name)
		assert.Equal(t, want, gotData, name)
	}

	// Entry order is preserved.
	require.Equal(t, len(archive.Entries), len(reopened.Entries))
}

func TestWriteFileFailsIntoErrArchiveWrite(t *testing.T) {
	archive, err := OpenBytes(buildTestEPUB(t, defaultEntries()))
	require.NoError(t, err)

	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("file, not dir"), 0o644))

	err = WriteFile(archive, filepath.Join(blocked, "book.epub"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveWrite))
}

func TestSpineItemTranslatable(t *testing.T) {
	assert.True(t, SpineItem{MediaType: "application/xhtml+xml"}.Translatable())
	assert.True(t, SpineItem{MediaType: "Text/HTML"}.Translatable())
	assert.False(t, SpineItem{MediaType: "image/jpeg"}.Translatable())
	assert.False(t, SpineItem{MediaType: "text/css"}.Translatable())
}
