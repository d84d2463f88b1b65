// Package library discovers books awaiting translation on disk.
package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/contextual-epub-translator/pkg/file"
)

// Candidate is one source book plus the output path its translation
// will be written to.
type Candidate struct {
	SourcePath string
	OutputPath string
}

// Scanner walks a watch directory for EPUB files whose translated
// counterpart does not exist yet.
type Scanner struct {
	watchDir   string
	outputDir  string
	targetLang language.Tag
}

// NewScanner scans watchDir for books. Translated output goes next to
// the source when outputDir is empty.
func NewScanner(watchDir, outputDir string, targetLang language.Tag) *Scanner {
	return &Scanner{
		watchDir:   watchDir,
		outputDir:  outputDir,
		targetLang: targetLang,
	}
}

// langSuffix is the filename marker of translated output,
// e.g. ".zh-Hant" in "novel.zh-Hant.epub".
func (s *Scanner) langSuffix() string {
	return "." + s.targetLang.String()
}

// OutputPath derives the translated filename for a source book.
func (s *Scanner) OutputPath(sourcePath string) string {
	out := file.InsertSuffix(sourcePath, s.langSuffix())
	if s.outputDir != "" {
		out = filepath.Join(s.outputDir, filepath.Base(out))
	}
	return out
}

// Scan lists books missing their translated counterpart, in stable
// order. Already-translated output files are never candidates
// themselves.
func (s *Scanner) Scan() ([]Candidate, error) {
	books, err := file.FindByExt(s.watchDir, ".epub")
	if err != nil {
		return nil, err
	}
	sort.Strings(books)

	var candidates []Candidate
	for _, book := range books {
		if s.isTranslatedOutput(book) {
			continue
		}
		out := s.OutputPath(book)
		if _, err := os.Stat(out); err == nil {
			continue
		}
		candidates = append(candidates, Candidate{SourcePath: book, OutputPath: out})
	}
	return candidates, nil
}

func (s *Scanner) isTranslatedOutput(path string) bool {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(strings.ToLower(stem), strings.ToLower(s.langSuffix()))
}
