// Package segment extracts ordered translation units from a parsed
// document. Each unit is a bounded span of translatable text tagged with
// a stable position reference for reassembly.
package segment

import (
	"strings"

	"github.com/MimeLyc/contextual-epub-translator/internal/markup"
)

// Unit is one translation work item.
type Unit struct {
	Ref markup.Ref

	// Text is the exact source text that will be replaced.
	Text string

	// Context carries the tail of the preceding translatable text, to
	// disambiguate pronouns and tone. It is prompt context only and is
	// never substituted back.
	Context string
}

// Config bounds unit sizes. Zero values fall back to defaults.
type Config struct {
	// MaxUnitSize is the maximum unit length in runes.
	MaxUnitSize int

	// ContextWindow is the number of preceding runes carried as context.
	ContextWindow int
}

const (
	defaultMaxUnitSize   = 2000
	defaultContextWindow = 200
)

func (c Config) withDefaults() Config {
	if c.MaxUnitSize <= 0 {
		c.MaxUnitSize = defaultMaxUnitSize
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultContextWindow
	}
	return c
}

// Segment walks the document in reading order and extracts translation
// units. Adjacent translatable sibling text nodes are merged while the
// merged unit stays under MaxUnitSize; an oversize single node is split
// at sentence boundaries into span-addressed sub-units.
func Segment(doc *markup.Document, cfg Config) []Unit {
	cfg = cfg.withDefaults()
	s := &segmenter{doc: doc, cfg: cfg}
	for _, idx := range doc.TopLevel {
		s.walk(idx)
	}
	s.flush()
	return s.units
}

type segmenter struct {
	doc   *markup.Document
	cfg   Config
	units []Unit

	// pending is the current run of adjacent sibling text nodes.
	pending     []int
	pendingText strings.Builder

	// trail accumulates emitted translatable text for context windows.
	trail []rune
}

func (s *segmenter) walk(idx int) {
	n := &s.doc.Nodes[idx]
	switch n.Kind {
	case markup.KindElement:
		s.flush()
		s.emitAttrUnits(idx)
		for _, child := range n.Children {
			s.walk(child)
		}
		s.flush()

	case markup.KindText:
		if s.doc.ClassifyText(idx) != markup.Translatable || !markup.HasLetterOrDigit(n.Text) {
			s.flush()
			return
		}
		if !s.appendPending(idx) {
			s.flush()
			s.pending = []int{idx}
			s.pendingText.WriteString(n.Text)
		}
	}
}

// appendPending tries to extend the current run with text node idx.
// The node must be the next sibling of the run's tail and the merged
// text must stay under the size limit.
func (s *segmenter) appendPending(idx int) bool {
	if len(s.pending) == 0 {
		s.pending = []int{idx}
		s.pendingText.WriteString(s.doc.Nodes[idx].Text)
		return true
	}
	tail := s.pending[len(s.pending)-1]
	if !s.adjacentSiblings(tail, idx) {
		return false
	}
	if runeLen(s.pendingText.String())+runeLen(s.doc.Nodes[idx].Text) > s.cfg.MaxUnitSize {
		return false
	}
	s.pending = append(s.pending, idx)
	s.pendingText.WriteString(s.doc.Nodes[idx].Text)
	return true
}

func (s *segmenter) adjacentSiblings(a, b int) bool {
	if s.doc.Nodes[a].Parent != s.doc.Nodes[b].Parent {
		return false
	}
	parent := s.doc.Nodes[a].Parent
	var siblings []int
	if parent < 0 {
		siblings = s.doc.TopLevel
	} else {
		siblings = s.doc.Nodes[parent].Children
	}
	for i, c := range siblings {
		if c == a {
			return i+1 < len(siblings) && siblings[i+1] == b
		}
	}
	return false
}

func (s *segmenter) flush() {
	if len(s.pending) == 0 {
		return
	}
	nodes := s.pending
	text := s.pendingText.String()
	s.pending = nil
	s.pendingText.Reset()

	if runeLen(text) <= s.cfg.MaxUnitSize || len(nodes) > 1 {
		ref := markup.Ref{
			Doc:   s.doc.ID,
			Node:  nodes[0],
			Spans: 1,
		}
		if len(nodes) > 1 {
			ref.Merged = nodes[1:]
		}
		s.emit(Unit{Ref: ref, Text: text})
		return
	}

	// A single node longer than the limit: split at sentence boundaries
	// into span-addressed sub-units rejoined in order at reassembly.
	parts := splitSentences(text, s.cfg.MaxUnitSize)
	for i, part := range parts {
		s.emit(Unit{
			Ref: markup.Ref{
				Doc:   s.doc.ID,
				Node:  nodes[0],
				Span:  i,
				Spans: len(parts),
			},
			Text: part,
		})
	}
}

func (s *segmenter) emitAttrUnits(idx int) {
	n := &s.doc.Nodes[idx]
	for _, attr := range n.Attrs {
		if !markup.IsTranslatableAttr(attr.Name.Local) {
			continue
		}
		if !markup.HasLetterOrDigit(attr.Value) {
			continue
		}
		s.emit(Unit{
			Ref: markup.Ref{
				Doc:   s.doc.ID,
				Node:  idx,
				Attr:  strings.ToLower(attr.Name.Local),
				Spans: 1,
			},
			Text: attr.Value,
		})
	}
}

func (s *segmenter) emit(u Unit) {
	u.Context = s.contextWindow()
	s.units = append(s.units, u)
	if s.cfg.ContextWindow > 0 {
		s.trail = append(s.trail, []rune(u.Text)...)
		if overflow := len(s.trail) - s.cfg.ContextWindow; overflow > 0 {
			s.trail = s.trail[overflow:]
		}
	}
}

func (s *segmenter) contextWindow() string {
	if len(s.trail) == 0 {
		return ""
	}
	return string(s.trail)
}

// sentenceEnders are the rune set treated as sentence boundaries when
// splitting oversize text.
var sentenceEnders = map[rune]bool{
	'。': true, '．': true, '.': true,
	'!': true, '！': true, '?': true, '？': true,
	'…': true, '\n': true,
}

// closingMarks may trail a sentence ender and stay attached to it.
var closingMarks = map[rune]bool{
	'」': true, '』': true, '"': true, '\'': true, ')': true, '）': true,
}

// splitSentences cuts text into chunks of at most maxRunes, preferring
// the last sentence boundary inside the window and falling back to a
// hard cut when a sentence alone exceeds the window.
func splitSentences(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var parts []string
	start := 0
	for start < len(runes) {
		remaining := len(runes) - start
		if remaining <= maxRunes {
			parts = append(parts, string(runes[start:]))
			break
		}

		window := runes[start : start+maxRunes]
		cut := -1
		for i := len(window) - 1; i >= 0; i-- {
			if !sentenceEnders[window[i]] {
				continue
			}
			end := i + 1
			for end < len(window) && closingMarks[window[end]] {
				end++
			}
			cut = end
			break
		}
		if cut <= 0 {
			cut = maxRunes
		}
		parts = append(parts, string(runes[start:start+cut]))
		start += cut
	}
	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}
