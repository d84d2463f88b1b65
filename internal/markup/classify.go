package markup

import (
	"strings"
	"unicode"

	"golang.org/x/net/html/atom"
)

// Classification is the translatable-or-skip verdict for a text node.
type Classification int

const (
	Translatable Classification = iota
	Skip
)

// skipTags is the set of elements whose text content is never sent for
// translation. Ruby annotation elements (rt, rp) carry phonetic guides
// that must not be translated.
var skipTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Code:   true,
	atom.Rt:     true,
	atom.Rp:     true,
}

// translatableAttrs is the set of attribute local names whose values are
// human-readable and therefore translated.
var translatableAttrs = map[string]bool{
	"alt":   true,
	"title": true,
}

// blockTags is the set of elements treated as block-level boundaries by
// the segmenter: adjacent text is only merged within one of these.
var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Dd:         true,
	atom.Dt:         true,
	atom.Figcaption: true,
	atom.Caption:    true,
	atom.Title:      true,
}

// IsSkipElement reports whether the element's text content is excluded
// from translation.
func IsSkipElement(name string) bool {
	return skipTags[atom.Lookup([]byte(strings.ToLower(name)))]
}

// IsBlockElement reports whether the element is a block-level boundary.
func IsBlockElement(name string) bool {
	return blockTags[atom.Lookup([]byte(strings.ToLower(name)))]
}

// IsTranslatableAttr reports whether the attribute value is translated.
func IsTranslatableAttr(local string) bool {
	return translatableAttrs[strings.ToLower(local)]
}

// ClassifyText classifies the text node at idx. Whitespace-only nodes
// and nodes under a skip element are preserved verbatim.
func (d *Document) ClassifyText(idx int) Classification {
	n := &d.Nodes[idx]
	if n.Kind != KindText {
		return Skip
	}
	if strings.TrimSpace(n.Text) == "" {
		return Skip
	}
	for parent := n.Parent; parent >= 0; parent = d.Nodes[parent].Parent {
		p := &d.Nodes[parent]
		if p.Kind == KindElement && IsSkipElement(p.Name.Local) {
			return Skip
		}
	}
	return Translatable
}

// HasLetterOrDigit reports whether s contains at least one letter or
// digit. Punctuation-only spans are passed through untranslated.
func HasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// StripRuby removes ruby annotation elements (rt, rp) from the tree so
// phonetic guides are neither translated nor duplicated in output. The
// base text inside <ruby>/<rb> is left in place.
func StripRuby(d *Document) {
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.Kind != KindElement {
			continue
		}
		local := strings.ToLower(n.Name.Local)
		if local != "rt" && local != "rp" {
			continue
		}
		detach(d, i)
	}
}

// detach removes node idx from its parent's child list. The node stays
// in the arena but is no longer reachable from the tree.
func detach(d *Document, idx int) {
	parent := d.Nodes[idx].Parent
	var children *[]int
	if parent < 0 {
		children = &d.TopLevel
	} else {
		children = &d.Nodes[parent].Children
	}
	kept := (*children)[:0]
	for _, c := range *children {
		if c != idx {
			kept = append(kept, c)
		}
	}
	*children = kept
}
