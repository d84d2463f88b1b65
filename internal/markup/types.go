package markup

import (
	"encoding/xml"
	"errors"
	"strconv"
)

// ErrMalformedMarkup indicates a document is not well-formed XML/XHTML.
// Fatal for that document only; the surrounding job continues.
var ErrMalformedMarkup = errors.New("markup: malformed document")

// NodeKind discriminates the structural node variants.
type NodeKind uint8

const (
	KindElement NodeKind = iota
	KindText
	KindComment
	KindProcInst
	KindDirective
)

// Node is one arena-indexed structural node. Parent and Children are
// indices into the owning Document's node table, so navigation is O(1)
// without pointer cycles.
type Node struct {
	Kind NodeKind

	// Element fields.
	Name     xml.Name
	Attrs    []xml.Attr
	Children []int

	// Text holds character data for KindText, the comment body for
	// KindComment, the instruction for KindProcInst and the directive
	// body for KindDirective.
	Text string

	// Target is the processing instruction target (e.g. "xml").
	Target string

	// Parent is -1 for top-level nodes.
	Parent int
}

// Document is the parsed tree for one spine item.
type Document struct {
	// ID identifies the document within its archive (manifest href).
	ID string

	Nodes    []Node
	TopLevel []int
}

// Ref is a stable position reference addressing where a translation
// unit's text originated. Concatenating units by ascending Ref order
// reconstructs the document's reading order.
type Ref struct {
	Doc  string `json:"doc"`
	Node int    `json:"node"`

	// Attr is the attribute local name when the unit is an attribute
	// value (alt, title); empty for text nodes.
	Attr string `json:"attr,omitempty"`

	// Merged lists additional text-node indices whose content was
	// merged into this unit, in reading order.
	Merged []int `json:"merged,omitempty"`

	// Span/Spans address one part of an oversize text node that was
	// split at sentence boundaries. Spans is 1 for unsplit units.
	Span  int `json:"span"`
	Spans int `json:"spans"`
}

// Key returns a stable string form of the reference, usable as a map or
// database key.
func (r Ref) Key() string {
	key := r.Doc + "#" + strconv.Itoa(r.Node)
	if r.Attr != "" {
		key += "@" + r.Attr
	}
	if r.Spans > 1 {
		key += ":" + strconv.Itoa(r.Span) + "/" + strconv.Itoa(r.Spans)
	}
	return key
}
