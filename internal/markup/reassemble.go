package markup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPositionResolution indicates a position reference could not be
// matched back into its document. This points at a Structure Model or
// Segmenter bug and is fatal for the affected document only.
var ErrPositionResolution = errors.New("markup: position reference cannot be resolved")

// UnitResult carries the final text for one translation unit: the
// translated text on success, or the original source text for units that
// failed permanently (visible degradation instead of silent loss).
type UnitResult struct {
	Ref  Ref
	Text string
}

// Reassemble substitutes each result's text at its recorded position.
// Split sub-units are rejoined in span order regardless of the order in
// which they completed. The document tree is mutated in place; callers
// serialize it afterwards.
func Reassemble(doc *Document, results []UnitResult) error {
	type splitGroup struct {
		spans int
		parts []string
		seen  []bool
	}
	splits := make(map[int]*splitGroup)

	for _, res := range results {
		ref := res.Ref
		if ref.Doc != doc.ID {
			return fmt.Errorf("%w: %s targets document %s", ErrPositionResolution, ref.Key(), doc.ID)
		}
		if ref.Node < 0 || ref.Node >= len(doc.Nodes) {
			return fmt.Errorf("%w: %s: node index out of range", ErrPositionResolution, ref.Key())
		}

		if ref.Attr != "" {
			if err := substituteAttr(doc, ref, res.Text); err != nil {
				return err
			}
			continue
		}

		if doc.Nodes[ref.Node].Kind != KindText {
			return fmt.Errorf("%w: %s: not a text node", ErrPositionResolution, ref.Key())
		}

		if ref.Spans > 1 {
			group, ok := splits[ref.Node]
			if !ok {
				group = &splitGroup{
					spans: ref.Spans,
					parts: make([]string, ref.Spans),
					seen:  make([]bool, ref.Spans),
				}
				splits[ref.Node] = group
			}
			if ref.Spans != group.spans || ref.Span < 0 || ref.Span >= group.spans {
				return fmt.Errorf("%w: %s: inconsistent span addressing", ErrPositionResolution, ref.Key())
			}
			if group.seen[ref.Span] {
				return fmt.Errorf("%w: %s: duplicate span", ErrPositionResolution, ref.Key())
			}
			group.parts[ref.Span] = res.Text
			group.seen[ref.Span] = true
			continue
		}

		substituteText(doc, ref, res.Text)
	}

	// Commit rejoined split nodes once every span has arrived.
	for node, group := range splits {
		for span, ok := range group.seen {
			if !ok {
				return fmt.Errorf("%w: %s#%d: missing span %d of %d",
					ErrPositionResolution, doc.ID, node, span, group.spans)
			}
		}
		doc.Nodes[node].Text = strings.Join(group.parts, "")
	}

	return nil
}

// substituteText writes the unit text into its first node and blanks any
// merged sibling nodes; the joined translation lives in one place while
// the sibling nodes keep the tree shape intact.
func substituteText(doc *Document, ref Ref, text string) {
	doc.Nodes[ref.Node].Text = text
	for _, merged := range ref.Merged {
		if merged >= 0 && merged < len(doc.Nodes) && doc.Nodes[merged].Kind == KindText {
			doc.Nodes[merged].Text = ""
		}
	}
}

func substituteAttr(doc *Document, ref Ref, text string) error {
	n := &doc.Nodes[ref.Node]
	if n.Kind != KindElement {
		return fmt.Errorf("%w: %s: attribute target is not an element", ErrPositionResolution, ref.Key())
	}
	for i := range n.Attrs {
		if strings.EqualFold(n.Attrs[i].Name.Local, ref.Attr) {
			n.Attrs[i].Value = text
			return nil
		}
	}
	return fmt.Errorf("%w: %s: attribute not present", ErrPositionResolution, ref.Key())
}
