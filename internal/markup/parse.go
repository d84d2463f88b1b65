package markup

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so we convert them before parsing XHTML content.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"ecirc": []byte("&#234;"), "euml": []byte("&#235;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"acirc": []byte("&#226;"), "auml": []byte("&#228;"),
	"iacute": []byte("&#237;"), "igrave": []byte("&#236;"),
	"icirc": []byte("&#238;"), "iuml": []byte("&#239;"),
	"oacute": []byte("&#243;"), "ograve": []byte("&#242;"),
	"ocirc": []byte("&#244;"), "ouml": []byte("&#246;"),
	"uacute": []byte("&#250;"), "ugrave": []byte("&#249;"),
	"ucirc": []byte("&#251;"), "uuml": []byte("&#252;"),
	"ntilde": []byte("&#241;"), "ccedil": []byte("&#231;"),
	"times": []byte("&#215;"), "divide": []byte("&#247;"),
	"deg": []byte("&#176;"), "para": []byte("&#182;"), "sect": []byte("&#167;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
	"iexcl": []byte("&#161;"), "iquest": []byte("&#191;"),
}

// htmlEntityPattern matches common HTML named entities case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|ecirc|euml|aacute|agrave|acirc|auml|iacute|igrave|icirc|iuml|` +
		`oacute|ograve|ocirc|ouml|uacute|ugrave|ucirc|uuml|ntilde|ccedil|` +
		`times|divide|deg|para|sect|laquo|raquo|iexcl|iquest);`)

// preprocessHTMLEntities replaces common HTML named entities with their
// numeric character references so that encoding/xml can parse the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// Parse parses one XHTML document into an arena-indexed tree. The input
// must be well-formed XML; anything else fails with a wrapped
// ErrMalformedMarkup.
func Parse(id string, data []byte) (*Document, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	doc := &Document{ID: id}
	decoder := xml.NewDecoder(bytes.NewReader(data))

	// stack holds the arena indices of currently open elements.
	var stack []int

	appendNode := func(n Node) int {
		idx := len(doc.Nodes)
		if len(stack) == 0 {
			n.Parent = -1
			doc.TopLevel = append(doc.TopLevel, idx)
		} else {
			parent := stack[len(stack)-1]
			n.Parent = parent
			doc.Nodes[parent].Children = append(doc.Nodes[parent].Children, idx)
		}
		doc.Nodes = append(doc.Nodes, n)
		return idx
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMarkup, id, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make([]xml.Attr, len(t.Attr))
			copy(attrs, t.Attr)
			idx := appendNode(Node{
				Kind:  KindElement,
				Name:  t.Name,
				Attrs: attrs,
			})
			stack = append(stack, idx)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: %s: unexpected end element %s", ErrMalformedMarkup, id, t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			appendNode(Node{Kind: KindText, Text: string(t)})

		case xml.Comment:
			appendNode(Node{Kind: KindComment, Text: string(t)})

		case xml.ProcInst:
			appendNode(Node{Kind: KindProcInst, Target: t.Target, Text: string(t.Inst)})

		case xml.Directive:
			appendNode(Node{Kind: KindDirective, Text: string(t)})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: %s: unclosed element", ErrMalformedMarkup, id)
	}
	if !hasRootElement(doc) {
		return nil, fmt.Errorf("%w: %s: no root element", ErrMalformedMarkup, id)
	}

	return doc, nil
}

func hasRootElement(doc *Document) bool {
	for _, idx := range doc.TopLevel {
		if doc.Nodes[idx].Kind == KindElement {
			return true
		}
	}
	return false
}
