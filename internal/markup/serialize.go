package markup

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// xmlNamespaceURL is the predeclared namespace bound to the "xml" prefix.
const xmlNamespaceURL = "http://www.w3.org/XML/1998/namespace"

// Serialize renders the document back to XHTML bytes. It is the
// structural inverse of Parse: re-parsing the output yields a tree
// isomorphic to the original modulo substituted text, and a second
// serialize of that tree is byte-identical.
//
// encoding/xml resolves namespace prefixes to URLs while decoding, so
// the serializer rebuilds prefixes from the xmlns declarations carried
// in the attribute lists.
func Serialize(doc *Document) []byte {
	var buf bytes.Buffer
	for _, idx := range doc.TopLevel {
		writeNode(&buf, doc, idx, "", nil)
	}
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, doc *Document, idx int, defaultNS string, prefixes map[string]string) {
	n := &doc.Nodes[idx]
	switch n.Kind {
	case KindText:
		buf.WriteString(escapeText(n.Text))

	case KindComment:
		buf.WriteString("<!--")
		buf.WriteString(n.Text)
		buf.WriteString("-->")

	case KindProcInst:
		buf.WriteString("<?")
		buf.WriteString(n.Target)
		if n.Text != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.Text)
		}
		buf.WriteString("?>")

	case KindDirective:
		buf.WriteString("<!")
		buf.WriteString(n.Text)
		buf.WriteByte('>')

	case KindElement:
		defaultNS, prefixes = applyDeclarations(n.Attrs, defaultNS, prefixes)

		name := qualifiedName(n.Name, defaultNS, prefixes)
		buf.WriteByte('<')
		buf.WriteString(name)
		for _, attr := range n.Attrs {
			buf.WriteByte(' ')
			buf.WriteString(attrName(attr.Name, prefixes))
			buf.WriteString(`="`)
			buf.WriteString(escapeAttr(attr.Value))
			buf.WriteByte('"')
		}

		if len(n.Children) == 0 {
			buf.WriteString("/>")
			return
		}

		buf.WriteByte('>')
		for _, child := range n.Children {
			writeNode(buf, doc, child, defaultNS, prefixes)
		}
		buf.WriteString("</")
		buf.WriteString(name)
		buf.WriteByte('>')
	}
}

// applyDeclarations folds any xmlns declarations on the element into the
// namespace scope, copying the prefix map only when it changes.
func applyDeclarations(attrs []xml.Attr, defaultNS string, prefixes map[string]string) (string, map[string]string) {
	copied := false
	for _, attr := range attrs {
		switch {
		case attr.Name.Space == "" && attr.Name.Local == "xmlns":
			defaultNS = attr.Value
		case attr.Name.Space == "xmlns":
			if !copied {
				next := make(map[string]string, len(prefixes)+1)
				for k, v := range prefixes {
					next[k] = v
				}
				prefixes = next
				copied = true
			}
			prefixes[attr.Value] = attr.Name.Local
		}
	}
	return defaultNS, prefixes
}

// qualifiedName reconstructs the serialized element name from the
// decoder's URL-resolved xml.Name.
func qualifiedName(name xml.Name, defaultNS string, prefixes map[string]string) string {
	if name.Space == "" || name.Space == defaultNS {
		return name.Local
	}
	if prefix, ok := prefixes[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	// An unresolved space that does not look like a URL is a literal
	// prefix the decoder could not translate.
	if !strings.ContainsAny(name.Space, ":/") {
		return name.Space + ":" + name.Local
	}
	return name.Local
}

// attrName reconstructs the serialized attribute name.
func attrName(name xml.Name, prefixes map[string]string) string {
	switch {
	case name.Space == "":
		return name.Local
	case name.Space == "xmlns":
		return "xmlns:" + name.Local
	case name.Space == "xml" || name.Space == xmlNamespaceURL:
		return "xml:" + name.Local
	}
	if prefix, ok := prefixes[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	if !strings.ContainsAny(name.Space, ":/") {
		return name.Space + ":" + name.Local
	}
	return name.Local
}

// escapeText escapes character data minimally so that layout-significant
// whitespace survives byte-for-byte.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "&<>") {
		return s
	}
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	s = escapeText(s)
	return strings.ReplaceAll(s, `"`, "&quot;")
}
