package epub

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models META-INF/container.xml, which locates the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

const containerPath = "META-INF/container.xml"

// findOPFPath locates the package document. container.xml is tried
// first; a missing one falls back to scanning for a .opf entry.
func findOPFPath(a *Archive) (string, error) {
	if data, ok := a.Entry(containerPath); ok {
		return parseContainerXML(data)
	}
	for _, entry := range a.Entries {
		if strings.HasSuffix(strings.ToLower(entry.Name), ".opf") {
			return entry.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no container.xml and no .opf entry", ErrInvalidArchive)
}

func parseContainerXML(data []byte) (string, error) {
	var c containerXML
	if err := xml.Unmarshal(stripUTF8BOM(data), &c); err != nil {
		return "", fmt.Errorf("%w: parse container.xml: %v", ErrInvalidArchive, err)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}
	if fallbackPath == "" {
		return "", fmt.Errorf("%w: container.xml has no usable rootfile", ErrInvalidArchive)
	}
	return fallbackPath, nil
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
