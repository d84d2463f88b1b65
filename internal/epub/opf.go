package epub

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// opfPackage models the root <package> element of the package document.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Titles    []string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators  []string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages []string `xml:"http://purl.org/dc/elements/1.1/ language"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfSpine struct {
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// SpineItem is one reading-order entry resolved to an archive path.
type SpineItem struct {
	ID        string
	Href      string
	MediaType string
}

// Translatable reports whether the spine item carries markup the
// pipeline translates.
func (s SpineItem) Translatable() bool {
	switch strings.ToLower(s.MediaType) {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

// Package is the parsed package document: book metadata plus the
// resolved reading order.
type Package struct {
	Title    string
	Creator  string
	Language string
	Spine    []SpineItem
}

func parsePackage(opfPath string, data []byte) (*Package, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(stripUTF8BOM(data), &pkg); err != nil {
		return nil, fmt.Errorf("%w: parse package document: %v", ErrInvalidArchive, err)
	}

	manifest := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item
	}

	opfDir := path.Dir(opfPath)
	result := &Package{
		Title:    firstNonEmpty(pkg.Metadata.Titles),
		Creator:  firstNonEmpty(pkg.Metadata.Creators),
		Language: firstNonEmpty(pkg.Metadata.Languages),
	}

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}
		result.Spine = append(result.Spine, SpineItem{
			ID:        item.ID,
			Href:      resolveHref(opfDir, item.Href),
			MediaType: item.MediaType,
		})
	}
	if len(result.Spine) == 0 {
		return nil, fmt.Errorf("%w: package document has an empty spine", ErrInvalidArchive)
	}
	return result, nil
}

// resolveHref joins a manifest href onto the OPF directory and decodes
// percent-escapes so it matches archive entry names.
func resolveHref(opfDir, href string) string {
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if opfDir == "." || opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(opfDir, href))
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
