// Package xml decodes CalDAV multistatus response bodies and builds the
// request documents the client sends. Parsing matches elements by local name
// plus namespace URI, never by prefixed tag text: servers disagree on
// prefixes (none, single-letter, multi-letter) for the same elements.
package xml

import (
	"strings"

	"github.com/beevik/etree"
)

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal is Apple's calendar extension namespace (calendar-color)
	AppleICal = "http://apple.com/ns/ical/"
)

// AddNamespaces adds the standard namespaces to a request document root.
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	root.CreateAttr("xmlns:D", DAV)
	root.CreateAttr("xmlns:C", CalDAV)
	root.CreateAttr("xmlns:CS", CalendarServer)
	root.CreateAttr("xmlns:A", AppleICal)
}

// matches reports whether el has the wanted local name and namespace URI.
// An element whose prefix resolves to no declared namespace still matches on
// local name alone; feeds that omit xmlns declarations entirely are common
// enough that strictness here loses real data.
func matches(el *etree.Element, ns, local string) bool {
	if !strings.EqualFold(el.Tag, local) {
		return false
	}
	uri := el.NamespaceURI()
	return uri == "" || uri == ns
}

// findChildren returns the direct children of parent matching (ns, local).
func findChildren(parent *etree.Element, ns, local string) []*etree.Element {
	if parent == nil {
		return nil
	}
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if matches(child, ns, local) {
			out = append(out, child)
		}
	}
	return out
}

// findChild returns the first direct child of parent matching (ns, local).
func findChild(parent *etree.Element, ns, local string) *etree.Element {
	children := findChildren(parent, ns, local)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// childText returns the trimmed text of the first matching child.
func childText(parent *etree.Element, ns, local string) string {
	if el := findChild(parent, ns, local); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// NormalizeEtag strips surrounding quote characters. Some servers quote
// version tags and some do not; both forms must compare equal downstream.
func NormalizeEtag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, `W/`)
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		etag = etag[1 : len(etag)-1]
	}
	return etag
}
