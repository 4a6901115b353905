package xml

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// CalendarListing is one calendar collection found in a listing response.
type CalendarListing struct {
	Href        string
	DisplayName string
	// Color is absent when the server returned no color property, or
	// returned it only inside a 404 propstat block.
	Color               mo.Option[string]
	CTag                string
	SupportedComponents []string
}

// ObjectVersion is an (href, version tag) pair from a listing or diff.
type ObjectVersion struct {
	Href string
	Etag string
}

// ObjectData is one fetched calendar resource payload.
type ObjectData struct {
	Href         string
	Etag         string
	CalendarData string
}

// SyncDiff is the decoded result of a sync-collection report.
type SyncDiff struct {
	Token   string
	Changed []ObjectVersion
	Deleted []string
}

// parseResponses decodes body and returns the multistatus root and its
// response elements. Malformed or empty input yields nils, never an error.
func parseResponses(body []byte) (*etree.Element, []*etree.Element) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, nil
	}
	root := doc.Root()
	if root == nil || !matches(root, DAV, "multistatus") {
		return nil, nil
	}
	return root, findChildren(root, DAV, "response")
}

// okProps returns the union of property elements found in every status-200
// propstat block of resp. RFC 4918 lets a server split found and not-found
// properties into separate blocks under one response; data from any 200
// block counts, properties appearing only in a 404 block do not.
func okProps(resp *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, ps := range findChildren(resp, DAV, "propstat") {
		if !statusOK(childText(ps, DAV, "status")) {
			continue
		}
		if prop := findChild(ps, DAV, "prop"); prop != nil {
			out = append(out, prop.ChildElements()...)
		}
	}
	return out
}

func statusOK(status string) bool {
	return strings.Contains(status, "200")
}

// ParsePrincipal extracts the current-user-principal URL from a discovery
// response. Empty result when absent.
func ParsePrincipal(body []byte) string {
	_, responses := parseResponses(body)
	for _, resp := range responses {
		for _, prop := range okProps(resp) {
			if matches(prop, DAV, "current-user-principal") {
				if href := childText(prop, DAV, "href"); href != "" {
					return href
				}
			}
		}
	}
	return ""
}

// ParseHomeSets extracts every calendar-home-set URL. Some servers return
// more than one href inside a single home-set element; all are collected.
func ParseHomeSets(body []byte) []string {
	var out []string
	_, responses := parseResponses(body)
	for _, resp := range responses {
		for _, prop := range okProps(resp) {
			if !matches(prop, CalDAV, "calendar-home-set") {
				continue
			}
			for _, href := range findChildren(prop, DAV, "href") {
				if text := strings.TrimSpace(href.Text()); text != "" {
					out = append(out, text)
				}
			}
		}
	}
	return out
}

// FirstHomeSet is the historical single-URL accessor: the first of the
// list, or empty.
func FirstHomeSet(body []byte) string {
	homes := ParseHomeSets(body)
	if len(homes) == 0 {
		return ""
	}
	return homes[0]
}

// ParseCalendarList extracts the calendar collections from a listing
// response. A resource stays in the list even when optional properties
// (color, ctag) came back 404 alongside valid core properties.
func ParseCalendarList(body []byte) []CalendarListing {
	var out []CalendarListing
	_, responses := parseResponses(body)
	for _, resp := range responses {
		href := childText(resp, DAV, "href")
		listing := CalendarListing{Href: href, Color: mo.None[string]()}
		isCalendar := false

		for _, prop := range okProps(resp) {
			switch {
			case matches(prop, DAV, "resourcetype"):
				if findChild(prop, CalDAV, "calendar") != nil {
					isCalendar = true
				}
			case matches(prop, DAV, "displayname"):
				listing.DisplayName = strings.TrimSpace(prop.Text())
			case matches(prop, AppleICal, "calendar-color"):
				listing.Color = mo.Some(strings.TrimSpace(prop.Text()))
			case matches(prop, CalendarServer, "getctag"):
				listing.CTag = strings.TrimSpace(prop.Text())
			case matches(prop, CalDAV, "supported-calendar-component-set"):
				for _, comp := range findChildren(prop, CalDAV, "comp") {
					if name := comp.SelectAttrValue("name", ""); name != "" {
						listing.SupportedComponents = append(listing.SupportedComponents, name)
					}
				}
			}
		}

		if isCalendar && href != "" {
			out = append(out, listing)
		}
	}
	return out
}

// ParseCTag extracts the collection change tag from a depth-0 response.
func ParseCTag(body []byte) string {
	_, responses := parseResponses(body)
	for _, resp := range responses {
		for _, prop := range okProps(resp) {
			if matches(prop, CalendarServer, "getctag") {
				return strings.TrimSpace(prop.Text())
			}
		}
	}
	return ""
}

// ParseSyncToken extracts a sync-token from a depth-0 propfind response.
func ParseSyncToken(body []byte) string {
	_, responses := parseResponses(body)
	for _, resp := range responses {
		for _, prop := range okProps(resp) {
			if matches(prop, DAV, "sync-token") {
				return strings.TrimSpace(prop.Text())
			}
		}
	}
	return ""
}

// ParseObjectVersions extracts the (href, etag) pairs from an etag listing
// response, skipping the collection itself.
func ParseObjectVersions(body []byte) []ObjectVersion {
	var out []ObjectVersion
	_, responses := parseResponses(body)
	for _, resp := range responses {
		href := childText(resp, DAV, "href")
		if href == "" {
			continue
		}
		for _, prop := range okProps(resp) {
			if matches(prop, DAV, "getetag") {
				out = append(out, ObjectVersion{Href: href, Etag: NormalizeEtag(prop.Text())})
				break
			}
		}
	}
	return out
}

// ParseSyncCollection decodes a sync-collection report: the new token, the
// changed (href, etag) pairs, and the deleted hrefs (responses whose own
// status is 404).
func ParseSyncCollection(body []byte) SyncDiff {
	var diff SyncDiff
	root, responses := parseResponses(body)
	if root == nil {
		return diff
	}
	diff.Token = childText(root, DAV, "sync-token")

	for _, resp := range responses {
		href := childText(resp, DAV, "href")
		if href == "" {
			continue
		}
		if status := childText(resp, DAV, "status"); strings.Contains(status, "404") {
			diff.Deleted = append(diff.Deleted, href)
			continue
		}
		for _, prop := range okProps(resp) {
			if matches(prop, DAV, "getetag") {
				diff.Changed = append(diff.Changed, ObjectVersion{Href: href, Etag: NormalizeEtag(prop.Text())})
				break
			}
		}
	}
	return diff
}

// ParseCalendarData decodes a multiget response into raw per-item calendar
// payloads with their version tags. Items without calendar-data are skipped.
func ParseCalendarData(body []byte) []ObjectData {
	var out []ObjectData
	_, responses := parseResponses(body)
	for _, resp := range responses {
		href := childText(resp, DAV, "href")
		if href == "" {
			continue
		}
		item := ObjectData{Href: href}
		for _, prop := range okProps(resp) {
			switch {
			case matches(prop, DAV, "getetag"):
				item.Etag = NormalizeEtag(prop.Text())
			case matches(prop, CalDAV, "calendar-data"):
				item.CalendarData = prop.Text()
			}
		}
		if item.CalendarData != "" {
			out = append(out, item)
		}
	}
	return out
}
