package xml

import "github.com/beevik/etree"

// prefixes used in generated request bodies, declared by AddNamespaces.
var requestPrefix = map[string]string{
	DAV:            "D",
	CalDAV:         "C",
	CalendarServer: "CS",
	AppleICal:      "A",
}

var propNamespace = map[string]string{
	"resourcetype":                     DAV,
	"displayname":                      DAV,
	"current-user-principal":           DAV,
	"getetag":                          DAV,
	"sync-token":                       DAV,
	"calendar-home-set":                CalDAV,
	"supported-calendar-component-set": CalDAV,
	"calendar-data":                    CalDAV,
	"getctag":                          CalendarServer,
	"calendar-color":                   AppleICal,
}

// PropfindBody builds a PROPFIND request body asking for the named
// properties. Unknown names are ignored.
func PropfindBody(props ...string) []byte {
	doc := etree.NewDocument()
	root := doc.CreateElement("propfind")
	root.Space = requestPrefix[DAV]
	AddNamespaces(doc)

	prop := root.CreateElement("prop")
	prop.Space = requestPrefix[DAV]
	for _, name := range props {
		ns, ok := propNamespace[name]
		if !ok {
			continue
		}
		el := prop.CreateElement(name)
		el.Space = requestPrefix[ns]
	}
	return mustBytes(doc)
}

// SyncCollectionBody builds a sync-collection REPORT body for the given
// token. An empty token requests the initial (full) diff.
func SyncCollectionBody(token string) []byte {
	doc := etree.NewDocument()
	root := doc.CreateElement("sync-collection")
	root.Space = requestPrefix[DAV]
	AddNamespaces(doc)

	tok := root.CreateElement("sync-token")
	tok.Space = requestPrefix[DAV]
	tok.SetText(token)

	level := root.CreateElement("sync-level")
	level.Space = requestPrefix[DAV]
	level.SetText("1")

	prop := root.CreateElement("prop")
	prop.Space = requestPrefix[DAV]
	etag := prop.CreateElement("getetag")
	etag.Space = requestPrefix[DAV]

	return mustBytes(doc)
}

// MultigetBody builds a calendar-multiget REPORT body fetching
// calendar-data plus etags for the given hrefs.
func MultigetBody(hrefs ...string) []byte {
	doc := etree.NewDocument()
	root := doc.CreateElement("calendar-multiget")
	root.Space = requestPrefix[CalDAV]
	AddNamespaces(doc)

	prop := root.CreateElement("prop")
	prop.Space = requestPrefix[DAV]
	etag := prop.CreateElement("getetag")
	etag.Space = requestPrefix[DAV]
	data := prop.CreateElement("calendar-data")
	data.Space = requestPrefix[CalDAV]

	for _, href := range hrefs {
		el := root.CreateElement("href")
		el.Space = requestPrefix[DAV]
		el.SetText(href)
	}
	return mustBytes(doc)
}

func mustBytes(doc *etree.Document) []byte {
	out, err := doc.WriteToBytes()
	if err != nil {
		return []byte{}
	}
	return out
}
