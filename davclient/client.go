// Package davclient is the typed CalDAV surface the sync strategies
// consume: discovery, collection state, diff reports, multi-fetch, and
// etag-guarded writes.
package davclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/kalyxo/calsync/internal/httpclient"
	"github.com/kalyxo/calsync/internal/xml"
)

// CalendarInfo describes one discovered calendar collection.
type CalendarInfo struct {
	Href       string
	Name       string
	Color      mo.Option[string]
	CTag       string
	Components []string
}

// ObjectVersion is an (href, version tag) pair.
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

// SyncDiff is the outcome of a sync-token diff report.
type SyncDiff struct {
	Token   string
	Changed []ObjectVersion
	Deleted []string
}

// Client defines the CalDAV operations against one calendar collection.
type Client interface {
	// GetCTag fetches the collection change tag.
	GetCTag(ctx context.Context) (string, error)
	// ListObjectVersions lists every resource href with its version tag
	// (the full-sync path).
	ListObjectVersions(ctx context.Context) ([]ObjectVersion, error)
	// SyncCollection submits token to the diff endpoint. An empty token
	// requests the initial diff.
	SyncCollection(ctx context.Context, token string) (SyncDiff, error)
	// MultiGet fetches calendar-data for the given hrefs.
	MultiGet(ctx context.Context, hrefs []string) ([]ObjectData, error)
	// CreateObject stores data as a new resource and returns its href and
	// version tag.
	CreateObject(ctx context.Context, data []byte) (href, etag string, err error)
	// UpdateObject overwrites href guarded by etag.
	UpdateObject(ctx context.Context, href, etag string, data []byte) (newEtag string, err error)
	// DeleteObject removes href guarded by etag.
	DeleteObject(ctx context.Context, href, etag string) error
}

type davClient struct {
	http        httpclient.Wrapper
	calendarURL string
	logger      *slog.Logger
}

// NewClient creates a Client bound to one calendar collection URL.
func NewClient(http httpclient.Wrapper, calendarURL string, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &davClient{http: http, calendarURL: calendarURL, logger: logger}
}

func (c *davClient) GetCTag(ctx context.Context) (string, error) {
	body, err := c.http.DoPROPFIND(ctx, c.calendarURL, 0, xml.PropfindBody("getctag"))
	if err != nil {
		return "", fmt.Errorf("get collection ctag: %w", err)
	}
	return xml.ParseCTag(body), nil
}

func (c *davClient) ListObjectVersions(ctx context.Context) ([]ObjectVersion, error) {
	body, err := c.http.DoPROPFIND(ctx, c.calendarURL, 1, xml.PropfindBody("getetag"))
	if err != nil {
		return nil, fmt.Errorf("list object versions: %w", err)
	}
	var out []ObjectVersion
	for _, v := range xml.ParseObjectVersions(body) {
		if v.Href == c.calendarURL {
			continue // the collection itself
		}
		out = append(out, ObjectVersion{Href: v.Href, Etag: v.Etag})
	}
	return out, nil
}

func (c *davClient) SyncCollection(ctx context.Context, token string) (SyncDiff, error) {
	body, err := c.http.DoREPORT(ctx, c.calendarURL, 1, xml.SyncCollectionBody(token))
	if err != nil {
		return SyncDiff{}, fmt.Errorf("sync-collection report: %w", err)
	}
	parsed := xml.ParseSyncCollection(body)
	diff := SyncDiff{Token: parsed.Token, Deleted: parsed.Deleted}
	for _, v := range parsed.Changed {
		diff.Changed = append(diff.Changed, ObjectVersion{Href: v.Href, Etag: v.Etag})
	}
	return diff, nil
}

func (c *davClient) MultiGet(ctx context.Context, hrefs []string) ([]ObjectData, error) {
	if len(hrefs) == 0 {
		return nil, nil
	}
	body, err := c.http.DoREPORT(ctx, c.calendarURL, 1, xml.MultigetBody(hrefs...))
	if err != nil {
		return nil, fmt.Errorf("calendar-multiget report: %w", err)
	}
	var out []ObjectData
	for _, item := range xml.ParseCalendarData(body) {
		out = append(out, ObjectData{Href: item.Href, Etag: item.Etag, CalendarData: item.CalendarData})
	}
	return out, nil
}

func (c *davClient) CreateObject(ctx context.Context, data []byte) (string, string, error) {
	base, err := url.Parse(c.calendarURL)
	if err != nil {
		return "", "", fmt.Errorf("parse collection URL: %w", err)
	}
	ref, err := url.Parse(uuid.New().String() + ".ics")
	if err != nil {
		return "", "", fmt.Errorf("build object URL: %w", err)
	}
	href := base.ResolveReference(ref).String()

	etag, err := c.http.DoPUT(ctx, href, "", true, data)
	if err != nil {
		return "", "", fmt.Errorf("create calendar object: %w", err)
	}
	if etag == "" {
		// Some servers omit the ETag header on PUT; ask again.
		etag, err = c.fetchEtag(ctx, href)
		if err != nil {
			return href, "", err
		}
	}
	return href, xml.NormalizeEtag(etag), nil
}

func (c *davClient) UpdateObject(ctx context.Context, href, etag string, data []byte) (string, error) {
	newEtag, err := c.http.DoPUT(ctx, href, etag, false, data)
	if err != nil {
		return "", fmt.Errorf("update calendar object: %w", err)
	}
	if newEtag == "" {
		newEtag, err = c.fetchEtag(ctx, href)
		if err != nil {
			return "", err
		}
	}
	return xml.NormalizeEtag(newEtag), nil
}

func (c *davClient) DeleteObject(ctx context.Context, href, etag string) error {
	if err := c.http.DoDELETE(ctx, href, etag); err != nil {
		return fmt.Errorf("delete calendar object: %w", err)
	}
	return nil
}

func (c *davClient) fetchEtag(ctx context.Context, href string) (string, error) {
	body, err := c.http.DoPROPFIND(ctx, href, 0, xml.PropfindBody("getetag"))
	if err != nil {
		return "", fmt.Errorf("fetch etag for %s: %w", href, err)
	}
	versions := xml.ParseObjectVersions(body)
	if len(versions) == 0 {
		return "", fmt.Errorf("no etag found for %s", href)
	}
	return versions[0].Etag, nil
}

// NewAuthenticatedWrapper builds the transport wrapper used by discovery
// and NewClient, with basic auth installed.
func NewAuthenticatedWrapper(client *http.Client, base url.URL, username, password string, logger *slog.Logger) httpclient.Wrapper {
	if client == nil {
		client = &http.Client{}
	}
	client.Transport = httpclient.NewBasicAuthTransport(username, password, client.Transport)
	return httpclient.New(client, base, logger)
}
