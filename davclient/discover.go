package davclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kalyxo/calsync/internal/httpclient"
	"github.com/kalyxo/calsync/internal/xml"
)

// DNSResolver interface for mocking DNS lookups in tests
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Config holds configuration for FindCalendars
type Config struct {
	Resolver DNSResolver
	Client   *http.Client
	Logger   *slog.Logger
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Resolver: &net.Resolver{},
		Client:   http.DefaultClient,
	}
}

// FindCalendars discovers the calendar collections for an account, trying
// the direct location, DNS SRV/TXT records, and the well-known path.
func FindCalendars(ctx context.Context, location, username, password string) ([]CalendarInfo, error) {
	return FindCalendarsWithConfig(ctx, location, username, password, DefaultConfig())
}

// FindCalendarsWithConfig allows injecting custom configuration for testing.
func FindCalendarsWithConfig(ctx context.Context, location, username, password string, cfg *Config) ([]CalendarInfo, error) {
	baseURL, err := url.Parse(location)
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL")
	}

	wrapper := NewAuthenticatedWrapper(cfg.Client, *baseURL, username, password, cfg.Logger)

	principalURL := ""
	for _, candidate := range candidateLocations(ctx, baseURL, location, cfg.Resolver) {
		body, err := wrapper.DoPROPFIND(ctx, candidate, 0, xml.PropfindBody("current-user-principal"))
		if err != nil {
			continue
		}
		if principal := xml.ParsePrincipal(body); principal != "" {
			principalURL = resolveHref(candidate, principal)
			break
		}
	}
	if principalURL == "" {
		return nil, fmt.Errorf("could not find current-user-principal")
	}

	body, err := wrapper.DoPROPFIND(ctx, principalURL, 0, xml.PropfindBody("calendar-home-set"))
	if err != nil {
		return nil, fmt.Errorf("get calendar-home-set: %w", err)
	}
	homes := xml.ParseHomeSets(body)
	if len(homes) == 0 {
		return nil, fmt.Errorf("no calendar-home-set found")
	}

	var calendars []CalendarInfo
	for _, home := range homes {
		homeURL := resolveHref(principalURL, home)
		calendars = append(calendars, listHome(ctx, wrapper, homeURL)...)
	}
	return calendars, nil
}

// listHome lists the calendar collections under one home-set URL. A home
// that fails to list degrades to nothing rather than failing the others.
func listHome(ctx context.Context, wrapper httpclient.Wrapper, homeURL string) []CalendarInfo {
	body, err := wrapper.DoPROPFIND(ctx, homeURL, 1, xml.PropfindBody(
		"resourcetype",
		"displayname",
		"calendar-color",
		"getctag",
		"supported-calendar-component-set"))
	if err != nil {
		return nil
	}

	var out []CalendarInfo
	for _, listing := range xml.ParseCalendarList(body) {
		out = append(out, CalendarInfo{
			Href:       resolveHref(homeURL, listing.Href),
			Name:       listing.DisplayName,
			Color:      listing.Color,
			CTag:       listing.CTag,
			Components: listing.SupportedComponents,
		})
	}
	return out
}

// candidateLocations builds the principal-discovery URL list: the direct
// location when it carries a path, DNS SRV targets (with a TXT-provided
// path), the well-known URL, then the root.
func candidateLocations(ctx context.Context, baseURL *url.URL, location string, resolver DNSResolver) []string {
	var out []string
	if baseURL.Path != "/" && baseURL.Path != "" {
		out = append(out, location)
	}

	for _, prefix := range []string{"_caldavs._tcp.", "_caldav._tcp."} {
		host := prefix + baseURL.Hostname()
		_, addrs, err := resolver.LookupSRV(ctx, "", "", host)
		if err != nil {
			continue
		}

		var path string
		txts, _ := resolver.LookupTXT(ctx, host)
		for _, txt := range txts {
			if strings.HasPrefix(txt, "path=") {
				path = txt[len("path="):]
				break
			}
		}

		scheme := "http"
		if prefix == "_caldavs._tcp." {
			scheme = "https"
		}
		for _, addr := range addrs {
			out = append(out, fmt.Sprintf("%s://%s:%d%s", scheme, strings.TrimSuffix(addr.Target, "."), addr.Port, path))
		}
	}

	out = append(out, baseURL.JoinPath(".well-known", "caldav").String())
	out = append(out, baseURL.JoinPath("/").String())
	return out
}

// resolveHref resolves a possibly-relative href against base.
func resolveHref(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
