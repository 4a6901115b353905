package davclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noDNS fails every lookup so tests exercise the URL-based paths only.
type noDNS struct{}

func (noDNS) LookupSRV(context.Context, string, string, string) (string, []*net.SRV, error) {
	return "", nil, errors.New("no such host")
}

func (noDNS) LookupTXT(context.Context, string) ([]string, error) {
	return nil, errors.New("no such host")
}

func discoveryHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		rw.WriteHeader(http.StatusMultiStatus)
		switch r.URL.Path {
		case "/dav/":
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:">
  <d:response><d:href>/dav/</d:href><d:propstat>
    <d:prop><d:current-user-principal><d:href>/principals/alice/</d:href></d:current-user-principal></d:prop>
    <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat></d:response>
</d:multistatus>`))
		case "/principals/alice/":
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response><d:href>/principals/alice/</d:href><d:propstat>
    <d:prop><c:calendar-home-set>
      <d:href>/calendars/alice/</d:href>
      <d:href>/calendars/family/</d:href>
    </c:calendar-home-set></d:prop>
    <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat></d:response>
</d:multistatus>`))
		case "/calendars/alice/":
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/">
  <d:response><d:href>/calendars/alice/personal/</d:href><d:propstat>
    <d:prop>
      <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
      <d:displayname>Personal</d:displayname>
      <cs:getctag>ctag-1</cs:getctag>
    </d:prop>
    <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat></d:response>
</d:multistatus>`))
		case "/calendars/family/":
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response><d:href>/calendars/family/shared/</d:href><d:propstat>
    <d:prop>
      <d:resourcetype><c:calendar/></d:resourcetype>
      <d:displayname>Family</d:displayname>
    </d:prop>
    <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat></d:response>
</d:multistatus>`))
		default:
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:"/>`))
		}
	}
}

func TestFindCalendarsMultipleHomeSets(t *testing.T) {
	server := httptest.NewServer(discoveryHandler(t))
	defer server.Close()

	cfg := &Config{Resolver: noDNS{}, Client: server.Client()}
	calendars, err := FindCalendarsWithConfig(context.Background(), server.URL+"/dav/", "alice", "secret", cfg)
	require.NoError(t, err)
	require.Len(t, calendars, 2)

	assert.Equal(t, server.URL+"/calendars/alice/personal/", calendars[0].Href)
	assert.Equal(t, "Personal", calendars[0].Name)
	assert.Equal(t, "ctag-1", calendars[0].CTag)
	assert.True(t, calendars[0].Color.IsAbsent())

	assert.Equal(t, "Family", calendars[1].Name)
}

func TestFindCalendarsInvalidURL(t *testing.T) {
	for _, location := range []string{"", "ftp://example.com", "://bad"} {
		_, err := FindCalendarsWithConfig(context.Background(), location, "u", "p",
			&Config{Resolver: noDNS{}, Client: http.DefaultClient})
		assert.Error(t, err)
	}
}

func TestFindCalendarsNoPrincipal(t *testing.T) {
	server := httptest.NewServer(func() http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusMultiStatus)
			rw.Write([]byte(`<d:multistatus xmlns:d="DAV:"/>`))
		}
	}())
	defer server.Close()

	cfg := &Config{Resolver: noDNS{}, Client: server.Client()}
	_, err := FindCalendarsWithConfig(context.Background(), server.URL+"/dav/", "u", "p", cfg)
	assert.ErrorContains(t, err, "current-user-principal")
}
