package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWrapper(t *testing.T, handler http.HandlerFunc) Wrapper {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	return New(server.Client(), *base, nil)
}

func TestDoPROPFINDSendsDepthAndBody(t *testing.T) {
	var gotMethod, gotDepth string
	w := newTestWrapper(t, func(rw http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		rw.WriteHeader(http.StatusMultiStatus)
		rw.Write([]byte(`<multistatus xmlns="DAV:"/>`))
	})

	body, err := w.DoPROPFIND(context.Background(), "/cal/", 1, []byte("<propfind/>"))
	require.NoError(t, err)
	assert.Equal(t, "PROPFIND", gotMethod)
	assert.Equal(t, "1", gotDepth)
	assert.Contains(t, string(body), "multistatus")
}

func TestDoPROPFINDRejectsNonMultistatus(t *testing.T) {
	w := newTestWrapper(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusForbidden)
	})
	_, err := w.DoPROPFIND(context.Background(), "/", 0, nil)
	assert.ErrorContains(t, err, "403")
}

func TestDoPUTPreconditions(t *testing.T) {
	var ifMatch, ifNoneMatch string
	w := newTestWrapper(t, func(rw http.ResponseWriter, r *http.Request) {
		ifMatch = r.Header.Get("If-Match")
		ifNoneMatch = r.Header.Get("If-None-Match")
		rw.Header().Set("ETag", `"fresh"`)
		rw.WriteHeader(http.StatusCreated)
	})

	etag, err := w.DoPUT(context.Background(), "/cal/x.ics", "", true, []byte("BEGIN:VCALENDAR"))
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, etag)
	assert.Equal(t, "*", ifNoneMatch)
	assert.Empty(t, ifMatch)

	_, err = w.DoPUT(context.Background(), "/cal/x.ics", "old", false, nil)
	require.NoError(t, err)
	assert.Equal(t, `"old"`, ifMatch)
}

func TestDoDELETEAbsorbsNotFound(t *testing.T) {
	w := newTestWrapper(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, w.DoDELETE(context.Background(), "/cal/gone.ics", "etag"))
}

func TestDoDELETERejectsPreconditionFailure(t *testing.T) {
	w := newTestWrapper(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusPreconditionFailed)
	})
	assert.ErrorContains(t, w.DoDELETE(context.Background(), "/cal/x.ics", "stale"), "412")
}
