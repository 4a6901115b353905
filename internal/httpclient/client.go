// Package httpclient wraps http.Client with the WebDAV verbs the sync core
// needs. It moves bytes only; response decoding lives in internal/xml.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Wrapper is the transport surface consumed by the davclient package.
// Network calls are the only blocking operations in the core, so every verb
// takes a context.
type Wrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, body []byte) ([]byte, error)
	DoREPORT(ctx context.Context, url string, depth int, body []byte) ([]byte, error)
	// DoPUT writes a calendar resource. A non-empty etag becomes an
	// If-Match precondition; create=true sends If-None-Match: * instead.
	DoPUT(ctx context.Context, url string, etag string, create bool, data []byte) (newEtag string, err error)
	DoDELETE(ctx context.Context, url string, etag string) error
}

type wrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// New creates a Wrapper resolving request URLs against baseURL. A nil
// logger falls back to slog.Default.
func New(client *http.Client, baseURL url.URL, logger *slog.Logger) Wrapper {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &wrapper{client: client, baseURL: baseURL, logger: logger}
}

func (w *wrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("parse URL %q: %w", urlStr, err)
	}
	return w.baseURL.ResolveReference(ref), nil
}

// multistatus executes a body-carrying WebDAV method and returns the raw
// 207 response body.
func (w *wrapper) multistatus(ctx context.Context, method, urlStr string, depth int, body []byte) ([]byte, error) {
	resolved, err := w.resolveURL(urlStr)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("starting request",
		"method", method,
		"url", resolved.String(),
		"depth", depth)

	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Depth", strconv.Itoa(depth))
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		w.logger.Debug("unexpected response status",
			"method", method,
			"status_code", resp.StatusCode)
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	w.logger.Debug("request complete", "method", method, "bytes", len(payload))
	return payload, nil
}

func (w *wrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, body []byte) ([]byte, error) {
	return w.multistatus(ctx, "PROPFIND", urlStr, depth, body)
}

func (w *wrapper) DoREPORT(ctx context.Context, urlStr string, depth int, body []byte) ([]byte, error) {
	return w.multistatus(ctx, "REPORT", urlStr, depth, body)
}
