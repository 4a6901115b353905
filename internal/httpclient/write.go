package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

func (w *wrapper) DoPUT(ctx context.Context, urlStr string, etag string, create bool, data []byte) (string, error) {
	resolved, err := w.resolveURL(urlStr)
	if err != nil {
		return "", err
	}
	w.logger.Debug("starting PUT request",
		"url", resolved.String(),
		"etag", etag,
		"create", create,
		"data_length", len(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resolved.String(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create PUT request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	switch {
	case create:
		req.Header.Set("If-None-Match", "*")
	case etag != "":
		req.Header.Set("If-Match", `"`+etag+`"`)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute PUT request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		w.logger.Debug("unexpected PUT status", "status_code", resp.StatusCode)
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	newEtag := resp.Header.Get("ETag")
	w.logger.Debug("PUT request complete", "status", resp.Status, "new_etag", newEtag)
	return newEtag, nil
}

// DoDELETE sends a DELETE with an If-Match precondition when etag is set.
func (w *wrapper) DoDELETE(ctx context.Context, urlStr string, etag string) error {
	resolved, err := w.resolveURL(urlStr)
	if err != nil {
		return err
	}
	w.logger.Debug("starting DELETE request", "url", resolved.String(), "etag", etag)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("create DELETE request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-Match", `"`+etag+`"`)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute DELETE request: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the resource is already gone; both sides agree on the
	// outcome.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		w.logger.Debug("unexpected DELETE status", "status_code", resp.StatusCode)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	w.logger.Debug("DELETE request complete", "status", resp.Status)
	return nil
}
