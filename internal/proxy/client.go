// Package proxy implements the client side of the stream proxy contract:
// a source id resolves to a validated, upstream-fetched audio byte stream.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Stream is one open audio stream from the proxy.
type Stream struct {
	SourceID    string
	ContentType string
	Body        io.ReadCloser
}

// Client talks to the stream proxy endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a stream proxy client. The HTTP client carries no
// overall timeout because streams are long-lived; connect and header
// timeouts still apply.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				DisableCompression:    true,
			},
		},
	}
}

// StreamURL returns the proxy locator for a source id. The locator is what
// a resource handle compares to decide whether a prepare is redundant.
func (c *Client) StreamURL(sourceID string) string {
	return c.baseURL + "/stream/" + sourceID
}

// Open resolves a source id to an audio stream. Non-200 responses map onto
// the error taxonomy: 404 and 403 are terminal, 429 and 503 are retryable.
func (c *Client) Open(ctx context.Context, sourceID string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(sourceID), nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stream %s: %w", sourceID, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(sourceID, resp)
	}

	return &Stream{
		SourceID:    sourceID,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

func statusError(sourceID string, resp *http.Response) error {
	e := &Error{SourceID: sourceID, Code: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusNotFound:
		e.Reason = "unknown source id"
	case http.StatusForbidden:
		e.Reason = "upstream not allowed"
	case http.StatusTooManyRequests:
		e.Reason = "rate limited"
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case http.StatusServiceUnavailable:
		e.Reason = "upstream unavailable"
	default:
		e.Reason = resp.Status
	}
	return e
}
