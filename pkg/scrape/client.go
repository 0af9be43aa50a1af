// Package scrape fetches the web content the pipeline needs: image probes,
// link previews and news feeds.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; lupos/1.0)"
	maxPageBytes = 2 << 20
)

type Client struct {
	http *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func New(opts ...Option) *Client {
	c := &Client{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsImage reports whether url answers a HEAD request with an image
// content type.
func (c *Client) IsImage(ctx context.Context, url string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, url, "*/*")
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "image/"), nil
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return resp, nil
}
