package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"quiz-agent/internal/application/port/output"
)

var _ output.FetcherPort = (*Client)(nil)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 10 << 20 // 10 MiB; quiz attachments are small files

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Client downloads quiz resources over plain HTTP. Rendering is not needed
// for file attachments, so these bypass the browser session.
type Client struct {
	http *http.Client
}

func New() *Client {
	return &Client{
		http: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", url, err)
	}
	if len(data) > maxBodyBytes {
		return nil, "", fmt.Errorf("fetching %s: body exceeds %d bytes", url, maxBodyBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
