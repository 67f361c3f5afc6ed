package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxImageBytes caps a downloaded image.
const maxImageBytes = 50 << 20

// Downloader fetches generated images.
type Downloader struct {
	client *http.Client
}

// NewDownloader returns a Downloader; a nil client gets DownloadTimeout.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = SharedHTTPClient(DownloadTimeout)
	}
	return &Downloader{client: client}
}

// Fetch downloads url and returns its bytes. Non-2xx responses are errors.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("download image: larger than %d bytes", maxImageBytes)
	}
	return data, nil
}
