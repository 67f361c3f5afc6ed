package provider

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	// DownloadTimeout bounds fetching a generated image.
	DownloadTimeout = 60 * time.Second
)

// SharedHTTPClient returns an HTTP client with connection pooling.
// Each request is bounded by timeout; callers that poll stay unbounded overall.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
