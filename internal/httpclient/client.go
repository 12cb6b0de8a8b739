// Package httpclient builds the shared *http.Client instances handed to
// archive strategies and content fetchers.
package httpclient

import (
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewPooledHTTPClient creates an HTTP client tuned for sustained archive-API
// polling: a bounded idle-connection pool per host so the Wayback and Common
// Crawl strategies reuse connections instead of reconnecting on every
// discover/fetch call.
func NewPooledHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
