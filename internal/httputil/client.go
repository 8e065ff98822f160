// Package httputil provides a security-hardened HTTP client and input sanitization utilities.
package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

// ClientOption adjusts the client built by NewClient.
type ClientOption func(*http.Transport, *http.Client) error

// WithProxy routes every request through proxyURL (http, https or socks5).
func WithProxy(proxyURL string) ClientOption {
	return func(t *http.Transport, _ *http.Client) error {
		if proxyURL == "" {
			return nil
		}
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy URL %q", proxyURL)
		}
		t.Proxy = http.ProxyURL(u)
		return nil
	}
}

// WithTimeout overrides the overall request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(_ *http.Transport, c *http.Client) error {
		c.Timeout = d
		return nil
	}
}

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(opts ...ClientOption) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 5,
	}
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	for _, opt := range opts {
		if err := opt(transport, client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// Get performs a GET request with browser-like headers. An empty
// userAgent falls back to DefaultUserAgent.
func Get(ctx context.Context, client *http.Client, rawURL, userAgent string, cookies ...*http.Cookie) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return client.Do(req)
}
