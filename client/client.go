// Package client fetches files from a tls-serve instance, trusting its self-signed certificate.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/go-connections/tlsconfig"
)

// Options controls how the server certificate is verified.
type Options struct {
	// CAFile is a PEM file whose certificates are the only trusted roots. The combined
	// certificate file produced by tls-serve works as is.
	CAFile string
	// Insecure skips certificate verification entirely.
	Insecure bool
	// Timeout bounds a whole request; zero means none.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client is an HTTPS client for a single server.
type Client struct {
	httpClient *http.Client
}

// New builds a Client whose TLS configuration trusts only opts.CAFile.
func New(opts Options) (*Client, error) {
	tlsConfig, err := tlsconfig.Client(tlsconfig.Options{
		CAFile:             opts.CAFile,
		InsecureSkipVerify: opts.Insecure,
		ExclusiveRootPools: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS client configuration: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}, nil
}

// Get requests url and reads the whole body. Non-2xx statuses are not errors.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
