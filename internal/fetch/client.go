// Package fetch provides the shared HTTP gateway used by all checks.
//
// One pooled client is shared across every monitored key: connections are
// reused, DNS resolutions are cached with a fixed TTL, and failures are
// classified into [NetworkError] kinds. This layer performs no retries;
// retry policy belongs to the caller.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits shared across all monitored keys
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// ErrorKind classifies a [NetworkError].
type ErrorKind string

const (
	// KindTimeout indicates the request exceeded a deadline.
	KindTimeout ErrorKind = "timeout"

	// KindConnection indicates the connection could not be established
	// or was dropped mid-request.
	KindConnection ErrorKind = "connection"

	// KindProtocol indicates a malformed request or response.
	KindProtocol ErrorKind = "protocol"
)

// NetworkError is a classified transport-level failure.
//
// NetworkError wraps the underlying error so callers can use errors.As to
// branch on the failure kind while keeping the root cause for logs.
type NetworkError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Response holds the result of a completed HTTP request.
//
// A non-200 status code is not an error at this layer; classification of
// status codes belongs to the parser.
type Response struct {
	// Body contains the response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Options configures a [Client].
type Options struct {
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the whole request including the body read.
	// Must be strictly greater than ConnectTimeout.
	RequestTimeout time.Duration

	// DNSTTL is the resolution cache lifetime. Zero defaults to 5 minutes.
	DNSTTL time.Duration
}

// Client is the pooled HTTP gateway shared by all checks.
//
// The client dials through a TTL'd DNS cache so repeated checks against the
// same upstream host do not re-resolve every cycle. Construct with [NewClient]
// and release pooled connections with [Client.Close] when done.
type Client struct {
	httpClient     *http.Client
	dns            *DNSCache
	connectTimeout time.Duration
	requestTimeout time.Duration
}

// NewClient creates a pooled [Client].
//
// Returns an error when RequestTimeout is not strictly greater than
// ConnectTimeout: a total budget smaller than the connect budget could never
// leave time for the response.
func NewClient(opts Options) (*Client, error) {
	if opts.ConnectTimeout <= 0 {
		return nil, errors.New("connect timeout must be positive")
	}
	if opts.RequestTimeout <= opts.ConnectTimeout {
		return nil, fmt.Errorf("request timeout (%s) must be greater than connect timeout (%s)",
			opts.RequestTimeout, opts.ConnectTimeout)
	}

	c := &Client{
		dns:            NewDNSCache(opts.DNSTTL),
		connectTimeout: opts.ConnectTimeout,
		requestTimeout: opts.RequestTimeout,
	}

	c.httpClient = &http.Client{
		// no global timeout; the per-request deadline is applied via context
		Transport: &http.Transport{
			DialContext:         c.dialContext,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			DisableKeepAlives:   false,
		},
	}
	return c, nil
}

// dialContext resolves the host through the DNS cache before dialing.
func (c *Client) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := c.dns.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
	if err != nil {
		// a stale cached address may be the cause; re-resolve next time
		c.dns.Invalidate(host)
		return nil, err
	}
	return conn, nil
}

// Fetch performs a GET request and returns the response or a [NetworkError].
//
// The request carries the client's total timeout in addition to any deadline
// already on ctx. Response bodies are limited to 1MB.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, &NetworkError{Kind: KindProtocol, URL: url, Err: err}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{Latency: time.Since(start)}, classify(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Latency: time.Since(start)},
			classify(url, err)
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}, nil
}

// Close releases idle pooled connections.
//
// Safe to call multiple times; the client remains usable afterwards with
// new connections established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// classify sorts a transport failure into a [NetworkError] kind.
func classify(url string, err error) *NetworkError {
	kind := KindConnection

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindProtocol
	}

	return &NetworkError{Kind: kind, URL: url, Err: err}
}
