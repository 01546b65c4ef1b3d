package infrastructure

import (
	"crypto/tls"
	"net/http"
	"time"
)

// SessionOptions configures the pooled HTTP session.
type SessionOptions struct {
	// PoolSize is the connection pool size; it should be at least the
	// engine worker count.
	PoolSize int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of transport-level retries for
	// transient failures.
	RetryAttempts int

	// RetryBackoff is the base backoff; attempt n sleeps backoff * 2^n.
	RetryBackoff time.Duration
}

// DefaultSessionOptions returns options matching the engine defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		PoolSize:      20,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  300 * time.Millisecond,
	}
}

// retryStatus is the fixed set of status codes considered transient.
var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// retryTransport retries idempotent GET requests on transient server errors
// with exponential backoff. Non-GET requests pass through untouched.
type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= t.attempts; attempt++ {
		if attempt > 0 {
			delay := t.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			continue
		}
		if retryStatus[resp.StatusCode] && attempt < t.attempts {
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	return resp, err
}

// NewSession builds a connection-pooled HTTP client with automatic retry
// for transient server errors.
//
// Certificate validation is disabled on purpose: Niagara controllers almost
// universally present self-signed certificates, and the alternative is no
// TLS at all. Release sockets with Client.CloseIdleConnections when done.
func NewSession(opts SessionOptions) *http.Client {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 300 * time.Millisecond
	}

	transport := &http.Transport{
		MaxIdleConns:        opts.PoolSize * 2,
		MaxIdleConnsPerHost: opts.PoolSize,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
	}

	return &http.Client{
		Transport: &retryTransport{
			base:     transport,
			attempts: opts.RetryAttempts,
			backoff:  opts.RetryBackoff,
		},
		Timeout: opts.Timeout,
	}
}
