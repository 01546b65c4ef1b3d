package infrastructure

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryTestClient(attempts int) *http.Client {
	return NewSession(SessionOptions{
		PoolSize:      2,
		Timeout:       5 * time.Second,
		RetryAttempts: attempts,
		RetryBackoff:  time.Millisecond,
	})
}

func TestRetryTransport_RetriesTransientStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := retryTestClient(3).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRetryTransport_GivesUpAfterAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := retryTestClient(2).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The last response comes back so the caller sees the real status.
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRetryTransport_NoRetryOnClientError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := retryTestClient(3).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRetryTransport_NoRetryOnPost(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := retryTestClient(3).Post(server.URL, "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestNewSession_AppliesDefaults(t *testing.T) {
	client := NewSession(SessionOptions{})
	assert.Equal(t, 30*time.Second, client.Timeout)

	rt, ok := client.Transport.(*retryTransport)
	require.True(t, ok)
	assert.Equal(t, 3, rt.attempts)
	assert.Equal(t, 300*time.Millisecond, rt.backoff)
}

func TestNewSession_RetriesByDefault(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	// Callers that only set pool size and timeout still get retries.
	client := NewSession(SessionOptions{PoolSize: 2, Timeout: 5 * time.Second, RetryBackoff: time.Millisecond})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestDefaultSessionOptions(t *testing.T) {
	opts := DefaultSessionOptions()
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 3, opts.RetryAttempts)
}
