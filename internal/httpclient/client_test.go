package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/manifest-sync/internal/credentials"
	"github.com/stacklok/manifest-sync/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Get_Success(t *testing.T) {
	t.Parallel()

	var receivedUserAgent string
	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("spec:\n  repositories: []\n"))
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)

	data, err := client.Get(context.Background(), mockServer.URL)

	require.NoError(t, err)
	assert.Equal(t, "spec:\n  repositories: []\n", string(data))
	assert.Equal(t, httpclient.UserAgent, receivedUserAgent)
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		errorContains string
	}{
		{name: "404 Not Found", statusCode: http.StatusNotFound, errorContains: "HTTP 404"},
		{name: "401 Unauthorized", statusCode: http.StatusUnauthorized, errorContains: "HTTP 401"},
		{name: "500 Internal Server Error", statusCode: http.StatusInternalServerError, errorContains: "HTTP 500"},
		{name: "302 without location is not followed", statusCode: http.StatusFound, errorContains: "HTTP 302"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(5 * time.Second)

			_, err := client.Get(context.Background(), mockServer.URL)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
		})
	}
}

func TestDefaultClient_Get_AppliesCredentials(t *testing.T) {
	t.Parallel()

	var receivedAuth string
	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	resolver := credentials.NewStaticResolver(credentials.Entry{
		URLPrefix:   mockServer.URL,
		Credentials: credentials.Credentials{Type: credentials.TypeBearer, Secret: "s3cret"},
	})
	client := httpclient.NewDefaultClient(5*time.Second, httpclient.WithCredentialsResolver(resolver))

	_, err := client.Get(context.Background(), mockServer.URL+"/manifest.yaml")

	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", receivedAuth)
}

func TestDefaultClient_Get_NetworkErrors(t *testing.T) {
	t.Parallel()

	client := httpclient.NewDefaultClient(time.Second)

	_, err := client.Get(context.Background(), "://invalid-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create request")
}

func TestDefaultClient_Get_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := make([]byte, 1024*1024)
		for i := 0; i < 11; i++ {
			_, _ = w.Write(chunk)
		}
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(10 * time.Second)

	_, err := client.Get(context.Background(), mockServer.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := httpclient.NewHTTPError(500, "http://api.example.com/manifest.yaml", "Internal Server Error")
	assert.Equal(t, "HTTP 500 for URL http://api.example.com/manifest.yaml: Internal Server Error", err.Error())
}
