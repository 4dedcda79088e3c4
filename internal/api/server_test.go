package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/manifest-sync/internal/api"
	"github.com/stacklok/manifest-sync/internal/status"
	storemocks "github.com/stacklok/manifest-sync/internal/store/mocks"
	coordmocks "github.com/stacklok/manifest-sync/internal/sync/coordinator/mocks"
)

func newServer(t *testing.T, opts ...api.ServerOption) (http.Handler, *coordmocks.MockCoordinator) {
	t.Helper()

	ctrl := gomock.NewController(t)
	coord := coordmocks.NewMockCoordinator(ctrl)
	return api.NewServer(coord, storemocks.NewMockStore(ctrl), opts...), coord
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		check          api.ReadinessCheck
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no check configured",
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "store reachable",
			check:          func(_ context.Context) error { return nil },
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "store unreachable",
			check:          func(_ context.Context) error { return errors.New("connection refused") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newServer(t, api.WithReadinessCheck(tt.check))

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.NotEmpty(t, response["version"])
	assert.NotEmpty(t, response["go_version"])
}

func TestV1Mounted(t *testing.T) {
	t.Parallel()

	server, coord := newServer(t)
	coord.EXPECT().Status().Return(status.PassStatus{Phase: status.PassPhaseIdle})

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"phase":"Idle"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("not registered without handler", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t)

		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("served with handler", func(t *testing.T) {
		t.Parallel()

		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("manifest_sync_pass_duration_seconds_count 1\n"))
		})
		server, _ := newServer(t, api.WithMetricsHandler(metrics))

		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "manifest_sync_pass_duration_seconds_count")
	})
}

func TestMiddlewaresApplied(t *testing.T) {
	t.Parallel()

	var called bool
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}
	server, _ := newServer(t, api.WithMiddlewares(mw, api.LoggingMiddleware))

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}
