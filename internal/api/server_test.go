package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/metrics"
	"github.com/bridgevault/clients/internal/xlog"
)

func TestStatusEndpointReturnsSnapshot(t *testing.T) {
	counters := &metrics.Counters{}
	srv, err := New(xlog.New("test"), "127.0.0.1:0", "", func() Status {
		return Status{Component: "vault", Self: "abc", RegisteredVault: true, OpenIssues: 2, KnownVaults: 3}
	}, counters, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "vault", got.Component)
	require.Equal(t, 2, got.OpenIssues)
}

func TestMetricsEndpointReturnsCounters(t *testing.T) {
	counters := &metrics.Counters{}
	counters.IncCancellationsSent()

	srv, err := New(xlog.New("test"), "127.0.0.1:0", "", func() Status { return Status{} }, counters, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, int64(1), got.CancellationsSent)
}

func TestMemSizeRouteOnlyRegisteredWhenProvided(t *testing.T) {
	counters := &metrics.Counters{}
	srv, err := New(xlog.New("test"), "127.0.0.1:0", "", func() Status { return Status{} }, counters, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/memsize", nil)
	srv.srv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeaderIsSetOnEveryResponse(t *testing.T) {
	counters := &metrics.Counters{}
	srv, err := New(xlog.New("test"), "127.0.0.1:0", "", func() Status { return Status{} }, counters, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.srv.Handler.ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
