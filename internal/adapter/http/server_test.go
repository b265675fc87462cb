package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/weatherclock/internal/adapter/http"
	"github.com/couchcryptid/weatherclock/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockEntities struct {
	entities  []domain.ClockEntity
	snapshots map[string]domain.WeatherSnapshot
	errs      map[string]error
}

func (m *mockEntities) List() []domain.ClockEntity { return m.entities }

func (m *mockEntities) Snapshot(id string) (domain.WeatherSnapshot, bool) {
	snap, ok := m.snapshots[id]
	return snap, ok
}

func (m *mockEntities) LastError(id string) error { return m.errs[id] }

type mockSearcher struct {
	results []domain.SearchResult
	err     error
	queries []string
}

func (m *mockSearcher) Search(_ context.Context, query string) ([]domain.SearchResult, error) {
	m.queries = append(m.queries, query)
	return m.results, m.err
}

func newTestServer(readyErr error, entities *mockEntities) *httpadapter.Server {
	return newTestServerWithSearch(readyErr, entities, &mockSearcher{})
}

func newTestServerWithSearch(readyErr error, entities *mockEntities, searcher *mockSearcher) *httpadapter.Server {
	if entities == nil {
		entities = &mockEntities{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, entities, searcher, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("primary entity not resolved"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "primary entity not resolved", body["error"])
}

func TestEntitiesEndpoint(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	entities := &mockEntities{
		entities: []domain.ClockEntity{
			{ID: "p1", DisplayName: "Chennai, Tamil Nadu, India", TimeZone: "Asia/Kolkata", IsPrimary: true},
			{ID: "s1", DisplayName: "Reykjavik, Iceland", TimeZone: "Atlantic/Reykjavik"},
		},
		snapshots: map[string]domain.WeatherSnapshot{
			"p1": {EntityID: "p1", FetchedAt: fetchedAt},
		},
		errs: map[string]error{
			"s1": errors.New("forecast fetch: connection refused"),
		},
	}

	srv := newTestServer(nil, entities)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/entities", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entities []struct {
			ID        string     `json:"id"`
			IsPrimary bool       `json:"is_primary"`
			FetchedAt *time.Time `json:"fetched_at"`
			LastError string     `json:"last_error"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entities, 2)

	assert.Equal(t, "p1", body.Entities[0].ID)
	assert.True(t, body.Entities[0].IsPrimary)
	require.NotNil(t, body.Entities[0].FetchedAt)
	assert.True(t, fetchedAt.Equal(*body.Entities[0].FetchedAt))
	assert.Empty(t, body.Entities[0].LastError)

	assert.Equal(t, "s1", body.Entities[1].ID)
	assert.Nil(t, body.Entities[1].FetchedAt)
	assert.Contains(t, body.Entities[1].LastError, "connection refused")
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &mockSearcher{
		results: []domain.SearchResult{
			{Name: "Chennai", Admin1: "Tamil Nadu", Country: "India", TimeZone: "Asia/Kolkata",
				Latitude: 13.08, Longitude: 80.27},
		},
	}

	srv := newTestServerWithSearch(nil, nil, searcher)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=chennai", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"chennai"}, searcher.queries)

	var body struct {
		Results []domain.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Chennai", body.Results[0].Name)
}

func TestSearchEndpointMissingQuery(t *testing.T) {
	searcher := &mockSearcher{}
	srv := newTestServerWithSearch(nil, nil, searcher)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, searcher.queries)
}

func TestSearchEndpointUpstreamFailure(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("upstream timeout")}
	srv := newTestServerWithSearch(nil, nil, searcher)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=chennai", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
