package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/clever-calibrator/internal/config"
	"github.com/yourusername/clever-calibrator/internal/models"
	"github.com/yourusername/clever-calibrator/internal/repository"
)

func testClientConfig() HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	cfg.Timeout = 2 * time.Second
	cfg.MaxRetries = 2
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	cfg.RateLimit = 1000
	cfg.Burst = 10
	return cfg
}

func TestRESTPredictionSourceFetch(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []map[string]interface{}{
		{"id": uuid.NewString(), "source_id": "alpha", "match_id": "m1", "league": "nba", "confidence_raw": 73.0, "outcome": "won", "predicted_at": "2024-03-01T10:00:00+00:00"},
		{"id": uuid.NewString(), "source_id": "beta", "match_id": "m1", "league": "nba", "confidence_raw": 61.5, "outcome": "pending", "predicted_at": "2024-03-01T11:00:00+00:00"},
		// invalid: confidence out of range
		{"id": uuid.NewString(), "source_id": "gamma", "match_id": "m2", "confidence_raw": 140.0, "outcome": "lost", "predicted_at": "2024-03-01T12:00:00+00:00"},
		// invalid: unknown outcome
		{"id": uuid.NewString(), "source_id": "gamma", "match_id": "m3", "confidence_raw": 60.0, "outcome": "void", "predicted_at": "2024-03-01T12:00:00+00:00"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/predictions", r.URL.Path)
		assert.Equal(t, "gte.2024-03-01T00:00:00Z", r.URL.Query().Get("predicted_at"))
		assert.Equal(t, "predicted_at.asc,id.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testClientConfig(), nil)
	source := NewRESTPredictionSource(client, server.URL+"/rest/v1/", "", "secret", nil)

	records, err := source.FetchPredictions(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].SourceID)
	assert.Equal(t, models.OutcomeWon, records[0].Outcome)
	assert.Equal(t, 61.5, records[1].ConfidenceRaw)
	assert.Equal(t, models.OutcomePending, records[1].Outcome)
	assert.Equal(t, "rest", source.Name())
}

// newPagedServer serves rows in PostgREST fashion, never returning more than maxRows per response
func newPagedServer(t *testing.T, rows []map[string]interface{}, maxRows int, withCount bool, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)

		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		assert.NoError(t, err)
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		assert.NoError(t, err)
		if limit > maxRows {
			limit = maxRows
		}

		end := offset + limit
		if end > len(rows) {
			end = len(rows)
		}
		page := []map[string]interface{}{}
		if offset < len(rows) {
			page = rows[offset:end]
		}

		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if withCount {
			w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, offset+len(page)-1, len(rows)))
			if len(page) < len(rows) {
				status = http.StatusPartialContent
			}
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(page)
	}))
}

func historyRows(n int) []map[string]interface{} {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"id":             uuid.NewString(),
			"source_id":      "alpha",
			"match_id":       fmt.Sprintf("m%d", i),
			"confidence_raw": 70.0,
			"outcome":        "won",
			"predicted_at":   start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		}
	}
	return rows
}

func TestRESTPredictionSourcePagesThroughHistory(t *testing.T) {
	rows := historyRows(2500)
	newest := rows[len(rows)-1]["predicted_at"]

	tests := []struct {
		name      string
		maxRows   int
		pageSize  int
		withCount bool
		requests  int32
	}{
		{name: "server cap equals page size", maxRows: 1000, pageSize: 1000, withCount: true, requests: 3},
		{name: "server cap below page size", maxRows: 400, pageSize: 1000, withCount: true, requests: 7},
		{name: "no count header", maxRows: 1000, pageSize: 1000, withCount: false, requests: 3},
		{name: "exact multiple without count", maxRows: 500, pageSize: 500, withCount: false, requests: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int32
			server := newPagedServer(t, rows, tt.maxRows, tt.withCount, &requests)
			defer server.Close()

			source := NewRESTPredictionSource(NewRateLimitedHTTPClient(testClientConfig(), nil), server.URL, "", "", nil)
			source.SetPageSize(tt.pageSize)

			records, err := source.FetchPredictions(context.Background(), time.Time{})
			require.NoError(t, err)
			require.Len(t, records, len(rows))
			assert.Equal(t, newest, records[len(records)-1].PredictedAt.UTC().Format(time.RFC3339))
			assert.Equal(t, tt.requests, atomic.LoadInt32(&requests))
		})
	}
}

func TestRESTPredictionSourceEmptyHistory(t *testing.T) {
	var requests int32
	server := newPagedServer(t, nil, 1000, true, &requests)
	defer server.Close()

	source := NewRESTPredictionSource(NewRateLimitedHTTPClient(testClientConfig(), nil), server.URL, "", "", nil)
	records, err := source.FetchPredictions(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestContentRangeTotal(t *testing.T) {
	assert.Equal(t, 2500, contentRangeTotal("0-999/2500"))
	assert.Equal(t, 0, contentRangeTotal("*/0"))
	assert.Equal(t, -1, contentRangeTotal("0-999/*"))
	assert.Equal(t, -1, contentRangeTotal(""))
}

func TestRESTPredictionSourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"bad key"}`, code: ErrCodeAuthenticationFailed},
		{name: "server error after retries", status: http.StatusServiceUnavailable, body: "down", code: ErrCodeServerError},
		{name: "malformed body", status: http.StatusOK, body: `{"not":"a list"}`, code: ErrCodeInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewRateLimitedHTTPClient(testClientConfig(), nil)
			source := NewRESTPredictionSource(client, server.URL, "predictions", "", nil)

			_, err := source.FetchPredictions(context.Background(), time.Now())
			require.Error(t, err)

			var dsErr DataSourceError
			require.True(t, errors.As(err, &dsErr))
			assert.Equal(t, tt.code, dsErr.Code)
		})
	}
}

func TestRateLimitedHTTPClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testClientConfig(), nil)
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRateLimitedHTTPClientCircuitBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testClientConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerMax = 2
	cfg.CircuitCooldown = time.Hour
	client := NewRateLimitedHTTPClient(cfg, nil)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.True(t, client.IsOpen())
	_, err := client.Get(context.Background(), server.URL, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestNewPredictionSource(t *testing.T) {
	_, err := NewPredictionSource(config.HistorySourceConfig{Type: config.SourceTypePostgres}, nil, nil)
	assert.Error(t, err)

	_, err = NewPredictionSource(config.HistorySourceConfig{Type: config.SourceTypeREST}, nil, nil)
	assert.Error(t, err)

	_, err = NewPredictionSource(config.HistorySourceConfig{Type: "csv"}, nil, nil)
	assert.Error(t, err)

	src, err := NewPredictionSource(config.HistorySourceConfig{Type: config.SourceTypeREST, URL: "http://localhost:3000"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &RESTPredictionSource{}, src)

	repos := &repository.Repositories{Prediction: repository.NewPostgresPredictionRepository(nil)}
	src, err = NewPredictionSource(config.HistorySourceConfig{Type: config.SourceTypePostgres}, repos, nil)
	require.NoError(t, err)
	assert.Equal(t, repos.Prediction, src)
}

func TestHTTPClientConfigFrom(t *testing.T) {
	cfg := HTTPClientConfigFrom(config.HistorySourceConfig{TimeoutSeconds: 7, RequestsPerSecond: 2, Burst: 4, RetryAttempts: 1})

	assert.Equal(t, 7*time.Second, cfg.Timeout)
	assert.Equal(t, 2.0, cfg.RateLimit)
	assert.Equal(t, 4, cfg.Burst)
	assert.Equal(t, 1, cfg.MaxRetries)
}
