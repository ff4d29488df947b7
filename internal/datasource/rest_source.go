package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/clever-calibrator/internal/models"
)

const (
	restSourceName  = "rest"
	defaultPageSize = 1000
)

// RESTPredictionSource reads prediction history from a PostgREST-style endpoint
type RESTPredictionSource struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	table      string
	apiKey     string
	pageSize   int
	logger     *logrus.Entry
}

// NewRESTPredictionSource creates a REST history source rooted at baseURL
func NewRESTPredictionSource(httpClient *RateLimitedHTTPClient, baseURL, table, apiKey string, logger *logrus.Logger) *RESTPredictionSource {
	if table == "" {
		table = "predictions"
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &RESTPredictionSource{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		table:      table,
		apiKey:     apiKey,
		pageSize:   defaultPageSize,
		logger:     logger.WithFields(logrus.Fields{"component": "datasource", "source": restSourceName}),
	}
}

// SetPageSize sets the number of rows requested per page; non-positive values are ignored
func (s *RESTPredictionSource) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Name returns the name of the data source
func (s *RESTPredictionSource) Name() string {
	return restSourceName
}

// FetchPredictions retrieves all predictions made at or after since, oldest first.
// Pages are requested with limit/offset until a short page arrives or the
// Content-Range total is reached. Rows that fail validation are skipped and logged.
func (s *RESTPredictionSource) FetchPredictions(ctx context.Context, since time.Time) ([]models.PredictionRecord, error) {
	var records []models.PredictionRecord
	skipped := 0
	pages := 0

	for offset := 0; ; {
		rows, total, err := s.fetchPage(ctx, since, offset)
		if err != nil {
			return nil, err
		}
		pages++

		for i := range rows {
			if err := rows[i].Validate(); err != nil {
				skipped++
				s.logger.WithError(err).WithField("prediction_id", rows[i].ID).Debug("Skipping invalid prediction row")
				continue
			}
			records = append(records, rows[i])
		}

		offset += len(rows)
		if len(rows) == 0 {
			break
		}
		if total >= 0 {
			if offset >= total {
				break
			}
			continue
		}
		// without a total a short page is the last one
		if len(rows) < s.pageSize {
			break
		}
	}

	if skipped > 0 {
		s.logger.WithFields(logrus.Fields{"skipped": skipped, "kept": len(records)}).Warn("Dropped invalid prediction rows")
	}
	s.logger.WithFields(logrus.Fields{"records": len(records), "pages": pages}).Debug("Fetched prediction history")
	if records == nil {
		records = []models.PredictionRecord{}
	}
	return records, nil
}

// fetchPage requests one page. total is -1 when the server did not report a count.
func (s *RESTPredictionSource) fetchPage(ctx context.Context, since time.Time, offset int) ([]models.PredictionRecord, int, error) {
	headers := map[string]string{
		"Accept": "application/json",
		"Prefer": "count=exact",
	}
	if s.apiKey != "" {
		headers["apikey"] = s.apiKey
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	resp, err := s.httpClient.Get(ctx, s.buildURL(since, offset), headers)
	if err != nil {
		return nil, 0, NewDataSourceError(restSourceName, ErrCodeNetworkError, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, NewDataSourceError(restSourceName, errorCodeForStatus(resp.StatusCode),
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var rows []models.PredictionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, 0, NewDataSourceError(restSourceName, ErrCodeInvalidData, "failed to decode response", fmt.Errorf("%w: %v", ErrInvalidData, err))
	}
	return rows, contentRangeTotal(resp.Header.Get("Content-Range")), nil
}

func (s *RESTPredictionSource) buildURL(since time.Time, offset int) string {
	q := url.Values{}
	q.Set("select", "id,source_id,match_id,league,confidence_raw,outcome,predicted_at")
	q.Set("predicted_at", "gte."+since.UTC().Format(time.RFC3339))
	q.Set("order", "predicted_at.asc,id.asc")
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, s.table, q.Encode())
}

// contentRangeTotal parses the total from "0-999/2500"; "*" or a malformed header yields -1
func contentRangeTotal(header string) int {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}
	total, err := strconv.Atoi(strings.TrimSpace(header[idx+1:]))
	if err != nil || total < 0 {
		return -1
	}
	return total
}
