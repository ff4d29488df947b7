package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/yourusername/clever-calibrator/internal/metrics"
	"github.com/yourusername/clever-calibrator/internal/models"
	"github.com/yourusername/clever-calibrator/internal/repository"
)

const historyBucket = 24 * time.Hour

// CachedPredictionSource keeps recent history fetches in memory.
// Fetches are bucketed by UTC day so repeated refreshes within the TTL share an entry,
// and each caller gets only the records at or after its own cutoff.
type CachedPredictionSource struct {
	source repository.PredictionSource
	cache  *cache.Cache
	ttl    time.Duration
	mu     sync.Mutex
}

// NewCachedPredictionSource wraps source with a TTL cache
func NewCachedPredictionSource(source repository.PredictionSource, ttl time.Duration) *CachedPredictionSource {
	return &CachedPredictionSource{
		source: source,
		cache:  cache.New(ttl, ttl*2),
		ttl:    ttl,
	}
}

// FetchPredictions implements repository.PredictionSource
func (c *CachedPredictionSource) FetchPredictions(ctx context.Context, since time.Time) ([]models.PredictionRecord, error) {
	bucket := since.UTC().Truncate(historyBucket)
	key := fmt.Sprintf("history:%d", bucket.Unix())

	if cached, found := c.cache.Get(key); found {
		if records, ok := cached.([]models.PredictionRecord); ok {
			metrics.RecordHistoryCacheHit()
			return filterSince(records, since), nil
		}
	}
	metrics.RecordHistoryCacheMiss()

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have filled the bucket while we waited
	if cached, found := c.cache.Get(key); found {
		if records, ok := cached.([]models.PredictionRecord); ok {
			return filterSince(records, since), nil
		}
	}

	records, err := c.source.FetchPredictions(ctx, bucket)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, records, c.ttl)

	return filterSince(records, since), nil
}

// Invalidate drops every cached fetch, e.g. after a settlement changes history
func (c *CachedPredictionSource) Invalidate() {
	c.cache.Flush()
}

// ItemCount returns the number of cached fetches
func (c *CachedPredictionSource) ItemCount() int {
	return c.cache.ItemCount()
}

func filterSince(records []models.PredictionRecord, since time.Time) []models.PredictionRecord {
	out := make([]models.PredictionRecord, 0, len(records))
	for _, rec := range records {
		if !rec.PredictedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out
}
