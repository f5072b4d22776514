// Package query serves historical reads over the pre-aggregated buckets,
// with cursor pagination, partial-bucket extraction and cache integration.
package query

import (
	"context"
	"strings"
	"time"

	"sentimentflow/internal/cache"
	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
	"sentimentflow/internal/store"
	"sentimentflow/logger"
)

// Request describes one time-series query. Start/End are optional; when
// both are nil and no cursor is given the query is cacheable.
type Request struct {
	Ticker     string
	Resolution resolution.Resolution
	Start      *time.Time
	End        *time.Time
	Limit      int
	Cursor     string
}

// Result is one page of buckets, ascending by bucket start. The bucket
// whose window contains now is split out of Buckets into PartialBucket.
type Result struct {
	Buckets       []models.Bucket `json:"buckets"`
	PartialBucket *models.Bucket  `json:"partial_bucket,omitempty"`
	HasMore       bool            `json:"has_more"`
	NextCursor    string          `json:"next_cursor,omitempty"`
	CacheHit      bool            `json:"cache_hit"`
}

// Service reads buckets from the store, consulting the shared resolution
// cache for no-range queries.
type Service struct {
	store store.Store
	cache *cache.ResolutionCache
	log   *logger.Log
	now   func() time.Time
}

func NewService(st store.Store, c *cache.ResolutionCache) *Service {
	return &Service{
		store: st,
		cache: c,
		log:   logger.GetLogger(),
		now:   time.Now,
	}
}

// Query returns one page of buckets for a single ticker.
func (s *Service) Query(ctx context.Context, req Request) (*Result, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	cacheable := req.Start == nil && req.End == nil && req.Cursor == ""

	if cacheable && s.cache != nil {
		if data, ok := s.cache.Get(ticker, req.Resolution); ok {
			if cached, ok := data.(Result); ok {
				out := cached
				out.CacheHit = true
				return &out, nil
			}
		}
	}

	limit := req.Limit
	if limit <= 0 {
		// Default to roughly one retention window of buckets.
		limit = req.Resolution.BucketCapacity()
	}

	rng := store.KeyRange{}
	if req.Start != nil {
		rng.Start = store.SortKey(resolution.FloorToBucket(*req.Start, req.Resolution))
	}
	if req.End != nil {
		rng.End = store.SortKey(*req.End)
	}

	page, err := s.store.RangeQuery(ctx, store.PartitionKey(ticker, req.Resolution), rng, limit, req.Cursor)
	if err != nil {
		return nil, err
	}

	result := &Result{Buckets: []models.Bucket{}}
	now := s.now()
	for _, it := range page.Items {
		bucket, err := bucketFromItem(it, ticker, req.Resolution)
		if err != nil {
			s.log.WithComponent("query").WithError(err).Warn("skipping malformed bucket item")
			continue
		}
		if bucket.Partial(now) {
			bucket.IsPartial = true
			b := bucket
			result.PartialBucket = &b
			continue
		}
		result.Buckets = append(result.Buckets, bucket)
	}

	result.HasMore = page.LastEvaluatedKey != ""
	if result.HasMore && len(page.Items) > 0 {
		result.NextCursor = it2sk(page.Items[len(page.Items)-1])
	}

	if cacheable && s.cache != nil {
		// The in-progress bucket changes on every merge; caching it would
		// replay stale OHLC values for the rest of the TTL. Only the
		// completed buckets are written back.
		cached := *result
		cached.PartialBucket = nil
		s.cache.Set(ticker, req.Resolution, cached)
	}
	return result, nil
}

// QueryBatch issues one query per ticker. A backend failure for one ticker
// yields an empty result for that ticker only; the rest of the batch is
// unaffected. An empty ticker list returns an empty map without touching
// the store.
func (s *Service) QueryBatch(ctx context.Context, tickers []string, r resolution.Resolution, start, end *time.Time) map[string]*Result {
	results := make(map[string]*Result, len(tickers))
	for _, ticker := range tickers {
		normalized := strings.ToUpper(strings.TrimSpace(ticker))
		res, err := s.Query(ctx, Request{
			Ticker:     normalized,
			Resolution: r,
			Start:      start,
			End:        end,
		})
		if err != nil {
			s.log.WithComponent("query").WithError(err).WithFields(logger.Fields{
				"ticker":     normalized,
				"resolution": r.String(),
			}).Warn("batch query failed for ticker")
			results[normalized] = &Result{Buckets: []models.Bucket{}}
			continue
		}
		results[normalized] = res
	}
	return results
}

func it2sk(it store.Item) string {
	return it.String(store.FieldSK)
}

// bucketFromItem maps a stored item back onto the bucket model, expanding
// the flattened label counters.
func bucketFromItem(it store.Item, ticker string, r resolution.Resolution) (models.Bucket, error) {
	start, err := store.ParseSortKey(it.String(store.FieldSK))
	if err != nil {
		return models.Bucket{}, err
	}

	bucket := models.Bucket{
		Ticker:      ticker,
		Resolution:  r,
		BucketStart: start,
		Open:        it.Float(store.FieldOpen),
		High:        it.Float(store.FieldHigh),
		Low:         it.Float(store.FieldLow),
		Close:       it.Float(store.FieldClose),
		Count:       it.Int(store.FieldCount),
		Sum:         it.Float(store.FieldSum),
		Sources:     it.StringSet(store.FieldSources),
	}
	for field := range it {
		if strings.HasPrefix(field, store.LabelPrefix) {
			if bucket.LabelCounts == nil {
				bucket.LabelCounts = make(map[string]int64)
			}
			bucket.LabelCounts[strings.TrimPrefix(field, store.LabelPrefix)] = it.Int(field)
		}
	}
	return bucket, nil
}
