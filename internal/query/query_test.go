package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentimentflow/internal/cache"
	"sentimentflow/internal/fanout"
	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
	"sentimentflow/internal/store"

	appconfig "sentimentflow/config"
)

func seed(t *testing.T, st store.Store, ticker string, value float64, ts time.Time) {
	t.Helper()
	w := fanout.NewWriter(st, appconfig.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	outcomes, err := w.WriteMeasurement(context.Background(), models.Measurement{
		Ticker: ticker, Value: value, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("seed write: %v", err)
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("seed write %s: %v", o.Resolution, o.Err)
		}
	}
}

func TestQueryCacheSequence(t *testing.T) {
	mem := store.NewMemoryStore()

	clock := time.Now()
	nowFn := func() time.Time { return clock }
	c := cache.New(8, cache.WithClock(nowFn))
	s := NewService(mem, c)
	s.now = nowFn

	seed(t, mem, "AAPL", 0.4, clock.Add(-10*time.Minute))
	seed(t, mem, "AAPL", 0.8, clock) // in-progress 1m bucket

	req := Request{Ticker: "AAPL", Resolution: resolution.Minute1}

	first, err := s.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if first.CacheHit {
		t.Errorf("first query should miss the cache")
	}
	if len(first.Buckets) != 1 {
		t.Fatalf("expected 1 completed bucket, got %d", len(first.Buckets))
	}
	if first.PartialBucket == nil {
		t.Fatalf("expected partial bucket on the live read")
	}

	second, err := s.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !second.CacheHit {
		t.Errorf("second query should hit the cache")
	}
	if second.PartialBucket != nil {
		t.Errorf("cached result must not retain the in-progress bucket: %#v", second.PartialBucket)
	}
	if len(second.Buckets) != len(first.Buckets) {
		t.Errorf("cached result differs: %d vs %d buckets", len(second.Buckets), len(first.Buckets))
	}

	// Entries live for one resolution period; once that has elapsed the
	// next query goes back to the store.
	clock = clock.Add(2 * time.Minute)
	third, err := s.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("third query: %v", err)
	}
	if third.CacheHit {
		t.Errorf("query after the resolution TTL should miss the cache")
	}
	if len(third.Buckets) != 2 {
		t.Errorf("expected the second bucket to have completed, got %d buckets", len(third.Buckets))
	}
}

func TestExplicitRangeBypassesCache(t *testing.T) {
	mem := store.NewMemoryStore()
	c := cache.New(8)
	s := NewService(mem, c)

	now := time.Now()
	seed(t, mem, "AAPL", 0.4, now.Add(-10*time.Minute))

	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	res, err := s.Query(context.Background(), Request{
		Ticker: "AAPL", Resolution: resolution.Minute1, Start: &start, End: &end,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.CacheHit {
		t.Errorf("ranged query must not report a cache hit")
	}
	if stats := c.Stats(); stats.Entries != 0 {
		t.Errorf("ranged query should not populate the cache: %#v", stats)
	}
}

func TestPartialBucketSplitOut(t *testing.T) {
	mem := store.NewMemoryStore()
	s := NewService(mem, cache.New(8))

	now := time.Now()
	seed(t, mem, "AAPL", 0.4, now.Add(-5*time.Minute)) // completed 1m bucket
	seed(t, mem, "AAPL", 0.8, now)                     // in-progress 1m bucket

	res, err := s.Query(context.Background(), Request{Ticker: "AAPL", Resolution: resolution.Minute1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if res.PartialBucket == nil {
		t.Fatalf("expected partial bucket to be split out")
	}
	if !res.PartialBucket.IsPartial {
		t.Errorf("partial bucket not flagged")
	}
	if res.PartialBucket.Close != 0.8 {
		t.Errorf("unexpected partial bucket close: %v", res.PartialBucket.Close)
	}
	for _, b := range res.Buckets {
		if b.IsPartial {
			t.Errorf("partial bucket leaked into main list: %#v", b)
		}
	}
	if len(res.Buckets) != 1 {
		t.Fatalf("expected 1 completed bucket, got %d", len(res.Buckets))
	}
}

func TestPagination(t *testing.T) {
	mem := store.NewMemoryStore()
	s := NewService(mem, cache.New(8))

	now := time.Now()
	for i := 5; i >= 1; i-- {
		seed(t, mem, "AAPL", 0.1*float64(i), now.Add(-time.Duration(i)*time.Hour))
	}

	start := now.Add(-6 * time.Hour)
	end := now.Add(-30 * time.Minute)
	first, err := s.Query(context.Background(), Request{
		Ticker: "AAPL", Resolution: resolution.Hour1, Start: &start, End: &end, Limit: 2,
	})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(first.Buckets))
	}
	if !first.HasMore || first.NextCursor == "" {
		t.Fatalf("expected more pages: %#v", first)
	}
	if first.Buckets[0].BucketStart.After(first.Buckets[1].BucketStart) {
		t.Errorf("buckets not ascending")
	}

	second, err := s.Query(context.Background(), Request{
		Ticker: "AAPL", Resolution: resolution.Hour1, Start: &start, End: &end,
		Limit: 10, Cursor: first.NextCursor,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Buckets) == 0 {
		t.Fatalf("expected remaining buckets")
	}
	if !second.Buckets[0].BucketStart.After(first.Buckets[1].BucketStart) {
		t.Errorf("cursor did not advance: %v vs %v", second.Buckets[0].BucketStart, first.Buckets[1].BucketStart)
	}
}

// brokenStore fails range queries for one partition key.
type brokenStore struct {
	*store.MemoryStore
	failPK string
}

func (b *brokenStore) RangeQuery(ctx context.Context, pk string, rng store.KeyRange, limit int, exclusiveStartKey string) (store.Page, error) {
	if pk == b.failPK {
		return store.Page{}, errors.New("backend timeout")
	}
	return b.MemoryStore.RangeQuery(ctx, pk, rng, limit, exclusiveStartKey)
}

func TestQueryBatchIsolatesFailures(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, mem, "AAPL", 0.4, time.Now().Add(-10*time.Minute))
	seed(t, mem, "MSFT", 0.6, time.Now().Add(-10*time.Minute))

	broken := &brokenStore{MemoryStore: mem, failPK: store.PartitionKey("MSFT", resolution.Minute1)}
	s := NewService(broken, cache.New(8))

	results := s.QueryBatch(context.Background(), []string{"aapl", "MSFT"}, resolution.Minute1, nil, nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}

	if got := results["AAPL"]; got == nil || len(got.Buckets) != 1 {
		t.Errorf("expected AAPL buckets (ticker normalised to uppercase), got %#v", got)
	}
	if got := results["MSFT"]; got == nil || len(got.Buckets) != 0 {
		t.Errorf("expected empty buckets for failed ticker, got %#v", got)
	}
}

func TestQueryBatchEmptyInput(t *testing.T) {
	// A nil store would panic on any access; an empty batch must not
	// touch it.
	s := NewService(nil, nil)
	results := s.QueryBatch(context.Background(), nil, resolution.Hour1, nil, nil)
	if len(results) != 0 {
		t.Fatalf("expected empty map, got %#v", results)
	}
}
