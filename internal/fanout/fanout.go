// Package fanout converts one sentiment measurement into eight bucket
// upserts, one per resolution. Write amplification here buys O(1) reads on
// the query path.
package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	appconfig "sentimentflow/config"
	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
	"sentimentflow/internal/store"
	"sentimentflow/logger"
)

// Outcome reports the result of one resolution's bucket write.
type Outcome struct {
	Resolution  resolution.Resolution
	BucketStart time.Time
	Created     bool
	Err         error
}

// Writer fans measurements out to the store. It holds no locks of its own:
// merge correctness rests entirely on the store's atomic conditional
// primitives, so writers in other processes can interleave freely.
type Writer struct {
	store store.Store
	retry appconfig.RetryConfig
	log   *logger.Log
	now   func() time.Time

	written int64
	failed  int64
}

func NewWriter(st store.Store, retry appconfig.RetryConfig) *Writer {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 50 * time.Millisecond
	}
	if retry.BackoffMultiplier <= 0 {
		retry.BackoffMultiplier = 2
	}
	return &Writer{
		store: st,
		retry: retry,
		log:   logger.GetLogger(),
		now:   time.Now,
	}
}

// WriteMeasurement validates the measurement and applies it to all eight
// resolution buckets. The returned slice always has one outcome per
// resolution; a failed bucket write is scoped to its own outcome and never
// rolls back siblings.
func (w *Writer) WriteMeasurement(ctx context.Context, m models.Measurement) ([]Outcome, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	resolutions := resolution.All()
	outcomes := make([]Outcome, 0, len(resolutions))
	for _, r := range resolutions {
		outcome := w.writeBucket(ctx, m, r)
		if outcome.Err != nil {
			atomic.AddInt64(&w.failed, 1)
			w.log.WithComponent("fanout").WithError(outcome.Err).WithFields(logger.Fields{
				"ticker":     m.Ticker,
				"resolution": r.String(),
			}).Error("bucket write failed")
		} else {
			atomic.AddInt64(&w.written, 1)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Written and Failed expose running counters for metrics reporting.
func (w *Writer) Written() int64 { return atomic.LoadInt64(&w.written) }
func (w *Writer) Failed() int64  { return atomic.LoadInt64(&w.failed) }

func (w *Writer) writeBucket(ctx context.Context, m models.Measurement, r resolution.Resolution) Outcome {
	bucketStart := resolution.FloorToBucket(m.Timestamp, r)
	outcome := Outcome{Resolution: r, BucketStart: bucketStart}

	pk := store.PartitionKey(m.Ticker, r)
	sk := store.SortKey(bucketStart)

	// Create path: a single conditional put seeds every field, including
	// open. Exactly one concurrent writer wins this; every loser takes the
	// merge path below, which never touches open, giving open its
	// first-writer-wins semantics.
	err := w.withRetry(ctx, func() error {
		return w.store.ConditionalPut(ctx, pk, sk, w.newBucketFields(m, r, bucketStart), store.ConditionNotExists)
	})
	if err == nil {
		outcome.Created = true
		return outcome
	}
	if !errors.Is(err, store.ErrConditionFailed) {
		outcome.Err = err
		return outcome
	}

	outcome.Err = w.mergeBucket(ctx, m, pk, sk)
	return outcome
}

func (w *Writer) newBucketFields(m models.Measurement, r resolution.Resolution, bucketStart time.Time) store.Item {
	fields := store.Item{
		store.FieldOpen:      m.Value,
		store.FieldHigh:      m.Value,
		store.FieldLow:       m.Value,
		store.FieldClose:     m.Value,
		store.FieldCount:     float64(1),
		store.FieldSum:       m.Value,
		store.FieldExpiresAt: float64(bucketStart.Add(r.TTL()).Unix()),
	}
	if m.Label != "" {
		fields[store.LabelPrefix+m.Label] = float64(1)
	}
	if m.Source != "" {
		fields[store.FieldSources] = []string{m.Source}
	}
	return fields
}

// mergeBucket folds the measurement into an existing bucket as a series of
// commutative, retry-safe operations. Close is last-write-wins: the most
// recently applied write determines it regardless of the measurement's own
// timestamp, so out-of-order arrival within a bucket can skew close. That
// limitation is accepted in exchange for a lock-free merge.
func (w *Writer) mergeBucket(ctx context.Context, m models.Measurement, pk, sk string) error {
	steps := []func() error{
		func() error {
			return w.store.ConditionalFieldSet(ctx, pk, sk, store.FieldClose, m.Value, store.ConditionNone)
		},
		func() error {
			return w.store.ConditionalFieldSet(ctx, pk, sk, store.FieldHigh, m.Value, store.ConditionGreaterThanCurrent)
		},
		func() error {
			return w.store.ConditionalFieldSet(ctx, pk, sk, store.FieldLow, m.Value, store.ConditionLessThanCurrent)
		},
		func() error {
			return w.store.AtomicIncrement(ctx, pk, sk, store.FieldCount, 1)
		},
		func() error {
			return w.store.AtomicIncrement(ctx, pk, sk, store.FieldSum, m.Value)
		},
	}
	if m.Label != "" {
		steps = append(steps, func() error {
			return w.store.AtomicIncrement(ctx, pk, sk, store.LabelPrefix+m.Label, 1)
		})
	}
	if m.Source != "" {
		steps = append(steps, func() error {
			return w.store.AddToSet(ctx, pk, sk, store.FieldSources, m.Source)
		})
	}

	for _, step := range steps {
		err := w.withRetry(ctx, step)
		if errors.Is(err, store.ErrConditionFailed) {
			// A concurrent writer already advanced this field; the losing
			// write is semantically superseded, not an error.
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// withRetry retries transport failures a bounded number of times with
// exponential backoff. Condition failures are returned immediately; they
// are contention, and retrying them would just re-fail the condition.
func (w *Writer) withRetry(ctx context.Context, op func() error) error {
	delay := w.retry.BaseDelay
	var err error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		err = op()
		if err == nil || errors.Is(err, store.ErrConditionFailed) {
			return err
		}
		if attempt == w.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= time.Duration(w.retry.BackoffMultiplier)
		if w.retry.MaxDelay > 0 && delay > w.retry.MaxDelay {
			delay = w.retry.MaxDelay
		}
	}
	return err
}
