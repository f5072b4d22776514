// Package ingest runs the worker pool that drains incoming measurements,
// drives the fanout writer and derives live stream events from the
// resulting bucket writes.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	appconfig "sentimentflow/config"
	"sentimentflow/internal/fanout"
	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
	"sentimentflow/logger"
)

type Ingestor struct {
	cfg          *appconfig.Config
	writer       *fanout.Writer
	measurements <-chan models.Measurement
	events       chan<- models.Event
	log          *logger.Log
	now          func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	processed     int64
	failed        int64
	droppedEvents int64
}

func NewIngestor(cfg *appconfig.Config, writer *fanout.Writer, measurements <-chan models.Measurement, events chan<- models.Event) *Ingestor {
	return &Ingestor{
		cfg:          cfg,
		writer:       writer,
		measurements: measurements,
		events:       events,
		log:          logger.GetLogger(),
		now:          time.Now,
	}
}

// Start launches the worker pool. Calling Start twice is an error.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return fmt.Errorf("ingestor already running")
	}
	i.running = true
	i.mu.Unlock()

	workers := i.cfg.Ingest.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	i.log.WithComponent("ingest").WithFields(logger.Fields{"workers": workers}).Debug("starting ingest workers")

	for n := 0; n < workers; n++ {
		i.wg.Add(1)
		go i.worker(ctx, n)
	}

	go i.metricsReporter(ctx)
	return nil
}

// Stop blocks until every worker has drained.
func (i *Ingestor) Stop() {
	i.wg.Wait()

	i.mu.Lock()
	i.running = false
	i.mu.Unlock()

	i.log.WithComponent("ingest").WithFields(logger.Fields{
		"processed": atomic.LoadInt64(&i.processed),
		"failed":    atomic.LoadInt64(&i.failed),
	}).Info("ingest workers stopped")
}

func (i *Ingestor) worker(ctx context.Context, id int) {
	defer i.wg.Done()
	log := i.log.WithComponent("ingest").WithFields(logger.Fields{"worker": id})

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-i.measurements:
			if !ok {
				return
			}
			i.handle(ctx, log, m)
		}
	}
}

func (i *Ingestor) handle(ctx context.Context, log *logger.Entry, m models.Measurement) {
	// Bucket keys are always uppercase; subscriptions downstream are not
	// normalised, so events carry the uppercased ticker.
	m.Ticker = strings.ToUpper(strings.TrimSpace(m.Ticker))

	writeCtx := ctx
	if i.cfg.Ingest.Timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, i.cfg.Ingest.Timeout)
		defer cancel()
	}

	outcomes, err := i.writer.WriteMeasurement(writeCtx, m)
	if err != nil {
		atomic.AddInt64(&i.failed, 1)
		log.WithError(err).Warn("discarding invalid measurement")
		return
	}
	atomic.AddInt64(&i.processed, 1)

	now := i.now()
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		i.emit(i.eventFor(m, outcome, now))
	}
}

// eventFor classifies the bucket write: a write landing in the window that
// still contains now is a partial-bucket update, anything older is a
// completed-bucket update.
func (i *Ingestor) eventFor(m models.Measurement, outcome fanout.Outcome, now time.Time) models.Event {
	ev := models.Event{
		Type:        models.EventBucketUpdate,
		Ticker:      m.Ticker,
		Resolution:  outcome.Resolution,
		BucketStart: outcome.BucketStart,
		Value:       m.Value,
		Timestamp:   now.UTC(),
	}
	end := outcome.BucketStart.Add(outcome.Resolution.Duration())
	if !now.Before(outcome.BucketStart) && now.Before(end) {
		ev.Type = models.EventPartialBucket
		if progress, err := resolution.BucketProgress(outcome.BucketStart, outcome.Resolution, now); err == nil {
			ev.Progress = progress
		}
	}
	return ev
}

func (i *Ingestor) emit(ev models.Event) {
	select {
	case i.events <- ev:
	default:
		// Consumers must be live-connected; a full event channel sheds
		// load instead of stalling ingestion.
		atomic.AddInt64(&i.droppedEvents, 1)
	}
}

func (i *Ingestor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.log.LogMetric("ingest", "measurements_processed", float64(atomic.LoadInt64(&i.processed)), nil)
			if dropped := atomic.LoadInt64(&i.droppedEvents); dropped > 0 {
				i.log.LogMetric("ingest", "events_dropped", float64(dropped), nil)
			}
		}
	}
}
