package ingest

import (
	"context"
	"testing"
	"time"

	appconfig "sentimentflow/config"
	"sentimentflow/internal/fanout"
	"sentimentflow/internal/models"
	"sentimentflow/internal/store"
)

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Ingest: appconfig.IngestConfig{
			MaxWorkers: 1,
			Timeout:    time.Second,
			Retry: appconfig.RetryConfig{
				MaxAttempts: 1,
				BaseDelay:   time.Millisecond,
			},
		},
	}
}

func TestIngestorStartStop(t *testing.T) {
	cfg := minimalConfig()
	measurements := make(chan models.Measurement)
	events := make(chan models.Event, 16)
	ing := NewIngestor(cfg, fanout.NewWriter(store.NewMemoryStore(), cfg.Ingest.Retry), measurements, events)

	ctx, cancel := context.WithCancel(context.Background())
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ing.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	ing.Stop()
}

func TestIngestorEmitsEvents(t *testing.T) {
	cfg := minimalConfig()
	measurements := make(chan models.Measurement, 1)
	events := make(chan models.Event, 16)
	mem := store.NewMemoryStore()
	ing := NewIngestor(cfg, fanout.NewWriter(mem, cfg.Ingest.Retry), measurements, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	measurements <- models.Measurement{Ticker: "aapl", Value: 0.5, Timestamp: time.Now()}

	// One event per resolution; the current buckets are all in progress.
	for i := 0; i < 8; i++ {
		select {
		case ev := <-events:
			if ev.Ticker != "AAPL" {
				t.Errorf("ticker not uppercased: %s", ev.Ticker)
			}
			switch ev.Type {
			case models.EventPartialBucket:
				if ev.Progress < 0 || ev.Progress > 100 {
					t.Errorf("progress out of range: %v", ev.Progress)
				}
			case models.EventBucketUpdate:
				// A bucket can complete between write and classification
				// when the measurement lands right at a boundary.
			default:
				t.Errorf("unexpected event type: %s", ev.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	ing.Stop()
}

func TestIngestorDiscardsInvalidMeasurement(t *testing.T) {
	cfg := minimalConfig()
	measurements := make(chan models.Measurement, 1)
	events := make(chan models.Event, 16)
	ing := NewIngestor(cfg, fanout.NewWriter(store.NewMemoryStore(), cfg.Ingest.Retry), measurements, events)

	ctx, cancel := context.WithCancel(context.Background())
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	measurements <- models.Measurement{Ticker: "AAPL", Value: 5, Timestamp: time.Now()}

	select {
	case ev := <-events:
		t.Fatalf("invalid measurement produced event: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	ing.Stop()
}
