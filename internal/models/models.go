package models

import (
	"fmt"
	"time"

	"sentimentflow/internal/resolution"
)

// Measurement is a single scalar sentiment reading handed in by the
// ingestion collaborator. It is consumed exactly once by the fanout writer.
type Measurement struct {
	Ticker    string    `json:"ticker"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Validate checks the measurement before it is fanned out.
func (m Measurement) Validate() error {
	if m.Ticker == "" {
		return fmt.Errorf("measurement ticker is required")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("measurement timestamp is required")
	}
	if m.Value < -1 || m.Value > 1 {
		return fmt.Errorf("measurement value %v outside [-1, 1]", m.Value)
	}
	return nil
}

// Bucket is the aggregated record for one ticker, one resolution and one
// aligned time window.
type Bucket struct {
	Ticker      string                `json:"ticker"`
	Resolution  resolution.Resolution `json:"resolution"`
	BucketStart time.Time             `json:"bucket_start"`
	Open        float64               `json:"open"`
	High        float64               `json:"high"`
	Low         float64               `json:"low"`
	Close       float64               `json:"close"`
	Count       int64                 `json:"count"`
	Sum         float64               `json:"sum"`
	LabelCounts map[string]int64      `json:"label_counts,omitempty"`
	Sources     []string              `json:"sources,omitempty"`
	IsPartial   bool                  `json:"is_partial"`
}

// Avg derives the mean sentiment from the running sum.
func (b Bucket) Avg() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / float64(b.Count)
}

// Partial reports whether the bucket's window still contains now.
func (b Bucket) Partial(now time.Time) bool {
	end := b.BucketStart.Add(b.Resolution.Duration())
	return !now.Before(b.BucketStart) && now.Before(end)
}
