package models

import (
	"time"

	"sentimentflow/internal/resolution"
)

// EventType discriminates the live stream event variants.
type EventType string

const (
	EventBucketUpdate  EventType = "bucket_update"
	EventPartialBucket EventType = "partial_bucket"
	EventHeartbeat     EventType = "heartbeat"
)

// Event is the tagged union sent to streaming subscribers. Ticker,
// Resolution and the payload fields are only populated for bucket variants.
type Event struct {
	Type        EventType             `json:"type"`
	Ticker      string                `json:"ticker,omitempty"`
	Resolution  resolution.Resolution `json:"resolution"`
	BucketStart time.Time             `json:"bucket_start"`
	Value       float64               `json:"value"`
	Progress    float64               `json:"progress,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Subscription captures what a single streaming connection wants to
// receive. Empty sets mean "everything". It is owned by the transport
// layer and read, never mutated, by the stream filter.
type Subscription struct {
	ConnectionID string
	Resolutions  map[resolution.Resolution]struct{}
	Tickers      map[string]struct{}
}

// NewSubscription builds a subscription from raw resolution names and
// tickers. Unknown resolution names are rejected. Ticker values are kept
// as given: matching downstream is case-sensitive.
func NewSubscription(connectionID string, resolutions, tickers []string) (Subscription, error) {
	sub := Subscription{ConnectionID: connectionID}
	if len(resolutions) > 0 {
		sub.Resolutions = make(map[resolution.Resolution]struct{}, len(resolutions))
		for _, name := range resolutions {
			r, err := resolution.Parse(name)
			if err != nil {
				return Subscription{}, err
			}
			sub.Resolutions[r] = struct{}{}
		}
	}
	if len(tickers) > 0 {
		sub.Tickers = make(map[string]struct{}, len(tickers))
		for _, t := range tickers {
			sub.Tickers[t] = struct{}{}
		}
	}
	return sub, nil
}
