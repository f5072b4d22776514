package stream

import (
	"fmt"

	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
)

// EventKey builds the debounce key for a (ticker, resolution) pair.
func EventKey(ticker string, r resolution.Resolution) string {
	return fmt.Sprintf("%s#%s", ticker, r)
}

// ShouldSendEvent decides whether a live event is forwarded to the
// connection holding the subscription. Heartbeats always pass; bucket
// variants pass only when both the resolution and the ticker match, where
// an empty set matches everything.
//
// Ticker matching is case-sensitive even though ingestion uppercases
// tickers before keying buckets; lower-case subscriptions therefore match
// nothing. Preserved as documented behaviour.
func ShouldSendEvent(sub models.Subscription, ev models.Event) bool {
	switch ev.Type {
	case models.EventHeartbeat:
		return true
	case models.EventBucketUpdate, models.EventPartialBucket:
		if len(sub.Resolutions) > 0 {
			if _, ok := sub.Resolutions[ev.Resolution]; !ok {
				return false
			}
		}
		if len(sub.Tickers) > 0 {
			if _, ok := sub.Tickers[ev.Ticker]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}
