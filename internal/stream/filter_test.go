package stream

import (
	"testing"
	"time"

	"sentimentflow/internal/models"
	"sentimentflow/internal/resolution"
)

func bucketEvent(ticker string, r resolution.Resolution) models.Event {
	return models.Event{
		Type:       models.EventBucketUpdate,
		Ticker:     ticker,
		Resolution: r,
		Timestamp:  time.Now(),
	}
}

func mustSub(t *testing.T, resolutions, tickers []string) models.Subscription {
	t.Helper()
	sub, err := models.NewSubscription("conn", resolutions, tickers)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	return sub
}

func TestHeartbeatAlwaysPasses(t *testing.T) {
	sub := mustSub(t, []string{"1m"}, []string{"AAPL"})
	hb := models.Event{Type: models.EventHeartbeat, Timestamp: time.Now()}
	if !ShouldSendEvent(sub, hb) {
		t.Fatalf("heartbeat must pass any subscription")
	}
}

func TestEmptyFilterSetsPassEverything(t *testing.T) {
	sub := mustSub(t, nil, nil)
	if !ShouldSendEvent(sub, bucketEvent("AAPL", resolution.Minute1)) {
		t.Fatalf("wildcard subscription must pass bucket events")
	}
	partial := bucketEvent("MSFT", resolution.Hour24)
	partial.Type = models.EventPartialBucket
	if !ShouldSendEvent(sub, partial) {
		t.Fatalf("wildcard subscription must pass partial events")
	}
}

func TestBothFiltersMustMatch(t *testing.T) {
	sub := mustSub(t, []string{"1m"}, []string{"AAPL"})

	if !ShouldSendEvent(sub, bucketEvent("AAPL", resolution.Minute1)) {
		t.Fatalf("matching event must pass")
	}
	if ShouldSendEvent(sub, bucketEvent("AAPL", resolution.Minute5)) {
		t.Fatalf("non-matching resolution must block")
	}
	if ShouldSendEvent(sub, bucketEvent("MSFT", resolution.Minute1)) {
		t.Fatalf("non-matching ticker must block")
	}
}

func TestTickerMatchIsCaseSensitive(t *testing.T) {
	sub := mustSub(t, nil, []string{"aapl"})
	if ShouldSendEvent(sub, bucketEvent("AAPL", resolution.Minute1)) {
		t.Fatalf("ticker matching is case-sensitive; lowercase subscription must not match")
	}
}

func TestUnknownEventTypeBlocked(t *testing.T) {
	sub := mustSub(t, nil, nil)
	if ShouldSendEvent(sub, models.Event{Type: "mystery"}) {
		t.Fatalf("unknown event types must not be forwarded")
	}
}

func TestEventKey(t *testing.T) {
	if key := EventKey("AAPL", resolution.Minute5); key != "AAPL#5m" {
		t.Errorf("unexpected key: %s", key)
	}
}
