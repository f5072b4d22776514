package resolution

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	r, err := Parse("5m")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r != Minute5 {
		t.Errorf("unexpected resolution: %v", r)
	}

	if _, err := Parse("2m"); err == nil {
		t.Fatalf("expected error for unsupported resolution")
	}
}

func TestFloorToBucketProperties(t *testing.T) {
	ts := time.Date(2024, 1, 2, 10, 35, 47, 0, time.UTC)
	for _, r := range All() {
		floored := FloorToBucket(ts, r)
		if floored.After(ts) {
			t.Errorf("%s: floored time %v after input %v", r, floored, ts)
		}
		step := int64(r.Duration() / time.Second)
		if floored.Unix()%step != 0 {
			t.Errorf("%s: %v not aligned to %ds", r, floored, step)
		}
	}
}

func TestFloorToBucketScenario(t *testing.T) {
	ts := time.Date(2024, 1, 2, 10, 35, 47, 0, time.UTC)
	expected := map[Resolution]time.Time{
		Minute1:  time.Date(2024, 1, 2, 10, 35, 0, 0, time.UTC),
		Minute5:  time.Date(2024, 1, 2, 10, 35, 0, 0, time.UTC),
		Minute10: time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC),
		Hour1:    time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Hour3:    time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Hour6:    time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
		Hour12:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Hour24:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	for r, want := range expected {
		if got := FloorToBucket(ts, r); !got.Equal(want) {
			t.Errorf("%s: got %v, want %v", r, got, want)
		}
	}
}

func TestBucketProgress(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	progress, err := BucketProgress(start, Hour1, start)
	if err != nil {
		t.Fatalf("progress at bucket start: %v", err)
	}
	if progress != 0 {
		t.Errorf("expected 0%% at bucket start, got %v", progress)
	}

	progress, err = BucketProgress(start, Hour1, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("progress at bucket end: %v", err)
	}
	if progress != 100 {
		t.Errorf("expected 100%% at bucket end, got %v", progress)
	}

	progress, err = BucketProgress(start, Hour1, start.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("progress past bucket end: %v", err)
	}
	if progress != 100 {
		t.Errorf("expected clamp to 100%%, got %v", progress)
	}

	if _, err := BucketProgress(start, Hour1, start.Add(-time.Second)); err == nil {
		t.Fatalf("expected error when now precedes bucket start")
	}
}

func TestTTLExceedsDuration(t *testing.T) {
	for _, r := range All() {
		if r.TTL() < r.Duration() {
			t.Errorf("%s: ttl %v shorter than duration %v", r, r.TTL(), r.Duration())
		}
		if r.BucketCapacity() < 6 || r.BucketCapacity() > 90 {
			t.Errorf("%s: retention covers %d buckets, outside expected band", r, r.BucketCapacity())
		}
	}
}

func TestResolutionJSON(t *testing.T) {
	data, err := Minute10.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"10m"` {
		t.Errorf("unexpected json: %s", data)
	}

	var r Resolution
	if err := r.UnmarshalJSON([]byte(`"3h"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r != Hour3 {
		t.Errorf("unexpected resolution: %v", r)
	}
}
