package resolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidResolution is returned when a resolution string does not
	// name one of the supported granularities.
	ErrInvalidResolution = errors.New("invalid resolution")
	// ErrFutureBucket is returned when bucket progress is requested for a
	// bucket that starts after the reference time. That indicates a caller
	// or clock error, not a normal condition.
	ErrFutureBucket = errors.New("bucket starts in the future")
)

// Resolution identifies one of the fixed aggregation granularities.
type Resolution int

const (
	Minute1 Resolution = iota
	Minute5
	Minute10
	Hour1
	Hour3
	Hour6
	Hour12
	Hour24
)

type spec struct {
	name     string
	duration time.Duration
	ttl      time.Duration
}

// Retention shortens with granularity: fine buckets expire within hours,
// daily buckets are kept for a month.
var table = [...]spec{
	Minute1:  {"1m", time.Minute, 90 * time.Minute},
	Minute5:  {"5m", 5 * time.Minute, 6 * time.Hour},
	Minute10: {"10m", 10 * time.Minute, 12 * time.Hour},
	Hour1:    {"1h", time.Hour, 48 * time.Hour},
	Hour3:    {"3h", 3 * time.Hour, 4 * 24 * time.Hour},
	Hour6:    {"6h", 6 * time.Hour, 7 * 24 * time.Hour},
	Hour12:   {"12h", 12 * time.Hour, 14 * 24 * time.Hour},
	Hour24:   {"24h", 24 * time.Hour, 30 * 24 * time.Hour},
}

var byName = func() map[string]Resolution {
	m := make(map[string]Resolution, len(table))
	for i, s := range table {
		m[s.name] = Resolution(i)
	}
	return m
}()

// All returns every supported resolution in ascending duration order.
func All() []Resolution {
	out := make([]Resolution, len(table))
	for i := range table {
		out[i] = Resolution(i)
	}
	return out
}

// Parse converts a resolution name such as "5m" or "24h".
func Parse(s string) (Resolution, error) {
	r, ok := byName[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return r, nil
}

func (r Resolution) valid() bool {
	return r >= 0 && int(r) < len(table)
}

func (r Resolution) String() string {
	if !r.valid() {
		return fmt.Sprintf("resolution(%d)", int(r))
	}
	return table[r].name
}

// Duration returns the bucket width.
func (r Resolution) Duration() time.Duration {
	return table[r].duration
}

// TTL returns the retention period counted from the bucket start.
func (r Resolution) TTL() time.Duration {
	return table[r].ttl
}

// BucketCapacity returns how many complete buckets fit in one retention
// window. Used to size default query limits.
func (r Resolution) BucketCapacity() int {
	return int(table[r].ttl / table[r].duration)
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("%w: ordinal %d", ErrInvalidResolution, int(r))
	}
	return json.Marshal(table[r].name)
}

func (r *Resolution) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// FloorToBucket aligns a timestamp to the start of the bucket containing it.
// Alignment is integer division on epoch seconds, so the result is always on
// a UTC boundary of the resolution's duration.
func FloorToBucket(t time.Time, r Resolution) time.Time {
	step := int64(table[r].duration / time.Second)
	aligned := (t.Unix() / step) * step
	return time.Unix(aligned, 0).UTC()
}

// BucketProgress reports how far the wall clock has advanced through the
// bucket starting at bucketStart, as a percentage clamped to [0, 100].
func BucketProgress(bucketStart time.Time, r Resolution, now time.Time) (float64, error) {
	elapsed := now.Sub(bucketStart)
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: start=%s now=%s", ErrFutureBucket,
			bucketStart.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	progress := 100 * float64(elapsed) / float64(table[r].duration)
	if progress > 100 {
		progress = 100
	}
	return progress, nil
}
