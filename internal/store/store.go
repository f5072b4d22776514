// Package store defines the key-value storage port used by the fanout
// writer and query service, plus its DynamoDB and in-memory adapters. Any
// backend offering conditional writes, atomic increments and atomic set
// adds satisfies the interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentimentflow/internal/resolution"
)

var (
	// ErrConditionFailed reports that a conditional operation did not
	// apply because its condition no longer held. Under concurrent
	// writers this is expected contention, not a failure.
	ErrConditionFailed = errors.New("condition failed")
	// ErrNotFound reports a missing item.
	ErrNotFound = errors.New("item not found")
)

// Item is a backend-agnostic record: numeric fields as float64, strings as
// string, string sets as []string.
type Item map[string]interface{}

// Float reads a numeric field, tolerating the integer types some backends
// round-trip through.
func (it Item) Float(field string) float64 {
	switch v := it[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Int reads a numeric field as an integer count.
func (it Item) Int(field string) int64 {
	return int64(it.Float(field))
}

// String reads a string field.
func (it Item) String(field string) string {
	s, _ := it[field].(string)
	return s
}

// StringSet reads a string-set field.
func (it Item) StringSet(field string) []string {
	switch v := it[field].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Condition restricts when a write applies.
type Condition int

const (
	// ConditionNone applies unconditionally.
	ConditionNone Condition = iota
	// ConditionNotExists applies only when the target (item for puts,
	// field for field sets) is absent.
	ConditionNotExists
	// ConditionGreaterThanCurrent applies only when the new value exceeds
	// the current field value.
	ConditionGreaterThanCurrent
	// ConditionLessThanCurrent applies only when the new value is below
	// the current field value.
	ConditionLessThanCurrent
)

// KeyRange bounds a range query over sort keys. Start is inclusive, End is
// exclusive; empty strings leave that side unbounded.
type KeyRange struct {
	Start string
	End   string
}

// Page is one page of a range query, ascending by sort key.
type Page struct {
	Items []Item
	// LastEvaluatedKey is the sort key to resume from when the backend
	// reports more data; empty when the range was exhausted.
	LastEvaluatedKey string
}

// Store is the port consumed by the fanout writer and query service. All
// mutating operations must be atomic at the backend so concurrent writers,
// including writers in other processes, can interleave arbitrarily.
type Store interface {
	GetItem(ctx context.Context, pk, sk string) (Item, error)
	ConditionalPut(ctx context.Context, pk, sk string, fields Item, cond Condition) error
	ConditionalFieldSet(ctx context.Context, pk, sk, field string, value float64, cond Condition) error
	AtomicIncrement(ctx context.Context, pk, sk, field string, delta float64) error
	AddToSet(ctx context.Context, pk, sk, field string, members ...string) error
	RangeQuery(ctx context.Context, pk string, rng KeyRange, limit int, exclusiveStartKey string) (Page, error)
}

// Field names shared by both adapters and the bucket mapping layer.
const (
	FieldPK        = "pk"
	FieldSK        = "sk"
	FieldOpen      = "open"
	FieldHigh      = "high"
	FieldLow       = "low"
	FieldClose     = "close"
	FieldCount     = "count"
	FieldSum       = "sum"
	FieldSources   = "sources"
	FieldExpiresAt = "expires_at"

	// LabelPrefix flattens per-label counters into top-level numeric
	// fields so increments stay atomic on the backend.
	LabelPrefix = "label#"
)

// PartitionKey builds the "{TICKER}#{resolution}" partition key.
func PartitionKey(ticker string, r resolution.Resolution) string {
	return fmt.Sprintf("%s#%s", ticker, r)
}

// SortKey renders a bucket start as the RFC3339 UTC sort key.
func SortKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseSortKey reverses SortKey.
func ParseSortKey(sk string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, sk)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sort key %q: %w", sk, err)
	}
	return t.UTC(), nil
}
