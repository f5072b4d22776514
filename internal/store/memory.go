package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex stands in for the backend's per-item atomicity; expiry is
// lazy, mirroring how DynamoDB TTL removes items in the background.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string]map[string]Item
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string]Item),
		now:        time.Now,
	}
}

func (s *MemoryStore) expired(it Item) bool {
	if exp, ok := it[FieldExpiresAt]; ok {
		if sec, ok := exp.(float64); ok && sec > 0 {
			return s.now().Unix() >= int64(sec)
		}
	}
	return false
}

func copyItem(it Item) Item {
	out := make(Item, len(it))
	for k, v := range it {
		if set, ok := v.([]string); ok {
			out[k] = append([]string(nil), set...)
			continue
		}
		out[k] = v
	}
	return out
}

func (s *MemoryStore) GetItem(ctx context.Context, pk, sk string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.partitions[pk][sk]
	if !ok || s.expired(it) {
		return nil, ErrNotFound
	}
	return copyItem(it), nil
}

func (s *MemoryStore) ConditionalPut(ctx context.Context, pk, sk string, fields Item, cond Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[pk]
	if !ok {
		part = make(map[string]Item)
		s.partitions[pk] = part
	}
	if existing, ok := part[sk]; ok && !s.expired(existing) && cond == ConditionNotExists {
		return ErrConditionFailed
	}
	it := copyItem(fields)
	it[FieldPK] = pk
	it[FieldSK] = sk
	part[sk] = it
	return nil
}

func (s *MemoryStore) item(pk, sk string) (Item, error) {
	it, ok := s.partitions[pk][sk]
	if !ok || s.expired(it) {
		return nil, ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) ConditionalFieldSet(ctx context.Context, pk, sk, field string, value float64, cond Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(pk, sk)
	if err != nil {
		return err
	}
	current, exists := it[field]
	cur, _ := current.(float64)
	switch cond {
	case ConditionNotExists:
		if exists {
			return ErrConditionFailed
		}
	case ConditionGreaterThanCurrent:
		// Comparisons against an absent field fail, matching DynamoDB
		// condition expression semantics.
		if !exists || value <= cur {
			return ErrConditionFailed
		}
	case ConditionLessThanCurrent:
		if !exists || value >= cur {
			return ErrConditionFailed
		}
	}
	it[field] = value
	return nil
}

func (s *MemoryStore) AtomicIncrement(ctx context.Context, pk, sk, field string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(pk, sk)
	if err != nil {
		return err
	}
	it[field] = it.Float(field) + delta
	return nil
}

func (s *MemoryStore) AddToSet(ctx context.Context, pk, sk, field string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(pk, sk)
	if err != nil {
		return err
	}
	set := it.StringSet(field)
	for _, m := range members {
		found := false
		for _, existing := range set {
			if existing == m {
				found = true
				break
			}
		}
		if !found {
			set = append(set, m)
		}
	}
	sort.Strings(set)
	it[field] = set
	return nil
}

func (s *MemoryStore) RangeQuery(ctx context.Context, pk string, rng KeyRange, limit int, exclusiveStartKey string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.partitions[pk]
	keys := make([]string, 0, len(part))
	for sk, it := range part {
		if s.expired(it) {
			continue
		}
		if rng.Start != "" && sk < rng.Start {
			continue
		}
		if rng.End != "" && sk >= rng.End {
			continue
		}
		if exclusiveStartKey != "" && sk <= exclusiveStartKey {
			continue
		}
		keys = append(keys, sk)
	}
	sort.Strings(keys)

	page := Page{}
	for i, sk := range keys {
		if limit > 0 && i == limit {
			page.LastEvaluatedKey = keys[i-1]
			break
		}
		page.Items = append(page.Items, copyItem(part[sk]))
	}
	return page, nil
}
