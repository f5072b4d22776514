package stream

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer rate-limits repeated emissions per key. The first call for a
// key always passes; further calls pass only once the interval has elapsed
// since the last passing call. Keys are independent.
//
// Each key is backed by its own rate.Limiter with burst 1, which makes the
// check-and-reset atomic: a failed Allow consumes nothing, so two
// concurrent callers can never both observe "should emit".
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ShouldEmit reports whether an emission for key is allowed now.
func (d *Debouncer) ShouldEmit(key string) bool {
	if d.interval <= 0 {
		return true
	}

	d.mu.Lock()
	lim, ok := d.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[key] = lim
	}
	d.mu.Unlock()

	return lim.Allow()
}

// Reset clears debounce state for the given keys, or for all keys when
// none are given.
func (d *Debouncer) Reset(keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(keys) == 0 {
		d.limiters = make(map[string]*rate.Limiter)
		return
	}
	for _, key := range keys {
		delete(d.limiters, key)
	}
}
