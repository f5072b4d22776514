package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Per-component warn/error tallies, reported periodically so that a
// "report" level deployment can run with per-event logging disabled.
var (
	warnCounts  sync.Map // map[string]*int64
	errorCounts sync.Map // map[string]*int64
)

func recordWarn(component string) {
	counter, _ := warnCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
}

func recordError(component string) {
	counter, _ := errorCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
}

func snapshotCounts(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(k, v interface{}) bool {
		if n := atomic.SwapInt64(v.(*int64), 0); n > 0 {
			out[k.(string)] = n
		}
		return true
	})
	return out
}

// StartReport emits a summary of warnings and errors per component at the
// given interval until the context is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				warns := snapshotCounts(&warnCounts)
				errs := snapshotCounts(&errorCounts)
				if len(warns) == 0 && len(errs) == 0 {
					continue
				}
				log.WithComponent("report").WithFields(Fields{
					"warnings": warns,
					"errors":   errs,
				}).Info("periodic log report")
			}
		}
	}()
}
