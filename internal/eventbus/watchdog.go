package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Watchdog declares a connection lost after a run of consecutive transport
// failures. Any success resets the run.
type Watchdog struct {
	max      int32
	failures atomic.Int32
	lostOnce sync.Once
	lost     chan struct{}
}

func NewWatchdog(maxFailures int) *Watchdog {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Watchdog{max: int32(maxFailures), lost: make(chan struct{})}
}

// Observe records the outcome of one ping, fetch or publish.
func (w *Watchdog) Observe(err error) {
	if err == nil {
		w.failures.Store(0)
		return
	}
	if w.failures.Add(1) >= w.max {
		w.lostOnce.Do(func() { close(w.lost) })
	}
}

// Lost is closed once the failure budget is spent.
func (w *Watchdog) Lost() <-chan struct{} {
	return w.lost
}

// Watch pings every interval until ctx is done or the connection is lost.
// Each ping gets the interval as its deadline.
func (w *Watchdog) Watch(ctx context.Context, interval time.Duration, ping func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.lost:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := ping(pingCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}
			w.Observe(err)
			if err != nil && w.failures.Load() >= w.max {
				return
			}
		}
	}
}
