// Package timer wraps Go's native timer primitives behind idempotent stop
// handles. The native cadence is deliberately independent of how long
// drained invocations take: a ticker keeps firing on period even while an
// earlier invocation is still settling — the queue-and-drain layer above, not
// the timer, provides the ordering guarantee.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// FireFunc is invoked on the timer goroutine for each firing.
type FireFunc func(at time.Time)

// CronSchedule computes cron activation times. Alias for the cron library's
// Schedule so callers need not import it.
type CronSchedule = cronlib.Schedule

// Handle stops an armed timer. Stop is idempotent; stopping strictly before
// the timer fires guarantees zero firings from this timer instance.
type Handle struct {
	stopCh  chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func newHandle() *Handle {
	return &Handle{stopCh: make(chan struct{})}
}

// Stop disarms the timer. Firings already delivered are unaffected.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.stopped.Store(true)
		close(h.stopCh)
	})
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool { return h.stopped.Load() }

// ArmInterval arms a repeating timer with the given period. Firings continue
// on cadence regardless of what fire does with them.
func ArmInterval(period time.Duration, fire FireFunc) *Handle {
	h := newHandle()
	ticker := time.NewTicker(period)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case at := <-ticker.C:
				// Stop may have raced the tick delivery.
				if h.stopped.Load() {
					return
				}
				fire(at)
			}
		}
	}()

	return h
}

// ArmTimeout arms a one-shot timer with the given delay. The timer is never
// re-armed.
func ArmTimeout(delay time.Duration, fire FireFunc) *Handle {
	h := newHandle()
	t := time.NewTimer(delay)

	go func() {
		defer t.Stop()
		select {
		case <-h.stopCh:
		case at := <-t.C:
			if h.stopped.Load() {
				return
			}
			fire(at)
		}
	}()

	return h
}

// ArmCron arms a repeating timer driven by a cron schedule. Each firing
// re-arms for the schedule's next activation; a schedule with no next
// activation ends the timer.
func ArmCron(sched CronSchedule, fire FireFunc) *Handle {
	h := newHandle()

	go func() {
		for {
			next := sched.Next(time.Now())
			if next.IsZero() {
				return
			}

			t := time.NewTimer(time.Until(next))
			select {
			case <-h.stopCh:
				t.Stop()
				return
			case at := <-t.C:
				if h.stopped.Load() {
					return
				}
				fire(at)
			}
		}
	}()

	return h
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// parsedSpecs caches parsed cron expressions.
var (
	parsedMu    sync.RWMutex
	parsedSpecs = make(map[string]CronSchedule)
)

// ParseSpec parses a cron expression, caching the result per expression.
func ParseSpec(expr string) (CronSchedule, error) {
	parsedMu.RLock()
	sched, ok := parsedSpecs[expr]
	parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}

	parsedMu.Lock()
	parsedSpecs[expr] = sched
	parsedMu.Unlock()
	return sched, nil
}
