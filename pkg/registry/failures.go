package registry

import (
	"sync"
	"time"
)

// failureLog keeps the times of the most recent consecutive failures.
type failureLog struct {
	mu    sync.Mutex
	limit int
	times []time.Time
}

func newFailureLog(limit int) *failureLog {
	if limit < 1 {
		limit = 1
	}
	return &failureLog{limit: limit, times: make([]time.Time, 0, limit)}
}

func (l *failureLog) add(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.times) == l.limit {
		copy(l.times, l.times[1:])
		l.times = l.times[:l.limit-1]
	}
	l.times = append(l.times, at)
}

func (l *failureLog) reset() {
	l.mu.Lock()
	l.times = l.times[:0]
	l.mu.Unlock()
}

// within reports whether the log is full and its oldest entry is no older
// than window at now.
func (l *failureLog) within(window time.Duration, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.times) < l.limit {
		return false
	}
	return now.Sub(l.times[0]) <= window
}
