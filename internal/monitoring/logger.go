package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle rate-limits a repeating log line. The first call logs
// immediately; later calls within the interval are counted and the count is
// reported with the next line that gets through.
type Throttle struct {
	mu         sync.Mutex
	interval   time.Duration
	last       time.Time
	suppressed int
	now        func() time.Time
}

// NewThrottle returns a Throttle that logs at most once per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Logf logs through the package logger unless throttled.
func (t *Throttle) Logf(format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		t.mu.Unlock()
		return
	}
	suppressed := t.suppressed
	t.suppressed = 0
	t.last = now
	t.mu.Unlock()

	if suppressed > 0 {
		Logf(format+" (%d similar suppressed)", append(v, suppressed)...)
		return
	}
	Logf(format, v...)
}
