package analysis

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxCalls   = 20
	DefaultTimeWindow = 60 * time.Second
)

// Limiter admits at most maxCalls within any rolling window. It keeps the
// admitted call times and prunes those whose age reaches the window.
type Limiter struct {
	maxCalls int
	window   time.Duration
	clock    func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

// NewLimiter builds a sliding-window limiter. A nil clock means time.Now.
func NewLimiter(maxCalls int, window time.Duration, clock func() time.Time) (*Limiter, error) {
	if maxCalls <= 0 || window <= 0 {
		return nil, fmt.Errorf("%w: max calls %d, window %v", ErrInvalidLimiter, maxCalls, window)
	}

	if clock == nil {
		clock = time.Now
	}

	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		clock:    clock,
		calls:    make([]time.Time, 0, maxCalls),
	}, nil
}

// Admit records a call and returns true when the window has room
func (l *Limiter) Admit() bool {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	if len(l.calls) >= l.maxCalls {
		return false
	}

	l.calls = append(l.calls, now)

	return true
}

// Remaining is the number of calls the window would still admit
func (l *Limiter) Remaining() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	return l.maxCalls - len(l.calls)
}

func (l *Limiter) pruneLocked(now time.Time) {
	i := 0
	for i < len(l.calls) && now.Sub(l.calls[i]) >= l.window {
		i++
	}

	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
