// Package source contains the adapters that turn a hardware link or a
// simulator into a stream of decoded readings.
package source

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"mine-monitor/internal/models"
)

// DefaultJoinTimeout bounds how long StopReceiving waits for a receive loop
const DefaultJoinTimeout = 2 * time.Second

var (
	// ErrConnection means the transport is unavailable or was lost
	ErrConnection = errors.New("source connection error")

	// ErrDecode marks a malformed frame; such frames are dropped
	ErrDecode = errors.New("frame decode error")

	ErrNotConnected = errors.New("source not connected")
)

// Source produces readings through a push callback
type Source interface {
	Name() string
	Connect(ctx context.Context) error
	StartReceiving(onReading func(models.Reading)) error
	StopReceiving()
	Disconnect() error
	IsConnected() bool
}

// Deliver hands r to the callback and recovers any panic it raises, so a
// faulty callback can never break the receive loop.
func Deliver(name string, onReading func(models.Reading), r models.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("%s: reading callback panicked: %v", name, rec)
		}
	}()

	onReading(r)
}

// Loop runs one receive goroutine at a time and stops it with a bounded join
type Loop struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	JoinTimeout time.Duration
}

// Start launches fn unless a loop is already running. fn must return once
// stop is closed.
func (l *Loop) Start(fn func(stop <-chan struct{})) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return false
	}

	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	stop, done := l.stop, l.done

	go func() {
		defer close(done)
		defer l.markStopped(done)

		fn(stop)
	}()

	return true
}

// markStopped clears the running flag when the loop exits on its own
func (l *Loop) markStopped(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done == done {
		l.running = false
	}
}

// Stop signals the loop and waits at most JoinTimeout for it to exit.
// It reports whether the loop exited in time.
func (l *Loop) Stop() bool {
	l.mu.Lock()

	if l.stop == nil {
		l.mu.Unlock()
		return true
	}

	select {
	case <-l.stop:
	default:
		close(l.stop)
	}

	// running stays set until the goroutine exits so a timed-out loop
	// cannot be started twice
	done := l.done
	l.mu.Unlock()

	timeout := l.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Running reports whether a loop is active
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}
