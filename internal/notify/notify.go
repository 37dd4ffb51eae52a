// Package notify fans alarms and analysis results out to external observers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mine-monitor/internal/models"
)

const (
	DefaultQueueSize = 256
	DefaultTimeout   = 5 * time.Second
)

// Notifier delivers events to one external observer
type Notifier interface {
	Name() string
	NotifyAlarm(ctx context.Context, ev models.AlarmEvent) error
	NotifyAnalysis(ctx context.Context, res models.AnalysisResult) error
}

// Config sizes the dispatcher
type Config struct {
	QueueSize int
	Timeout   time.Duration // per notifier call
}

// Stats counts dispatcher outcomes across all notifiers
type Stats struct {
	Queued    uint64 `json:"queued"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

type event struct {
	alarm    *models.AlarmEvent
	analysis *models.AnalysisResult
}

// Dispatcher queues events and delivers them to every notifier from one
// worker. Publishing never blocks; a full queue drops the event.
type Dispatcher struct {
	timeout time.Duration
	queue   chan event
	stop    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	notifiers []Notifier
	started   bool
	stopped   bool

	queued    atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher builds a dispatcher over the given notifiers
func NewDispatcher(cfg Config, notifiers ...Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Dispatcher{
		timeout:   cfg.Timeout,
		queue:     make(chan event, cfg.QueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		notifiers: append([]Notifier(nil), notifiers...),
	}
}

// Add registers another notifier
func (d *Dispatcher) Add(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notifiers = append(d.notifiers, n)
}

// Notifiers lists the registered notifier names
func (d *Dispatcher) Notifiers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}

	return names
}

// PublishAlarm queues an alarm for delivery
func (d *Dispatcher) PublishAlarm(ev models.AlarmEvent) bool {
	return d.publish(event{alarm: &ev})
}

// PublishAnalysis queues an analysis result for delivery
func (d *Dispatcher) PublishAnalysis(res models.AnalysisResult) bool {
	return d.publish(event{analysis: &res})
}

func (d *Dispatcher) publish(e event) bool {
	select {
	case <-d.stop:
		d.dropped.Add(1)
		return false
	default:
	}

	select {
	case d.queue <- e:
		d.queued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}

	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				d.drain()
				return
			case e := <-d.queue:
				d.deliver(e)
			}
		}
	}()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(e event) {
	d.mu.Lock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.mu.Unlock()

	for _, n := range notifiers {
		err := d.call(n, e)

		switch {
		case err == nil:
			d.delivered.Add(1)
		case errors.Is(err, ErrSkipped):
			d.skipped.Add(1)
		default:
			d.failed.Add(1)
			log.Printf("Notify: %s failed: %v", n.Name(), err)
		}
	}
}

func (d *Dispatcher) call(n Notifier, e event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("notifier %s panicked: %v", n.Name(), rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if e.alarm != nil {
		return n.NotifyAlarm(ctx, *e.alarm)
	}

	return n.NotifyAnalysis(ctx, *e.analysis)
}

// Stop delivers what is already queued and waits for the worker until ctx ends
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}

	d.stopped = true
	started := d.started
	d.mu.Unlock()

	close(d.stop)

	if !started {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification worker did not stop: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    d.queued.Load(),
		Dropped:   d.dropped.Load(),
		Delivered: d.delivered.Load(),
		Skipped:   d.skipped.Load(),
		Failed:    d.failed.Load(),
	}
}
