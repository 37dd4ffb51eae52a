package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mine-monitor/internal/models"
)

const (
	DefaultQueueSize = 1024
	DefaultOpTimeout = 5 * time.Second
)

// WriterConfig sizes the write-behind queue
type WriterConfig struct {
	QueueSize int
	OpTimeout time.Duration
}

// WriterStats counts queue outcomes
type WriterStats struct {
	Enqueued uint64 `json:"enqueued"`
	Written  uint64 `json:"written"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Queued   int    `json:"queued"`
}

type job struct {
	kind  string
	apply func(ctx context.Context, s Store) error
}

// Writer is the non-blocking persistence port. Saves are queued and applied
// by one worker; a full queue drops the save instead of blocking the caller.
type Writer struct {
	store   Store
	timeout time.Duration
	queue   chan job
	abort   chan struct{}
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	enqueued atomic.Uint64
	written  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewWriter starts a writer over store
func NewWriter(store Store, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}

	w := &Writer{
		store:   store,
		timeout: cfg.OpTimeout,
		queue:   make(chan job, cfg.QueueSize),
		abort:   make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.run()

	return w
}

// SaveReading queues a reading
func (w *Writer) SaveReading(r models.Reading) bool {
	return w.enqueue(job{
		kind: "reading",
		apply: func(ctx context.Context, s Store) error {
			return s.SaveReading(ctx, r)
		},
	})
}

// SaveAlarm queues an alarm. The stored ID is not reported back.
func (w *Writer) SaveAlarm(ev models.AlarmEvent) bool {
	return w.enqueue(job{
		kind: "alarm",
		apply: func(ctx context.Context, s Store) error {
			return s.SaveAlarm(ctx, &ev)
		},
	})
}

// AcknowledgeAlarm queues an acknowledgement for ev. It runs after any save
// already queued for that alarm. Stores without AlarmAcknowledger ignore it.
func (w *Writer) AcknowledgeAlarm(ev models.AlarmEvent) bool {
	return w.enqueue(job{
		kind: "acknowledgement",
		apply: func(ctx context.Context, s Store) error {
			ack, ok := s.(AlarmAcknowledger)
			if !ok {
				return nil
			}

			return ack.AcknowledgeAlarm(ctx, ev)
		},
	})
}

// SaveAnalysis queues an analysis result
func (w *Writer) SaveAnalysis(res models.AnalysisResult) bool {
	return w.enqueue(job{
		kind: "analysis",
		apply: func(ctx context.Context, s Store) error {
			return s.SaveAnalysis(ctx, &res)
		},
	})
}

func (w *Writer) enqueue(j job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.queue <- j:
		w.enqueued.Add(1)
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *Writer) run() {
	defer close(w.done)

	for j := range w.queue {
		select {
		case <-w.abort:
			return
		default:
		}

		w.apply(j)
	}
}

func (w *Writer) apply(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%w: panic: %v", ErrPersistence, rec)
			}
		}()

		return j.apply(ctx, w.store)
	}()

	if err != nil {
		w.failed.Add(1)
		log.Printf("Writer: failed to save %s: %v", j.kind, err)

		return
	}

	w.written.Add(1)
}

// Close stops accepting saves, drains the queue until ctx ends and then
// closes the store. Whatever is still queued when ctx ends is discarded.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}

	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	var drainErr error

	select {
	case <-w.done:
	case <-ctx.Done():
		close(w.abort)
		drainErr = fmt.Errorf("%w: %d saves abandoned: %v", ErrWriterClosed, len(w.queue), ctx.Err())
		log.Printf("Writer: %v", drainErr)
	}

	if err := w.store.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return drainErr
}

// Stats returns a snapshot of the counters
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Enqueued: w.enqueued.Load(),
		Written:  w.written.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
		Queued:   len(w.queue),
	}
}
