package aggregator

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"mine-monitor/internal/models"
)

// Consumer is a synchronous subscriber called on the ingestion path. It must
// return quickly; errors and panics are logged and counted, never propagated.
type Consumer func(models.Reading) error

// Handle identifies a registration. The bus does not own the consumer behind it.
type Handle struct {
	name string
}

// Name returns the subscriber name
func (h Handle) Name() string {
	return h.name
}

// SubscriberStats tracks delivery for one subscriber
type SubscriberStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// BusStats is a snapshot of all delivery counters
type BusStats struct {
	TotalPublished uint64                     `json:"total_published"`
	Subscribers    map[string]SubscriberStats `json:"subscribers"`
}

type subscriber struct {
	name     string
	consumer Consumer
	ch       chan<- models.Reading

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Bus fans each reading out to every subscriber. Channel subscribers get a
// non-blocking send first and lose the reading when full. Sync consumers then
// run in registration order inside Publish, each behind its own recover boundary.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool

	published atomic.Uint64
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a synchronous consumer
func (b *Bus) Subscribe(name string, c Consumer) (Handle, error) {
	if c == nil {
		return Handle{}, ErrNilConsumer
	}

	return b.add(&subscriber{name: name, consumer: c})
}

// SubscribeChan registers a channel subscriber. The caller owns the channel
// and must Unsubscribe before closing it.
func (b *Bus) SubscribeChan(name string, ch chan<- models.Reading) (Handle, error) {
	if ch == nil {
		return Handle{}, ErrNilConsumer
	}

	return b.add(&subscriber{name: name, ch: ch})
}

func (b *Bus) add(s *subscriber) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Handle{}, ErrBusClosed
	}

	for _, existing := range b.subs {
		if existing.name == s.name {
			return Handle{}, fmt.Errorf("%w: %s", ErrSubscriberExists, s.name)
		}
	}

	b.subs = append(b.subs, s)

	return Handle{name: s.name}, nil
}

// Unsubscribe removes a registration
func (b *Bus) Unsubscribe(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	for i, s := range b.subs {
		if s.name == h.name {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrSubscriberNotFound, h.name)
}

// Publish delivers r to every subscriber. It never blocks on a channel
// subscriber and never fails because a consumer did. Publishing on a closed
// bus is a no-op.
func (b *Bus) Publish(r models.Reading) {
	b.mu.RLock()

	if b.closed {
		b.mu.RUnlock()
		return
	}

	b.published.Add(1)

	var direct []*subscriber

	for _, s := range b.subs {
		if s.ch == nil {
			direct = append(direct, s)
			continue
		}

		// sent under the read lock so Unsubscribe-then-close cannot race the send
		select {
		case s.ch <- r:
			s.delivered.Add(1)
		default:
			s.dropped.Add(1)
		}
	}

	b.mu.RUnlock()

	for _, s := range direct {
		b.deliver(s, r)
	}
}

func (b *Bus) deliver(s *subscriber, r models.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			s.failed.Add(1)
			log.Printf("Bus: consumer %s panicked: %v", s.name, rec)
		}
	}()

	if err := s.consumer(r); err != nil {
		s.failed.Add(1)
		log.Printf("Bus: consumer %s failed: %v", s.name, err)

		return
	}

	s.delivered.Add(1)
}

// Stats returns the counters for one subscriber
func (b *Bus) Stats(name string) (SubscriberStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.name == name {
			return s.snapshot(), true
		}
	}

	return SubscriberStats{}, false
}

// AllStats returns a snapshot of every subscriber's counters
func (b *Bus) AllStats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := BusStats{
		TotalPublished: b.published.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subs)),
	}

	for _, s := range b.subs {
		out.Subscribers[s.name] = s.snapshot()
	}

	return out
}

// Close stops delivery. Subscriber channels are left open for their owners.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

func (s *subscriber) snapshot() SubscriberStats {
	return SubscriberStats{
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
