package source

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"mine-monitor/internal/models"
)

// SimulatedConfig controls the synthetic generator
type SimulatedConfig struct {
	Interval  time.Duration
	Jitter    time.Duration    // up to this much is added to each interval
	Seed      int64            // 0 picks a time-based seed
	SpikeProb float64          // probability that a sample carries a spike
	Clock     func() time.Time // stamps readings; defaults to time.Now
}

// walk is a bounded random walk for one parameter
type walk struct {
	value, center, step, low, high, spike float64
}

func (w *walk) next(rng *rand.Rand, spike bool) float64 {
	// drift back toward the center, then add noise
	w.value += (w.center-w.value)*0.1 + (rng.Float64()*2-1)*w.step
	w.value = math.Max(w.low, math.Min(w.high, w.value))

	if spike {
		return w.value + w.spike*(0.5+rng.Float64()*0.5)
	}

	return w.value
}

// Simulated emits synthetic readings without any physical resource
type Simulated struct {
	cfg SimulatedConfig

	mu        sync.Mutex
	rng       *rand.Rand
	walks     []*walk
	connected bool

	loop Loop
}

// NewSimulated creates a generator. Readings hover around the normal ranges
// with occasional spikes into warning or danger.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		walks: []*walk{
			{value: 30, center: 30, step: 2, low: 0, high: 100, spike: 55},    // pressure
			{value: 25, center: 25, step: 0.8, low: -10, high: 70, spike: 30}, // temperature
			{value: 8, center: 8, step: 1.5, low: 0, high: 60, spike: 35},     // vibration
		},
	}
}

// Name identifies the source in logs
func (s *Simulated) Name() string {
	return "Simulated"
}

// Connect always succeeds
func (s *Simulated) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	log.Printf("Simulated: connected (interval %v, jitter %v)", s.cfg.Interval, s.cfg.Jitter)

	return nil
}

// Next produces one reading; exported for deterministic tests and tools
func (s *Simulated) Next() models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	spike := s.cfg.SpikeProb > 0 && s.rng.Float64() < s.cfg.SpikeProb

	// spikes hit one parameter at a time
	target := -1
	if spike {
		target = s.rng.Intn(len(s.walks))
	}

	values := make([]float64, len(s.walks))
	for i, w := range s.walks {
		values[i] = w.next(s.rng, i == target)
	}

	return models.NewReading(values[0], values[1], values[2], s.cfg.Clock())
}

func (s *Simulated) delay() time.Duration {
	if s.cfg.Jitter <= 0 {
		return s.cfg.Interval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.Interval + time.Duration(s.rng.Int63n(int64(s.cfg.Jitter)))
}

// StartReceiving begins emitting readings on the configured interval
func (s *Simulated) StartReceiving(onReading func(models.Reading)) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	s.loop.Start(func(stop <-chan struct{}) {
		timer := time.NewTimer(s.delay())
		defer timer.Stop()

		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				Deliver(s.Name(), onReading, s.Next())
				timer.Reset(s.delay())
			}
		}
	})

	return nil
}

// StopReceiving stops the generator loop
func (s *Simulated) StopReceiving() {
	if !s.loop.Stop() {
		log.Printf("Simulated: receive loop did not stop within %v", DefaultJoinTimeout)
	}
}

// Disconnect stops receiving and marks the source disconnected
func (s *Simulated) Disconnect() error {
	s.StopReceiving()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return nil
}

// IsConnected reports the connection flag
func (s *Simulated) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}
