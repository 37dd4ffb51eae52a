package analysis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mine-monitor/internal/models"
)

const (
	DefaultMinGap      = 60 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

// ResultCallback receives each completed analysis
type ResultCallback func(models.AnalysisResult)

// DispatcherConfig controls throttling of analysis requests
type DispatcherConfig struct {
	MinGap      time.Duration // minimum wall-clock gap between admitted analyses
	CallTimeout time.Duration // per-call deadline
	Limiter     *Limiter      // defaults to 20 calls per 60s
	Clock       func() time.Time
}

// DispatcherStats counts what happened to analysis requests
type DispatcherStats struct {
	Requested   uint64  `json:"requested"`
	Admitted    uint64  `json:"admitted"`
	Busy        uint64  `json:"busy"`
	Throttled   uint64  `json:"throttled"`
	RateLimited uint64  `json:"rate_limited"`
	Completed   uint64  `json:"completed"`
	Failed      uint64  `json:"failed"`
	Escalated   uint64  `json:"escalated"`
	LastRun     float64 `json:"last_run,omitempty"`
}

type request struct {
	latest  models.Reading
	history []models.Reading
}

// Dispatcher runs at most one analysis at a time on its own worker and never
// lets the capability's latency or failure reach the caller of MaybeAnalyze.
type Dispatcher struct {
	analyzer  Analyzer
	escalator Escalator
	limiter   *Limiter
	minGap    time.Duration
	timeout   time.Duration
	clock     func() time.Time

	queue chan request
	stop  chan struct{}
	done  chan struct{}

	mu           sync.Mutex
	inFlight     bool
	lastAnalysis time.Time
	started      bool
	stopped      bool
	last         *models.AnalysisResult
	stats        DispatcherStats

	cbMu      sync.RWMutex
	callbacks []ResultCallback
}

// NewDispatcher wires an analyzer to an escalator. The escalator may be nil.
func NewDispatcher(analyzer Analyzer, escalator Escalator, cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.MinGap < 0 {
		return nil, fmt.Errorf("negative analysis gap %v", cfg.MinGap)
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.Limiter == nil {
		l, err := NewLimiter(DefaultMaxCalls, DefaultTimeWindow, cfg.Clock)
		if err != nil {
			return nil, err
		}

		cfg.Limiter = l
	}

	return &Dispatcher{
		analyzer:  analyzer,
		escalator: escalator,
		limiter:   cfg.Limiter,
		minGap:    cfg.MinGap,
		timeout:   cfg.CallTimeout,
		clock:     cfg.Clock,
		queue:     make(chan request, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// AddResultCallback registers an observer of completed analyses
func (d *Dispatcher) AddResultCallback(cb ResultCallback) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()

	d.callbacks = append(d.callbacks, cb)
}

// MaybeAnalyze submits an analysis of latest against history unless one is
// already pending, the minimum gap has not elapsed, or the limiter denies it.
// It never blocks and reports whether the request was accepted.
func (d *Dispatcher) MaybeAnalyze(latest models.Reading, history []models.Reading) bool {
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Requested++

	if d.stopped {
		return false
	}

	if d.inFlight {
		d.stats.Busy++
		return false
	}

	if !d.lastAnalysis.IsZero() && now.Sub(d.lastAnalysis) < d.minGap {
		d.stats.Throttled++
		return false
	}

	if !d.limiter.Admit() {
		d.stats.RateLimited++
		log.Printf("AnalysisDispatcher: rate limit reached, dropping request")

		return false
	}

	req := request{latest: latest, history: append([]models.Reading(nil), history...)}

	select {
	case d.queue <- req:
	default:
		// the queue is empty whenever inFlight is false
		d.stats.Busy++
		return false
	}

	d.inFlight = true
	d.lastAnalysis = now
	d.stats.Admitted++

	return true
}

// Start launches the worker; it exits when ctx ends or Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}

	d.started = true
	d.mu.Unlock()

	log.Printf("AnalysisDispatcher: Starting (min gap %v, call timeout %v)", d.minGap, d.timeout)

	go func() {
		defer close(d.done)

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			case req := <-d.queue:
				d.run(req)
			}
		}
	}()
}

// run performs one analysis. The call gets its own deadline and is not tied
// to the worker's lifetime.
func (d *Dispatcher) run(req request) {
	result, err := d.call(req)
	if err != nil {
		d.finish(nil, err)
		return
	}

	d.finish(&result, nil)
}

func (d *Dispatcher) call(req request) (result models.AnalysisResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrAnalysis, rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	return d.analyzer.AnalyzeSafetyStatus(ctx, req.latest, req.history)
}

func (d *Dispatcher) finish(result *models.AnalysisResult, err error) {
	d.mu.Lock()
	d.inFlight = false
	d.stats.LastRun = models.ToTimestamp(d.clock())

	if err != nil {
		d.stats.Failed++
		d.mu.Unlock()

		log.Printf("AnalysisDispatcher: analysis dropped: %v", err)

		return
	}

	d.stats.Completed++

	res := *result
	d.last = &res
	d.mu.Unlock()

	log.Printf("AnalysisDispatcher: AI safety analysis: %s - %s", res.RiskLevel, res.Result)

	d.notify(res)

	if res.RiskLevel.AtRisk() && d.escalator != nil {
		msg := fmt.Sprintf("AI detected risk: %s", res.Result)
		if _, fired := d.escalator.TriggerSystemAlarm(msg, res.RiskLevel); fired {
			d.mu.Lock()
			d.stats.Escalated++
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) notify(res models.AnalysisResult) {
	d.cbMu.RLock()
	cbs := append([]ResultCallback(nil), d.callbacks...)
	d.cbMu.RUnlock()

	for i, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("AnalysisDispatcher: result callback %d panicked: %v", i, rec)
				}
			}()

			cb(res)
		}()
	}
}

// Stop signals the worker and waits until it exits or ctx ends. A running
// analysis is left to finish on its own deadline.
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
		log.Println("AnalysisDispatcher: Stopped")
		return nil
	case <-ctx.Done():
		log.Printf("AnalysisDispatcher: worker still busy at shutdown, not waiting: %v", ctx.Err())
		return fmt.Errorf("%w: %v", ErrDispatcherStopped, ctx.Err())
	}
}

// LastResult returns the most recent completed analysis
func (d *Dispatcher) LastResult() (models.AnalysisResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last == nil {
		return models.AnalysisResult{}, false
	}

	return *d.last, true
}

// Stats returns a copy of the counters
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stats
}

// RemainingCalls exposes the limiter headroom
func (d *Dispatcher) RemainingCalls() int {
	return d.limiter.Remaining()
}
