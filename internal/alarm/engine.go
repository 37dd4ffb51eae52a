package alarm

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"mine-monitor/internal/models"
)

const (
	defaultMinInterval     = 60 * time.Second
	defaultMaxCountPerHour = 10
	defaultHistorySize     = 1000
)

// Callback receives fired or resolved alarm events. It runs on the caller's
// goroutine and must not block.
type Callback func(models.AlarmEvent)

// Config controls suppression and history retention
type Config struct {
	MinInterval     time.Duration
	MaxCountPerHour int
	HistorySize     int
	Clock           func() time.Time // used for system alarms; defaults to time.Now
}

// DefaultConfig returns the factory suppression policy
func DefaultConfig() Config {
	return Config{
		MinInterval:     defaultMinInterval,
		MaxCountPerHour: defaultMaxCountPerHour,
		HistorySize:     defaultHistorySize,
	}
}

// Stats summarizes engine activity
type Stats struct {
	TotalAlarms   uint64  `json:"total_alarms"`
	Suppressed    uint64  `json:"suppressed"`
	Resolved      uint64  `json:"resolved"`
	LastAlarmTime float64 `json:"last_alarm_time,omitempty"`
	ActiveCount   int     `json:"active_count"`
}

// Engine evaluates readings against rules and tracks active alarms.
// All state sits behind mu; callbacks are invoked after mu is released.
type Engine struct {
	rules       map[models.Parameter]Rule
	minInterval float64
	maxPerHour  int
	historySize int
	clock       func() time.Time

	mu          sync.Mutex
	active      map[models.Parameter]models.AlarmEvent
	suppression map[models.Parameter]*suppressionLog
	history     []models.AlarmEvent
	seq         uint64
	stats       Stats

	cbMu             sync.RWMutex
	callbacks        []Callback
	resolveCallbacks []Callback
}

// NewEngine validates the rules and builds an engine. Every monitored
// parameter needs exactly one rule.
func NewEngine(rules []Rule, cfg Config) (*Engine, error) {
	if cfg.MinInterval <= 0 || cfg.MaxCountPerHour <= 0 {
		return nil, fmt.Errorf("%w: min interval %v, max per hour %d",
			ErrInvalidSuppress, cfg.MinInterval, cfg.MaxCountPerHour)
	}

	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	byParam := make(map[models.Parameter]Rule, len(rules))
	for _, r := range rules {
		if _, ok := (models.Reading{}).Value(r.Parameter); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, r.Parameter)
		}

		if _, dup := byParam[r.Parameter]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Parameter)
		}

		if err := r.Validate(); err != nil {
			return nil, err
		}

		byParam[r.Parameter] = r
	}

	for _, p := range models.MonitoredParameters {
		if _, ok := byParam[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingRule, p)
		}
	}

	return &Engine{
		rules:       byParam,
		minInterval: cfg.MinInterval.Seconds(),
		maxPerHour:  cfg.MaxCountPerHour,
		historySize: cfg.HistorySize,
		clock:       cfg.Clock,
		active:      make(map[models.Parameter]models.AlarmEvent),
		suppression: make(map[models.Parameter]*suppressionLog),
	}, nil
}

// AddCallback registers a consumer of fired alarms
func (e *Engine) AddCallback(cb Callback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()

	e.callbacks = append(e.callbacks, cb)
}

// AddResolveCallback registers a consumer of resolutions (parameter back to normal)
func (e *Engine) AddResolveCallback(cb Callback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()

	e.resolveCallbacks = append(e.resolveCallbacks, cb)
}

// CheckReading evaluates every monitored parameter and returns the alarms
// that fired. It never panics; an internal fault yields no alarm.
func (e *Engine) CheckReading(r models.Reading) []models.AlarmEvent {
	var fired, resolved []models.AlarmEvent

	for _, p := range models.MonitoredParameters {
		ev, res, ok := e.checkParameter(p, r)
		if ok {
			fired = append(fired, ev)
		}

		if res != nil {
			resolved = append(resolved, *res)
		}
	}

	for _, ev := range fired {
		e.notify(e.snapshotCallbacks(false), ev)
	}

	for _, ev := range resolved {
		e.notify(e.snapshotCallbacks(true), ev)
	}

	return fired
}

// CheckConsumer adapts the engine to the fan-out consumer signature
func (e *Engine) CheckConsumer(r models.Reading) error {
	e.CheckReading(r)
	return nil
}

func (e *Engine) checkParameter(p models.Parameter, r models.Reading) (ev models.AlarmEvent, resolved *models.AlarmEvent, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("AlarmEngine: evaluation of %s panicked, no alarm produced: %v", p, rec)

			ev, resolved, ok = models.AlarmEvent{}, nil, false
		}
	}()

	rule := e.rules[p]

	value, _ := r.Value(p)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		log.Printf("AlarmEngine: skipping non-finite %s value %v", p, value)
		return models.AlarmEvent{}, nil, false
	}

	level := rule.Evaluate(value)

	e.mu.Lock()
	defer e.mu.Unlock()

	if level == models.LevelNormal {
		if prev, exists := e.active[p]; exists {
			delete(e.active, p)
			e.stats.Resolved++

			res := prev
			res.Level = models.LevelNormal
			res.Value = value
			res.Timestamp = r.Timestamp
			res.Message = fmt.Sprintf("%s back to normal: %.2f", p, value)

			return models.AlarmEvent{}, &res, false
		}

		return models.AlarmEvent{}, nil, false
	}

	if !e.admitLocked(p, r.Timestamp) {
		e.stats.Suppressed++
		return models.AlarmEvent{}, nil, false
	}

	threshold := rule.Threshold(level)
	ev = e.recordLocked(models.AlarmEvent{
		Type:      models.AlarmThreshold,
		Level:     level,
		Parameter: p,
		Value:     value,
		Threshold: threshold,
		Message:   fmt.Sprintf("%s %s: value %.2f reached threshold %.2f", p, level, value, threshold),
		Timestamp: r.Timestamp,
	})

	e.active[p] = ev

	return ev, nil, true
}

// TriggerSystemAlarm raises an alarm that did not come from rule evaluation,
// such as AI-detected risk. It is suppressed under the reserved system key.
func (e *Engine) TriggerSystemAlarm(message string, level models.AlarmLevel) (models.AlarmEvent, bool) {
	if !level.AtRisk() {
		log.Printf("AlarmEngine: ignoring system alarm with level %q", level)
		return models.AlarmEvent{}, false
	}

	ts := models.ToTimestamp(e.clock())

	e.mu.Lock()

	if !e.admitLocked(models.ParameterSystem, ts) {
		e.stats.Suppressed++
		e.mu.Unlock()

		log.Printf("AlarmEngine: system alarm suppressed: %s", message)

		return models.AlarmEvent{}, false
	}

	ev := e.recordLocked(models.AlarmEvent{
		Type:      models.AlarmSystem,
		Level:     level,
		Parameter: models.ParameterSystem,
		Message:   message,
		Timestamp: ts,
	})

	e.mu.Unlock()

	e.notify(e.snapshotCallbacks(false), ev)

	return ev, true
}

func (e *Engine) admitLocked(p models.Parameter, ts float64) bool {
	s, ok := e.suppression[p]
	if !ok {
		s = &suppressionLog{}
		e.suppression[p] = s
	}

	return s.admit(ts, e.minInterval, e.maxPerHour)
}

func (e *Engine) recordLocked(ev models.AlarmEvent) models.AlarmEvent {
	e.seq++
	ev.Seq = e.seq

	e.history = append(e.history, ev)
	if over := len(e.history) - e.historySize; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}

	e.stats.TotalAlarms++
	e.stats.LastAlarmTime = ev.Timestamp

	return ev
}

func (e *Engine) snapshotCallbacks(resolve bool) []Callback {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()

	src := e.callbacks
	if resolve {
		src = e.resolveCallbacks
	}

	return append([]Callback(nil), src...)
}

// notify runs each callback inside its own recover boundary
func (e *Engine) notify(cbs []Callback, ev models.AlarmEvent) {
	for i, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("AlarmEngine: callback %d panicked on alarm %d: %v", i, ev.Seq, rec)
				}
			}()

			cb(ev)
		}()
	}
}

// ActiveAlarms returns the unresolved alarms sorted by parameter
func (e *Engine) ActiveAlarms() []models.AlarmEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.AlarmEvent, 0, len(e.active))
	for _, ev := range e.active {
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Parameter < out[j].Parameter })

	return out
}

// History returns up to limit alarms, newest first. limit <= 0 returns all.
func (e *Engine) History(limit int) []models.AlarmEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]models.AlarmEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.history[i])
	}

	return out
}

// Acknowledge marks the alarm with the given sequence number as acknowledged
// and returns it
func (e *Engine) Acknowledge(seq uint64) (models.AlarmEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		acked models.AlarmEvent
		found bool
	)

	for i := range e.history {
		if e.history[i].Seq == seq {
			e.history[i].Acknowledged = true
			acked, found = e.history[i], true

			break
		}
	}

	for p, ev := range e.active {
		if ev.Seq == seq {
			ev.Acknowledged = true
			e.active[p] = ev
			acked, found = ev, true
		}
	}

	return acked, found
}

// LastFire returns the last fire time recorded for a parameter
func (e *Engine) LastFire(p models.Parameter) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.suppression[p]
	if !ok {
		return 0, false
	}

	return s.lastFire()
}

// Stats returns a copy of the engine counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.ActiveCount = len(e.active)

	return s
}

// Rules returns the configured rules in evaluation order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, p := range models.MonitoredParameters {
		out = append(out, e.rules[p])
	}

	return out
}

// SelfTest evaluates each rule at one synthetic value per level and reports
// any mismatch. It does not touch suppression state or fire callbacks.
func (e *Engine) SelfTest() []error {
	var errs []error

	for _, rule := range e.Rules() {
		probes := []struct {
			value float64
			want  models.AlarmLevel
		}{
			{rule.Danger.Low, models.LevelDanger},
			{rule.Danger.High + 1, models.LevelDanger},
		}

		if rule.Warning.Low < rule.Danger.Low {
			probes = append(probes, struct {
				value float64
				want  models.AlarmLevel
			}{rule.Warning.Low, models.LevelWarning})
		}

		if rule.Normal.Low < rule.Warning.Low {
			probes = append(probes, struct {
				value float64
				want  models.AlarmLevel
			}{rule.Normal.Low, models.LevelNormal})
		}

		for _, probe := range probes {
			if got := rule.Evaluate(probe.value); got != probe.want {
				errs = append(errs, fmt.Errorf("%s at %.2f: want %s, got %s",
					rule.Parameter, probe.value, probe.want, got))
			}
		}
	}

	return errs
}
