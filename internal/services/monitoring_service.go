// Package services owns the monitoring pipeline and wires its parts together.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mine-monitor/internal/aggregator"
	"mine-monitor/internal/alarm"
	"mine-monitor/internal/analysis"
	"mine-monitor/internal/database"
	"mine-monitor/internal/models"
	"mine-monitor/internal/notify"
	"mine-monitor/internal/source"
)

const (
	DefaultHandlerQueue    = 256
	DefaultAnalysisHistory = time.Hour
	restoreTimeout         = 5 * time.Second

	alarmEngineSubscriber = "alarm-engine"
	readingHandlerName    = "reading-handler"
)

var (
	ErrMissingDependency = errors.New("missing service dependency")
	ErrAlreadyStarted    = errors.New("monitoring service already started")
)

// ReadingBroadcaster receives every reading for live display
type ReadingBroadcaster interface {
	BroadcastReading(models.Reading)
}

// Dependencies are the parts the service owns. Writer, History, Notifier and
// Broadcaster are optional. History seeds the buffer on Start.
type Dependencies struct {
	Source      source.Source
	Collector   *aggregator.Collector
	Engine      *alarm.Engine
	Dispatcher  *analysis.Dispatcher
	Writer      *database.Writer
	History     database.ReadingHistory
	Notifier    *notify.Dispatcher
	Broadcaster ReadingBroadcaster
}

// Config holds service settings
type Config struct {
	HandlerQueue    int           // capacity of the reading handler channel
	AnalysisHistory time.Duration // buffer window handed to each analysis
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		HandlerQueue:    DefaultHandlerQueue,
		AnalysisHistory: DefaultAnalysisHistory,
	}
}

// Status is the snapshot served by the status API
type Status struct {
	Running          bool                     `json:"running"`
	ConnectionStatus bool                     `json:"connection_status"`
	Source           string                   `json:"source"`
	TotalSamples     uint64                   `json:"total_samples"`
	LastUpdate       float64                  `json:"last_update"`
	DataRate         float64                  `json:"data_rate"`
	Buffered         int                      `json:"buffered"`
	Capacity         int                      `json:"capacity"`
	PersistDropped   uint64                   `json:"persist_dropped"`
	Alarms           alarm.Stats              `json:"alarms"`
	Analysis         analysis.DispatcherStats `json:"analysis"`
	Writer           *database.WriterStats    `json:"writer,omitempty"`
	Notify           *notify.Stats            `json:"notify,omitempty"`
	Bus              aggregator.BusStats      `json:"bus"`
}

// MonitoringService runs source → collector → {engine, analysis} and routes
// alarms and analyses to persistence and notifiers
type MonitoringService struct {
	deps    Dependencies
	history time.Duration

	readings chan models.Reading
	stop     chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	started  bool
	handling bool
	running  bool
	handles  []aggregator.Handle
	latest   *models.AnalysisResult
	stopOnce sync.Once
}

// NewMonitoringService validates dependencies and registers the alarm and
// analysis callbacks
func NewMonitoringService(deps Dependencies, config Config) (*MonitoringService, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: source", ErrMissingDependency)
	case deps.Collector == nil:
		return nil, fmt.Errorf("%w: collector", ErrMissingDependency)
	case deps.Engine == nil:
		return nil, fmt.Errorf("%w: alarm engine", ErrMissingDependency)
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("%w: analysis dispatcher", ErrMissingDependency)
	}

	if config.HandlerQueue <= 0 {
		config.HandlerQueue = DefaultHandlerQueue
	}

	if config.AnalysisHistory <= 0 {
		config.AnalysisHistory = DefaultAnalysisHistory
	}

	s := &MonitoringService{
		deps:     deps,
		history:  config.AnalysisHistory,
		readings: make(chan models.Reading, config.HandlerQueue),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	deps.Engine.AddCallback(s.onAlarm)
	deps.Engine.AddResolveCallback(s.onResolved)
	deps.Dispatcher.AddResultCallback(s.onAnalysis)

	return s, nil
}

// Start brings the pipeline up: workers, subscriptions, then the source.
// A source failure leaves connection_status false and returns ErrConnection.
func (s *MonitoringService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	s.started = true
	s.mu.Unlock()

	log.Printf("MonitoringService: Starting with source %s", s.deps.Source.Name())

	s.restore(ctx)

	s.deps.Dispatcher.Start(ctx)

	if s.deps.Notifier != nil {
		s.deps.Notifier.Start(ctx)
	}

	if err := s.subscribe(); err != nil {
		return err
	}

	s.mu.Lock()
	s.handling = true
	s.mu.Unlock()

	go s.handleReadings(ctx)

	if err := s.connect(ctx); err != nil {
		s.deps.Collector.SetConnected(false)
		log.Printf("MonitoringService: source unavailable: %v", err)

		return err
	}

	s.deps.Collector.SetConnected(true)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	for _, err := range s.deps.Engine.SelfTest() {
		log.Printf("MonitoringService: alarm self-test: %v", err)
	}

	log.Println("MonitoringService: running")

	return nil
}

// restore seeds the buffer from stored readings. Failure only costs history.
func (s *MonitoringService) restore(ctx context.Context) {
	if s.deps.History == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()

	rs, err := s.deps.History.RecentReadings(ctx, s.deps.Collector.Capacity())
	if err != nil {
		log.Printf("MonitoringService: failed to restore readings: %v", err)
		return
	}

	s.deps.Collector.Restore(rs)
	log.Printf("MonitoringService: restored %d readings", len(rs))
}

func (s *MonitoringService) subscribe() error {
	bus := s.deps.Collector.Bus()

	engineHandle, err := bus.Subscribe(alarmEngineSubscriber, s.deps.Engine.CheckConsumer)
	if err != nil {
		return fmt.Errorf("subscribe alarm engine: %w", err)
	}

	handlerHandle, err := bus.SubscribeChan(readingHandlerName, s.readings)
	if err != nil {
		_ = bus.Unsubscribe(engineHandle)
		return fmt.Errorf("subscribe reading handler: %w", err)
	}

	s.mu.Lock()
	s.handles = []aggregator.Handle{engineHandle, handlerHandle}
	s.mu.Unlock()

	return nil
}

func (s *MonitoringService) connect(ctx context.Context) error {
	if err := s.deps.Source.Connect(ctx); err != nil {
		return asConnectionError(err)
	}

	if err := s.deps.Source.StartReceiving(s.deps.Collector.OnReading); err != nil {
		return asConnectionError(err)
	}

	return nil
}

func asConnectionError(err error) error {
	if errors.Is(err, source.ErrConnection) {
		return err
	}

	return fmt.Errorf("%w: %w", source.ErrConnection, err)
}

// handleReadings forwards each reading and the trailing buffer window to the
// analysis dispatcher, off the ingestion path
func (s *MonitoringService) handleReadings(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case r := <-s.readings:
			s.handleReading(r)
		}
	}
}

func (s *MonitoringService) handleReading(r models.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("MonitoringService: reading handler panicked: %v", rec)
		}
	}()

	if s.deps.Broadcaster != nil {
		s.deps.Broadcaster.BroadcastReading(r)
	}

	s.deps.Dispatcher.MaybeAnalyze(r, s.deps.Collector.Window(s.history))
}

func (s *MonitoringService) onAlarm(ev models.AlarmEvent) {
	log.Printf("MonitoringService: ALARM [%s/%s] %s", ev.Level, ev.Type, ev.Message)

	if s.deps.Writer != nil && !s.deps.Writer.SaveAlarm(ev) {
		log.Printf("MonitoringService: alarm %d not persisted, writer queue full", ev.Seq)
	}

	if s.deps.Notifier != nil {
		s.deps.Notifier.PublishAlarm(ev)
	}
}

func (s *MonitoringService) onResolved(ev models.AlarmEvent) {
	log.Printf("MonitoringService: resolved %s alarm %d", ev.Parameter, ev.Seq)
}

func (s *MonitoringService) onAnalysis(res models.AnalysisResult) {
	log.Printf("MonitoringService: analysis %s (%.2f): %s", res.RiskLevel, res.Confidence, res.Result)

	if s.deps.Writer != nil && !s.deps.Writer.SaveAnalysis(res) {
		log.Println("MonitoringService: analysis not persisted, writer queue full")
	}

	s.mu.Lock()
	latest := res
	s.latest = &latest
	s.mu.Unlock()

	if s.deps.Notifier != nil {
		s.deps.Notifier.PublishAnalysis(res)
	}
}

// Stop tears the pipeline down. Every step runs even when an earlier one
// fails; bounded steps give up when ctx ends. Later calls are no-ops.
func (s *MonitoringService) Stop(ctx context.Context) error {
	var errs []error

	s.stopOnce.Do(func() {
		log.Println("MonitoringService: Shutting down...")

		s.mu.Lock()
		handling := s.handling
		s.running = false
		handles := s.handles
		s.handles = nil
		s.mu.Unlock()

		s.deps.Source.StopReceiving()

		if err := s.deps.Source.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect source: %w", err))
		}

		bus := s.deps.Collector.Bus()
		for _, h := range handles {
			if err := bus.Unsubscribe(h); err != nil {
				errs = append(errs, fmt.Errorf("unsubscribe %s: %w", h.Name(), err))
			}
		}

		close(s.stop)

		if handling {
			select {
			case <-s.done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("reading handler: %w", ctx.Err()))
			}
		}

		if err := s.deps.Dispatcher.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		if s.deps.Notifier != nil {
			if err := s.deps.Notifier.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		if s.deps.Writer != nil {
			if err := s.deps.Writer.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		s.deps.Collector.SetConnected(false)

		log.Println("MonitoringService: Shutdown complete")
	})

	return errors.Join(errs...)
}

// Running reports whether Start succeeded and Stop has not been called
func (s *MonitoringService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Status collects liveness and counters from every component
func (s *MonitoringService) Status() Status {
	c := s.deps.Collector.Stats()

	st := Status{
		Running:          s.Running(),
		ConnectionStatus: c.ConnectionStatus && s.deps.Source.IsConnected(),
		Source:           s.deps.Source.Name(),
		TotalSamples:     c.TotalSamples,
		LastUpdate:       c.LastUpdate,
		DataRate:         c.DataRate,
		Buffered:         c.Buffered,
		Capacity:         c.Capacity,
		PersistDropped:   c.PersistDropped,
		Alarms:           s.deps.Engine.Stats(),
		Analysis:         s.deps.Dispatcher.Stats(),
		Bus:              s.deps.Collector.Bus().AllStats(),
	}

	if s.deps.Writer != nil {
		ws := s.deps.Writer.Stats()
		st.Writer = &ws
	}

	if s.deps.Notifier != nil {
		ns := s.deps.Notifier.Stats()
		st.Notify = &ns
	}

	return st
}

// Readings returns up to limit buffered readings in arrival order
func (s *MonitoringService) Readings(limit int) []models.Reading {
	return s.deps.Collector.Snapshot(limit)
}

// AlarmHistory returns up to limit alarms, newest first
func (s *MonitoringService) AlarmHistory(limit int) []models.AlarmEvent {
	return s.deps.Engine.History(limit)
}

// ActiveAlarms returns the currently active alarms
func (s *MonitoringService) ActiveAlarms() []models.AlarmEvent {
	return s.deps.Engine.ActiveAlarms()
}

// AcknowledgeAlarm marks an alarm by sequence number in memory and queues
// the same for the store
func (s *MonitoringService) AcknowledgeAlarm(seq uint64) bool {
	ev, ok := s.deps.Engine.Acknowledge(seq)
	if !ok {
		return false
	}

	if s.deps.Writer != nil && !s.deps.Writer.AcknowledgeAlarm(ev) {
		log.Printf("MonitoringService: acknowledgement of alarm %d not persisted, writer queue full", seq)
	}

	return true
}

// LatestAnalysis returns the most recent analysis result
func (s *MonitoringService) LatestAnalysis() (models.AnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return models.AnalysisResult{}, false
	}

	return *s.latest, true
}
