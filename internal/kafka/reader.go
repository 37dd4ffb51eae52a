// Package kafka reads sensor frames from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"mine-monitor/internal/models"
	"mine-monitor/internal/source"
)

// MessageReader is the part of kafka.Reader the source uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the topic to consume
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	Clock   func() time.Time
}

// ParseBrokers splits a comma-separated broker list
func ParseBrokers(list string) []string {
	var out []string

	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}

	return out
}

// Source consumes one frame per Kafka message
type Source struct {
	cfg Config

	newReader func(Config) MessageReader
	probe     func(ctx context.Context, broker string) error

	mu     sync.Mutex
	reader MessageReader
	cancel context.CancelFunc

	loop source.Loop
}

// NewSource creates a Kafka source; brokers are probed on Connect
func NewSource(cfg Config) *Source {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Source{
		cfg:       cfg,
		newReader: newKafkaReader,
		probe:     probeBroker,
	}
}

func newKafkaReader(cfg Config) MessageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  500 * time.Millisecond,
		Dialer:   &kafka.Dialer{Timeout: 10 * time.Second},
	})
}

func probeBroker(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}

	return conn.Close()
}

// Name identifies the source in logs
func (s *Source) Name() string {
	return "Kafka Source"
}

// Connect checks that a broker answers and creates the reader
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		return nil
	}

	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" {
		return fmt.Errorf("%w: brokers and topic are required", source.ErrConnection)
	}

	var lastErr error

	for _, b := range s.cfg.Brokers {
		if lastErr = s.probe(ctx, b); lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w: no reachable broker: %v", source.ErrConnection, lastErr)
	}

	s.reader = s.newReader(s.cfg)

	log.Printf("Kafka Source: Subscribing to topic %s", s.cfg.Topic)

	return nil
}

// StartReceiving launches the fetch loop
func (s *Source) StartReceiving(onReading func(models.Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader == nil {
		return source.ErrNotConnected
	}

	reader := s.reader

	ctx, cancel := context.WithCancel(context.Background())

	started := s.loop.Start(func(stop <-chan struct{}) {
		defer cancel()

		go func() {
			select {
			case <-stop:
			case <-ctx.Done():
			}

			cancel()
		}()

		s.fetchLoop(ctx, reader, onReading)
	})

	if started {
		s.cancel = cancel
	} else {
		cancel()
	}

	return nil
}

func (s *Source) fetchLoop(ctx context.Context, reader MessageReader, onReading func(models.Reading)) {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				log.Printf("Kafka Source: fetch failed, stopping: %v", err)
			}

			return
		}

		r, err := source.DecodeFrame(m.Value, s.cfg.Clock)
		if err != nil {
			log.Printf("Kafka Source: dropping message at offset %d: %v", m.Offset, err)
		} else {
			source.Deliver(s.Name(), onReading, r)
		}

		// offsets only exist for consumer groups
		if s.cfg.GroupID != "" {
			if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
				log.Printf("Kafka Source: commit failed at offset %d: %v", m.Offset, err)
			}
		}
	}
}

// StopReceiving cancels the fetch context and joins the loop
func (s *Source) StopReceiving() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if !s.loop.Stop() {
		log.Printf("Kafka Source: receive loop did not stop within %v", source.DefaultJoinTimeout)
	}
}

// Disconnect stops receiving and closes the reader
func (s *Source) Disconnect() error {
	s.StopReceiving()

	s.mu.Lock()
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()

	if reader == nil {
		return nil
	}

	if err := reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}

	return nil
}

// IsConnected reports whether a reader is open
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reader != nil
}
