package mqtt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mine-monitor/internal/models"
	"mine-monitor/internal/source"
)

const subscribeTimeout = 5 * time.Second

// SourceConfig holds configuration for the MQTT reading source
type SourceConfig struct {
	Client       ClientConfig
	ReadingTopic string // e.g., "mine/+/sensors"
	QoS          byte
	Clock        func() time.Time
}

// Source receives sensor frames published by field gateways. Each message
// payload is one frame in the same JSON or CSV format as the serial link.
type Source struct {
	cfg  SourceConfig
	dial func(ClientConfig) (*Client, error)

	mu        sync.Mutex
	client    *Client
	receiving bool
}

// NewSource creates an MQTT source; the broker is contacted on Connect
func NewSource(cfg SourceConfig) *Source {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.QoS == 0 {
		cfg.QoS = 1
	}

	return &Source{cfg: cfg, dial: NewClient}
}

// NewSourceWithClient builds a source around an already connected client
func NewSourceWithClient(cfg SourceConfig, client *Client) *Source {
	s := NewSource(cfg)
	s.dial = func(ClientConfig) (*Client, error) { return client, nil }

	return s
}

// Name identifies the source in logs
func (s *Source) Name() string {
	return "MQTT Source"
}

// Connect dials the broker
func (s *Source) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", source.ErrConnection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client, err := s.dial(s.cfg.Client)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrConnection, err)
	}

	s.client = client

	return nil
}

// StartReceiving subscribes to the reading topic
func (s *Source) StartReceiving(onReading func(models.Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return source.ErrNotConnected
	}

	if s.receiving {
		return nil
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		s.handleReading(msg, onReading)
	}

	token := s.client.GetNativeClient().Subscribe(s.cfg.ReadingTopic, s.cfg.QoS, handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("%w: subscribe to %s timed out", source.ErrConnection, s.cfg.ReadingTopic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe to %s: %v", source.ErrConnection, s.cfg.ReadingTopic, err)
	}

	s.receiving = true

	log.Printf("Subscribed to reading topic: %s", s.cfg.ReadingTopic)

	return nil
}

// handleReading decodes one message and hands it to the callback
func (s *Source) handleReading(msg mqtt.Message, onReading func(models.Reading)) {
	r, err := source.DecodeFrame(msg.Payload(), s.cfg.Clock)
	if err != nil {
		log.Printf("MQTT Source: dropping message from %s: %v", extractDeviceID(msg.Topic()), err)
		return
	}

	source.Deliver(s.Name(), onReading, r)
}

// StopReceiving unsubscribes from the reading topic
func (s *Source) StopReceiving() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || !s.receiving {
		return
	}

	s.receiving = false

	token := s.client.GetNativeClient().Unsubscribe(s.cfg.ReadingTopic)
	if !token.WaitTimeout(source.DefaultJoinTimeout) {
		log.Printf("MQTT Source: unsubscribe from %s did not finish within %v", s.cfg.ReadingTopic, source.DefaultJoinTimeout)
		return
	}

	if err := token.Error(); err != nil {
		log.Printf("MQTT Source: unsubscribe from %s failed: %v", s.cfg.ReadingTopic, err)
	}
}

// Disconnect unsubscribes and closes the client
func (s *Source) Disconnect() error {
	s.StopReceiving()

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}

	return nil
}

// IsConnected reports whether the broker connection is up
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client != nil && s.client.IsConnected()
}

// extractDeviceID extracts the gateway ID from an MQTT topic
// Example: "mine/shaft-3/sensors" -> "shaft-3"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}

	return ""
}
