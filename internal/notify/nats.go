package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"mine-monitor/internal/models"
)

// NATSConfig holds the connection and subject prefix
type NATSConfig struct {
	URL           string
	SubjectPrefix string // subjects are <prefix>.alarms and <prefix>.analysis
	Name          string
}

// NATSNotifier publishes JSON events to NATS subjects
type NATSNotifier struct {
	conn            *nats.Conn
	alarmSubject    string
	analysisSubject string
}

// NewNATSNotifier connects to the server at cfg.URL
func NewNATSNotifier(cfg NATSConfig) (*NATSNotifier, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}

	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "mine"
	}

	if cfg.Name == "" {
		cfg.Name = "mine-monitor"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("NATS: reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	log.Printf("NATS: connected to %s", cfg.URL)

	return &NATSNotifier{
		conn:            conn,
		alarmSubject:    cfg.SubjectPrefix + ".alarms",
		analysisSubject: cfg.SubjectPrefix + ".analysis",
	}, nil
}

// Name identifies the notifier in logs
func (n *NATSNotifier) Name() string {
	return "nats"
}

// NotifyAlarm publishes the alarm to <prefix>.alarms
func (n *NATSNotifier) NotifyAlarm(ctx context.Context, ev models.AlarmEvent) error {
	return n.publish(ctx, n.alarmSubject, ev)
}

// NotifyAnalysis publishes the result to <prefix>.analysis
func (n *NATSNotifier) NotifyAnalysis(ctx context.Context, res models.AnalysisResult) error {
	return n.publish(ctx, n.analysisSubject, res)
}

func (n *NATSNotifier) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}

	return nil
}

// Close drains and closes the connection
func (n *NATSNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		log.Printf("NATS: drain failed: %v", err)
		n.conn.Close()
	}
}
