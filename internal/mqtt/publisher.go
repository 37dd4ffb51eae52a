package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mine-monitor/internal/models"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher forwards alarms and analysis results to the broker
type Publisher struct {
	client mqtt.Client

	// Topic patterns
	alarmTopic    string // e.g., "mine/alarms/{level}"
	analysisTopic string // e.g., "mine/analysis/{risk}"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	AlarmTopic    string
	AnalysisTopic string
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(client mqtt.Client, config PublisherConfig) *Publisher {
	return &Publisher{
		client:        client,
		alarmTopic:    config.AlarmTopic,
		analysisTopic: config.AnalysisTopic,
	}
}

// Name identifies the notifier in logs
func (p *Publisher) Name() string {
	return "mqtt"
}

// NotifyAlarm publishes an alarm event to the level topic
func (p *Publisher) NotifyAlarm(ctx context.Context, ev models.AlarmEvent) error {
	topic := formatTopic(p.alarmTopic, "{level}", string(ev.Level))

	if err := p.publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("failed to publish alarm %d: %w", ev.Seq, err)
	}

	log.Printf("Published %s alarm for %s to topic: %s", ev.Level, ev.Parameter, topic)

	return nil
}

// NotifyAnalysis publishes an analysis result to the risk topic
func (p *Publisher) NotifyAnalysis(ctx context.Context, res models.AnalysisResult) error {
	topic := formatTopic(p.analysisTopic, "{risk}", string(res.RiskLevel))

	if err := p.publish(ctx, topic, res); err != nil {
		return fmt.Errorf("failed to publish analysis result: %w", err)
	}

	log.Printf("Published analysis result (%s) to topic: %s", res.RiskLevel, topic)

	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}

	return token.Error()
}

// formatTopic replaces a placeholder in a topic pattern
func formatTopic(topicPattern, placeholder, value string) string {
	return strings.ReplaceAll(topicPattern, placeholder, value)
}
