package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mine-monitor/internal/models"
)

// Header is a custom request header
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookConfig configures a generic JSON webhook
type WebhookConfig struct {
	URL      string
	Headers  []Header
	Cooldown time.Duration // per alarm key
	Rate     float64       // requests per second across all events, 0 disables
	Burst    int
	Clock    func() time.Time
}

// WebhookPayload is the body posted for each event
type WebhookPayload struct {
	Level     string         `json:"level"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// WebhookNotifier posts alarms and at-risk analyses to an HTTP endpoint
type WebhookNotifier struct {
	config     WebhookConfig
	client     *http.Client
	limiter    *rate.Limiter
	bufferPool *sync.Pool

	mu             sync.Mutex
	lastAlertTimes map[string]time.Time
}

// NewWebhookNotifier validates the config and builds a notifier
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if config.URL == "" {
		return nil, ErrMissingURL
	}

	if config.Clock == nil {
		config.Clock = time.Now
	}

	if config.Burst <= 0 {
		config.Burst = 1
	}

	w := &WebhookNotifier{
		config: config,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		lastAlertTimes: make(map[string]time.Time),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}

	if config.Rate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(config.Rate), config.Burst)
	}

	return w, nil
}

// Name identifies the notifier in logs
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// NotifyAlarm posts an alarm unless its parameter is still cooling down
func (w *WebhookNotifier) NotifyAlarm(ctx context.Context, ev models.AlarmEvent) error {
	if err := w.checkCooldown(string(ev.Parameter)); err != nil {
		return err
	}

	return w.send(ctx, &WebhookPayload{
		Level:     string(ev.Level),
		Title:     fmt.Sprintf("%s %s alarm", ev.Parameter, ev.Level),
		Message:   ev.Message,
		Timestamp: models.FromTimestamp(ev.Timestamp).UTC().Format(time.RFC3339),
		Details: map[string]any{
			"seq":       ev.Seq,
			"type":      ev.Type,
			"value":     ev.Value,
			"threshold": ev.Threshold,
		},
	})
}

// NotifyAnalysis posts analyses that carry a risk; normal ones are skipped
func (w *WebhookNotifier) NotifyAnalysis(ctx context.Context, res models.AnalysisResult) error {
	if !res.RiskLevel.AtRisk() {
		return fmt.Errorf("%w: analysis risk is %s", ErrSkipped, res.RiskLevel)
	}

	if err := w.checkCooldown("analysis"); err != nil {
		return err
	}

	return w.send(ctx, &WebhookPayload{
		Level:     string(res.RiskLevel),
		Title:     "AI safety analysis",
		Message:   res.Result,
		Timestamp: models.FromTimestamp(res.Timestamp).UTC().Format(time.RFC3339),
		Details: map[string]any{
			"confidence":      res.Confidence,
			"recommendations": res.Recommendations,
			"analysis_type":   res.AnalysisType,
		},
	})
}

func (w *WebhookNotifier) checkCooldown(key string) error {
	if w.config.Cooldown <= 0 {
		return nil
	}

	now := w.config.Clock()

	w.mu.Lock()
	defer w.mu.Unlock()

	last, exists := w.lastAlertTimes[key]
	if exists && now.Sub(last) < w.config.Cooldown {
		return fmt.Errorf("%w: %s", ErrWebhookCooldown, key)
	}

	w.lastAlertTimes[key] = now

	return nil
}

func (w *WebhookNotifier) send(ctx context.Context, payload *WebhookPayload) error {
	if w.limiter != nil && !w.limiter.Allow() {
		return ErrWebhookRateLimited
	}

	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Printf("Webhook: failed to close response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d body=%s", ErrWebhookStatus, resp.StatusCode, string(body))
	}

	return nil
}

func (w *WebhookNotifier) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}
