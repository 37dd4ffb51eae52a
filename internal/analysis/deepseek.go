package analysis

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

	"mine-monitor/internal/aggregator"
	"mine-monitor/internal/models"
)

const (
	DefaultDeepSeekURL   = "https://api.deepseek.com/v1/chat/completions"
	DefaultDeepSeekModel = "deepseek-chat"

	historySampleSize = 10
	maxResponseBytes  = 1 << 20
)

const systemPrompt = "你是一名矿井安全专家。根据传感器数据评估矿井安全状况，" +
	"只返回一个JSON对象，字段为 risk_level（正常/警告/危险）、result（简要结论）、" +
	"confidence（0到1之间的数字）、recommendations（建议字符串数组）。"

// DeepSeekConfig holds the chat-completions settings
type DeepSeekConfig struct {
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Clock       func() time.Time
}

// DeepSeekClient asks a chat-completions endpoint for a safety assessment
type DeepSeekClient struct {
	config     DeepSeekConfig
	client     *http.Client
	bufferPool *sync.Pool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type assessment struct {
	RiskLevel       string   `json:"risk_level"`
	Result          string   `json:"result"`
	Confidence      *float64 `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// NewDeepSeekClient validates the config and builds a client
func NewDeepSeekClient(config DeepSeekConfig) (*DeepSeekClient, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if config.URL == "" {
		config.URL = DefaultDeepSeekURL
	}

	if config.Model == "" {
		config.Model = DefaultDeepSeekModel
	}

	if config.MaxTokens <= 0 {
		config.MaxTokens = 1000
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultCallTimeout
	}

	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &DeepSeekClient{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}, nil
}

// AnalyzeSafetyStatus sends the current reading and a history summary
func (c *DeepSeekClient) AnalyzeSafetyStatus(ctx context.Context, current models.Reading, history []models.Reading) (models.AnalysisResult, error) {
	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(current, history)},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result, err := ParseAssessment(content)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result.AnalysisType = "safety_status"
	result.Timestamp = models.ToTimestamp(c.config.Clock())

	return result, nil
}

func (c *DeepSeekClient) complete(ctx context.Context, body chatRequest) (string, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrAnalysis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, buf)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrAnalysis, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrAnalysis, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Printf("DeepSeek: failed to close response body: %v", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrAnalysis, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status=%d", ErrRateLimited, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrAnalysisStatus, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return parsed.Choices[0].Message.Content, nil
}

// ParseAssessment decodes the model's JSON answer, tolerating markdown fences
func ParseAssessment(content string) (models.AnalysisResult, error) {
	var a assessment
	if err := json.Unmarshal([]byte(stripFences(content)), &a); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: content is not JSON: %v", ErrMalformedResponse, err)
	}

	if strings.TrimSpace(a.RiskLevel) == "" || strings.TrimSpace(a.Result) == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: risk_level and result are required", ErrMalformedResponse)
	}

	confidence := 0.5
	if a.Confidence != nil {
		confidence = *a.Confidence
	}

	recs := a.Recommendations
	if recs == nil {
		recs = []string{}
	}

	return models.AnalysisResult{
		Result:          a.Result,
		Confidence:      models.ClampConfidence(confidence),
		Recommendations: recs,
		RiskLevel:       models.ParseRiskLevel(a.RiskLevel),
		RawRiskLevel:    a.RiskLevel,
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// drop the opening fence line, which may carry a language tag
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSpace(s)

	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// BuildPrompt describes the current reading and summary statistics of history
func BuildPrompt(current models.Reading, history []models.Reading) string {
	var b strings.Builder

	fmt.Fprintf(&b, "当前数据: 压力 %.2f MPa, 温度 %.2f °C, 振动 %.2f mm/s, 时间 %s\n",
		current.Pressure, current.Temperature, current.Vibration,
		current.Time().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "历史样本数: %d\n", len(history))

	labels := map[models.Parameter]string{
		models.ParameterPressure:    "压力",
		models.ParameterTemperature: "温度",
		models.ParameterVibration:   "振动",
	}

	if len(history) > 0 {
		for _, p := range models.MonitoredParameters {
			s := aggregator.Summarize(aggregator.Series(history, p))
			fmt.Fprintf(&b, "%s: 平均 %.2f, 最小 %.2f, 最大 %.2f\n", labels[p], s.Mean, s.Min, s.Max)
		}

		recent := history
		if len(recent) > historySampleSize {
			recent = recent[len(recent)-historySampleSize:]
		}

		b.WriteString("最近样本 (压力, 温度, 振动):\n")

		for _, r := range recent {
			fmt.Fprintf(&b, "%.2f, %.2f, %.2f\n", r.Pressure, r.Temperature, r.Vibration)
		}
	}

	b.WriteString("请评估当前矿井安全风险。")

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
