package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
}

func newTestDeepSeek(t *testing.T, handler http.HandlerFunc) *DeepSeekClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewDeepSeekClient(DeepSeekConfig{
		URL:         srv.URL,
		APIKey:      "test-key",
		Temperature: 0.7,
		Timeout:     2 * time.Second,
		Clock:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)

	return c
}

func TestNewDeepSeekClientRequiresKey(t *testing.T) {
	_, err := NewDeepSeekClient(DeepSeekConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDeepSeekAnalyze(t *testing.T) {
	var got chatRequest

	c := newTestDeepSeek(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		chatReply(t, w, "```json\n{\"risk_level\":\"警告\",\"result\":\"温度偏高\",\"confidence\":0.8,\"recommendations\":[\"加强通风\"]}\n```")
	})

	history := []models.Reading{
		{Pressure: 10, Temperature: 30, Vibration: 2, Timestamp: 1},
		{Pressure: 12, Temperature: 40, Vibration: 4, Timestamp: 2},
	}

	res, err := c.AnalyzeSafetyStatus(context.Background(), history[1], history)
	require.NoError(t, err)

	assert.Equal(t, DefaultDeepSeekModel, got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "历史样本数: 2")

	assert.Equal(t, models.LevelWarning, res.RiskLevel)
	assert.Equal(t, "警告", res.RawRiskLevel)
	assert.Equal(t, "温度偏高", res.Result)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, []string{"加强通风"}, res.Recommendations)
	assert.Equal(t, "safety_status", res.AnalysisType)
	assert.InDelta(t, 1_700_000_000.0, res.Timestamp, 1e-6)
}

func TestDeepSeekErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusInternalServerError)
			},
			want: ErrAnalysisStatus,
		},
		{
			name: "too many requests",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			want: ErrRateLimited,
		},
		{
			name: "body is not JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "content is prose",
			handler: func(w http.ResponseWriter, r *http.Request) {
				chatReply(t, w, "everything looks fine")
			},
			want: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestDeepSeek(t, tt.handler)

			_, err := c.AnalyzeSafetyStatus(context.Background(), sample(1), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrAnalysis)
		})
	}
}

func TestDeepSeekHonorsContext(t *testing.T) {
	release := make(chan struct{})
	c := newTestDeepSeek(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.AnalyzeSafetyStatus(ctx, sample(1), nil)
	assert.ErrorIs(t, err, ErrAnalysis)
}

func TestParseAssessment(t *testing.T) {
	res, err := ParseAssessment(`{"risk_level":"danger","result":"roof stress","confidence":7}`)
	require.NoError(t, err)
	assert.Equal(t, models.LevelDanger, res.RiskLevel)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Empty(t, res.Recommendations)
	assert.NotNil(t, res.Recommendations)

	res, err = ParseAssessment("```\n{\"risk_level\":\"正常\",\"result\":\"ok\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, models.LevelNormal, res.RiskLevel)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)

	res, err = ParseAssessment(`{"risk_level":"unclear","result":"?"}`)
	require.NoError(t, err)
	assert.Equal(t, models.LevelNormal, res.RiskLevel)
	assert.Equal(t, "unclear", res.RawRiskLevel)

	_, err = ParseAssessment(`{"result":"missing level"}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestBuildPromptKeepsLastSamples(t *testing.T) {
	var history []models.Reading
	for i := 0; i < 25; i++ {
		history = append(history, models.Reading{Pressure: float64(i), Temperature: 20, Vibration: 1, Timestamp: float64(i)})
	}

	prompt := BuildPrompt(history[24], history)

	assert.Contains(t, prompt, "历史样本数: 25")
	assert.Contains(t, prompt, "24.00, 20.00, 1.00")
	assert.Contains(t, prompt, "15.00, 20.00, 1.00")
	assert.NotContains(t, prompt, "14.00, 20.00, 1.00")
}
