package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/alarm"
	"mine-monitor/internal/models"
	"mine-monitor/pkg/config"
)

func newTestLocal(t *testing.T) *LocalAnalyzer {
	t.Helper()

	rules, err := alarm.RulesFromThresholds(config.DefaultThresholds())
	require.NoError(t, err)

	a, err := NewLocalAnalyzer(LocalAnalyzerConfig{
		Rules: rules,
		Clock: func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)

	return a
}

// steady alternates pressure around 21 so the series has a spread of 1
func steady(n int) []models.Reading {
	out := make([]models.Reading, n)
	for i := range out {
		p := 20.0
		if i%2 == 1 {
			p = 22
		}
		out[i] = models.Reading{Pressure: p, Temperature: 25, Vibration: 5, Timestamp: float64(i)}
	}

	return out
}

func TestLocalAnalyzerNormal(t *testing.T) {
	a := newTestLocal(t)

	res, err := a.AnalyzeSafetyStatus(context.Background(), sample(1), nil)
	require.NoError(t, err)

	assert.Equal(t, models.LevelNormal, res.RiskLevel)
	assert.Equal(t, "local_statistics", res.AnalysisType)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	assert.Empty(t, res.Recommendations)
}

func TestLocalAnalyzerThresholds(t *testing.T) {
	a := newTestLocal(t)

	cur := sample(1)
	cur.Temperature = 40

	res, err := a.AnalyzeSafetyStatus(context.Background(), cur, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LevelWarning, res.RiskLevel)
	assert.Contains(t, res.Result, "temperature warning")

	cur.Vibration = 45
	res, err = a.AnalyzeSafetyStatus(context.Background(), cur, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LevelDanger, res.RiskLevel, "danger wins over warning")
	assert.Len(t, res.Recommendations, 2)
}

func TestLocalAnalyzerAnomaly(t *testing.T) {
	a := newTestLocal(t)

	cur := sample(100)
	cur.Pressure = 30

	res, err := a.AnalyzeSafetyStatus(context.Background(), cur, steady(50))
	require.NoError(t, err)

	assert.Equal(t, models.LevelWarning, res.RiskLevel)
	assert.Contains(t, res.Result, "pressure anomaly")
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestLocalAnalyzerConfidenceCapped(t *testing.T) {
	a := newTestLocal(t)

	res, err := a.AnalyzeSafetyStatus(context.Background(), sample(1), steady(500))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestLocalAnalyzerCancelled(t *testing.T) {
	a := newTestLocal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.AnalyzeSafetyStatus(ctx, sample(1), nil)
	assert.ErrorIs(t, err, ErrAnalysis)
}
