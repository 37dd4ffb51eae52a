package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mine-monitor/internal/models"
)

func sample(ts float64) models.Reading {
	return models.Reading{Pressure: 20, Temperature: 25, Vibration: 5, Timestamp: ts}
}

func newTestDispatcher(t *testing.T, analyzer Analyzer, escalator Escalator, clock *fakeClock, minGap time.Duration) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(analyzer, escalator, DispatcherConfig{
		MinGap:      minGap,
		CallTimeout: time.Second,
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d.Start(ctx)

	return d
}

// resultChan forwards completed analyses to a channel
func resultChan(d *Dispatcher) <-chan models.AnalysisResult {
	ch := make(chan models.AnalysisResult, 8)
	d.AddResultCallback(func(r models.AnalysisResult) { ch <- r })

	return ch
}

func waitResult(t *testing.T, ch <-chan models.AnalysisResult) models.AnalysisResult {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for analysis result")
		return models.AnalysisResult{}
	}
}

func TestNewDispatcherRejectsNegativeGap(t *testing.T) {
	_, err := NewDispatcher(nil, nil, DispatcherConfig{MinGap: -time.Second})
	assert.Error(t, err)
}

func TestDispatcherBusyAndThrottled(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	release := make(chan struct{})
	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cur models.Reading, hist []models.Reading) (models.AnalysisResult, error) {
			<-release
			return models.AnalysisResult{Result: "ok", RiskLevel: models.LevelNormal}, nil
		}).
		Times(2)

	d := newTestDispatcher(t, analyzer, nil, clock, DefaultMinGap)
	results := resultChan(d)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	assert.False(t, d.MaybeAnalyze(sample(2), nil), "one analysis already in flight")

	release <- struct{}{}
	waitResult(t, results)

	clock.Advance(30 * time.Second)
	assert.False(t, d.MaybeAnalyze(sample(3), nil), "inside the minimum gap")

	clock.Advance(31 * time.Second)
	require.True(t, d.MaybeAnalyze(sample(4), nil))
	release <- struct{}{}
	waitResult(t, results)

	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.Requested)
	assert.Equal(t, uint64(2), stats.Admitted)
	assert.Equal(t, uint64(1), stats.Busy)
	assert.Equal(t, uint64(1), stats.Throttled)
	assert.Equal(t, uint64(2), stats.Completed)

	last, ok := d.LastResult()
	require.True(t, ok)
	assert.Equal(t, "ok", last.Result)
}

func TestDispatcherRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.AnalysisResult{Result: "ok"}, nil).
		Times(2)

	limiter, err := NewLimiter(2, time.Minute, clock.Now)
	require.NoError(t, err)

	d, err := NewDispatcher(analyzer, nil, DispatcherConfig{Limiter: limiter, Clock: clock.Now})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	results := resultChan(d)

	for i := 0; i < 2; i++ {
		require.True(t, d.MaybeAnalyze(sample(float64(i)), nil))
		waitResult(t, results)
	}

	assert.False(t, d.MaybeAnalyze(sample(3), nil))
	assert.Equal(t, uint64(1), d.Stats().RateLimited)
	assert.Equal(t, 0, d.RemainingCalls())
}

func TestDispatcherGapDenialKeepsLimiterBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.AnalysisResult{Result: "ok"}, nil)

	d := newTestDispatcher(t, analyzer, nil, clock, DefaultMinGap)
	results := resultChan(d)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	waitResult(t, results)

	for i := 0; i < 5; i++ {
		assert.False(t, d.MaybeAnalyze(sample(2), nil))
	}

	assert.Equal(t, DefaultMaxCalls-1, d.RemainingCalls())
}

func TestDispatcherEscalatesRisk(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	escalator := NewMockEscalator(ctrl)
	clock := newFakeClock()

	history := []models.Reading{sample(1), sample(2)}

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), sample(3), history).
		Return(models.AnalysisResult{Result: "gas build-up", RiskLevel: models.LevelDanger, RawRiskLevel: "危险"}, nil)

	escalated := make(chan struct{})
	escalator.EXPECT().
		TriggerSystemAlarm("AI detected risk: gas build-up", models.LevelDanger).
		DoAndReturn(func(msg string, level models.AlarmLevel) (models.AlarmEvent, bool) {
			close(escalated)
			return models.AlarmEvent{Message: msg, Level: level}, true
		})

	d := newTestDispatcher(t, analyzer, escalator, clock, DefaultMinGap)

	require.True(t, d.MaybeAnalyze(sample(3), history))

	select {
	case <-escalated:
	case <-time.After(2 * time.Second):
		t.Fatal("risk was not escalated")
	}

	assert.Eventually(t, func() bool { return d.Stats().Escalated == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherNormalResultNotEscalated(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	escalator := NewMockEscalator(ctrl)
	clock := newFakeClock()

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.AnalysisResult{Result: "fine", RiskLevel: models.LevelNormal}, nil)

	d := newTestDispatcher(t, analyzer, escalator, clock, DefaultMinGap)
	results := resultChan(d)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	waitResult(t, results)

	assert.Equal(t, uint64(0), d.Stats().Escalated)
}

func TestDispatcherFailureIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	escalator := NewMockEscalator(ctrl)
	clock := newFakeClock()

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.AnalysisResult{}, ErrAnalysisStatus)

	d := newTestDispatcher(t, analyzer, escalator, clock, 0)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	assert.Eventually(t, func() bool { return d.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)

	_, ok := d.LastResult()
	assert.False(t, ok)
}

func TestDispatcherRecoversFromAnalyzerPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	gomock.InOrder(
		analyzer.EXPECT().
			AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, cur models.Reading, hist []models.Reading) (models.AnalysisResult, error) {
				panic("boom")
			}),
		analyzer.EXPECT().
			AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.AnalysisResult{Result: "recovered"}, nil),
	)

	d := newTestDispatcher(t, analyzer, nil, clock, 0)
	results := resultChan(d)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	assert.Eventually(t, func() bool { return d.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)

	require.True(t, d.MaybeAnalyze(sample(2), nil))
	assert.Equal(t, "recovered", waitResult(t, results).Result)
}

func TestDispatcherCallTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cur models.Reading, hist []models.Reading) (models.AnalysisResult, error) {
			<-ctx.Done()
			return models.AnalysisResult{}, ctx.Err()
		})

	d, err := NewDispatcher(analyzer, nil, DispatcherConfig{CallTimeout: 20 * time.Millisecond, Clock: clock.Now})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	require.True(t, d.MaybeAnalyze(sample(1), nil))
	assert.Eventually(t, func() bool { return d.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcherStopIsBounded(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	clock := newFakeClock()

	started := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	analyzer.EXPECT().
		AnalyzeSafetyStatus(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cur models.Reading, hist []models.Reading) (models.AnalysisResult, error) {
			close(started)
			<-release
			return models.AnalysisResult{}, nil
		})

	d := newTestDispatcher(t, analyzer, nil, clock, 0)
	require.True(t, d.MaybeAnalyze(sample(1), nil))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err := d.Stop(ctx)
	assert.True(t, errors.Is(err, ErrDispatcherStopped))
	assert.Less(t, time.Since(begin), time.Second)

	assert.False(t, d.MaybeAnalyze(sample(2), nil), "stopped dispatcher accepts nothing")
	assert.NoError(t, d.Stop(context.Background()), "second stop is a no-op")
}

func TestDispatcherStopIdle(t *testing.T) {
	clock := newFakeClock()
	d := newTestDispatcher(t, NewMockAnalyzer(gomock.NewController(t)), nil, clock, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, d.Stop(ctx))
}
