package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"mine-monitor/internal/aggregator"
	"mine-monitor/internal/alarm"
	"mine-monitor/internal/models"
)

const (
	localTrendWindow = 5

	// history length at which the local analyzer reaches full confidence
	localFullConfidence = 100
)

// LocalAnalyzerConfig tunes the statistics-only analyzer
type LocalAnalyzerConfig struct {
	Rules       []alarm.Rule
	Sigma       float64 // z-score anomaly threshold, defaults to 2.0
	TrendWindow int
	Clock       func() time.Time
}

// LocalAnalyzer assesses risk from thresholds, z-scores and moving-average
// trends without calling out to a remote model
type LocalAnalyzer struct {
	rules       map[models.Parameter]alarm.Rule
	sigma       float64
	trendWindow int
	clock       func() time.Time
}

// NewLocalAnalyzer builds a local analyzer over the given rules
func NewLocalAnalyzer(cfg LocalAnalyzerConfig) (*LocalAnalyzer, error) {
	rules := make(map[models.Parameter]alarm.Rule, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}

		rules[r.Parameter] = r
	}

	if cfg.Sigma <= 0 {
		cfg.Sigma = aggregator.DefaultAnomalySigma
	}

	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = localTrendWindow
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &LocalAnalyzer{
		rules:       rules,
		sigma:       cfg.Sigma,
		trendWindow: cfg.TrendWindow,
		clock:       cfg.Clock,
	}, nil
}

// AnalyzeSafetyStatus never fails unless ctx is already done
func (a *LocalAnalyzer) AnalyzeSafetyStatus(ctx context.Context, current models.Reading, history []models.Reading) (models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	risk := models.LevelNormal
	var findings, recs []string

	raise := func(level models.AlarmLevel) {
		if level == models.LevelDanger || (level == models.LevelWarning && risk == models.LevelNormal) {
			risk = level
		}
	}

	for _, p := range models.MonitoredParameters {
		v, _ := current.Value(p)

		if rule, ok := a.rules[p]; ok {
			switch level := rule.Evaluate(v); level {
			case models.LevelDanger, models.LevelWarning:
				raise(level)
				findings = append(findings, fmt.Sprintf("%s %s (%.2f, threshold %.2f)", p, level, v, rule.Threshold(level)))
				recs = append(recs, fmt.Sprintf("inspect %s sensors and reduce exposure", p))
			}
		}

		series := aggregator.Series(history, p)
		if len(series) < 3 {
			continue
		}

		stats := aggregator.Summarize(series)
		if z := aggregator.ZScore(v, stats); math.Abs(z) >= a.sigma {
			raise(models.LevelWarning)
			findings = append(findings, fmt.Sprintf("%s anomaly (z=%.2f, mean %.2f)", p, z, stats.Mean))
			recs = append(recs, fmt.Sprintf("verify %s readings against a second instrument", p))
		}

		if trend := aggregator.Trend(series, a.trendWindow); stats.StdDev > 0 && trend > a.sigma*stats.StdDev {
			findings = append(findings, fmt.Sprintf("%s rising (%+.2f)", p, trend))
		}
	}

	result := "all parameters within normal ranges"
	if len(findings) > 0 {
		result = strings.Join(findings, "; ")
	}

	if recs == nil {
		recs = []string{}
	}

	return models.AnalysisResult{
		AnalysisType:    "local_statistics",
		Result:          result,
		Confidence:      localConfidence(len(history)),
		Recommendations: recs,
		RiskLevel:       risk,
		RawRiskLevel:    string(risk),
		Timestamp:       models.ToTimestamp(a.clock()),
	}, nil
}

func localConfidence(n int) float64 {
	return models.ClampConfidence(0.5 + 0.5*float64(n)/localFullConfidence)
}
