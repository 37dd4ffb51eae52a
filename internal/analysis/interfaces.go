// Package analysis decides when to run an external risk analysis and acts on its answer.
package analysis

import (
	"context"

	"mine-monitor/internal/models"
)

//go:generate mockgen -destination=mock_analysis.go -package=analysis mine-monitor/internal/analysis Analyzer,Escalator

// Analyzer is the analysis capability: a call with network latency and failure modes
type Analyzer interface {
	AnalyzeSafetyStatus(ctx context.Context, current models.Reading, history []models.Reading) (models.AnalysisResult, error)
}

// Escalator raises system alarms for at-risk analysis results
type Escalator interface {
	TriggerSystemAlarm(message string, level models.AlarmLevel) (models.AlarmEvent, bool)
}
