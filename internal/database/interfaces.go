// Package database persists readings, alarms and analyses without blocking the pipeline.
package database

import (
	"context"

	"mine-monitor/internal/models"
)

//go:generate mockgen -destination=mock_store.go -package=database mine-monitor/internal/database Store

// Store is a persistence backend. Implementations must be safe for use by one writer goroutine.
type Store interface {
	SaveReading(ctx context.Context, r models.Reading) error
	// SaveAlarm assigns ev.ID on success
	SaveAlarm(ctx context.Context, ev *models.AlarmEvent) error
	SaveAnalysis(ctx context.Context, res *models.AnalysisResult) error
	Close() error
}

// AlarmAcknowledger is implemented by stores that can flag a saved alarm.
// Rows are matched on the engine sequence number and the alarm timestamp.
type AlarmAcknowledger interface {
	AcknowledgeAlarm(ctx context.Context, ev models.AlarmEvent) error
}

// ReadingHistory is implemented by stores that can reload recent readings
type ReadingHistory interface {
	RecentReadings(ctx context.Context, limit int) ([]models.Reading, error)
}
