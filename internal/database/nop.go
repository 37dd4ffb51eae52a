package database

import (
	"context"

	"mine-monitor/internal/models"
)

// NopStore discards everything; used when persistence is disabled
type NopStore struct{}

func (NopStore) SaveReading(context.Context, models.Reading) error { return nil }

func (NopStore) SaveAlarm(context.Context, *models.AlarmEvent) error { return nil }

func (NopStore) SaveAnalysis(context.Context, *models.AnalysisResult) error { return nil }

func (NopStore) Close() error { return nil }
