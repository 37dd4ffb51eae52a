package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"mine-monitor/internal/models"
)

// ClickHouseConfig holds connection settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore writes to MergeTree tables keyed by time
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore connects, pings and creates the tables
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("ClickHouseStore: connected to %s", cfg.Addr)

	s := &ClickHouseStore{conn: conn}

	if err := s.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", errFailedSchema, err)
	}

	return s, nil
}

// InitSchema creates the tables if they don't exist
func (s *ClickHouseStore) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := s.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("ClickHouseStore: schema initialized")

	return nil
}

// SaveReading inserts one reading
func (s *ClickHouseStore) SaveReading(ctx context.Context, r models.Reading) error {
	query := `
		INSERT INTO sensor_readings (id, timestamp, pressure, temperature, vibration)
		VALUES (?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		uuid.New(),
		r.Time(),
		r.Pressure,
		r.Temperature,
		r.Vibration,
	)
	if err != nil {
		return fmt.Errorf("%w: insert reading: %w", ErrPersistence, err)
	}

	return nil
}

// SaveAlarm inserts an alarm and sets ev.ID to a fresh UUID
func (s *ClickHouseStore) SaveAlarm(ctx context.Context, ev *models.AlarmEvent) error {
	id := uuid.New()

	query := `
		INSERT INTO alarm_events (id, timestamp, alarm_type, alarm_level, parameter_name, parameter_value, threshold_value, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		id,
		models.FromTimestamp(ev.Timestamp),
		string(ev.Type),
		string(ev.Level),
		string(ev.Parameter),
		ev.Value,
		ev.Threshold,
		ev.Message,
	)
	if err != nil {
		return fmt.Errorf("%w: insert alarm: %w", ErrPersistence, err)
	}

	ev.ID = id.String()

	return nil
}

// SaveAnalysis inserts an analysis result
func (s *ClickHouseStore) SaveAnalysis(ctx context.Context, a *models.AnalysisResult) error {
	query := `
		INSERT INTO analysis_results (id, timestamp, analysis_type, risk_level, raw_risk_level, result, confidence, recommendations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	recs := a.Recommendations
	if recs == nil {
		recs = []string{}
	}

	err := s.conn.Exec(ctx, query,
		uuid.New(),
		models.FromTimestamp(a.Timestamp),
		a.AnalysisType,
		string(a.RiskLevel),
		a.RawRiskLevel,
		a.Result,
		a.Confidence,
		recs,
	)
	if err != nil {
		return fmt.Errorf("%w: insert analysis: %w", ErrPersistence, err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (s *ClickHouseStore) Close() error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}

		log.Println("ClickHouseStore: connection closed")
	}

	return nil
}
