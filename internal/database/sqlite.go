package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"mine-monitor/internal/models"
)

// SQLiteStore keeps everything in a single local database file
type SQLiteStore struct {
	db *sql.DB
}

// analysisInput is what ai_analysis.input_data holds for each row
type analysisInput struct {
	RiskLevel       models.AlarmLevel `json:"risk_level"`
	RawRiskLevel    string            `json:"raw_risk_level,omitempty"`
	Recommendations []string          `json:"recommendations"`
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedWAL, err)
	}

	if _, err := db.Exec(sqliteSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedSchema, err)
	}

	if err := migrateAlarmSeq(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedSchema, err)
	}

	log.Printf("SQLiteStore: database ready at %s", path)

	return &SQLiteStore{db: db}, nil
}

// migrateAlarmSeq adds alarm_records.seq to databases created before it existed
func migrateAlarmSeq(db *sql.DB) error {
	var n int

	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('alarm_records') WHERE name = 'seq'`).Scan(&n)
	if err != nil {
		return err
	}

	if n == 0 {
		log.Println("SQLiteStore: adding seq column to alarm_records")

		if _, err := db.Exec(`ALTER TABLE alarm_records ADD COLUMN seq INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_alarm_seq ON alarm_records(seq)`)

	return err
}

// SaveReading inserts one row into sensor_data
func (s *SQLiteStore) SaveReading(ctx context.Context, r models.Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (pressure, temperature, vibration, timestamp) VALUES (?, ?, ?, ?)`,
		r.Pressure, r.Temperature, r.Vibration, r.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert reading: %w", ErrPersistence, err)
	}

	return nil
}

// SaveAlarm inserts an alarm and sets ev.ID to its rowid
func (s *SQLiteStore) SaveAlarm(ctx context.Context, ev *models.AlarmEvent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alarm_records
			(seq, alarm_type, alarm_level, parameter_name, parameter_value, threshold_value, message, timestamp, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Seq, string(ev.Type), string(ev.Level), string(ev.Parameter),
		ev.Value, ev.Threshold, ev.Message, ev.Timestamp, ev.Acknowledged)
	if err != nil {
		return fmt.Errorf("%w: insert alarm: %w", ErrPersistence, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: alarm id: %w", ErrPersistence, err)
	}

	ev.ID = strconv.FormatInt(id, 10)

	return nil
}

// SaveAnalysis inserts an analysis result into ai_analysis
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *models.AnalysisResult) error {
	input, err := json.Marshal(analysisInput{
		RiskLevel:       a.RiskLevel,
		RawRiskLevel:    a.RawRiskLevel,
		Recommendations: a.Recommendations,
	})
	if err != nil {
		return fmt.Errorf("%w: encode analysis: %w", ErrPersistence, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ai_analysis (analysis_type, input_data, result, confidence, timestamp) VALUES (?, ?, ?, ?, ?)`,
		a.AnalysisType, string(input), a.Result, a.Confidence, a.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert analysis: %w", ErrPersistence, err)
	}

	return nil
}

// RecentReadings returns up to limit of the newest readings, oldest first
func (s *SQLiteStore) RecentReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pressure, temperature, vibration, timestamp FROM (
			SELECT id, pressure, temperature, vibration, timestamp
			FROM sensor_data ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query readings: %w", ErrPersistence, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.Printf("SQLiteStore: failed to close rows: %v", err)
		}
	}(rows)

	var out []models.Reading

	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.Pressure, &r.Temperature, &r.Vibration, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan reading: %w", ErrPersistence, err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return out, nil
}

// AcknowledgeAlarm marks the stored copy of ev as acknowledged. Sequence
// numbers restart with the process, so a row must also match the parameter
// and timestamp; an alarm whose save was dropped is reported as not found
// rather than flagging an earlier run's row.
func (s *SQLiteStore) AcknowledgeAlarm(ctx context.Context, ev models.AlarmEvent) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alarm_records SET acknowledged = TRUE
		WHERE id = (
			SELECT id FROM alarm_records
			WHERE seq = ? AND parameter_name = ? AND timestamp = ?
			ORDER BY id DESC LIMIT 1
		)`, ev.Seq, string(ev.Parameter), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: acknowledge alarm: %w", ErrPersistence, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: seq %d at %.3f", ErrAlarmNotFound, ev.Seq, ev.Timestamp)
	}

	return nil
}

// SetConfigValue upserts a row in system_config
func (s *SQLiteStore) SetConfigValue(ctx context.Context, key, value, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (config_key, config_value, description) VALUES (?, ?, ?)
		ON CONFLICT(config_key) DO UPDATE SET
			config_value = excluded.config_value,
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP`,
		key, value, description)
	if err != nil {
		return fmt.Errorf("%w: set config %s: %w", ErrPersistence, key, err)
	}

	return nil
}

// ConfigValue reads a system_config entry
func (s *SQLiteStore) ConfigValue(ctx context.Context, key string) (string, bool, error) {
	var v string

	err := s.db.QueryRowContext(ctx, `SELECT config_value FROM system_config WHERE config_key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("%w: read config %s: %w", ErrPersistence, key, err)
	}

	return v, true, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}

	log.Println("SQLiteStore: database closed")

	return nil
}
