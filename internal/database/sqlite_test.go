package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "mine.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLiteReadings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		r := models.Reading{Pressure: float64(i), Temperature: 20, Vibration: 1, Timestamp: float64(1000 + i)}
		require.NoError(t, s.SaveReading(ctx, r))
	}

	got, err := s.RecentReadings(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.InDelta(t, 3.0, got[0].Pressure, 1e-9)
	assert.InDelta(t, 5.0, got[2].Pressure, 1e-9)
	assert.InDelta(t, 1005.0, got[2].Timestamp, 1e-9)
}

func TestSQLiteAlarms(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ev := &models.AlarmEvent{
		Seq:       7,
		Type:      models.AlarmThreshold,
		Level:     models.LevelDanger,
		Parameter: models.ParameterPressure,
		Value:     90,
		Threshold: 80,
		Message:   "pressure danger",
		Timestamp: 1000,
	}

	require.NoError(t, s.SaveAlarm(ctx, ev))
	assert.Equal(t, "1", ev.ID)

	second := *ev
	second.Seq = 8
	require.NoError(t, s.SaveAlarm(ctx, &second))
	assert.Equal(t, "2", second.ID)

	// after a restart the engine hands out seq 7 again
	restarted := *ev
	restarted.Timestamp = 2000
	require.NoError(t, s.SaveAlarm(ctx, &restarted))
	assert.Equal(t, "3", restarted.ID)

	require.NoError(t, s.AcknowledgeAlarm(ctx, restarted))

	acked := func(id int) bool {
		var v bool
		require.NoError(t, s.db.QueryRow(`SELECT acknowledged FROM alarm_records WHERE id = ?`, id).Scan(&v))

		return v
	}

	assert.False(t, acked(1))
	assert.False(t, acked(2))
	assert.True(t, acked(3))

	// seq 8 of this run was never saved; the earlier run's seq 8 is left alone
	unsaved := second
	unsaved.Timestamp = 2100
	assert.ErrorIs(t, s.AcknowledgeAlarm(ctx, unsaved), ErrAlarmNotFound)
	assert.False(t, acked(2))

	require.NoError(t, s.AcknowledgeAlarm(ctx, *ev))
	assert.True(t, acked(1))
}

func TestSQLiteMigratesAlarmSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE alarm_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alarm_type TEXT NOT NULL,
		alarm_level TEXT NOT NULL,
		parameter_name TEXT NOT NULL,
		parameter_value REAL NOT NULL,
		threshold_value REAL NOT NULL,
		message TEXT,
		timestamp REAL NOT NULL,
		acknowledged BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ev := &models.AlarmEvent{
		Seq:       3,
		Type:      models.AlarmSystem,
		Level:     models.LevelWarning,
		Parameter: models.ParameterSystem,
		Timestamp: 1000,
	}
	require.NoError(t, s.SaveAlarm(context.Background(), ev))
	assert.NoError(t, s.AcknowledgeAlarm(context.Background(), *ev))
}

func TestSQLiteAnalysis(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	res := &models.AnalysisResult{
		AnalysisType:    "safety_status",
		Result:          "温度偏高",
		Confidence:      0.8,
		Recommendations: []string{"加强通风"},
		RiskLevel:       models.LevelWarning,
		RawRiskLevel:    "警告",
		Timestamp:       1000,
	}

	require.NoError(t, s.SaveAnalysis(ctx, res))

	var input, result string
	require.NoError(t, s.db.QueryRow(`SELECT input_data, result FROM ai_analysis`).Scan(&input, &result))
	assert.Equal(t, "温度偏高", result)
	assert.JSONEq(t, `{"risk_level":"warning","raw_risk_level":"警告","recommendations":["加强通风"]}`, input)
}

func TestSQLiteConfigValues(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.ConfigValue(ctx, "thresholds")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetConfigValue(ctx, "thresholds", `{"a":1}`, "active thresholds"))
	require.NoError(t, s.SetConfigValue(ctx, "thresholds", `{"a":2}`, "active thresholds"))

	v, ok, err := s.ConfigValue(ctx, "thresholds")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":2}`, v)
}

func TestSQLiteWALEnabled(t *testing.T) {
	s := newTestSQLite(t)

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
