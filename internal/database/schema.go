package database

// SQLite schema, matching the tables the monitoring station has always written
const sqliteSchemaSQL = `
	CREATE TABLE IF NOT EXISTS sensor_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pressure REAL NOT NULL,
		temperature REAL NOT NULL,
		vibration REAL NOT NULL,
		timestamp REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS alarm_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL DEFAULT 0,
		alarm_type TEXT NOT NULL,
		alarm_level TEXT NOT NULL,
		parameter_name TEXT NOT NULL,
		parameter_value REAL NOT NULL,
		threshold_value REAL NOT NULL,
		message TEXT,
		timestamp REAL NOT NULL,
		acknowledged BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS system_config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_key TEXT UNIQUE NOT NULL,
		config_value TEXT NOT NULL,
		description TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ai_analysis (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_type TEXT NOT NULL,
		input_data TEXT NOT NULL,
		result TEXT NOT NULL,
		confidence REAL,
		timestamp REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sensor_timestamp ON sensor_data(timestamp);
`

// SQL schemas for the ClickHouse tables
const (
	// SensorReadingsTableSQL creates the sensor_readings table
	SensorReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_readings (
			id UUID,
			timestamp DateTime64(3),
			pressure Float64,
			temperature Float64,
			vibration Float64
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`

	// AlarmEventsTableSQL creates the alarm_events table
	AlarmEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS alarm_events (
			id UUID,
			timestamp DateTime64(3),
			alarm_type String,
			alarm_level String,
			parameter_name String,
			parameter_value Float64,
			threshold_value Float64,
			message String
		) ENGINE = MergeTree()
		ORDER BY (parameter_name, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// AnalysisResultsTableSQL creates the analysis_results table
	AnalysisResultsTableSQL = `
		CREATE TABLE IF NOT EXISTS analysis_results (
			id UUID,
			timestamp DateTime64(3),
			analysis_type String,
			risk_level String,
			raw_risk_level String,
			result String,
			confidence Float64,
			recommendations Array(String)
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all ClickHouse table creation statements
func AllTables() []string {
	return []string{
		SensorReadingsTableSQL,
		AlarmEventsTableSQL,
		AnalysisResultsTableSQL,
	}
}
