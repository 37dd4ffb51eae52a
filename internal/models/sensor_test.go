package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingMapRoundTrip(t *testing.T) {
	readings := []Reading{
		{Pressure: 42.5, Temperature: 21.25, Vibration: 3.5, Timestamp: 1700000000.125},
		{Pressure: 0, Temperature: -40, Vibration: 0, Timestamp: 0},
		{Pressure: 1000, Temperature: 85, Vibration: 100, Timestamp: 1.5},
	}

	for _, r := range readings {
		got, err := ReadingFromMap(r.ToMap())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestReadingFromMapMissingField(t *testing.T) {
	m := Reading{Pressure: 1, Temperature: 2, Vibration: 3, Timestamp: 4}.ToMap()
	delete(m, "vibration")

	_, err := ReadingFromMap(m)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "vibration")
}

func TestReadingValue(t *testing.T) {
	r := Reading{Pressure: 1, Temperature: 2, Vibration: 3}

	v, ok := r.Value(ParameterTemperature)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	_, ok = r.Value(ParameterSystem)
	assert.False(t, ok)
}

func TestTimestampConversion(t *testing.T) {
	at := time.Unix(1700000000, 250_000_000)
	r := NewReading(1, 2, 3, at)

	assert.InDelta(t, 1700000000.25, r.Timestamp, 1e-6)
	assert.WithinDuration(t, at, r.Time(), time.Microsecond)
}

func TestParseRiskLevel(t *testing.T) {
	tests := map[string]AlarmLevel{
		"危险":      LevelDanger,
		"警告":      LevelWarning,
		"正常":      LevelNormal,
		"Danger":  LevelDanger,
		" warning": LevelWarning,
		"":        LevelNormal,
		"unknown": LevelNormal,
	}

	for label, want := range tests {
		assert.Equal(t, want, ParseRiskLevel(label), "label %q", label)
	}
}

func TestClampConfidence(t *testing.T) {
	assert.InDelta(t, 0.0, ClampConfidence(-0.5), 1e-9)
	assert.InDelta(t, 1.0, ClampConfidence(3), 1e-9)
	assert.InDelta(t, 0.4, ClampConfidence(0.4), 1e-9)
}
