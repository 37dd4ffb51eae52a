package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMissingField is returned when a reading map lacks one of its keys
var ErrMissingField = errors.New("reading field missing")

// Parameter names a monitored physical quantity
type Parameter string

const (
	ParameterPressure    Parameter = "pressure"
	ParameterTemperature Parameter = "temperature"
	ParameterVibration   Parameter = "vibration"

	// ParameterSystem is reserved for alarms raised outside rule evaluation (AI risk, self-test)
	ParameterSystem Parameter = "system"
)

// MonitoredParameters lists sensor parameters in evaluation order
var MonitoredParameters = []Parameter{
	ParameterPressure,
	ParameterTemperature,
	ParameterVibration,
}

// Reading is one decoded sample from the hardware source
type Reading struct {
	Pressure    float64 `json:"pressure"`    // MPa
	Temperature float64 `json:"temperature"` // Celsius
	Vibration   float64 `json:"vibration"`   // mm/s
	Timestamp   float64 `json:"timestamp"`   // seconds since epoch
}

// NewReading stamps a reading with the given wall-clock time
func NewReading(pressure, temperature, vibration float64, at time.Time) Reading {
	return Reading{
		Pressure:    pressure,
		Temperature: temperature,
		Vibration:   vibration,
		Timestamp:   ToTimestamp(at),
	}
}

// Value returns the reading's value for a monitored parameter
func (r Reading) Value(p Parameter) (float64, bool) {
	switch p {
	case ParameterPressure:
		return r.Pressure, true
	case ParameterTemperature:
		return r.Temperature, true
	case ParameterVibration:
		return r.Vibration, true
	default:
		return 0, false
	}
}

// Time converts the reading timestamp to time.Time
func (r Reading) Time() time.Time {
	return FromTimestamp(r.Timestamp)
}

// ToMap flattens the reading into its wire mapping
func (r Reading) ToMap() map[string]float64 {
	return map[string]float64{
		"pressure":    r.Pressure,
		"temperature": r.Temperature,
		"vibration":   r.Vibration,
		"timestamp":   r.Timestamp,
	}
}

// ReadingFromMap rebuilds a reading from the mapping produced by ToMap
func ReadingFromMap(m map[string]float64) (Reading, error) {
	var r Reading

	fields := []struct {
		key string
		dst *float64
	}{
		{"pressure", &r.Pressure},
		{"temperature", &r.Temperature},
		{"vibration", &r.Vibration},
		{"timestamp", &r.Timestamp},
	}

	for _, f := range fields {
		v, ok := m[f.key]
		if !ok {
			return Reading{}, fmt.Errorf("%w: %s", ErrMissingField, f.key)
		}

		*f.dst = v
	}

	return r, nil
}

// ToTimestamp converts a time into fractional epoch seconds
func ToTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromTimestamp converts fractional epoch seconds into a time
func FromTimestamp(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
