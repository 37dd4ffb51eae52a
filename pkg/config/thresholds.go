package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrInvalidThresholds marks a malformed thresholds configuration
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Range is a [low, high] pair, encoded in JSON as a two-element array
type Range [2]float64

func (r Range) Low() float64  { return r[0] }
func (r Range) High() float64 { return r[1] }

// ParameterThresholds holds the three ranges for one parameter
type ParameterThresholds struct {
	Normal  Range `json:"normal"`
	Warning Range `json:"warning"`
	Danger  Range `json:"danger"`
}

// Thresholds maps parameter name (pressure, temperature, vibration) to its ranges
type Thresholds map[string]ParameterThresholds

var requiredParameters = []string{"pressure", "temperature", "vibration"}

// DefaultThresholds returns the factory settings for the mine sensors
func DefaultThresholds() Thresholds {
	return Thresholds{
		"pressure": {
			Normal:  Range{0, 50},
			Warning: Range{50, 80},
			Danger:  Range{80, 100},
		},
		"temperature": {
			Normal:  Range{10, 35},
			Warning: Range{35, 50},
			Danger:  Range{50, 70},
		},
		"vibration": {
			Normal:  Range{0, 20},
			Warning: Range{20, 40},
			Danger:  Range{40, 60},
		},
	}
}

// LoadThresholds reads a thresholds JSON file and validates its shape
func LoadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds file '%s': %w", path, err)
	}

	var t Thresholds
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal JSON from '%s': %v", ErrInvalidThresholds, path, err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks that every monitored parameter has finite, well-formed ranges.
// Ordering between ranges is checked by the alarm rules.
func (t Thresholds) Validate() error {
	for _, name := range requiredParameters {
		p, ok := t[name]
		if !ok {
			return fmt.Errorf("%w: missing parameter %q", ErrInvalidThresholds, name)
		}

		for label, r := range map[string]Range{"normal": p.Normal, "warning": p.Warning, "danger": p.Danger} {
			if !isFinite(r.Low()) || !isFinite(r.High()) {
				return fmt.Errorf("%w: %s %s range is not finite", ErrInvalidThresholds, name, label)
			}

			if r.Low() > r.High() {
				return fmt.Errorf("%w: %s %s range low %.2f > high %.2f",
					ErrInvalidThresholds, name, label, r.Low(), r.High())
			}
		}
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
