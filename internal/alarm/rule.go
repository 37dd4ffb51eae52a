package alarm

import (
	"fmt"
	"math"

	"mine-monitor/internal/models"
	"mine-monitor/pkg/config"
)

// Range is an inclusive [Low, High] interval
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies in the closed interval
func (r Range) Contains(v float64) bool {
	return r.Low <= v && v <= r.High
}

// Rule holds the three ranges for one monitored parameter
type Rule struct {
	Parameter models.Parameter `json:"parameter"`
	Normal    Range            `json:"normal"`
	Warning   Range            `json:"warning"`
	Danger    Range            `json:"danger"`
}

// Evaluate classifies a value. Danger is checked first and is open-ended above
// its lower bound, so a value shared by the warning and danger ranges is danger.
func (r Rule) Evaluate(value float64) models.AlarmLevel {
	if value >= r.Danger.Low {
		return models.LevelDanger
	}

	if r.Warning.Contains(value) {
		return models.LevelWarning
	}

	return models.LevelNormal
}

// Threshold returns the bound that a level is measured against
func (r Rule) Threshold(level models.AlarmLevel) float64 {
	switch level {
	case models.LevelDanger:
		return r.Danger.Low
	case models.LevelWarning:
		return r.Warning.Low
	default:
		return r.Normal.High
	}
}

// Validate rejects malformed or crossing ranges
func (r Rule) Validate() error {
	ranges := []struct {
		name string
		rng  Range
	}{
		{"normal", r.Normal},
		{"warning", r.Warning},
		{"danger", r.Danger},
	}

	for _, x := range ranges {
		if !finite(x.rng.Low) || !finite(x.rng.High) {
			return fmt.Errorf("%w: %s %s range is not finite", ErrInvalidRule, r.Parameter, x.name)
		}

		if x.rng.Low > x.rng.High {
			return fmt.Errorf("%w: %s %s range low %.2f > high %.2f",
				ErrInvalidRule, r.Parameter, x.name, x.rng.Low, x.rng.High)
		}
	}

	if r.Danger.Low < r.Warning.High {
		return fmt.Errorf("%w: %s danger low %.2f below warning high %.2f",
			ErrInvalidRule, r.Parameter, r.Danger.Low, r.Warning.High)
	}

	if r.Warning.Low < r.Normal.High {
		return fmt.Errorf("%w: %s warning low %.2f below normal high %.2f",
			ErrInvalidRule, r.Parameter, r.Warning.Low, r.Normal.High)
	}

	return nil
}

// RulesFromThresholds builds one rule per monitored parameter
func RulesFromThresholds(t config.Thresholds) ([]Rule, error) {
	rules := make([]Rule, 0, len(models.MonitoredParameters))

	for _, p := range models.MonitoredParameters {
		th, ok := t[string(p)]
		if !ok {
			return nil, fmt.Errorf("%w: no thresholds for %s", ErrInvalidRule, p)
		}

		rule := Rule{
			Parameter: p,
			Normal:    Range{Low: th.Normal.Low(), High: th.Normal.High()},
			Warning:   Range{Low: th.Warning.Low(), High: th.Warning.High()},
			Danger:    Range{Low: th.Danger.Low(), High: th.Danger.High()},
		}

		if err := rule.Validate(); err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
