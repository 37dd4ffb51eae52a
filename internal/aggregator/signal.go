package aggregator

import (
	"math"

	"mine-monitor/internal/models"
)

// DefaultAnomalySigma is the z-score above which a sample counts as anomalous
const DefaultAnomalySigma = 2.0

// SeriesStats summarizes one parameter over a window of readings
type SeriesStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	RMS    float64 `json:"rms"`
}

// Series extracts one parameter from readings in order
func Series(readings []models.Reading, p models.Parameter) []float64 {
	out := make([]float64, 0, len(readings))

	for _, r := range readings {
		if v, ok := r.Value(p); ok {
			out = append(out, v)
		}
	}

	return out
}

// Summarize computes count, mean, population standard deviation, min, max and RMS
func Summarize(values []float64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}

	s := SeriesStats{
		Count: len(values),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}

	var sum, sumSquares float64
	for _, v := range values {
		sum += v
		sumSquares += v * v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}

	n := float64(len(values))
	s.Mean = sum / n
	s.RMS = math.Sqrt(sumSquares / n)

	var variance float64
	for _, v := range values {
		d := v - s.Mean
		variance += d * d
	}

	s.StdDev = math.Sqrt(variance / n)

	return s
}

// MovingAverage returns the trailing mean over window samples. The first
// window-1 entries are passed through unchanged, as is a series shorter than
// the window. A window < 1 is treated as 1.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}

	out := make([]float64, len(values))
	copy(out, values)

	if len(values) < window {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}

		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}

	return out
}

// ZScore returns how many standard deviations v lies from the series mean.
// A flat series has no spread, so any value scores zero.
func ZScore(v float64, s SeriesStats) float64 {
	if s.Count == 0 || s.StdDev == 0 {
		return 0
	}

	return (v - s.Mean) / s.StdDev
}

// DetectAnomalies returns the indices whose |z| is at least sigma
func DetectAnomalies(values []float64, sigma float64) []int {
	if sigma <= 0 {
		sigma = DefaultAnomalySigma
	}

	if len(values) < 3 {
		return nil
	}

	s := Summarize(values)

	var idx []int
	for i, v := range values {
		if math.Abs(ZScore(v, s)) >= sigma {
			idx = append(idx, i)
		}
	}

	return idx
}

// Trend is the difference between the last and first moving-average points
func Trend(values []float64, window int) float64 {
	if len(values) < 2 {
		return 0
	}

	ma := MovingAverage(values, window)

	return ma[len(ma)-1] - ma[0]
}
