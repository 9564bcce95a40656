package inundation

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A Summary summarizes a water level series.
type Summary struct {
	Count   int
	Missing int
	Begin   time.Time
	End     time.Time
	Min     float64
	Max     float64
	Mean    float64
	StdDev  float64
}

// Range returns the tidal range of s.
func (s Summary) Range() float64 {
	return s.Max - s.Min
}

// Summarize returns a summary of samples. Missing levels are counted but
// otherwise ignored. The statistics of a series without levels are NaN.
func Summarize(samples []Sample) Summary {
	summary := Summary{
		Min:    math.NaN(),
		Max:    math.NaN(),
		Mean:   math.NaN(),
		StdDev: math.NaN(),
	}
	levels := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if summary.Begin.IsZero() || sample.Time.Before(summary.Begin) {
			summary.Begin = sample.Time
		}
		if sample.Time.After(summary.End) {
			summary.End = sample.Time
		}
		if math.IsNaN(sample.Level) {
			summary.Missing++
			continue
		}
		levels = append(levels, sample.Level)
	}
	summary.Count = len(levels)
	if len(levels) == 0 {
		return summary
	}
	summary.Min = floats.Min(levels)
	summary.Max = floats.Max(levels)
	summary.Mean = stat.Mean(levels, nil)
	if len(levels) > 1 {
		summary.StdDev = stat.StdDev(levels, nil)
	}
	return summary
}
