package inundation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// SelectCharacteristic returns the nHigh highest and nLow lowest samples,
// sorted by time. A sample that is among both the highest and the lowest is
// returned once. Samples with NaN levels are ignored. If there are fewer
// samples than requested then all available samples are returned.
func SelectCharacteristic(samples []Sample, nHigh, nLow int) ([]Sample, error) {
	if nHigh < 0 || nLow < 0 {
		return nil, fmt.Errorf("%w: nHigh=%d nLow=%d", ErrInvalidArgument, nHigh, nLow)
	}

	indexes := make([]int, 0, len(samples))
	for i, sample := range samples {
		if !math.IsNaN(sample.Level) {
			indexes = append(indexes, i)
		}
	}

	// Ties are broken by the earlier time, then by input order.
	byTime := func(i, j int) int {
		return samples[i].Time.Compare(samples[j].Time)
	}
	highs := slices.Clone(indexes)
	slices.SortStableFunc(highs, func(i, j int) int {
		return cmp.Or(cmp.Compare(samples[j].Level, samples[i].Level), byTime(i, j))
	})
	lows := slices.Clone(indexes)
	slices.SortStableFunc(lows, func(i, j int) int {
		return cmp.Or(cmp.Compare(samples[i].Level, samples[j].Level), byTime(i, j))
	})

	selected := make(map[int]struct{}, nHigh+nLow)
	for _, index := range highs[:min(nHigh, len(highs))] {
		selected[index] = struct{}{}
	}
	for _, index := range lows[:min(nLow, len(lows))] {
		selected[index] = struct{}{}
	}

	result := make([]Sample, 0, len(selected))
	for index := range selected {
		result = append(result, samples[index])
	}
	slices.SortFunc(result, func(a, b Sample) int {
		return cmp.Or(a.Time.Compare(b.Time), cmp.Compare(a.Level, b.Level))
	})
	return result, nil
}
