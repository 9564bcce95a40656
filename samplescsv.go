package inundation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"time"
)

// Column names of water level CSV files.
const (
	csvTimeColumn     = "datetime"
	csvLevelColumn    = "water_level"
	csvRawTimeColumn  = "t"
	csvRawLevelColumn = "v"
)

// csvTimeLayouts are the time layouts accepted in water level CSV files, in
// order of preference.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// WriteSamplesCSV writes samples to w as CSV with a datetime,water_level
// header. Times are written in RFC 3339 format and missing levels are written
// as empty fields.
func WriteSamplesCSV(w io.Writer, samples []Sample) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{csvTimeColumn, csvLevelColumn}); err != nil {
		return err
	}
	for _, sample := range samples {
		level := ""
		if !math.IsNaN(sample.Level) {
			level = strconv.FormatFloat(sample.Level, 'f', -1, 64)
		}
		if err := csvWriter.Write([]string{sample.Time.Format(time.RFC3339), level}); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ReadSamplesCSV reads samples from CSV in r. The header must contain either
// datetime and water_level columns or NOAA's raw t and v columns. Levels that
// cannot be parsed are NaN.
func ReadSamplesCSV(r io.Reader) ([]Sample, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	switch {
	case errors.Is(err, io.EOF):
		return nil, nil
	case err != nil:
		return nil, err
	}
	timeIndex, levelIndex, err := csvColumns(header)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for {
		record, err := csvReader.Read()
		switch {
		case errors.Is(err, io.EOF):
			return samples, nil
		case err != nil:
			return nil, err
		}
		if timeIndex >= len(record) {
			line, _ := csvReader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w: missing %s", line, ErrInvalidArgument, header[timeIndex])
		}
		t, err := parseCSVTime(record[timeIndex])
		if err != nil {
			line, _ := csvReader.FieldPos(timeIndex)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		level := math.NaN()
		if levelIndex < len(record) {
			if value, err := strconv.ParseFloat(record[levelIndex], 64); err == nil {
				level = value
			}
		}
		samples = append(samples, Sample{
			Time:  t,
			Level: level,
		})
	}
}

// csvColumns returns the indexes of the time and level columns in header.
// Derived datetime and water_level columns take precedence over raw ones.
func csvColumns(header []string) (int, int, error) {
	for _, columns := range [][2]string{
		{csvTimeColumn, csvLevelColumn},
		{csvRawTimeColumn, csvRawLevelColumn},
	} {
		timeIndex := slices.Index(header, columns[0])
		levelIndex := slices.Index(header, columns[1])
		if timeIndex >= 0 && levelIndex >= 0 {
			return timeIndex, levelIndex, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: no time and level columns in header %q", ErrInvalidArgument, header)
}

func parseCSVTime(s string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidArgument, s)
}
