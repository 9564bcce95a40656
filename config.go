package inundation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DateLayout is the layout of dates in configuration files.
const DateLayout = "2006-01-02"

// A Config is the configuration of a scenario run.
type Config struct {
	Station   StationConfig   `toml:"station"`
	Paths     PathsConfig     `toml:"paths"`
	Extrema   ExtremaConfig   `toml:"extrema"`
	Scenarios ScenariosConfig `toml:"scenarios"`
	Render    RenderConfig    `toml:"render"`
	HTTP      HTTPConfig      `toml:"http"`
}

// A StationConfig selects the water level data fetched from NOAA.
type StationConfig struct {
	ID        string `toml:"id"`
	Product   string `toml:"product"`
	Datum     string `toml:"datum"`
	TimeZone  string `toml:"time-zone"`
	Units     string `toml:"units"`
	BeginDate string `toml:"begin-date"`
	EndDate   string `toml:"end-date"`
}

// A PathsConfig holds input and output paths.
type PathsConfig struct {
	DataDir     string `toml:"data-dir"`
	MapsDir     string `toml:"maps-dir"`
	AOI         string `toml:"aoi"`
	Coastline   string `toml:"coastline"`
	DEM         string `toml:"dem"`
	WaterLevels string `toml:"water-levels"`
	Scenarios   string `toml:"scenarios"`
	Map         string `toml:"map"`
}

// An ExtremaConfig holds the number of highest and lowest samples selected.
type ExtremaConfig struct {
	High int `toml:"high"`
	Low  int `toml:"low"`
}

// A ScenariosConfig configures the scenario orchestrator.
type ScenariosConfig struct {
	Workers     int    `toml:"workers"`
	ErrorPolicy string `toml:"error-policy"`
}

// A RenderConfig configures the rendered map.
type RenderConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

// An HTTPConfig configures HTTP clients.
type HTTPConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Station: StationConfig{
			ID:        "8632200",
			Product:   "water_level",
			Datum:     "MLLW",
			TimeZone:  "GMT",
			Units:     "metric",
			BeginDate: "2024-01-01",
			EndDate:   "2024-01-07",
		},
		Paths: PathsConfig{
			DataDir:     "data",
			MapsDir:     "maps",
			AOI:         filepath.Join("processed", "aoi.geojson"),
			Coastline:   filepath.Join("processed", "coastline.geojson"),
			DEM:         filepath.Join("raw", "dem.tif"),
			WaterLevels: filepath.Join("interim", "water_levels.csv"),
			Scenarios:   filepath.Join("processed", "scenarios.geojson"),
			Map:         filepath.Join("static", "inundation_scenarios.png"),
		},
		Extrema: ExtremaConfig{
			High: 2,
			Low:  2,
		},
		Scenarios: ScenariosConfig{
			Workers:     4,
			ErrorPolicy: AbortOnError.String(),
		},
		Render: RenderConfig{
			Width:  1600,
			Height: 1600,
			Title:  "Inundation scenarios",
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// LoadConfig returns the default configuration overridden by the TOML file at
// path. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate returns an error wrapping ErrInvalidArgument if c is invalid.
func (c Config) Validate() error {
	if c.Extrema.High < 0 || c.Extrema.Low < 0 {
		return fmt.Errorf("%w: negative extrema count", ErrInvalidArgument)
	}
	if _, err := ParseErrorPolicy(c.Scenarios.ErrorPolicy); err != nil {
		return err
	}
	beginDate, err := time.Parse(DateLayout, c.Station.BeginDate)
	if err != nil {
		return fmt.Errorf("%w: begin date: %w", ErrInvalidArgument, err)
	}
	endDate, err := time.Parse(DateLayout, c.Station.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end date: %w", ErrInvalidArgument, err)
	}
	if endDate.Before(beginDate) {
		return fmt.Errorf("%w: end date %s before begin date %s", ErrInvalidArgument, c.Station.EndDate, c.Station.BeginDate)
	}
	return nil
}

// DataPath returns the path of name relative to the data directory.
func (c Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.DataDir, name)
}

// MapsPath returns the path of name relative to the maps directory.
func (c Config) MapsPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.MapsDir, name)
}
