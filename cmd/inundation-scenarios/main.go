package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/twpayne/go-inundation"
	"github.com/twpayne/go-inundation/noaa"
	"github.com/twpayne/go-inundation/render"
)

type options struct {
	configPath  string
	debug       bool
	metricsFile string

	station     string
	beginDate   string
	endDate     string
	high        int
	low         int
	workers     int
	errorPolicy string
	fetch       bool

	config inundation.Config
	logger *zap.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	defaults := inundation.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:           "inundation-scenarios",
		Short:         "Map coastal inundation scenarios for characteristic tide levels",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return o.close()
		},
	}

	persistentFlags := rootCmd.PersistentFlags()
	persistentFlags.StringVar(&o.configPath, "config", "inundation.toml", "config file")
	persistentFlags.BoolVar(&o.debug, "debug", false, "debug logging")
	persistentFlags.StringVar(&o.metricsFile, "metrics-file", "", "write metrics to file on exit")
	persistentFlags.StringVar(&o.station, "station", defaults.Station.ID, "NOAA station ID")
	persistentFlags.StringVar(&o.beginDate, "begin-date", defaults.Station.BeginDate, "begin date (YYYY-MM-DD)")
	persistentFlags.StringVar(&o.endDate, "end-date", defaults.Station.EndDate, "end date (YYYY-MM-DD)")

	rootCmd.AddCommand(o.newFetchCmd())
	rootCmd.AddCommand(o.newRunCmd(defaults))

	return rootCmd
}

func (o *options) newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch water levels from NOAA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := o.fetchWaterLevels(cmd.Context())
			return err
		},
	}
}

func (o *options) newRunCmd(defaults inundation.Config) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute, write, and render inundation scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context())
		},
	}
	flags := runCmd.Flags()
	flags.IntVar(&o.high, "high", defaults.Extrema.High, "number of highest water levels")
	flags.IntVar(&o.low, "low", defaults.Extrema.Low, "number of lowest water levels")
	flags.IntVar(&o.workers, "workers", defaults.Scenarios.Workers, "number of concurrent scenarios")
	flags.StringVar(&o.errorPolicy, "error-policy", defaults.Scenarios.ErrorPolicy, "error policy (abort or skip)")
	flags.BoolVar(&o.fetch, "fetch", false, "fetch water levels even if they are cached")
	return runCmd
}

// init builds the logger and the configuration. Flags set on the command line
// override values from the config file.
func (o *options) init(cmd *cobra.Command) error {
	var err error
	if o.debug {
		o.logger, err = zap.NewDevelopment()
	} else {
		o.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	o.config, err = inundation.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	applyFlag(cmd, "station", &o.config.Station.ID, o.station)
	applyFlag(cmd, "begin-date", &o.config.Station.BeginDate, o.beginDate)
	applyFlag(cmd, "end-date", &o.config.Station.EndDate, o.endDate)
	applyFlag(cmd, "high", &o.config.Extrema.High, o.high)
	applyFlag(cmd, "low", &o.config.Extrema.Low, o.low)
	applyFlag(cmd, "workers", &o.config.Scenarios.Workers, o.workers)
	applyFlag(cmd, "error-policy", &o.config.Scenarios.ErrorPolicy, o.errorPolicy)
	return o.config.Validate()
}

func (o *options) close() error {
	if o.logger != nil {
		_ = o.logger.Sync()
	}
	if o.metricsFile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(o.metricsFile, prometheus.DefaultGatherer)
}

func applyFlag[T any](cmd *cobra.Command, name string, dst *T, value T) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func (o *options) fetchWaterLevels(ctx context.Context) ([]inundation.Sample, error) {
	beginDate, err := time.Parse(inundation.DateLayout, o.config.Station.BeginDate)
	if err != nil {
		return nil, err
	}
	endDate, err := time.Parse(inundation.DateLayout, o.config.Station.EndDate)
	if err != nil {
		return nil, err
	}

	client := noaa.NewClient(
		noaa.WithTimeout(o.config.HTTP.Timeout),
		noaa.WithLogger(o.logger),
	)
	samples, err := client.WaterLevels(ctx, noaa.Request{
		Station:   o.config.Station.ID,
		Product:   o.config.Station.Product,
		Datum:     o.config.Station.Datum,
		TimeZone:  o.config.Station.TimeZone,
		Units:     o.config.Station.Units,
		BeginDate: beginDate,
		EndDate:   endDate,
	})
	if err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := inundation.WriteSamplesCSV(&buffer, samples); err != nil {
		return nil, err
	}
	if err := writeFile(o.config.DataPath(o.config.Paths.WaterLevels), buffer.Bytes()); err != nil {
		return nil, err
	}
	return samples, nil
}

func (o *options) readWaterLevels(ctx context.Context) ([]inundation.Sample, error) {
	if o.fetch {
		return o.fetchWaterLevels(ctx)
	}
	file, err := os.Open(o.config.DataPath(o.config.Paths.WaterLevels))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return o.fetchWaterLevels(ctx)
	case err != nil:
		return nil, err
	}
	defer file.Close()
	return inundation.ReadSamplesCSV(file)
}

// readPolygons reads the GeoJSON file at path. A missing file is returned as a
// nil polygon set.
func (o *options) readPolygons(path string) (*inundation.PolygonSet, error) {
	ps, err := inundation.ReadGeoJSON(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if errors.Is(err, inundation.ErrResourceNotFound) {
		o.logger.Warn("not found", zap.String("path", path))
		return nil, nil
	}
	return ps, err
}

func (o *options) run(ctx context.Context) error {
	samples, err := o.readWaterLevels(ctx)
	if err != nil {
		return err
	}
	summary := inundation.Summarize(samples)
	o.logger.Info("water levels",
		zap.Int("count", summary.Count),
		zap.Int("missing", summary.Missing),
		zap.Time("begin", summary.Begin),
		zap.Time("end", summary.End),
		zap.Float64("min", summary.Min),
		zap.Float64("max", summary.Max),
		zap.Float64("mean", summary.Mean),
		zap.Float64("stdDev", summary.StdDev),
	)

	levels, err := inundation.SelectCharacteristic(samples, o.config.Extrema.High, o.config.Extrema.Low)
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		o.logger.Warn("no characteristic water levels")
	}

	aoi, err := o.readPolygons(o.config.DataPath(o.config.Paths.AOI))
	if err != nil {
		return err
	}
	coastline, err := o.readPolygons(o.config.DataPath(o.config.Paths.Coastline))
	if err != nil {
		return err
	}

	reprojector, err := inundation.NewProjReprojector()
	if err != nil {
		return err
	}
	clipper, err := inundation.NewClipper(inundation.WithReprojector(reprojector))
	if err != nil {
		return err
	}
	if !aoi.Empty() && !coastline.Empty() {
		coastline, err = clipper.PrepareCoastline(coastline, aoi)
		if err != nil {
			return err
		}
	}

	demPath := o.config.DataPath(o.config.Paths.DEM)
	raster, err := inundation.ReadGeoTIFF(os.DirFS(filepath.Dir(demPath)), filepath.Base(demPath))
	if err != nil {
		return err
	}
	width, height := raster.Size()
	o.logger.Info("read DEM",
		zap.String("path", demPath),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.String("crs", raster.CRS()),
	)

	mapper, err := inundation.NewThresholdMapper(
		inundation.WithClipper(clipper),
		inundation.WithThresholdMapperLogger(o.logger),
	)
	if err != nil {
		return err
	}
	errorPolicy, err := inundation.ParseErrorPolicy(o.config.Scenarios.ErrorPolicy)
	if err != nil {
		return err
	}
	orchestrator := inundation.NewOrchestrator(mapper,
		inundation.WithWorkers(o.config.Scenarios.Workers),
		inundation.WithErrorPolicy(errorPolicy),
		inundation.WithOrchestratorLogger(o.logger),
	)
	scenarios, err := orchestrator.Run(ctx, raster, levels, aoi)
	if err != nil {
		return err
	}

	var geoJSON bytes.Buffer
	if err := scenarios.WriteGeoJSON(&geoJSON); err != nil {
		return err
	}
	scenariosPath := o.config.DataPath(o.config.Paths.Scenarios)
	if err := writeFile(scenariosPath, geoJSON.Bytes()); err != nil {
		return err
	}

	if !coastline.Empty() && len(scenarios.Scenarios) > 0 && coastline.CRS != scenarios.Scenarios[0].Polygons.CRS {
		if coastline, err = reprojector.Reproject(coastline, scenarios.Scenarios[0].Polygons.CRS); err != nil {
			return err
		}
	}
	renderer := render.NewRenderer(
		render.WithSize(o.config.Render.Width, o.config.Render.Height),
		render.WithTitle(o.config.Render.Title),
	)
	var png bytes.Buffer
	if err := renderer.Render(&png, coastline, scenarios); err != nil {
		return err
	}
	mapPath := o.config.MapsPath(o.config.Paths.Map)
	if err := writeFile(mapPath, png.Bytes()); err != nil {
		return err
	}

	o.logger.Info("wrote scenarios",
		zap.Int("scenarios", len(scenarios.Scenarios)),
		zap.String("geojson", scenariosPath),
		zap.String("map", mapPath),
	)
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o666)
}
