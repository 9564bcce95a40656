package inundation

import (
	"context"
	"io/fs"
	"time"

	"go.uber.org/zap"
)

// A ThresholdMapper converts elevation rasters into inundation polygons for a
// water level.
type ThresholdMapper struct {
	vectorizer Vectorizer
	clipper    *Clipper
	logger     *zap.Logger
}

// A ThresholdMapperOption sets an option on a ThresholdMapper.
type ThresholdMapperOption func(*ThresholdMapper)

// WithVectorizer sets the Vectorizer. The default is a BoundaryVectorizer.
func WithVectorizer(vectorizer Vectorizer) ThresholdMapperOption {
	return func(m *ThresholdMapper) {
		m.vectorizer = vectorizer
	}
}

// WithClipper sets the Clipper used to clip polygons to AOIs.
func WithClipper(clipper *Clipper) ThresholdMapperOption {
	return func(m *ThresholdMapper) {
		m.clipper = clipper
	}
}

// WithThresholdMapperLogger sets the logger.
func WithThresholdMapperLogger(logger *zap.Logger) ThresholdMapperOption {
	return func(m *ThresholdMapper) {
		m.logger = logger
	}
}

// NewThresholdMapper returns a new ThresholdMapper.
func NewThresholdMapper(options ...ThresholdMapperOption) (*ThresholdMapper, error) {
	m := &ThresholdMapper{
		vectorizer: BoundaryVectorizer{},
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(m)
	}
	if m.clipper == nil {
		clipper, err := NewClipper()
		if err != nil {
			return nil, err
		}
		m.clipper = clipper
	}
	return m, nil
}

// Polygons returns the polygons covering the cells of raster whose elevations
// are at or below waterLevel. If aoi is not empty then the polygons are clipped
// to it and are in its CRS, otherwise they are in raster's CRS. Rasters without
// valid cells and water levels below every cell produce empty polygon sets.
func (m *ThresholdMapper) Polygons(ctx context.Context, raster *Raster, waterLevel float64, aoi *PolygonSet) (*PolygonSet, error) {
	start := time.Now()
	defer func() {
		thresholdDuration.Observe(time.Since(start).Seconds())
	}()

	mask := NewThresholdMask(raster, waterLevel)
	count := mask.Count()
	inundatedCells.Add(float64(count))

	polygons, err := m.vectorizer.Vectorize(ctx, mask)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("vectorized mask",
		zap.Float64("waterLevel", waterLevel),
		zap.Int("inundatedCells", count),
		zap.Int("polygons", len(polygons.Polygons)),
	)

	if aoi.Empty() {
		return polygons, nil
	}
	return m.clipper.Clip(polygons, aoi)
}

// PolygonsFromFile reads the GeoTIFF filename from fsys and returns its
// polygons for waterLevel. The file is closed before the polygons are
// computed.
func (m *ThresholdMapper) PolygonsFromFile(ctx context.Context, fsys fs.FS, filename string, waterLevel float64, aoi *PolygonSet) (*PolygonSet, error) {
	raster, err := ReadGeoTIFF(fsys, filename)
	if err != nil {
		return nil, err
	}
	return m.Polygons(ctx, raster, waterLevel, aoi)
}
