package inundation

import (
	"fmt"
	"math"
	"slices"
)

// A Transform is an affine transform from raster cell coordinates to spatial
// coordinates, using GDAL's coefficient order:
//
//	x = t[0] + col*t[1] + row*t[2]
//	y = t[3] + col*t[4] + row*t[5]
type Transform [6]float64

// Apply returns the spatial coordinates of the raster coordinates col, row.
func (t Transform) Apply(col, row float64) (float64, float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// determinant returns the determinant of the linear part of t.
func (t Transform) determinant() float64 {
	return t[1]*t[5] - t[2]*t[4]
}

// A Raster is a single band grid of elevations. Rasters are immutable and safe
// for concurrent reads.
type Raster struct {
	width     int
	height    int
	data      []float64
	noData    float64
	hasNoData bool
	transform Transform
	crs       string
}

// A RasterOption sets an option on a Raster.
type RasterOption func(*Raster)

// WithNoData sets the nodata value.
func WithNoData(noData float64) RasterOption {
	return func(r *Raster) {
		r.noData = noData
		r.hasNoData = true
	}
}

// NewRaster returns a new Raster with a copy of the given row-major data. NaN
// values are always treated as nodata.
func NewRaster(width, height int, data []float64, transform Transform, crs string, options ...RasterOption) (*Raster, error) {
	if width < 0 || height < 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d raster with %d values", ErrInvalidArgument, width, height, len(data))
	}
	if transform.determinant() == 0 {
		return nil, fmt.Errorf("%w: degenerate transform %v", ErrInvalidArgument, transform)
	}
	r := &Raster{
		width:     width,
		height:    height,
		data:      slices.Clone(data),
		transform: transform,
		crs:       crs,
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// Size returns the width and height of r.
func (r *Raster) Size() (int, int) {
	return r.width, r.height
}

// Transform returns r's transform.
func (r *Raster) Transform() Transform {
	return r.transform
}

// CRS returns r's CRS.
func (r *Raster) CRS() string {
	return r.crs
}

// NoData returns r's nodata value and whether it is set.
func (r *Raster) NoData() (float64, bool) {
	return r.noData, r.hasNoData
}

// At returns the value at col, row, or NaN if the cell is nodata or outside r.
func (r *Raster) At(col, row int) float64 {
	if col < 0 || r.width <= col || row < 0 || r.height <= row {
		return math.NaN()
	}
	value := r.data[col+row*r.width]
	if !r.valid(value) {
		return math.NaN()
	}
	return value
}

// ValidCells returns the number of cells that are not nodata.
func (r *Raster) ValidCells() int {
	n := 0
	for _, value := range r.data {
		if r.valid(value) {
			n++
		}
	}
	return n
}

func (r *Raster) valid(value float64) bool {
	return !math.IsNaN(value) && (!r.hasNoData || value != r.noData)
}
