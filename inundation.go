// Package inundation selects characteristic tidal water levels from a time
// series and converts a digital elevation model into flood-extent polygons for
// each of them.
package inundation

import (
	"errors"
	"time"

	"github.com/twpayne/go-geom"
)

var (
	// ErrResourceNotFound is returned when a raster, AOI, or coastline file
	// does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrInvalidArgument is returned for negative counts, missing CRSs, and
	// empty AOIs passed to [Clipper.Clip].
	ErrInvalidArgument = errors.New("invalid argument")
)

// A Sample is a water level observed at a time. A NaN level means that the
// observation is missing.
type Sample struct {
	Time  time.Time
	Level float64
}

// A PolygonSet is a set of polygons in a single CRS.
type PolygonSet struct {
	CRS      string
	Polygons []*geom.Polygon
}

// NewPolygonSet returns a new PolygonSet.
func NewPolygonSet(crs string, polygons ...*geom.Polygon) *PolygonSet {
	return &PolygonSet{
		CRS:      crs,
		Polygons: polygons,
	}
}

// Empty returns true if ps is nil or contains no polygons.
func (ps *PolygonSet) Empty() bool {
	return ps == nil || len(ps.Polygons) == 0
}

// Area returns the total area of ps in its CRS's units.
func (ps *PolygonSet) Area() float64 {
	if ps == nil {
		return 0
	}
	var area float64
	for _, polygon := range ps.Polygons {
		area += polygonArea(polygon)
	}
	return area
}

// Bounds returns the bounds of ps.
func (ps *PolygonSet) Bounds() *geom.Bounds {
	bounds := geom.NewBounds(geom.XY)
	if ps == nil {
		return bounds
	}
	for _, polygon := range ps.Polygons {
		bounds.Extend(polygon)
	}
	return bounds
}
