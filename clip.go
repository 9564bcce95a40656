package inundation

import (
	"fmt"

	"github.com/ctessum/polyclip-go"
	"github.com/twpayne/go-geom"
)

// A Clipper intersects polygon sets with an area of interest.
type Clipper struct {
	reprojector Reprojector
}

// A ClipperOption sets an option on a Clipper.
type ClipperOption func(*Clipper)

// WithReprojector sets the Reprojector used when subjects and AOIs have
// different CRSs.
func WithReprojector(reprojector Reprojector) ClipperOption {
	return func(c *Clipper) {
		c.reprojector = reprojector
	}
}

// NewClipper returns a new Clipper. If no Reprojector is given then a
// ProjReprojector is used.
func NewClipper(options ...ClipperOption) (*Clipper, error) {
	c := &Clipper{}
	for _, option := range options {
		option(c)
	}
	if c.reprojector == nil {
		reprojector, err := NewProjReprojector()
		if err != nil {
			return nil, err
		}
		c.reprojector = reprojector
	}
	return c, nil
}

// Clip returns the intersection of subject with aoi, in aoi's CRS. Polygons
// entirely outside aoi contribute nothing. An empty aoi or an aoi without a
// CRS is an error wrapping ErrInvalidArgument.
func (c *Clipper) Clip(subject, aoi *PolygonSet) (*PolygonSet, error) {
	if aoi.Empty() {
		return nil, fmt.Errorf("%w: empty AOI", ErrInvalidArgument)
	}
	if aoi.CRS == "" {
		return nil, fmt.Errorf("%w: AOI has no CRS", ErrInvalidArgument)
	}
	if subject.Empty() {
		return NewPolygonSet(aoi.CRS), nil
	}

	reprojected, err := c.reprojector.Reproject(subject, aoi.CRS)
	if err != nil {
		return nil, err
	}

	clipping, clippingBounds := unionPolygons(aoi.Polygons)

	var polygons []*geom.Polygon
	for _, polygon := range reprojected.Polygons {
		if !polygon.Bounds().Overlaps(geom.XY, clippingBounds) {
			continue
		}
		contours := toPolyclip(polygon).Construct(polyclip.INTERSECTION, clipping)
		polygons = append(polygons, fromPolyclip(contours)...)
	}
	return NewPolygonSet(aoi.CRS, polygons...), nil
}

// PrepareCoastline returns coastline clipped to aoi.
func (c *Clipper) PrepareCoastline(coastline, aoi *PolygonSet) (*PolygonSet, error) {
	return c.Clip(coastline, aoi)
}

// unionPolygons returns the union of polygons and its bounds.
func unionPolygons(polygons []*geom.Polygon) (polyclip.Polygon, *geom.Bounds) {
	bounds := geom.NewBounds(geom.XY)
	var union polyclip.Polygon
	for i, polygon := range polygons {
		bounds.Extend(polygon)
		if i == 0 {
			union = toPolyclip(polygon)
		} else {
			union = union.Construct(polyclip.UNION, toPolyclip(polygon))
		}
	}
	return union, bounds
}
