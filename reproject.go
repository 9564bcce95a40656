package inundation

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-proj/v11"
)

// A Reprojector reprojects polygon sets into another CRS.
type Reprojector interface {
	Reproject(ps *PolygonSet, crs string) (*PolygonSet, error)
}

// A crsPair is a source and target CRS.
type crsPair struct {
	source string
	target string
}

// A ProjReprojector reprojects polygon sets with PROJ. Transformers use the
// axis order expected for visualization, i.e. longitude, latitude for
// geographic CRSs and easting, northing for projected CRSs. It is safe for
// concurrent use.
type ProjReprojector struct {
	mutex        sync.Mutex
	cacheSize    int
	transformers *lru.Cache[crsPair, *proj.PJ]
}

// A ProjReprojectorOption sets an option on a ProjReprojector.
type ProjReprojectorOption func(*ProjReprojector)

// WithTransformerCacheSize sets the maximum number of cached transformers.
func WithTransformerCacheSize(cacheSize int) ProjReprojectorOption {
	return func(r *ProjReprojector) {
		r.cacheSize = cacheSize
	}
}

// NewProjReprojector returns a new ProjReprojector.
func NewProjReprojector(options ...ProjReprojectorOption) (*ProjReprojector, error) {
	r := &ProjReprojector{
		cacheSize: 16,
	}
	for _, option := range options {
		option(r)
	}
	var err error
	r.transformers, err = lru.New[crsPair, *proj.PJ](r.cacheSize)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Reproject implements Reprojector.Reproject. ps is not modified.
func (r *ProjReprojector) Reproject(ps *PolygonSet, crs string) (*PolygonSet, error) {
	if ps.CRS == crs {
		return NewPolygonSet(crs, ps.Polygons...), nil
	}
	if ps.CRS == "" || crs == "" {
		return nil, fmt.Errorf("%w: cannot reproject from %q to %q", ErrInvalidArgument, ps.CRS, crs)
	}

	pj, err := r.getTransformerCached(crsPair{source: ps.CRS, target: crs})
	if err != nil {
		return nil, err
	}

	polygons := make([]*geom.Polygon, 0, len(ps.Polygons))
	for _, polygon := range ps.Polygons {
		reprojected := polygon.Clone()
		if err := pj.ForwardFlatCoords(reprojected.FlatCoords(), reprojected.Stride(), -1, -1); err != nil {
			return nil, fmt.Errorf("%s to %s: %w", ps.CRS, crs, err)
		}
		orientPolygon(reprojected)
		polygons = append(polygons, reprojected)
	}
	return NewPolygonSet(crs, polygons...), nil
}

// getTransformer returns a new transformer for crsPair.
func (r *ProjReprojector) getTransformer(crsPair crsPair) (*proj.PJ, error) {
	pj, err := proj.NewCRSToCRS(crsPair.source, crsPair.target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", crsPair.source, crsPair.target, err)
	}
	return pj.NormalizeForVisualization()
}

// getTransformerCached returns the transformer for crsPair, using the cache
// if possible.
func (r *ProjReprojector) getTransformerCached(crsPair crsPair) (*proj.PJ, error) {
	if pj, ok := r.transformers.Get(crsPair); ok {
		transformerCacheHits.Inc()
		return pj, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if pj, ok := r.transformers.Get(crsPair); ok {
		transformerCacheHits.Inc()
		return pj, nil
	}

	transformerCacheMisses.Inc()

	pj, err := r.getTransformer(crsPair)
	if err != nil {
		return nil, err
	}
	r.transformers.Add(crsPair, pj)
	return pj, nil
}

// orientPolygon orients the rings of polygon in place following the right-hand
// rule.
func orientPolygon(polygon *geom.Polygon) {
	flatCoords := polygon.FlatCoords()
	offset := 0
	for i, end := range polygon.Ends() {
		orientRing(flatCoords[offset:end], i == 0)
		offset = end
	}
}
