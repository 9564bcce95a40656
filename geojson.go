package inundation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// DefaultGeoJSONCRS is the CRS of GeoJSON data without a crs member.
const DefaultGeoJSONCRS = "EPSG:4326"

var epsgCRSNameRx = regexp.MustCompile(`(?i)^(?:urn:ogc:def:crs:)?EPSG:(?:[0-9.]*:)?([0-9]+)$`)

// A featureCollection is a GeoJSON FeatureCollection with the legacy crs
// member, which geojson.FeatureCollection does not carry.
type featureCollection struct {
	Type     string             `json:"type"`
	CRS      *geojson.CRS       `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// ReadGeoJSON reads the polygons in the GeoJSON file name in fsys. The file may
// contain a FeatureCollection, a Feature, or a bare geometry. Polygon and
// MultiPolygon geometries are flattened into the returned polygon set and all
// other geometries are ignored. The CRS is read from the legacy crs member and
// defaults to DefaultGeoJSONCRS.
func ReadGeoJSON(fsys fs.FS, name string) (*PolygonSet, error) {
	data, err := fs.ReadFile(fsys, name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w: %w", name, ErrResourceNotFound, err)
	case err != nil:
		return nil, err
	}
	ps, err := decodeGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ps, nil
}

func decodeGeoJSON(data []byte) (*PolygonSet, error) {
	var header struct {
		Type string       `json:"type"`
		CRS  *geojson.CRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	crs, err := parseGeoJSONCRS(header.CRS)
	if err != nil {
		return nil, err
	}

	var geometries []geom.T
	switch header.Type {
	case "FeatureCollection":
		var fc featureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
		for _, feature := range fc.Features {
			geometries = append(geometries, feature.Geometry)
		}
	case "Feature":
		var feature geojson.Feature
		if err := json.Unmarshal(data, &feature); err != nil {
			return nil, err
		}
		geometries = append(geometries, feature.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		geometries = append(geometries, g)
	}

	ps := NewPolygonSet(crs)
	for _, g := range geometries {
		switch g := g.(type) {
		case *geom.Polygon:
			ps.Polygons = appendPolygonXY(ps.Polygons, g)
		case *geom.MultiPolygon:
			for i := range g.NumPolygons() {
				ps.Polygons = appendPolygonXY(ps.Polygons, g.Polygon(i))
			}
		}
	}
	return ps, nil
}

// appendPolygonXY appends non-empty polygon to polygons as an XY polygon with
// its rings oriented following the right-hand rule.
func appendPolygonXY(polygons []*geom.Polygon, polygon *geom.Polygon) []*geom.Polygon {
	if polygon.Empty() {
		return polygons
	}
	stride := polygon.Stride()
	flatCoords := make([]float64, 0, 2*len(polygon.FlatCoords())/stride)
	for i := 0; i+1 < len(polygon.FlatCoords()); i += stride {
		flatCoords = append(flatCoords, polygon.FlatCoords()[i], polygon.FlatCoords()[i+1])
	}
	ends := make([]int, 0, len(polygon.Ends()))
	for _, end := range polygon.Ends() {
		ends = append(ends, 2*end/stride)
	}
	polygonXY := geom.NewPolygonFlat(geom.XY, flatCoords, ends)
	orientPolygon(polygonXY)
	return append(polygons, polygonXY)
}

// parseGeoJSONCRS returns the CRS named by crs.
func parseGeoJSONCRS(crs *geojson.CRS) (string, error) {
	if crs == nil {
		return DefaultGeoJSONCRS, nil
	}
	name, ok := crs.Properties["name"].(string)
	if !ok || crs.Type != "name" {
		return "", fmt.Errorf("%w: unsupported crs type %q", ErrInvalidArgument, crs.Type)
	}
	if m := epsgCRSNameRx.FindStringSubmatch(name); m != nil {
		return "EPSG:" + m[1], nil
	}
	if strings.HasSuffix(strings.ToUpper(name), "CRS84") {
		return DefaultGeoJSONCRS, nil
	}
	return name, nil
}

// geoJSONCRS returns the legacy crs member for crs.
func geoJSONCRS(crs string) *geojson.CRS {
	if crs == "" || crs == DefaultGeoJSONCRS {
		return nil
	}
	name := crs
	if m := epsgCRSNameRx.FindStringSubmatch(crs); m != nil {
		name = "urn:ogc:def:crs:EPSG::" + m[1]
	}
	return &geojson.CRS{
		Type: "name",
		Properties: map[string]any{
			"name": name,
		},
	}
}

// WriteGeoJSON writes ps to w as a GeoJSON FeatureCollection with one Polygon
// feature per polygon, each with properties.
func WriteGeoJSON(w io.Writer, ps *PolygonSet, properties map[string]any) error {
	fc := featureCollection{
		Type:     "FeatureCollection",
		CRS:      geoJSONCRS(ps.CRS),
		Features: make([]*geojson.Feature, 0, len(ps.Polygons)),
	}
	for _, polygon := range ps.Polygons {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   polygon,
			Properties: properties,
		})
	}
	return json.NewEncoder(w).Encode(&fc)
}

// WriteGeoJSON writes c to w as a single GeoJSON FeatureCollection. Each
// scenario contributes one MultiPolygon feature with label and water_level
// properties. All scenarios must be in the same CRS.
func (c *ScenarioCollection) WriteGeoJSON(w io.Writer) error {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Features: make([]*geojson.Feature, 0, len(c.Scenarios)),
	}
	crs := ""
	for i, scenario := range c.Scenarios {
		switch {
		case i == 0:
			crs = scenario.Polygons.CRS
		case scenario.Polygons.CRS != crs:
			return fmt.Errorf("%s: %w: CRS %q differs from %q", scenario.Label, ErrInvalidArgument, scenario.Polygons.CRS, crs)
		}
		multiPolygon := geom.NewMultiPolygon(geom.XY)
		for _, polygon := range scenario.Polygons.Polygons {
			if err := multiPolygon.Push(polygon); err != nil {
				return err
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       scenario.Label,
			Geometry: multiPolygon,
			Properties: map[string]any{
				"label":       scenario.Label,
				"water_level": scenario.Sample.Level,
				"time":        scenario.Sample.Time,
				"area":        scenario.Polygons.Area(),
			},
		})
	}
	fc.CRS = geoJSONCRS(crs)
	return json.NewEncoder(w).Encode(&fc)
}
