package inundation

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func TestReadGeoJSON(t *testing.T) {
	for _, tc := range []struct {
		name          string
		data          string
		expectedCRS   string
		expectedCount int
		expectedArea  float64
	}{
		{
			name: "feature_collection",
			data: `{
				"type": "FeatureCollection",
				"features": [
					{"type": "Feature", "properties": {"name": "a"}, "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [0, 1], [1, 1], [1, 0], [0, 0]]]}},
					{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [5, 5]}},
					{"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[2, 0], [4, 0], [4, 2], [2, 2], [2, 0]]]}}
				]
			}`,
			expectedCRS:   "EPSG:4326",
			expectedCount: 2,
			expectedArea:  5,
		},
		{
			name: "multi_polygon_with_crs",
			data: `{
				"type": "FeatureCollection",
				"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::32617"}},
				"features": [
					{"type": "Feature", "properties": {}, "geometry": {"type": "MultiPolygon", "coordinates": [
						[[[0, 0], [3, 0], [3, 3], [0, 3], [0, 0]], [[1, 1], [2, 1], [2, 2], [1, 2], [1, 1]]],
						[[[10, 10], [11, 10], [11, 11], [10, 11], [10, 10]]]
					]}}
				]
			}`,
			expectedCRS:   "EPSG:32617",
			expectedCount: 2,
			expectedArea:  9,
		},
		{
			name: "crs84",
			data: `{
				"type": "Feature",
				"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:OGC:1.3:CRS84"}},
				"properties": {},
				"geometry": {"type": "Polygon", "coordinates": [[[0, 0, 10], [1, 0, 10], [1, 1, 10], [0, 1, 10], [0, 0, 10]]]}
			}`,
			expectedCRS:   "EPSG:4326",
			expectedCount: 1,
			expectedArea:  1,
		},
		{
			name:          "bare_geometry",
			data:          `{"type": "Polygon", "coordinates": [[[0, 0], [2, 0], [2, 2], [0, 2], [0, 0]]]}`,
			expectedCRS:   "EPSG:4326",
			expectedCount: 1,
			expectedArea:  4,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"aoi.geojson": &fstest.MapFile{Data: []byte(tc.data)},
			}
			actual, err := ReadGeoJSON(fsys, "aoi.geojson")
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedCRS, actual.CRS)
			assert.Equal(t, tc.expectedCount, len(actual.Polygons))
			assert.Equal(t, tc.expectedArea, actual.Area())
			for _, polygon := range actual.Polygons {
				assertValidPolygonRings(t, polygon.FlatCoords(), polygon.Ends())
			}
		})
	}
}

func TestReadGeoJSON_Errors(t *testing.T) {
	fsys := fstest.MapFS{
		"invalid.geojson": &fstest.MapFile{Data: []byte(`{"type": `)},
		"link.geojson":    &fstest.MapFile{Data: []byte(`{"type": "Polygon", "crs": {"type": "link", "properties": {"href": "http://example.com/crs"}}, "coordinates": []}`)},
	}

	_, err := ReadGeoJSON(fsys, "missing.geojson")
	assert.IsError(t, err, ErrResourceNotFound)

	_, err = ReadGeoJSON(fsys, "invalid.geojson")
	assert.Error(t, err)

	_, err = ReadGeoJSON(fsys, "link.geojson")
	assert.IsError(t, err, ErrInvalidArgument)
}

func TestWriteGeoJSON(t *testing.T) {
	ps := NewPolygonSet("EPSG:32617",
		newTestRectangle(0, 0, 4, 4, [4]float64{1, 1, 2, 2}),
		newTestRectangle(10, 10, 11, 11),
	)
	var buffer bytes.Buffer
	assert.NoError(t, WriteGeoJSON(&buffer, ps, map[string]any{"kind": "coastline"}))

	var fc featureCollection
	assert.NoError(t, json.Unmarshal(buffer.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Equal(t, 2, len(fc.Features))
	assert.Equal(t, "coastline", fc.Features[0].Properties["kind"].(string))

	actual, err := ReadGeoJSON(fstest.MapFS{
		"coastline.geojson": &fstest.MapFile{Data: buffer.Bytes()},
	}, "coastline.geojson")
	assert.NoError(t, err)
	assert.Equal(t, "EPSG:32617", actual.CRS)
	assert.Equal(t, 2, len(actual.Polygons))
	assert.Equal(t, ps.Area(), actual.Area())
}

func TestWriteGeoJSON_DefaultCRS(t *testing.T) {
	var buffer bytes.Buffer
	assert.NoError(t, WriteGeoJSON(&buffer, NewPolygonSet("EPSG:4326", newTestRectangle(0, 0, 1, 1)), nil))
	var header struct {
		CRS *geojson.CRS `json:"crs"`
	}
	assert.NoError(t, json.Unmarshal(buffer.Bytes(), &header))
	assert.Zero(t, header.CRS)
}

func TestScenarioCollection_WriteGeoJSON(t *testing.T) {
	highTime := time.Date(2024, 1, 3, 14, 6, 0, 0, time.UTC)
	collection := &ScenarioCollection{
		Scenarios: []Scenario{
			{
				Label:    "high",
				Sample:   Sample{Time: highTime, Level: 1.5},
				Polygons: NewPolygonSet("EPSG:32617", newTestRectangle(0, 0, 2, 2), newTestRectangle(5, 5, 6, 6)),
			},
			{
				Label:    "low",
				Sample:   Sample{Time: highTime.Add(6 * time.Hour), Level: -0.5},
				Polygons: NewPolygonSet("EPSG:32617"),
			},
		},
	}
	var buffer bytes.Buffer
	assert.NoError(t, collection.WriteGeoJSON(&buffer))

	var fc featureCollection
	assert.NoError(t, json.Unmarshal(buffer.Bytes(), &fc))
	assert.Equal(t, "urn:ogc:def:crs:EPSG::32617", fc.CRS.Properties["name"].(string))
	assert.Equal(t, 2, len(fc.Features))

	high := fc.Features[0]
	assert.Equal(t, "high", high.ID)
	assert.Equal(t, "high", high.Properties["label"].(string))
	assert.Equal(t, 1.5, high.Properties["water_level"].(float64))
	assert.Equal(t, "2024-01-03T14:06:00Z", high.Properties["time"].(string))
	assert.Equal(t, 5, high.Properties["area"].(float64))

	actual, err := ReadGeoJSON(fstest.MapFS{
		"scenarios.geojson": &fstest.MapFile{Data: buffer.Bytes()},
	}, "scenarios.geojson")
	assert.NoError(t, err)
	assert.Equal(t, "EPSG:32617", actual.CRS)
	assert.Equal(t, 2, len(actual.Polygons))
	assert.True(t, math.Abs(actual.Area()-5) < 1e-9)
}

func TestScenarioCollection_WriteGeoJSON_CRSMismatch(t *testing.T) {
	collection := &ScenarioCollection{
		Scenarios: []Scenario{
			{Label: "a", Polygons: NewPolygonSet("EPSG:32617")},
			{Label: "b", Polygons: NewPolygonSet("EPSG:4326")},
		},
	}
	var buffer bytes.Buffer
	assert.IsError(t, collection.WriteGeoJSON(&buffer), ErrInvalidArgument)
}
