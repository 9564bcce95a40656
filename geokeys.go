package inundation

import (
	"errors"
	"fmt"
	"strings"
)

var errParse = errors.New("parse error")

type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS  GeoKey = 2048
	GeoKeyGeogCitation GeoKey = 2049

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073

	GeoKeyVertical GeoKey = 4096
)

// Values of GeoKeyGTModelType and GeoKeyGTRasterType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
	RasterPixelIsArea   = 1
	RasterPixelIsPoint  = 2
	userDefined         = 32767
)

const (
	geoDoubleParamsTag = 34736
	geoASCIIParamsTag  = 34737
)

type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, errParse
	}

	// The header is KeyDirectoryVersion, KeyRevision, MinorRevision,
	// NumberOfKeys.
	if directory[0] != 1 || directory[1] != 1 || directory[2] > 1 {
		return nil, fmt.Errorf("geokey directory version %d.%d.%d: %w", directory[0], directory[1], directory[2], errParse)
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, fmt.Errorf("geokey directory length %d for %d keys: %w", len(directory), numberOfKeys, errParse)
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		entry := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(entry[0])
		location, count, value := int(entry[1]), int(entry[2]), int(entry[3])
		switch location {
		case 0:
			if count != 1 {
				return nil, errParse
			}
			parsedGeoKeys.Params[key] = value
		case geoDoubleParamsTag:
			if count != 1 {
				return nil, errors.ErrUnsupported
			}
			if value >= len(doubleParams) {
				return nil, fmt.Errorf("geokey %d: double param %d out of range: %w", key, value, errParse)
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[value]
		case geoASCIIParamsTag:
			if value+count > len(asciiParams) {
				return nil, fmt.Errorf("geokey %d: ascii param %d+%d out of range: %w", key, value, count, errParse)
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[value : value+count])
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return parsedGeoKeys, nil
}

// CRS returns the CRS described by k. This is its EPSG code, e.g.
// "EPSG:32617", or for user-defined CRSs the WKT in the ESRI citation written
// by ArcGIS and GDAL. It returns the empty string if k describes neither.
func (k *ParsedGeoKeys) CRS() string {
	var codeKey GeoKey
	var citationKeys []GeoKey
	switch k.Params[GeoKeyGTModelType] {
	case ModelTypeProjected:
		codeKey = GeoKeyProjectedCRS
		citationKeys = []GeoKey{GeoKeyPCSCitation, GeoKeyGTCitation}
	case ModelTypeGeographic:
		codeKey = GeoKeyGeodeticCRS
		citationKeys = []GeoKey{GeoKeyGeogCitation, GeoKeyGTCitation}
	default:
		return ""
	}
	if code, ok := k.Params[codeKey]; ok && code != userDefined {
		return fmt.Sprintf("EPSG:%d", code)
	}
	for _, citationKey := range citationKeys {
		if wkt := citationWKT(k.ASCIIParams[citationKey]); wkt != "" {
			return wkt
		}
	}
	return ""
}

// citationWKT returns the WKT in citation, e.g. the PROJCS in
// "ESRI PE String = PROJCS[...]|", or the empty string.
func citationWKT(citation string) string {
	for _, segment := range strings.Split(citation, "|") {
		segment = strings.TrimSpace(strings.Trim(segment, "\x00"))
		segment = strings.TrimSpace(strings.TrimPrefix(segment, "ESRI PE String ="))
		for _, prefix := range []string{"PROJCS[", "GEOGCS[", "PROJCRS[", "GEOGCRS["} {
			if strings.HasPrefix(segment, prefix) {
				return segment
			}
		}
	}
	return ""
}

// PixelIsPoint returns true if tie points refer to cell centers.
func (k *ParsedGeoKeys) PixelIsPoint() bool {
	return k.Params[GeoKeyGTRasterType] == RasterPixelIsPoint
}
