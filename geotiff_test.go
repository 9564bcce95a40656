package inundation

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"
)

// TIFF field types.
const (
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

type testTIFFEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// A testGeoTIFF describes a single band float32 GeoTIFF for tests.
type testGeoTIFF struct {
	order        binary.ByteOrder
	width        int
	height       int
	values       []float32
	rowsPerStrip int
	deflate      bool
	predictor    uint16
	pixelScale   []float64
	tiepoint     []float64
	geoKeys      []uint16
	noData       string
}

// encode returns the TIFF encoding of g with the image data first, then the
// IFD, then out-of-line field values.
func (g testGeoTIFF) encode(t *testing.T) []byte {
	t.Helper()
	order := g.order
	if order == nil {
		order = binary.LittleEndian
	}
	rowsPerStrip := g.rowsPerStrip
	if rowsPerStrip == 0 {
		rowsPerStrip = g.height
	}

	var imageData bytes.Buffer
	var stripOffsets, stripByteCounts []uint32
	for row := 0; row < g.height; row += rowsPerStrip {
		var strip bytes.Buffer
		for _, value := range g.values[row*g.width : min(row+rowsPerStrip, g.height)*g.width] {
			assert.NoError(t, binary.Write(&strip, order, value))
		}
		stripData := strip.Bytes()
		applyTestPredictor(order, stripData, 4*g.width, g.predictor)
		if g.deflate {
			var compressed bytes.Buffer
			zlibWriter := zlib.NewWriter(&compressed)
			_, err := zlibWriter.Write(stripData)
			assert.NoError(t, err)
			assert.NoError(t, zlibWriter.Close())
			stripData = compressed.Bytes()
		}
		stripOffsets = append(stripOffsets, uint32(8+imageData.Len()))
		stripByteCounts = append(stripByteCounts, uint32(len(stripData)))
		imageData.Write(stripData)
	}
	if imageData.Len()%2 == 1 {
		imageData.WriteByte(0)
	}

	compression := uint16(compressionNone)
	if g.deflate {
		compression = compressionDeflate
	}
	entries := []testTIFFEntry{
		testTIFFShorts(order, 256, uint16(g.width)),
		testTIFFShorts(order, 257, uint16(g.height)),
		testTIFFShorts(order, 258, 32),
		testTIFFShorts(order, 259, compression),
		testTIFFShorts(order, 262, 1),
		testTIFFLongs(order, 273, stripOffsets...),
		testTIFFShorts(order, 277, 1),
		testTIFFShorts(order, 278, uint16(rowsPerStrip)),
		testTIFFLongs(order, 279, stripByteCounts...),
		testTIFFShorts(order, 284, 1),
		testTIFFShorts(order, 339, sampleFormatIEEEFloat),
	}
	if g.predictor != 0 {
		entries = append(entries, testTIFFShorts(order, 317, g.predictor))
	}
	if g.pixelScale != nil {
		entries = append(entries, testTIFFDoubles(order, 33550, g.pixelScale...))
	}
	if g.tiepoint != nil {
		entries = append(entries, testTIFFDoubles(order, 33922, g.tiepoint...))
	}
	if g.geoKeys != nil {
		entries = append(entries, testTIFFShorts(order, 34735, g.geoKeys...))
	}
	if g.noData != "" {
		entries = append(entries, testTIFFEntry{
			tag:   42113,
			typ:   tiffASCII,
			count: uint32(len(g.noData) + 1),
			value: append([]byte(g.noData), 0),
		})
	}
	slices.SortFunc(entries, func(a, b testTIFFEntry) int {
		return int(a.tag) - int(b.tag)
	})

	ifdOffset := 8 + imageData.Len()
	valuesOffset := ifdOffset + 2 + 12*len(entries) + 4

	var buffer bytes.Buffer
	if order == binary.BigEndian {
		buffer.WriteString("MM")
	} else {
		buffer.WriteString("II")
	}
	assert.NoError(t, binary.Write(&buffer, order, uint16(42)))
	assert.NoError(t, binary.Write(&buffer, order, uint32(ifdOffset)))
	buffer.Write(imageData.Bytes())

	var values bytes.Buffer
	assert.NoError(t, binary.Write(&buffer, order, uint16(len(entries))))
	for _, entry := range entries {
		assert.NoError(t, binary.Write(&buffer, order, entry.tag))
		assert.NoError(t, binary.Write(&buffer, order, entry.typ))
		assert.NoError(t, binary.Write(&buffer, order, entry.count))
		if len(entry.value) <= 4 {
			var inline [4]byte
			copy(inline[:], entry.value)
			buffer.Write(inline[:])
			continue
		}
		assert.NoError(t, binary.Write(&buffer, order, uint32(valuesOffset+values.Len())))
		values.Write(entry.value)
		if values.Len()%2 == 1 {
			values.WriteByte(0)
		}
	}
	assert.NoError(t, binary.Write(&buffer, order, uint32(0)))
	buffer.Write(values.Bytes())
	return buffer.Bytes()
}

// applyTestPredictor applies predictor to the float32 rows of size rowSize in
// data.
func applyTestPredictor(order binary.ByteOrder, data []byte, rowSize int, predictor uint16) {
	if rowSize == 0 {
		return
	}
	for offset := 0; offset+rowSize <= len(data); offset += rowSize {
		row := data[offset : offset+rowSize]
		switch predictor {
		case predictorHorizontal:
			for i := len(row) - 4; i >= 4; i -= 4 {
				order.PutUint32(row[i:], order.Uint32(row[i:])-order.Uint32(row[i-4:]))
			}
		case predictorFloatingPoint:
			n := len(row) / 4
			planes := make([]byte, len(row))
			for i := range n {
				for b := range 4 {
					plane := b
					if order == binary.LittleEndian {
						plane = 3 - b
					}
					planes[plane*n+i] = row[4*i+b]
				}
			}
			for i := len(planes) - 1; i >= 1; i-- {
				planes[i] -= planes[i-1]
			}
			copy(row, planes)
		}
	}
}

func testTIFFShorts(order binary.ByteOrder, tag uint16, values ...uint16) testTIFFEntry {
	value := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(value[2*i:], v)
	}
	return testTIFFEntry{tag: tag, typ: tiffShort, count: uint32(len(values)), value: value}
}

func testTIFFLongs(order binary.ByteOrder, tag uint16, values ...uint32) testTIFFEntry {
	value := make([]byte, 4*len(values))
	for i, v := range values {
		order.PutUint32(value[4*i:], v)
	}
	return testTIFFEntry{tag: tag, typ: tiffLong, count: uint32(len(values)), value: value}
}

func testTIFFDoubles(order binary.ByteOrder, tag uint16, values ...float64) testTIFFEntry {
	value := make([]byte, 8*len(values))
	for i, v := range values {
		order.PutUint64(value[8*i:], math.Float64bits(v))
	}
	return testTIFFEntry{tag: tag, typ: tiffDouble, count: uint32(len(values)), value: value}
}

var testUTM17NGeoKeys = []uint16{
	1, 1, 0, 3,
	1024, 0, 1, ModelTypeProjected,
	1025, 0, 1, RasterPixelIsArea,
	3072, 0, 1, 32617,
}

func TestReadGeoTIFF(t *testing.T) {
	values := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, -9999,
	}
	for _, tc := range []struct {
		name    string
		geoTIFF testGeoTIFF
	}{
		{
			name: "uncompressed",
			geoTIFF: testGeoTIFF{
				width:      3,
				height:     3,
				values:     values,
				pixelScale: []float64{10, 10, 0},
				tiepoint:   []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:    testUTM17NGeoKeys,
				noData:     "-9999",
			},
		},
		{
			name: "deflate_strips",
			geoTIFF: testGeoTIFF{
				width:        3,
				height:       3,
				values:       values,
				rowsPerStrip: 2,
				deflate:      true,
				pixelScale:   []float64{10, 10, 0},
				tiepoint:     []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:      testUTM17NGeoKeys,
				noData:       "-9999",
			},
		},
		{
			name: "horizontal_predictor",
			geoTIFF: testGeoTIFF{
				width:        3,
				height:       3,
				values:       values,
				rowsPerStrip: 2,
				deflate:      true,
				predictor:    predictorHorizontal,
				pixelScale:   []float64{10, 10, 0},
				tiepoint:     []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:      testUTM17NGeoKeys,
				noData:       "-9999",
			},
		},
		{
			name: "floating_point_predictor",
			geoTIFF: testGeoTIFF{
				width:        3,
				height:       3,
				values:       values,
				rowsPerStrip: 2,
				deflate:      true,
				predictor:    predictorFloatingPoint,
				pixelScale:   []float64{10, 10, 0},
				tiepoint:     []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:      testUTM17NGeoKeys,
				noData:       "-9999",
			},
		},
		{
			name: "floating_point_predictor_big_endian",
			geoTIFF: testGeoTIFF{
				order:        binary.BigEndian,
				width:        3,
				height:       3,
				values:       values,
				predictor:    predictorFloatingPoint,
				pixelScale:   []float64{10, 10, 0},
				tiepoint:     []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:      testUTM17NGeoKeys,
				noData:       "-9999",
			},
		},
		{
			name: "big_endian",
			geoTIFF: testGeoTIFF{
				order:        binary.BigEndian,
				width:        3,
				height:       3,
				values:       values,
				rowsPerStrip: 1,
				pixelScale:   []float64{10, 10, 0},
				tiepoint:     []float64{0, 0, 0, 500000, 4000000, 0},
				geoKeys:      testUTM17NGeoKeys,
				noData:       "-9999",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"dem.tif": &fstest.MapFile{Data: tc.geoTIFF.encode(t)},
			}
			raster, err := ReadGeoTIFF(fsys, "dem.tif")
			assert.NoError(t, err)

			width, height := raster.Size()
			assert.Equal(t, 3, width)
			assert.Equal(t, 3, height)
			assert.Equal(t, "EPSG:32617", raster.CRS())
			assert.Equal(t, Transform{500000, 10, 0, 4000000, 0, -10}, raster.Transform())
			noData, hasNoData := raster.NoData()
			assert.True(t, hasNoData)
			assert.Equal(t, -9999, noData)

			assert.Equal(t, 1, raster.At(0, 0))
			assert.Equal(t, 3, raster.At(2, 0))
			assert.Equal(t, 4, raster.At(0, 1))
			assert.Equal(t, 8, raster.At(1, 2))
			assert.True(t, math.IsNaN(raster.At(2, 2)))
			assert.Equal(t, 8, raster.ValidCells())
		})
	}
}

func TestReadGeoTIFF_PixelIsPoint(t *testing.T) {
	geoTIFF := testGeoTIFF{
		width:      2,
		height:     2,
		values:     []float32{1, 2, 3, 4},
		pixelScale: []float64{1, 1, 0},
		tiepoint:   []float64{0, 0, 0, 10, 20, 0},
		geoKeys: []uint16{
			1, 1, 0, 3,
			1024, 0, 1, ModelTypeGeographic,
			1025, 0, 1, RasterPixelIsPoint,
			2048, 0, 1, 4326,
		},
	}
	fsys := fstest.MapFS{
		"dem.tif": &fstest.MapFile{Data: geoTIFF.encode(t)},
	}
	raster, err := ReadGeoTIFF(fsys, "dem.tif")
	assert.NoError(t, err)
	assert.Equal(t, "EPSG:4326", raster.CRS())
	assert.Equal(t, Transform{9.5, 1, 0, 20.5, 0, -1}, raster.Transform())
	_, hasNoData := raster.NoData()
	assert.False(t, hasNoData)
}

func TestReadGeoTIFF_MissingGeoreferencing(t *testing.T) {
	geoTIFF := testGeoTIFF{
		width:  1,
		height: 1,
		values: []float32{1},
	}
	fsys := fstest.MapFS{
		"dem.tif": &fstest.MapFile{Data: geoTIFF.encode(t)},
	}
	_, err := ReadGeoTIFF(fsys, "dem.tif")
	assert.Error(t, err)
}

func TestReadGeoTIFF_NotFound(t *testing.T) {
	_, err := ReadGeoTIFF(fstest.MapFS{}, "missing.tif")
	assert.True(t, errors.Is(err, ErrResourceNotFound))
}

func TestNewSampleDecoder(t *testing.T) {
	for _, tc := range []struct {
		name          string
		order         binary.ByteOrder
		sampleFormat  uint16
		bitsPerSample uint16
		data          []byte
		expected      float64
	}{
		{name: "int16", order: binary.LittleEndian, sampleFormat: sampleFormatInt, bitsPerSample: 16, data: []byte{0xfe, 0xff}, expected: -2},
		{name: "uint16_big_endian", order: binary.BigEndian, sampleFormat: sampleFormatUint, bitsPerSample: 16, data: []byte{0x01, 0x02}, expected: 258},
		{name: "int32", order: binary.LittleEndian, sampleFormat: sampleFormatInt, bitsPerSample: 32, data: []byte{0x9c, 0xff, 0xff, 0xff}, expected: -100},
		{name: "uint8", order: binary.LittleEndian, sampleFormat: sampleFormatUint, bitsPerSample: 8, data: []byte{200}, expected: 200},
		{name: "float64", order: binary.BigEndian, sampleFormat: sampleFormatIEEEFloat, bitsPerSample: 64, data: []byte{0x3f, 0xf8, 0, 0, 0, 0, 0, 0}, expected: 1.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			decodeSample, err := newSampleDecoder(tc.order, tc.sampleFormat, tc.bitsPerSample)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, decodeSample(tc.data))
		})
	}

	_, err := newSampleDecoder(binary.LittleEndian, sampleFormatIEEEFloat, 16)
	assert.IsError(t, err, errors.ErrUnsupported)
}

func TestGeoTIFFIFD_Transform(t *testing.T) {
	ifd := &geoTIFFIFD{
		ModelTransformationTag: []float64{
			2, 0.5, 0, 100,
			0.25, -2, 0, 200,
			0, 0, 0, 0,
			0, 0, 0, 1,
		},
	}
	transform, err := ifd.transform()
	assert.NoError(t, err)
	assert.Equal(t, Transform{100, 2, 0.5, 200, 0.25, -2}, transform)
}

func TestGeoTIFFIFD_NoData(t *testing.T) {
	ifd := &geoTIFFIFD{
		BitsPerSample: 32,
		SampleFormat:  sampleFormatIEEEFloat,
		GDALNoData:    "-3.4028234663852886e+038\x00",
	}
	noData, hasNoData, err := ifd.noData()
	assert.NoError(t, err)
	assert.True(t, hasNoData)
	assert.Equal(t, float64(-math.MaxFloat32), noData)

	_, _, err = (&geoTIFFIFD{GDALNoData: "none"}).noData()
	assert.Error(t, err)
}

func TestReadGeoTIFF_ZeroWidth(t *testing.T) {
	geoTIFF := testGeoTIFF{
		width:      0,
		height:     1,
		pixelScale: []float64{1, 1, 0},
		tiepoint:   []float64{0, 0, 0, 0, 0, 0},
	}
	fsys := fstest.MapFS{
		"dem.tif": &fstest.MapFile{Data: geoTIFF.encode(t)},
	}
	_, err := ReadGeoTIFF(fsys, "dem.tif")
	assert.IsError(t, err, errMalformed)
}

func TestUndoPredictor(t *testing.T) {
	t.Run("horizontal_int16", func(t *testing.T) {
		row := []byte{0x05, 0x00, 0xff, 0xff, 0x03, 0x00}
		undoHorizontalDifferencing(binary.LittleEndian, row, 2)
		assert.Equal(t, []byte{0x05, 0x00, 0x04, 0x00, 0x07, 0x00}, row)
	})

	t.Run("horizontal_uint8", func(t *testing.T) {
		row := []byte{250, 10, 1}
		undoHorizontalDifferencing(binary.LittleEndian, row, 1)
		assert.Equal(t, []byte{250, 4, 5}, row)
	})

	t.Run("unsupported", func(t *testing.T) {
		ifd := &geoTIFFIFD{
			ImageWidth:    1,
			ImageLength:   1,
			BitsPerSample: 16,
			SampleFormat:  sampleFormatInt,
			Predictor:     predictorFloatingPoint,
		}
		_, err := newGeoTIFFReader(nil, binary.LittleEndian, ifd)
		assert.IsError(t, err, errors.ErrUnsupported)
	})
}
