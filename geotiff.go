package inundation

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"golang.org/x/image/tiff/lzw"
)

// TIFF compression schemes.
const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatIEEEFloat  = 3
	planarConfigContiguous = 1
	predictorNone          = 1
	predictorHorizontal    = 2
	predictorFloatingPoint = 3
)

var (
	errMalformed = errors.New("malformed GeoTIFF")
	errShortRead = errors.New("short read")
)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth             uint64    `tiff:"field,tag=256"`
	ImageLength            uint64    `tiff:"field,tag=257"`
	BitsPerSample          uint16    `tiff:"field,tag=258"`
	Compression            uint16    `tiff:"field,tag=259"`
	StripOffsets           []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel        uint16    `tiff:"field,tag=277"`
	RowsPerStrip           uint64    `tiff:"field,tag=278"`
	StripByteCounts        []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration    uint16    `tiff:"field,tag=284"`
	Predictor              uint16    `tiff:"field,tag=317"`
	TileWidth              uint64    `tiff:"field,tag=322"`
	TileLength             uint64    `tiff:"field,tag=323"`
	TileOffsets            []uint64  `tiff:"field,tag=324"`
	TileByteCounts         []uint64  `tiff:"field,tag=325"`
	SampleFormat           uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag     []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag       []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag     []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag     []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag      string    `tiff:"field,tag=34737"`
	GDALNoData             string    `tiff:"field,tag=42113"`
}

// A geoTIFFReader reads the blocks (tiles or strips) of a single band image.
type geoTIFFReader struct {
	r              io.ReaderAt
	width          int
	height         int
	blockWidth     int
	blockLength    int
	blocksAcross   int
	blockOffsets   []uint64
	blockByteCount []uint64
	compression    uint16
	predictor      uint16
	order          binary.ByteOrder
	bytesPerSample int
	decodeSample   func([]byte) float64
}

// ReadGeoTIFF reads the first band of the GeoTIFF filename in fsys into a
// Raster. The file is closed before ReadGeoTIFF returns. If the file does not
// exist then the returned error wraps ErrResourceNotFound.
func ReadGeoTIFF(fsys fs.FS, filename string) (*Raster, error) {
	file, err := fsys.Open(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceNotFound, filename, err)
	case err != nil:
		return nil, err
	}
	defer file.Close()

	var r tiff.ReadAtReadSeeker
	if readAtReadSeeker, ok := file.(tiff.ReadAtReadSeeker); ok {
		r = readAtReadSeeker
	} else {
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	raster, err := decodeGeoTIFF(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return raster, nil
}

func decodeGeoTIFF(r tiff.ReadAtReadSeeker) (*Raster, error) {
	tiffTIFF, err := tiff.Parse(r, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}

	// Overviews, if any, follow the full resolution image.
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, errors.New("no IFDs")
	}
	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if tiffTIFF.Order() == "MM" {
		order = binary.BigEndian
	}

	gr, err := newGeoTIFFReader(r, order, &ifd)
	if err != nil {
		return nil, err
	}

	transform, err := ifd.transform()
	if err != nil {
		return nil, err
	}

	var crs string
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return nil, err
		}
		crs = geoKeys.CRS()
		if geoKeys.PixelIsPoint() {
			transform[0] -= (transform[1] + transform[2]) / 2
			transform[3] -= (transform[4] + transform[5]) / 2
		}
	}

	var options []RasterOption
	noData, hasNoData, err := ifd.noData()
	if err != nil {
		return nil, err
	}
	if hasNoData {
		options = append(options, WithNoData(noData))
	}

	data, err := gr.readAll()
	if err != nil {
		return nil, err
	}
	return NewRaster(gr.width, gr.height, data, transform, crs, options...)
}

// newGeoTIFFReader validates ifd and returns a reader for its blocks.
func newGeoTIFFReader(r io.ReaderAt, order binary.ByteOrder, ifd *geoTIFFIFD) (*geoTIFFReader, error) {
	if ifd.SamplesPerPixel > 1 || ifd.PlanarConfiguration > planarConfigContiguous {
		return nil, errors.ErrUnsupported
	}
	switch ifd.Compression {
	case 0, compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("compression %d: %w", ifd.Compression, errors.ErrUnsupported)
	}

	sampleFormat := ifd.SampleFormat
	if sampleFormat == 0 {
		sampleFormat = sampleFormatUint
	}
	decodeSample, err := newSampleDecoder(order, sampleFormat, ifd.BitsPerSample)
	if err != nil {
		return nil, err
	}
	switch {
	case ifd.Predictor == 0 || ifd.Predictor == predictorNone:
	case ifd.Predictor == predictorHorizontal:
	case ifd.Predictor == predictorFloatingPoint && sampleFormat == sampleFormatIEEEFloat:
	default:
		return nil, fmt.Errorf("predictor %d with sample format %d: %w", ifd.Predictor, sampleFormat, errors.ErrUnsupported)
	}

	gr := &geoTIFFReader{
		r:              r,
		width:          int(ifd.ImageWidth),
		height:         int(ifd.ImageLength),
		compression:    ifd.Compression,
		predictor:      ifd.Predictor,
		order:          order,
		bytesPerSample: int(ifd.BitsPerSample) / 8,
		decodeSample:   decodeSample,
	}

	if ifd.TileWidth != 0 && ifd.TileLength != 0 {
		gr.blockWidth = int(ifd.TileWidth)
		gr.blockLength = int(ifd.TileLength)
		gr.blockOffsets = ifd.TileOffsets
		gr.blockByteCount = ifd.TileByteCounts
	} else {
		gr.blockWidth = gr.width
		gr.blockLength = int(ifd.RowsPerStrip)
		if gr.blockLength == 0 || gr.blockLength > gr.height {
			gr.blockLength = gr.height
		}
		gr.blockOffsets = ifd.StripOffsets
		gr.blockByteCount = ifd.StripByteCounts
	}
	if gr.width == 0 || gr.height == 0 || gr.blockWidth == 0 || gr.blockLength == 0 {
		if len(gr.blockOffsets) != 0 || len(gr.blockByteCount) != 0 {
			return nil, fmt.Errorf("%dx%d image with %dx%d blocks and %d offsets: %w",
				gr.width, gr.height, gr.blockWidth, gr.blockLength, len(gr.blockOffsets), errMalformed)
		}
		return gr, nil
	}

	gr.blocksAcross = (gr.width + gr.blockWidth - 1) / gr.blockWidth
	blocksDown := (gr.height + gr.blockLength - 1) / gr.blockLength
	blocksPerImage := gr.blocksAcross * blocksDown
	if len(gr.blockOffsets) != blocksPerImage || len(gr.blockByteCount) != blocksPerImage {
		return nil, fmt.Errorf("incorrect number of block byte counts or offsets: %w", errMalformed)
	}
	return gr, nil
}

// newSampleDecoder returns a function that decodes a single sample.
func newSampleDecoder(order binary.ByteOrder, sampleFormat, bitsPerSample uint16) (func([]byte) float64, error) {
	switch {
	case sampleFormat == sampleFormatIEEEFloat && bitsPerSample == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }, nil
	case sampleFormat == sampleFormatIEEEFloat && bitsPerSample == 64:
		return func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }, nil
	case sampleFormat == sampleFormatInt && bitsPerSample == 16:
		return func(b []byte) float64 { return float64(int16(order.Uint16(b))) }, nil
	case sampleFormat == sampleFormatInt && bitsPerSample == 32:
		return func(b []byte) float64 { return float64(int32(order.Uint32(b))) }, nil
	case sampleFormat == sampleFormatUint && bitsPerSample == 16:
		return func(b []byte) float64 { return float64(order.Uint16(b)) }, nil
	case sampleFormat == sampleFormatUint && bitsPerSample == 8:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	default:
		return nil, fmt.Errorf("sample format %d with %d bits per sample: %w", sampleFormat, bitsPerSample, errors.ErrUnsupported)
	}
}

// readAll reads every block and returns the samples in row-major order.
func (gr *geoTIFFReader) readAll() ([]float64, error) {
	data := make([]float64, gr.width*gr.height)
	for blockIndex := range gr.blockOffsets {
		blockCol := blockIndex % gr.blocksAcross
		blockRow := blockIndex / gr.blocksAcross
		x0, y0 := blockCol*gr.blockWidth, blockRow*gr.blockLength

		// The last strip may be truncated, tiles are always complete.
		rows := gr.blockLength
		if gr.blockWidth == gr.width {
			rows = min(gr.blockLength, gr.height-y0)
		}

		blockData, err := gr.readBlock(blockIndex, gr.blockWidth*rows*gr.bytesPerSample)
		if err != nil {
			return nil, err
		}
		geoTIFFBlocksRead.Inc()
		gr.undoPredictor(blockData[:gr.blockWidth*rows*gr.bytesPerSample])

		for y := range min(rows, gr.height-y0) {
			for x := range min(gr.blockWidth, gr.width-x0) {
				offset := (x + y*gr.blockWidth) * gr.bytesPerSample
				data[x0+x+(y0+y)*gr.width] = gr.decodeSample(blockData[offset : offset+gr.bytesPerSample])
			}
		}
	}
	return data, nil
}

// undoPredictor reverses the predictor applied to the rows of blockData in
// place.
func (gr *geoTIFFReader) undoPredictor(blockData []byte) {
	rowSize := gr.blockWidth * gr.bytesPerSample
	switch gr.predictor {
	case predictorHorizontal:
		for row := 0; row+rowSize <= len(blockData); row += rowSize {
			undoHorizontalDifferencing(gr.order, blockData[row:row+rowSize], gr.bytesPerSample)
		}
	case predictorFloatingPoint:
		tmp := make([]byte, rowSize)
		for row := 0; row+rowSize <= len(blockData); row += rowSize {
			undoFloatingPointDifferencing(gr.order, blockData[row:row+rowSize], tmp, gr.bytesPerSample)
		}
	}
}

// undoHorizontalDifferencing accumulates the differences between consecutive
// samples of size bytes in row, wrapping on overflow.
func undoHorizontalDifferencing(order binary.ByteOrder, row []byte, size int) {
	for i := size; i+size <= len(row); i += size {
		switch size {
		case 1:
			row[i] += row[i-1]
		case 2:
			order.PutUint16(row[i:], order.Uint16(row[i:])+order.Uint16(row[i-2:]))
		case 4:
			order.PutUint32(row[i:], order.Uint32(row[i:])+order.Uint32(row[i-4:]))
		case 8:
			order.PutUint64(row[i:], order.Uint64(row[i:])+order.Uint64(row[i-8:]))
		}
	}
}

// undoFloatingPointDifferencing reverses the floating point predictor in row:
// the bytes are accumulated, then regrouped from planes of equal significance,
// most significant first, into samples in order.
func undoFloatingPointDifferencing(order binary.ByteOrder, row, tmp []byte, size int) {
	for i := 1; i < len(row); i++ {
		row[i] += row[i-1]
	}
	copy(tmp, row)
	n := len(row) / size
	for i := range n {
		for b := range size {
			plane := b
			if order == binary.LittleEndian {
				plane = size - 1 - b
			}
			row[i*size+b] = tmp[plane*n+i]
		}
	}
}

// readBlock reads and decompresses the block at blockIndex.
func (gr *geoTIFFReader) readBlock(blockIndex, size int) ([]byte, error) {
	byteCount := gr.blockByteCount[blockIndex]
	compressedData := make([]byte, byteCount)
	switch n, err := gr.r.ReadAt(compressedData, int64(gr.blockOffsets[blockIndex])); {
	case n != int(byteCount):
		return nil, errShortRead
	case err != nil && !errors.Is(err, io.EOF):
		return nil, err
	}

	var r io.Reader
	switch gr.compression {
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionDeflateOld:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	default:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData, nil
	}

	blockData := make([]byte, size)
	if _, err := io.ReadFull(r, blockData); err != nil {
		return nil, fmt.Errorf("block %d: %w", blockIndex, err)
	}
	return blockData, nil
}

// transform returns the affine transform of ifd.
func (ifd *geoTIFFIFD) transform() (Transform, error) {
	if m := ifd.ModelTransformationTag; len(m) == 16 {
		return Transform{m[3], m[0], m[1], m[7], m[4], m[5]}, nil
	}
	if len(ifd.ModelPixelScaleTag) < 2 || len(ifd.ModelTiepointTag) < 6 {
		return Transform{}, errors.New("missing georeferencing")
	}
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	return Transform{x - i*scaleX, scaleX, 0, y + j*scaleY, 0, -scaleY}, nil
}

// noData returns the GDAL nodata value of ifd. Float32 nodata values are
// rounded to float32 so that they compare equal to decoded samples, e.g.
// "-3.4028234663852886e+038" is the smallest float32.
func (ifd *geoTIFFIFD) noData() (float64, bool, error) {
	s := strings.TrimSpace(strings.Trim(ifd.GDALNoData, "\x00"))
	if s == "" {
		return 0, false, nil
	}
	noData, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("nodata %q: %w", s, err)
	}
	if ifd.SampleFormat == sampleFormatIEEEFloat && ifd.BitsPerSample == 32 {
		noData = float64(float32(noData))
	}
	return noData, true, nil
}
