package inundation

// A Mask is a grid of inundated cells with the shape, transform, and CRS of
// the raster it was derived from.
type Mask struct {
	Width     int
	Height    int
	Cells     []bool
	Transform Transform
	CRS       string
}

// NewThresholdMask returns the mask of cells of raster that are not nodata and
// whose elevations are less than or equal to waterLevel. Cells are not required
// to be connected to open water.
func NewThresholdMask(raster *Raster, waterLevel float64) *Mask {
	mask := &Mask{
		Width:     raster.width,
		Height:    raster.height,
		Cells:     make([]bool, len(raster.data)),
		Transform: raster.transform,
		CRS:       raster.crs,
	}
	for i, elevation := range raster.data {
		mask.Cells[i] = raster.valid(elevation) && elevation <= waterLevel
	}
	return mask
}

// At returns whether the cell at col, row is inundated. Cells outside m are
// never inundated.
func (m *Mask) At(col, row int) bool {
	if col < 0 || m.Width <= col || row < 0 || m.Height <= row {
		return false
	}
	return m.Cells[col+row*m.Width]
}

// Count returns the number of inundated cells.
func (m *Mask) Count() int {
	n := 0
	for _, cell := range m.Cells {
		if cell {
			n++
		}
	}
	return n
}
