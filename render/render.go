// Package render renders inundation scenarios as PNG maps.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/twpayne/go-geom"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/twpayne/go-inundation"
)

// DefaultPalette is the default palette of scenario layers.
var DefaultPalette = []color.NRGBA{
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0x66},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0x66},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0x66},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0x66},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0x66},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0x66},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0x66},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 0x66},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0x66},
}

var (
	coastlineFill    = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x80}
	coastlineOutline = color.NRGBA{A: 0xff}
	textColor        = color.NRGBA{A: 0xff}
	legendBackground = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xcc}
)

const (
	margin       = 40
	outlineWidth = 1
	titleHeight  = 24
	legendPad    = 6
	swatchSize   = 12
)

// A Renderer renders maps.
type Renderer struct {
	width      int
	height     int
	title      string
	palette    []color.NRGBA
	background color.Color
	face       font.Face
}

// An Option sets an option on a Renderer.
type Option func(*Renderer)

// WithSize sets the size of the rendered image in pixels.
func WithSize(width, height int) Option {
	return func(r *Renderer) {
		r.width = width
		r.height = height
	}
}

// WithTitle sets the title.
func WithTitle(title string) Option {
	return func(r *Renderer) {
		r.title = title
	}
}

// WithPalette sets the palette of scenario layers. Colors are reused if there
// are more scenarios than colors.
func WithPalette(palette []color.NRGBA) Option {
	return func(r *Renderer) {
		r.palette = palette
	}
}

// WithBackground sets the background color.
func WithBackground(background color.Color) Option {
	return func(r *Renderer) {
		r.background = background
	}
}

// NewRenderer returns a new Renderer.
func NewRenderer(options ...Option) *Renderer {
	r := &Renderer{
		width:      800,
		height:     800,
		title:      "Inundation scenarios",
		palette:    DefaultPalette,
		background: color.White,
		face:       basicfont.Face7x13,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Render renders coastline and scenarios as a PNG image to w. The coastline is
// filled with a black outline and each non-empty scenario is drawn as a
// semi-transparent layer in order. Every scenario has a legend entry, even
// when it floods nothing. coastline may be nil. All non-empty polygon sets
// must be in the same CRS.
func (r *Renderer) Render(w io.Writer, coastline *inundation.PolygonSet, scenarios *inundation.ScenarioCollection) error {
	img, err := r.Image(coastline, scenarios)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Image returns the rendered image.
func (r *Renderer) Image(coastline *inundation.PolygonSet, scenarios *inundation.ScenarioCollection) (*image.RGBA, error) {
	if r.width <= 0 || r.height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", inundation.ErrInvalidArgument, r.width, r.height)
	}

	// Every scenario gets a legend entry and a color by position, but only
	// non-empty polygon sets are drawn.
	var layers []*inundation.PolygonSet
	var labels []string
	var fills []int
	if !coastline.Empty() {
		layers = append(layers, coastline)
	}
	if scenarios != nil {
		for i, scenario := range scenarios.Scenarios {
			labels = append(labels, scenario.Label)
			if scenario.Polygons.Empty() {
				continue
			}
			layers = append(layers, scenario.Polygons)
			fills = append(fills, i)
		}
	}
	bounds := geom.NewBounds(geom.XY)
	for i, layer := range layers {
		if layer.CRS != layers[0].CRS {
			return nil, fmt.Errorf("%w: layer %d CRS %q differs from %q", inundation.ErrInvalidArgument, i, layer.CRS, layers[0].CRS)
		}
		for _, polygon := range layer.Polygons {
			bounds.Extend(polygon)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.background), image.Point{}, draw.Src)

	if !bounds.IsEmpty() {
		t := newViewport(bounds, image.Rect(margin, margin+titleHeight, r.width-margin, r.height-margin))
		z := vector.NewRasterizer(r.width, r.height)
		if !coastline.Empty() {
			fillPolygons(z, t, coastline.Polygons)
			z.Draw(img, img.Bounds(), image.NewUniform(coastlineFill), image.Point{})
			z.Reset(r.width, r.height)
			outlinePolygons(z, t, coastline.Polygons, outlineWidth)
			z.Draw(img, img.Bounds(), image.NewUniform(coastlineOutline), image.Point{})
		}
		for i, layer := range layers[len(layers)-len(fills):] {
			z.Reset(r.width, r.height)
			fillPolygons(z, t, layer.Polygons)
			z.Draw(img, img.Bounds(), image.NewUniform(r.color(fills[i])), image.Point{})
		}
	}

	r.drawTitle(img)
	r.drawLegend(img, labels)
	return img, nil
}

func (r *Renderer) color(i int) color.NRGBA {
	if len(r.palette) == 0 {
		return DefaultPalette[i%len(DefaultPalette)]
	}
	return r.palette[i%len(r.palette)]
}

func (r *Renderer) drawTitle(img *image.RGBA) {
	if r.title == "" {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: r.face,
	}
	width := d.MeasureString(r.title).Ceil()
	d.Dot = fixed.P((r.width-width)/2, margin/2+r.face.Metrics().Ascent.Ceil())
	d.DrawString(r.title)
}

func (r *Renderer) drawLegend(img *image.RGBA, labels []string) {
	if len(labels) == 0 {
		return
	}
	metrics := r.face.Metrics()
	lineHeight := max(metrics.Height.Ceil(), swatchSize) + legendPad
	textWidth := 0
	for _, label := range labels {
		textWidth = max(textWidth, font.MeasureString(r.face, label).Ceil())
	}
	legendWidth := legendPad + swatchSize + legendPad + textWidth + legendPad
	legendHeight := legendPad + len(labels)*lineHeight
	legend := image.Rect(r.width-margin-legendWidth, margin+titleHeight, r.width-margin, margin+titleHeight+legendHeight)
	draw.Draw(img, legend, image.NewUniform(legendBackground), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: r.face,
	}
	for i, label := range labels {
		top := legend.Min.Y + legendPad + i*lineHeight
		swatch := image.Rect(legend.Min.X+legendPad, top, legend.Min.X+legendPad+swatchSize, top+swatchSize)
		draw.Draw(img, swatch, image.NewUniform(r.color(i)), image.Point{}, draw.Over)
		d.Dot = fixed.P(swatch.Max.X+legendPad, top+metrics.Ascent.Ceil())
		d.DrawString(label)
	}
}

// A viewport transforms world coordinates into pixel coordinates, preserving
// the aspect ratio and flipping the y axis.
type viewport struct {
	scale   float64
	originX float64
	originY float64
	minX    float64
	maxY    float64
}

func newViewport(bounds *geom.Bounds, rect image.Rectangle) viewport {
	worldWidth := bounds.Max(0) - bounds.Min(0)
	worldHeight := bounds.Max(1) - bounds.Min(1)
	scale := math.Inf(1)
	if worldWidth > 0 {
		scale = float64(rect.Dx()) / worldWidth
	}
	if worldHeight > 0 {
		scale = min(scale, float64(rect.Dy())/worldHeight)
	}
	if math.IsInf(scale, 1) {
		scale = 1
	}
	return viewport{
		scale:   scale,
		originX: float64(rect.Min.X) + (float64(rect.Dx())-scale*worldWidth)/2,
		originY: float64(rect.Min.Y) + (float64(rect.Dy())-scale*worldHeight)/2,
		minX:    bounds.Min(0),
		maxY:    bounds.Max(1),
	}
}

func (v viewport) apply(x, y float64) (float32, float32) {
	return float32(v.originX + (x-v.minX)*v.scale), float32(v.originY + (v.maxY-y)*v.scale)
}

// fillPolygons adds the rings of polygons to z. Holes are oriented opposite to
// their exteriors so the non-zero winding rule leaves them unfilled.
func fillPolygons(z *vector.Rasterizer, v viewport, polygons []*geom.Polygon) {
	for _, polygon := range polygons {
		stride := polygon.Stride()
		flatCoords := polygon.FlatCoords()
		offset := 0
		for _, end := range polygon.Ends() {
			for i := offset; i+1 < end; i += stride {
				x, y := v.apply(flatCoords[i], flatCoords[i+1])
				if i == offset {
					z.MoveTo(x, y)
				} else {
					z.LineTo(x, y)
				}
			}
			z.ClosePath()
			offset = end
		}
	}
}

// outlinePolygons adds a quad of the given width for each edge of polygons to
// z. Every quad has the same orientation so overlapping quads never cancel.
func outlinePolygons(z *vector.Rasterizer, v viewport, polygons []*geom.Polygon, width float32) {
	for _, polygon := range polygons {
		stride := polygon.Stride()
		flatCoords := polygon.FlatCoords()
		offset := 0
		for _, end := range polygon.Ends() {
			for i := offset; i+stride+1 < end; i += stride {
				x0, y0 := v.apply(flatCoords[i], flatCoords[i+1])
				x1, y1 := v.apply(flatCoords[i+stride], flatCoords[i+stride+1])
				addSegmentQuad(z, x0, y0, x1, y1, width/2)
			}
			offset = end
		}
	}
}

func addSegmentQuad(z *vector.Rasterizer, x0, y0, x1, y1, halfWidth float32) {
	dx, dy := x1-x0, y1-y0
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	nx, ny := -dy/length*halfWidth, dx/length*halfWidth
	// Extend each end by half the width so that joins are covered.
	ex, ey := dx/length*halfWidth, dy/length*halfWidth
	z.MoveTo(x0-ex+nx, y0-ey+ny)
	z.LineTo(x1+ex+nx, y1+ey+ny)
	z.LineTo(x1+ex-nx, y1+ey-ny)
	z.LineTo(x0-ex-nx, y0-ey-ny)
	z.ClosePath()
}
