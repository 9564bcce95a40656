package inundation

import (
	"context"

	"github.com/twpayne/go-geom"
)

// A Vectorizer converts a mask into polygons in the mask's CRS.
type Vectorizer interface {
	Vectorize(ctx context.Context, mask *Mask) (*PolygonSet, error)
}

// A BoundaryVectorizer vectorizes masks by tracing the boundaries of
// 8-connected groups of inundated cells. Each group becomes a single polygon,
// with holes for enclosed dry areas, whose vertices are cell corners.
type BoundaryVectorizer struct{}

// A vertex is a cell corner in raster coordinates.
type vertex struct {
	x int
	y int
}

type direction struct {
	dx int
	dy int
}

// A boundaryEdge is a unit length cell edge with a wet cell on its right and a
// dry cell on its left, when viewed with rows increasing downwards.
type boundaryEdge struct {
	from vertex
	dir  direction
}

func (e boundaryEdge) to() vertex {
	return vertex{x: e.from.x + e.dir.dx, y: e.from.y + e.dir.dy}
}

// Vectorize implements Vectorizer.Vectorize.
func (BoundaryVectorizer) Vectorize(ctx context.Context, mask *Mask) (*PolygonSet, error) {
	labels, components := labelComponents(mask)

	edgesByComponent := make([][]boundaryEdge, components)
	for row := range mask.Height {
		for col := range mask.Width {
			label := labels[col+row*mask.Width]
			if label == 0 {
				continue
			}
			edges := edgesByComponent[label-1]
			if !mask.At(col, row-1) {
				edges = append(edges, boundaryEdge{from: vertex{col, row}, dir: direction{1, 0}})
			}
			if !mask.At(col+1, row) {
				edges = append(edges, boundaryEdge{from: vertex{col + 1, row}, dir: direction{0, 1}})
			}
			if !mask.At(col, row+1) {
				edges = append(edges, boundaryEdge{from: vertex{col + 1, row + 1}, dir: direction{-1, 0}})
			}
			if !mask.At(col-1, row) {
				edges = append(edges, boundaryEdge{from: vertex{col, row + 1}, dir: direction{0, -1}})
			}
			edgesByComponent[label-1] = edges
		}
	}

	polygons := make([]*geom.Polygon, 0, components)
	for _, edges := range edgesByComponent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		polygons = append(polygons, newTracedPolygon(traceRings(edges), mask.Transform))
	}
	polygonsVectorized.Add(float64(len(polygons)))

	return NewPolygonSet(mask.CRS, polygons...), nil
}

// labelComponents labels the 8-connected groups of inundated cells in mask
// with consecutive integers starting at one. Dry cells are labeled zero.
func labelComponents(mask *Mask) ([]int32, int) {
	labels := make([]int32, len(mask.Cells))
	var components int32
	var stack []int
	for start, cell := range mask.Cells {
		if !cell || labels[start] != 0 {
			continue
		}
		components++
		labels[start] = components
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			index := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			col, row := index%mask.Width, index/mask.Width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if !mask.At(col+dx, row+dy) {
						continue
					}
					neighbor := col + dx + (row+dy)*mask.Width
					if labels[neighbor] == 0 {
						labels[neighbor] = components
						stack = append(stack, neighbor)
					}
				}
			}
		}
	}
	return labels, int(components)
}

// traceRings joins edges into closed rings of corner vertices. Where two wet
// cells touch only at a corner the ring turns left, keeping diagonal
// neighbors in the same ring.
func traceRings(edges []boundaryEdge) [][]vertex {
	outgoing := make(map[vertex][]int, len(edges))
	for i, edge := range edges {
		outgoing[edge.from] = append(outgoing[edge.from], i)
	}

	next := func(i int) int {
		candidates := outgoing[edges[i].to()]
		if len(candidates) == 1 {
			return candidates[0]
		}
		left := direction{dx: edges[i].dir.dy, dy: -edges[i].dir.dx}
		for _, candidate := range candidates {
			if edges[candidate].dir == left {
				return candidate
			}
		}
		return candidates[0]
	}

	used := make([]bool, len(edges))
	var rings [][]vertex
	var ringEdges []int
	for start := range edges {
		if used[start] {
			continue
		}
		ringEdges = ringEdges[:0]
		for i := start; !used[i]; i = next(i) {
			used[i] = true
			ringEdges = append(ringEdges, i)
		}

		// Only keep vertices where the direction changes.
		var ring []vertex
		for k, i := range ringEdges {
			previous := ringEdges[(k+len(ringEdges)-1)%len(ringEdges)]
			if edges[previous].dir != edges[i].dir {
				ring = append(ring, edges[i].from)
			}
		}
		rings = append(rings, ring)
	}
	return rings
}

// newTracedPolygon returns the polygon with the given rings in raster
// coordinates. The exterior ring is the one that is clockwise when rows
// increase downwards.
func newTracedPolygon(rings [][]vertex, transform Transform) *geom.Polygon {
	exterior := 0
	for i, ring := range rings {
		if vertexRingDoubleArea(ring) > 0 {
			exterior = i
			break
		}
	}
	rings[0], rings[exterior] = rings[exterior], rings[0]

	var flatCoords []float64
	var ends []int
	for i, ring := range rings {
		offset := len(flatCoords)
		for _, v := range append(ring, ring[0]) {
			x, y := transform.Apply(float64(v.x), float64(v.y))
			flatCoords = append(flatCoords, x, y)
		}
		orientRing(flatCoords[offset:], i == 0)
		ends = append(ends, len(flatCoords))
	}
	return geom.NewPolygonFlat(geom.XY, flatCoords, ends)
}

func vertexRingDoubleArea(ring []vertex) int {
	doubleArea := 0
	for i, v := range ring {
		w := ring[(i+1)%len(ring)]
		doubleArea += v.x*w.y - w.x*v.y
	}
	return doubleArea
}
