package inundation

import (
	"math"
	"slices"

	"github.com/ctessum/polyclip-go"
	"github.com/twpayne/go-geom"
)

// doubleRingArea returns twice the signed area of the closed ring flatCoords
// with stride two. Counter-clockwise rings have positive areas.
func doubleRingArea(flatCoords []float64) float64 {
	var doubleArea float64
	for i := 2; i < len(flatCoords); i += 2 {
		doubleArea += flatCoords[i-2]*flatCoords[i+1] - flatCoords[i]*flatCoords[i-1]
	}
	return doubleArea
}

// orientRing reverses the closed ring flatCoords in place if needed so that it
// is counter-clockwise if ccw is true and clockwise otherwise.
func orientRing(flatCoords []float64, ccw bool) {
	if (doubleRingArea(flatCoords) > 0) == ccw {
		return
	}
	for i, j := 0, len(flatCoords)-2; i < j; i, j = i+2, j-2 {
		flatCoords[i], flatCoords[j] = flatCoords[j], flatCoords[i]
		flatCoords[i+1], flatCoords[j+1] = flatCoords[j+1], flatCoords[i+1]
	}
}

// polygonArea returns the area of polygon regardless of ring orientation.
func polygonArea(polygon *geom.Polygon) float64 {
	var area float64
	for i := range polygon.NumLinearRings() {
		ringArea := math.Abs(doubleRingArea(polygon.LinearRing(i).FlatCoords())) / 2
		if i == 0 {
			area += ringArea
		} else {
			area -= ringArea
		}
	}
	return area
}

// toPolyclip returns polygon's rings as polyclip contours, without closing
// points.
func toPolyclip(polygon *geom.Polygon) polyclip.Polygon {
	contours := make(polyclip.Polygon, 0, polygon.NumLinearRings())
	for i := range polygon.NumLinearRings() {
		flatCoords := polygon.LinearRing(i).FlatCoords()
		contour := make(polyclip.Contour, 0, len(flatCoords)/2)
		for j := 0; j+1 < len(flatCoords); j += 2 {
			contour.Add(polyclip.Point{X: flatCoords[j], Y: flatCoords[j+1]})
		}
		if n := len(contour); n > 1 && contour[0].Equals(contour[n-1]) {
			contour = contour[:n-1]
		}
		if len(contour) >= 3 {
			contours.Add(contour)
		}
	}
	return contours
}

// fromPolyclip assembles polyclip contours, which carry no hierarchy, into
// polygons. A contour nested inside an odd number of other contours is a hole
// of the smallest contour that contains it.
func fromPolyclip(contours polyclip.Polygon) []*geom.Polygon {
	type contourInfo struct {
		contour polyclip.Contour
		area    float64
		depth   int
		parent  int
	}
	infos := make([]contourInfo, 0, len(contours))
	for _, contour := range contours {
		if len(contour) < 3 {
			continue
		}
		infos = append(infos, contourInfo{
			contour: contour,
			area:    math.Abs(doubleContourArea(contour)) / 2,
			parent:  -1,
		})
	}
	if len(infos) == 0 {
		return nil
	}

	for i := range infos {
		// Contours only touch at vertices, so the midpoint of an edge is
		// either strictly inside or strictly outside every other contour.
		p0, p1 := infos[i].contour[0], infos[i].contour[1]
		midpoint := polyclip.Point{X: (p0.X + p1.X) / 2, Y: (p0.Y + p1.Y) / 2}
		smallestArea := math.Inf(1)
		for j := range infos {
			if i == j || !infos[j].contour.Contains(midpoint) {
				continue
			}
			infos[i].depth++
			if infos[j].area < smallestArea {
				smallestArea = infos[j].area
				infos[i].parent = j
			}
		}
	}

	polygonIndexes := make(map[int]int)
	var ringss [][][]float64
	for i, info := range infos {
		if info.depth%2 == 0 {
			polygonIndexes[i] = len(ringss)
			ringss = append(ringss, [][]float64{closedRing(info.contour, true)})
		}
	}
	for _, info := range infos {
		if info.depth%2 == 1 && info.parent >= 0 {
			if index, ok := polygonIndexes[info.parent]; ok {
				ringss[index] = append(ringss[index], closedRing(info.contour, false))
			}
		}
	}

	polygons := make([]*geom.Polygon, 0, len(ringss))
	for _, rings := range ringss {
		var flatCoords []float64
		ends := make([]int, 0, len(rings))
		for _, ring := range rings {
			flatCoords = append(flatCoords, ring...)
			ends = append(ends, len(flatCoords))
		}
		polygons = append(polygons, geom.NewPolygonFlat(geom.XY, flatCoords, ends))
	}
	return polygons
}

// closedRing returns contour as a closed ring of flat coordinates with the
// given orientation.
func closedRing(contour polyclip.Contour, ccw bool) []float64 {
	flatCoords := make([]float64, 0, 2*len(contour)+2)
	for _, p := range slices.Concat(contour, polyclip.Contour{contour[0]}) {
		flatCoords = append(flatCoords, p.X, p.Y)
	}
	orientRing(flatCoords, ccw)
	return flatCoords
}

func doubleContourArea(contour polyclip.Contour) float64 {
	var doubleArea float64
	for i, p := range contour {
		q := contour[(i+1)%len(contour)]
		doubleArea += p.X*q.Y - q.X*p.Y
	}
	return doubleArea
}
