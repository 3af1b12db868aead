package align

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/segment"

	"github.com/sheetscan/omr-engine/internal/imaging"
)

// markerInkLevel separates printed reference squares from paper. Markers are
// printed solid black, so the level sits well below any paper value.
const markerInkLevel = 128

// Marker is one located corner reference square.
type Marker struct {
	// Center of the blob's bounding box, in the input image's coordinates.
	Center imaging.Point `json:"center"`

	// Bounds is the blob's bounding box.
	Bounds imaging.Region `json:"bounds"`

	// Area is the blob's pixel count.
	Area int `json:"area"`

	// Fill is Area over the bounding box area. A solid printed square
	// scores close to 1; ragged noise scores low.
	Fill float64 `json:"fill"`
}

// FindMarkers locates the four solid reference squares printed near the
// sheet corners. expectedSize is the marker edge length in pixels at scan
// resolution. The returned markers are ordered top-left, top-right,
// bottom-left, bottom-right.
//
// The bool result is false when fewer than four plausible squares exist or
// the located squares do not form an axis-aligned rectangle. Callers fall
// back to the uncorrected sheet in that case.
func FindMarkers(gray *image.Gray, expectedSize int) ([4]Marker, bool) {
	var located [4]Marker
	if expectedSize <= 0 {
		return located, false
	}

	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mask := segment.Threshold(gray, markerInkLevel)
	candidates := markerBlobs(mask, bounds, expectedSize)
	if len(candidates) < 4 {
		return located, false
	}

	corners := [4]imaging.Point{
		{X: bounds.Min.X, Y: bounds.Min.Y},
		{X: bounds.Max.X - 1, Y: bounds.Min.Y},
		{X: bounds.Min.X, Y: bounds.Max.Y - 1},
		{X: bounds.Max.X - 1, Y: bounds.Max.Y - 1},
	}
	// A corner marker that sits further than a quarter of the diagonal from
	// its corner is some other printed element.
	maxCornerDist := math.Hypot(float64(width), float64(height)) / 4

	claimed := make(map[int]bool, 4)
	for i, corner := range corners {
		best := -1
		bestDist := maxCornerDist
		for j, blob := range candidates {
			if claimed[j] {
				continue
			}
			if d := imaging.Distance(blob.Center, corner); d < bestDist {
				best = j
				bestDist = d
			}
		}
		if best < 0 {
			return located, false
		}
		claimed[best] = true
		located[i] = candidates[best]
	}

	// The four centers must form an axis-aligned rectangle: paired markers
	// may wobble by printing tolerance, not more than a marker's edge.
	tol := float64(expectedSize)
	if _, sy := imaging.Spread([]imaging.Point{located[0].Center, located[1].Center}); sy > tol {
		return located, false
	}
	if _, sy := imaging.Spread([]imaging.Point{located[2].Center, located[3].Center}); sy > tol {
		return located, false
	}
	if sx, _ := imaging.Spread([]imaging.Point{located[0].Center, located[2].Center}); sx > tol {
		return located, false
	}
	if sx, _ := imaging.Spread([]imaging.Point{located[1].Center, located[3].Center}); sx > tol {
		return located, false
	}

	return located, true
}

// CropToMarkers crops the sheet to the axis-aligned rectangle spanned by the
// four marker centers. Perspective distortion is not corrected; flatbed and
// sheet-fed scans shear at most a pixel or two across a page, which the
// threshold math absorbs.
func CropToMarkers(gray *image.Gray, markers [4]Marker) *image.Gray {
	minX, minY := markers[0].Center.X, markers[0].Center.Y
	maxX, maxY := minX, minY
	for _, m := range markers[1:] {
		if m.Center.X < minX {
			minX = m.Center.X
		}
		if m.Center.X > maxX {
			maxX = m.Center.X
		}
		if m.Center.Y < minY {
			minY = m.Center.Y
		}
		if m.Center.Y > maxY {
			maxY = m.Center.Y
		}
	}

	rect := image.Rect(minX, minY, maxX+1, maxY+1).Intersect(gray.Bounds())
	return gray.SubImage(rect).(*image.Gray)
}

// markerBlobs collects connected ink components that look like solid
// squares of roughly the expected size.
func markerBlobs(mask *image.Gray, bounds image.Rectangle, expectedSize int) []Marker {
	width := bounds.Dx()
	height := bounds.Dy()

	minArea := expectedSize * expectedSize / 3
	maxArea := expectedSize * expectedSize * 3

	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	var blobs []Marker
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if visited[y][x] || mask.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y != 0 {
				continue
			}

			points := floodFill(mask, visited, x, y, bounds)
			area := len(points)
			if area < minArea || area > maxArea {
				continue
			}

			minX, minY := points[0].X, points[0].Y
			maxX, maxY := minX, minY
			for _, p := range points[1:] {
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}
			}

			w := maxX - minX + 1
			h := maxY - minY + 1
			aspect := float64(w) / float64(h)
			if aspect < 0.5 || aspect > 2 {
				continue
			}
			fill := float64(area) / float64(w*h)
			if fill < 0.6 {
				continue
			}

			blobs = append(blobs, Marker{
				Center: imaging.Point{
					X: bounds.Min.X + (minX+maxX+1)/2,
					Y: bounds.Min.Y + (minY+maxY+1)/2,
				},
				Bounds: imaging.Region{
					X1: bounds.Min.X + minX,
					Y1: bounds.Min.Y + minY,
					X2: bounds.Min.X + maxX + 1,
					Y2: bounds.Min.Y + maxY + 1,
				},
				Area: area,
				Fill: fill,
			})
		}
	}
	return blobs
}

// floodFill collects one 8-connected ink component, stack-based to stay off
// the call stack on large blobs. Coordinates are 0-based grid positions
// relative to bounds.Min.
func floodFill(mask *image.Gray, visited [][]bool, startX, startY int, bounds image.Rectangle) []imaging.Point {
	width := bounds.Dx()
	height := bounds.Dy()

	var points []imaging.Point
	stack := []imaging.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || mask.GrayAt(bounds.Min.X+p.X, bounds.Min.Y+p.Y).Y != 0 {
			continue
		}

		visited[p.Y][p.X] = true
		points = append(points, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, imaging.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}

	return points
}
