package imaging

import "math"

// Point represents a 2D pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between two points in pixels.
func Distance(a, b Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Spread returns the RMS deviation of the points from their centroid, per
// axis. Reference-marker detection uses it to check that located markers
// form an axis-aligned rectangle: the two top markers should have near-zero
// Y spread, the two left markers near-zero X spread.
//
// Fewer than two points spread nothing and yield (0, 0).
func Spread(points []Point) (sx, sy float64) {
	if len(points) < 2 {
		return 0, 0
	}

	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.X)
		sumY += float64(p.Y)
	}
	avgX := sumX / float64(len(points))
	avgY := sumY / float64(len(points))

	var varX, varY float64
	for _, p := range points {
		dx := float64(p.X) - avgX
		dy := float64(p.Y) - avgY
		varX += dx * dx
		varY += dy * dy
	}

	return math.Sqrt(varX / float64(len(points))), math.Sqrt(varY / float64(len(points)))
}
