package align

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Skew search window. Scanner feed misalignment stays within a few degrees;
// anything larger means the sheet went in sideways and no rotation will
// rescue the layout match.
const (
	maxSkewDegrees  = 4.0
	skewStepDegrees = 0.1

	// minSkewDegrees is the smallest rotation worth applying. Below it the
	// resampling blur costs more accuracy than the correction gains.
	minSkewDegrees = 0.15
)

// DetectSkew estimates the rotation of printed rows relative to the pixel
// grid, in degrees. Positive angles mean rows descend to the right.
//
// Candidate angles across the search window are scored by the energy of
// their row projection profile: at the true angle the ink of each printed
// row collapses into few dense bins, spiking the sum of squared bin counts.
// Sheets with too little ink to vote report 0.
func DetectSkew(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Ink pixels sampled on a stride; full resolution adds cost, not
	// accuracy, at sub-degree granularity.
	type inkPoint struct{ x, y float64 }
	var points []inkPoint
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 2 {
			if gray.GrayAt(x, y).Y < markerInkLevel {
				points = append(points, inkPoint{x: float64(x), y: float64(y)})
			}
		}
	}
	if len(points) < 100 {
		return 0
	}

	diag := int(math.Hypot(float64(width), float64(height)))
	bestAngle := 0.0
	bestScore := -1.0

	for a := -maxSkewDegrees; a <= maxSkewDegrees+1e-9; a += skewStepDegrees {
		rad := a * math.Pi / 180
		cosA := math.Cos(rad)
		sinA := math.Sin(rad)

		bins := make([]int, 2*diag+1)
		for _, p := range points {
			r := int(math.Round(p.y*cosA-p.x*sinA)) + diag
			if r >= 0 && r < len(bins) {
				bins[r]++
			}
		}

		score := 0.0
		for _, n := range bins {
			score += float64(n) * float64(n)
		}
		if score > bestScore {
			bestScore = score
			bestAngle = a
		}
	}

	// Snap to the search resolution; the loop accumulates float noise.
	return math.Round(bestAngle/skewStepDegrees) * skewStepDegrees
}

// Deskew rotates the sheet by the given angle, as returned by DetectSkew,
// filling revealed corners with paper white. Angles below minSkewDegrees
// return the input unchanged.
func Deskew(img image.Image, angleDegrees float64) image.Image {
	if math.Abs(angleDegrees) < minSkewDegrees {
		return img
	}
	return imaging.Rotate(img, angleDegrees, color.White)
}
