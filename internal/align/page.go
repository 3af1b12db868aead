package align

import (
	"image"

	"github.com/anthonynsimon/bild/segment"

	"github.com/sheetscan/omr-engine/internal/imaging"
)

// pageInkLevel separates print from paper when building the binary ink
// mask. It sits at the page-level threshold default, comfortably above
// pencil marks and printed layout, below scanned paper.
const pageInkLevel = 200

// pageCropMargin is the padding in pixels kept around the detected printed
// area so borderline layout lines are not shaved off.
const pageCropMargin = 4

// PageCrop reports where the printed area of a sheet was found.
type PageCrop struct {
	// Bounds is the cropped region in the input image's coordinate space.
	Bounds imaging.Region `json:"bounds"`

	// InkFraction is the share of page pixels classified as ink. Useful in
	// logs: near-zero means a blank scan, near-one an inverted or black one.
	InkFraction float64 `json:"ink_fraction"`
}

// CropPage trims the scanner background around the printed page area.
//
// The printed area is located by projecting the binary ink mask onto each
// axis: a row or column belongs to the page when at least 2% of its pixels
// are ink. The crop keeps a small margin around the detected span.
//
// The bool result is false when no plausible printed area exists, either
// because the sheet is blank or because the detected span is implausibly
// small. The input image is returned unchanged in that case.
func CropPage(gray *image.Gray) (*image.Gray, PageCrop, bool) {
	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return gray, PageCrop{}, false
	}

	mask := segment.Threshold(gray, pageInkLevel)

	rows := make([]int, height)
	cols := make([]int, width)
	ink := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y == 0 {
				rows[y]++
				cols[x]++
				ink++
			}
		}
	}

	rowFloor := width / 50
	colFloor := height / 50

	top, bottom := -1, -1
	for y := 0; y < height; y++ {
		if rows[y] > rowFloor {
			if top < 0 {
				top = y
			}
			bottom = y
		}
	}
	left, right := -1, -1
	for x := 0; x < width; x++ {
		if cols[x] > colFloor {
			if left < 0 {
				left = x
			}
			right = x
		}
	}

	if top < 0 || left < 0 {
		return gray, PageCrop{}, false
	}
	// A span under a quarter of the sheet is stray noise, not a page.
	if bottom-top < height/4 || right-left < width/4 {
		return gray, PageCrop{}, false
	}

	x1 := bounds.Min.X + left - pageCropMargin
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	y1 := bounds.Min.Y + top - pageCropMargin
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	x2 := bounds.Min.X + right + 1 + pageCropMargin
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	y2 := bounds.Min.Y + bottom + 1 + pageCropMargin
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	region := imaging.Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
	crop := gray.SubImage(region.Rect()).(*image.Gray)

	return crop, PageCrop{
		Bounds:      region,
		InkFraction: float64(ink) / float64(width*height),
	}, true
}
