package align

import (
	"image"
	"image/color"
	"testing"
)

// blankSheet builds a white grayscale page.
func blankSheet(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

// fillRect paints a solid rectangle. x2/y2 exclusive.
func fillRect(img *image.Gray, x1, y1, x2, y2 int, v uint8) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func TestCropPage(t *testing.T) {
	sheet := blankSheet(200, 160)
	fillRect(sheet, 30, 20, 170, 140, 0)

	crop, info, ok := CropPage(sheet)
	if !ok {
		t.Fatal("CropPage should locate the printed area")
	}

	bounds := crop.Bounds()
	if bounds.Min.X > 30 || bounds.Min.Y > 20 || bounds.Max.X < 170 || bounds.Max.Y < 140 {
		t.Errorf("crop %v does not contain the printed area (30,20)-(170,140)", bounds)
	}
	// The crop must still shed most of the scanner background.
	if bounds.Min.X < 30-pageCropMargin-1 || bounds.Max.X > 170+pageCropMargin+1 {
		t.Errorf("crop %v keeps too much background", bounds)
	}

	wantInk := float64(140*120) / float64(200*160)
	if info.InkFraction < wantInk-0.01 || info.InkFraction > wantInk+0.01 {
		t.Errorf("ink fraction: got %v, want ~%v", info.InkFraction, wantInk)
	}
}

func TestCropPage_Blank(t *testing.T) {
	sheet := blankSheet(100, 100)

	crop, _, ok := CropPage(sheet)
	if ok {
		t.Error("CropPage should report failure on a blank sheet")
	}
	if crop != sheet {
		t.Error("failed crop should return the input unchanged")
	}
}

func TestCropPage_NoiseOnly(t *testing.T) {
	sheet := blankSheet(200, 160)
	// A lone speck is not a page.
	fillRect(sheet, 90, 70, 102, 82, 0)

	if _, _, ok := CropPage(sheet); ok {
		t.Error("CropPage should reject an implausibly small printed area")
	}
}

func TestCropPage_ContentSurvives(t *testing.T) {
	sheet := blankSheet(300, 200)
	fillRect(sheet, 40, 30, 260, 170, 0)

	crop, _, ok := CropPage(sheet)
	if !ok {
		t.Fatal("CropPage should locate the printed area")
	}

	// Every content pixel must still be addressable in the crop.
	bounds := crop.Bounds()
	for _, p := range []image.Point{{X: 40, Y: 30}, {X: 259, Y: 169}} {
		if !p.In(bounds) {
			t.Errorf("content pixel %v lost by crop %v", p, bounds)
		}
	}
	if got := crop.GrayAt(40, 30).Y; got != 0 {
		t.Errorf("content pixel value: got %d, want 0", got)
	}
}
