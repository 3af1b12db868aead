package imaging

import (
	"image"
	"image/color"
	"testing"
)

func whiteSheet(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	return img
}

func TestAnnotate(t *testing.T) {
	src := whiteSheet(60, 60)

	marks := []BubbleMark{
		{Region: Region{X1: 10, Y1: 10, X2: 20, Y2: 20}, Label: "A", Marked: true},
		{Region: Region{X1: 30, Y1: 10, X2: 40, Y2: 20}},
		{Region: Region{X1: 10, Y1: 30, X2: 20, Y2: 40}, Marked: true, InDoubt: true},
	}

	out, err := Annotate(src, marks, "", DefaultPalette())
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if got := out.RGBAAt(10, 10); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("marked outline: got %v, want green", got)
	}
	if got := out.RGBAAt(30, 10); got != (color.RGBA{200, 200, 200, 255}) {
		t.Errorf("unmarked outline: got %v, want light gray", got)
	}
	// InDoubt takes precedence over Marked.
	if got := out.RGBAAt(10, 30); got != (color.RGBA{255, 170, 0, 255}) {
		t.Errorf("disputed outline: got %v, want orange", got)
	}
	// Bubble interiors stay untouched.
	if got := out.RGBAAt(15, 15); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("interior: got %v, want white", got)
	}

	// Source must not be modified.
	if got := src.NRGBAAt(10, 10); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Error("Annotate modified the source image")
	}
}

func TestAnnotate_Stamp(t *testing.T) {
	src := whiteSheet(200, 40)

	out, err := Annotate(src, nil, "sheet_007 score 42", DefaultPalette())
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	textColor := color.RGBA{26, 26, 26, 255}
	found := false
	for y := 0; y < 20 && !found; y++ {
		for x := 0; x < 160 && !found; x++ {
			if out.RGBAAt(x, y) == textColor {
				found = true
			}
		}
	}
	if !found {
		t.Error("stamp text not drawn in header area")
	}
}

func TestAnnotate_ColorOverride(t *testing.T) {
	src := whiteSheet(40, 40)

	marks := []BubbleMark{
		{Region: Region{X1: 10, Y1: 10, X2: 20, Y2: 20}, Marked: true, Color: "#ff0000"},
		{Region: Region{X1: 25, Y1: 10, X2: 35, Y2: 20}, Marked: true, Color: "bogus"},
	}

	out, err := Annotate(src, marks[:1], "", DefaultPalette())
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if got := out.RGBAAt(10, 10); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("override outline: got %v, want red", got)
	}

	if _, err := Annotate(src, marks, "", DefaultPalette()); err == nil {
		t.Error("expected error for malformed override color")
	}
}

func TestAnnotate_BadColor(t *testing.T) {
	src := whiteSheet(20, 20)

	pal := DefaultPalette()
	pal.Marked = "not-a-color"

	if _, err := Annotate(src, nil, "", pal); err == nil {
		t.Error("expected error for malformed palette color")
	}
}

func TestAnnotate_EdgeClipping(t *testing.T) {
	src := whiteSheet(20, 20)

	// Region overhangs the sheet; out-of-bounds outline pixels are dropped.
	marks := []BubbleMark{
		{Region: Region{X1: 15, Y1: 15, X2: 30, Y2: 30}, Marked: true},
	}

	out, err := Annotate(src, marks, "", DefaultPalette())
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if got := out.RGBAAt(16, 15); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("visible outline segment: got %v, want green", got)
	}
}
