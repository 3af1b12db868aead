package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// BubbleMark describes one bubble outline on an annotated review copy.
type BubbleMark struct {
	Region Region
	// Label is drawn next to marked bubbles so a reviewer can read the
	// detected answer straight off the sheet.
	Label string
	// Marked selects the marked outline color.
	Marked bool
	// InDoubt overrides the outline color to flag bubbles whose verdict
	// flipped between the local and global thresholds.
	InDoubt bool
	// Color, when set to a hex string, overrides the palette entirely.
	// Scoring uses this to paint answer-key verdicts over the outlines.
	Color string
}

// Palette holds the annotation colors as hex strings ("#RRGGBB").
type Palette struct {
	Marked   string
	Unmarked string
	InDoubt  string
	Text     string
}

// DefaultPalette returns the standard review colors: green for marked
// bubbles, light gray for unmarked ones, orange for disputed bubbles.
func DefaultPalette() Palette {
	return Palette{
		Marked:   "#00ff00",
		Unmarked: "#c8c8c8",
		InDoubt:  "#ffaa00",
		Text:     "#1a1a1a",
	}
}

// Annotate draws bubble outlines and an optional header stamp onto a copy of
// the sheet. The source image is not modified.
//
// Outline color precedence: InDoubt wins over Marked, since disputed bubbles
// are what a human reviewer needs to find first. A per-mark Color overrides
// the palette outright.
func Annotate(img image.Image, marks []BubbleMark, stamp string, pal Palette) (*image.RGBA, error) {
	markedColor, err := parseColor(pal.Marked)
	if err != nil {
		return nil, err
	}
	unmarkedColor, err := parseColor(pal.Unmarked)
	if err != nil {
		return nil, err
	}
	doubtColor, err := parseColor(pal.InDoubt)
	if err != nil {
		return nil, err
	}
	textColor, err := parseColor(pal.Text)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	for _, m := range marks {
		outline := unmarkedColor
		if m.Marked {
			outline = markedColor
		}
		if m.InDoubt {
			outline = doubtColor
		}
		if m.Color != "" {
			outline, err = parseColor(m.Color)
			if err != nil {
				return nil, err
			}
		}
		outlineRect(out, m.Region, outline)

		if m.Marked && m.Label != "" {
			drawText(out, m.Region.X1+2, m.Region.Y1-3, m.Label, textColor)
		}
	}

	if stamp != "" {
		drawText(out, 8, 16, stamp, textColor)
	}

	return out, nil
}

// parseColor parses a hex color string like "#FF0000" into an opaque RGBA.
func parseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("failed to parse color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// outlineRect draws a one-pixel rectangle outline. Pixels outside the image
// bounds are dropped by Set, so outlines near the sheet edge clip cleanly.
func outlineRect(img *image.RGBA, r Region, c color.RGBA) {
	for x := r.X1; x < r.X2; x++ {
		img.Set(x, r.Y1, c)
		img.Set(x, r.Y2-1, c)
	}
	for y := r.Y1; y < r.Y2; y++ {
		img.Set(r.X1, y, c)
		img.Set(r.X2-1, y, c)
	}
}

// drawText stamps a small fixed-width label with its baseline at (x, y).
func drawText(dst *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
