// Package imaging loads scanned answer sheets and prepares them for bubble
// measurement.
//
// The package accepts PNG, JPEG, and GIF scans plus single sheets delivered
// as PDF (first page, rasterized). Detection math downstream runs on 8-bit
// grayscale where 0 is full ink and 255 is blank paper, so every preparation
// step here ends in an *image.Gray.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner,
// X increasing rightward and Y increasing downward. For a Region, (X1, Y1)
// is the inclusive top-left corner and (X2, Y2) the exclusive bottom-right
// corner, so Width = X2 - X1 and Height = Y2 - Y1.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The remaining operations are pure:
// they allocate and return new images without mutating their input, so the
// same decoded image may feed several goroutines at once.
//
// # Intensity Convention
//
// MeanIntensity and the preparation helpers report values in [0, 255]. A
// marked bubble pulls the regional mean down toward 0; thresholding between
// marked and unmarked values happens elsewhere and is not a concern of this
// package.
package imaging
