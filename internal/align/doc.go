// Package align performs best-effort geometric correction of scanned sheets
// before bubble measurement.
//
// Three corrections are available, matching what templates request through
// their preprocessor list: cropping to the printed page area, cropping to
// printed corner reference markers, and small-angle deskew. All of them are
// best-effort by contract. A correction either succeeds or hands back the
// input image unchanged together with a false flag; a sheet that defeats
// alignment is still measured, just without the correction. None of the
// functions here return errors.
//
// Corrections operate on the grayscale sheet at scan resolution, before the
// resize to template page dimensions, so detected coordinates are in source
// pixels.
package align
