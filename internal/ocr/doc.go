// Package ocr reads free-text fields from answer sheets.
//
// Bubble grids cover the multiple-choice questions; fields a student
// fills in by hand, such as a name line or a written roll number, are
// recognized here through the Tesseract engine (via gosseract/v2).
//
// # Prerequisites
//
// Tesseract must be installed on the system along with the language
// data for the requested language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// # Concurrency
//
// Every ReadRegion call builds and closes its own engine client, so the
// package is safe to call from parallel batch workers. The cost is the
// per-call engine setup, which is small next to recognition itself.
//
// # Temporary Files
//
// Tesseract reads from file paths, so each call writes the cropped scan
// zone to a temporary PNG and removes it when recognition completes.
//
// # Error Handling
//
// Recognition failures return errors. Callers should treat them as a
// degraded reading of one field, not as a failed sheet: the rest of the
// sheet's bubbles are still valid. If word confidence extraction fails,
// the reading is still returned with a zero confidence.
package ocr
