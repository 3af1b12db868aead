// Package omr implements the detection and interpretation core: it turns
// measured bubble intensities into marked answers.
//
// # Thresholding Model
//
// Marked bubbles scan dark and unmarked bubbles stay light, so the mean
// intensities of a sheet's bubbles form two clusters on the 0-255
// grayscale. A threshold strategy finds the cut between the clusters.
// GlobalThresholdStrategy looks at every sample of a file at once,
// LocalThresholdStrategy looks at a single field and falls back to the
// file-wide value when the field alone is ambiguous, and
// AdaptiveThresholdStrategy blends several strategies by confidence.
//
// # Ownership and Concurrency
//
// A FileAggregate belongs to exactly one file-processing task and is
// never shared, so it does not lock. BatchAggregate is the only shared
// state in this package, a fixed set of counters guarded by a mutex.
// Strategies and the FieldInterpreter are stateless with respect to
// their inputs and may be called from any goroutine.
package omr
