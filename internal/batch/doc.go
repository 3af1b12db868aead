// Package batch runs the per-sheet pipeline across a set of input files
// and guarantees ordered output.
//
// The Processor owns one sheet end to end: load, geometric correction,
// preparation, bubble measurement, file-wide threshold derivation,
// per-field interpretation, and the optional scoring, text reading, and
// review outputs. Every per-sheet allocation is local to the call, so a
// single Processor serves all workers.
//
// The Scheduler owns the batch: it dispatches one task per file to a
// bounded worker pool, collects results in whatever order workers
// finish, reorders them by input index, and only then emits to the
// sink. The one ordering guarantee is that sink writes follow the input
// enumeration order exactly, independent of completion order. A single
// worker degenerates to sequential execution with immediate emission
// and no reordering work.
//
// Failure semantics follow three classes. A sheet that cannot be read
// fails alone: its slot is emitted with a FileError and the batch
// continues. Degenerate data (blank fields, weak separations) is never
// an error; the threshold fallbacks absorb it. Contract violations
// (zero workers, missing collaborators) stop the batch before any file
// is dispatched.
package batch
