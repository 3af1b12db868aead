package batch

import (
	"fmt"

	"github.com/sheetscan/omr-engine/internal/evaluation"
	"github.com/sheetscan/omr-engine/internal/omr"
)

// FileError is the structured diagnostic for a file that could not be
// processed at all. The input index survives so the failed slot keeps
// its place in positional outputs.
type FileError struct {
	Path   string `json:"path"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// QualitySummary counts a file's fields by scan quality grade.
type QualitySummary struct {
	Excellent  int `json:"excellent"`
	Good       int `json:"good"`
	Acceptable int `json:"acceptable"`
	Poor       int `json:"poor"`
}

// Tally adds one field of the given grade.
func (s *QualitySummary) Tally(q omr.ScanQuality) {
	switch q {
	case omr.QualityExcellent:
		s.Excellent++
	case omr.QualityGood:
		s.Good++
	case omr.QualityAcceptable:
		s.Acceptable++
	default:
		s.Poor++
	}
}

// FileResult is the complete outcome for one input file, tagged with the
// position the file held in the batch enumeration.
type FileResult struct {
	InputIndex int    `json:"input_index"`
	FilePath   string `json:"file_path"`

	// Response maps output labels (fields, custom labels, text fields)
	// to their detected answer strings.
	Response map[string]string `json:"response,omitempty"`

	// Fields holds the per-field interpretations behind the response.
	Fields map[string]omr.FieldInterpretation `json:"fields,omitempty"`

	// MultiMarked is set when any bubble field read more than one mark.
	MultiMarked bool `json:"multi_marked,omitempty"`

	// AnnotatedPath is where the review copy was written, when one was.
	AnnotatedPath string `json:"annotated_path,omitempty"`

	// GlobalThreshold is the file-wide fallback derived from every
	// sample on the sheet.
	GlobalThreshold omr.ThresholdResult `json:"global_threshold"`

	Quality QualitySummary `json:"quality"`

	// Score is present when the batch ran with an answer key.
	Score *evaluation.Score `json:"score,omitempty"`

	// Err marks the slot of a file that failed outright.
	Err *FileError `json:"error,omitempty"`
}

// Failed reports whether this slot records a failure instead of a
// processed sheet.
func (r *FileResult) Failed() bool {
	return r.Err != nil
}
