package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sheetscan/omr-engine/internal/batch"
)

// Output file names inside the sink directory.
const (
	resultsFileName     = "results.csv"
	multiMarkedFileName = "multimarked.csv"
	errorsFileName      = "errors.csv"
)

// metaColumns precede the response columns in every result row.
var metaColumns = []string{"file_id", "input_path", "output_path", "score"}

// errorColumns is the header of the failures file.
var errorColumns = []string{"file_id", "input_path", "error"}

// CSVOptions configures a CSV sink.
type CSVOptions struct {
	// Dir receives the output files. Created if missing.
	Dir string

	// Columns is the response column order, normally the template's
	// output columns.
	Columns []string

	// SplitMultiMarked routes multi-marked sheets to their own file so
	// the main results stay clean for direct import.
	SplitMultiMarked bool
}

// CSVSink writes one row per finished file: successes to results.csv,
// optionally multi-marked sheets to multimarked.csv, failures to
// errors.csv. Rows are flushed as they land, so a partial run still
// leaves usable files behind.
type CSVSink struct {
	mu      sync.Mutex
	columns []string
	split   bool

	results *csvFile
	multi   *csvFile
	errors  *csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink creates the output directory and the result files with
// their headers.
func NewCSVSink(opts CSVOptions) (*CSVSink, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("csv sink needs an output directory")
	}
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("csv sink needs at least one response column")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	header := append(append([]string(nil), metaColumns...), opts.Columns...)

	s := &CSVSink{columns: opts.Columns, split: opts.SplitMultiMarked}

	var err error
	if s.results, err = createCSV(filepath.Join(opts.Dir, resultsFileName), header); err != nil {
		return nil, err
	}
	if s.errors, err = createCSV(filepath.Join(opts.Dir, errorsFileName), errorColumns); err != nil {
		s.results.close()
		return nil, err
	}
	if opts.SplitMultiMarked {
		if s.multi, err = createCSV(filepath.Join(opts.Dir, multiMarkedFileName), header); err != nil {
			s.results.close()
			s.errors.close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes one result row to the file its outcome belongs in.
func (s *CSVSink) Append(r *batch.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Failed() {
		return s.errors.append([]string{fileID(r.FilePath), r.FilePath, r.Err.Reason})
	}

	row := make([]string, 0, len(metaColumns)+len(s.columns))
	row = append(row, fileID(r.FilePath), r.FilePath, r.AnnotatedPath, scoreString(r))
	for _, column := range s.columns {
		row = append(row, r.Response[column])
	}

	target := s.results
	if s.split && r.MultiMarked {
		target = s.multi
	}
	return target.append(row)
}

// Close flushes and closes every output file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.results.close()
	if e := s.errors.close(); err == nil {
		err = e
	}
	if s.multi != nil {
		if e := s.multi.close(); err == nil {
			err = e
		}
	}
	return err
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if err := cf.append(header); err != nil {
		f.Close()
		return nil, err
	}
	return cf, nil
}

func (cf *csvFile) append(row []string) error {
	if err := cf.w.Write(row); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(cf.f.Name()), err)
	}
	cf.w.Flush()
	if err := cf.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(cf.f.Name()), err)
	}
	return nil
}

func (cf *csvFile) close() error {
	cf.w.Flush()
	err := cf.w.Error()
	if e := cf.f.Close(); err == nil {
		err = e
	}
	return err
}

func fileID(path string) string {
	return filepath.Base(path)
}

func scoreString(r *batch.FileResult) string {
	if r.Score == nil {
		return ""
	}
	return strconv.FormatFloat(r.Score.Total, 'f', 2, 64)
}
