package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sheetscan/omr-engine/internal/omr"
)

// FileProcessor turns one input file into its FileResult.
// Implementations must be safe for concurrent calls; the scheduler
// shares one across all workers.
type FileProcessor interface {
	Process(path string, index int) (*FileResult, error)
}

// Sink receives results strictly in input order.
type Sink interface {
	Append(*FileResult) error
}

// Summary describes a finished batch run.
type Summary struct {
	Files      int            `json:"files"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Sequential bool           `json:"sequential"`
	Elapsed    time.Duration  `json:"elapsed"`
	Counters   map[string]int `json:"counters"`
}

// Scheduler fans a batch of files over a bounded worker pool and emits
// results in input order.
//
// Results are collected as workers finish, in whatever order completion
// happens, then sorted by input index before any sink write: ordering
// correctness takes priority over streaming latency. With a single
// worker the pool degenerates to in-order sequential execution and each
// result is emitted as soon as it exists, which is also the mode used
// when a human reviews sheets one at a time.
type Scheduler struct {
	// Workers is the pool size, at least 1.
	Workers int

	Processor FileProcessor
	Sink      Sink

	// Counters is the batch counter store shared with the processor;
	// the scheduler adds the failure counts to it.
	Counters *omr.BatchAggregate

	Logger *slog.Logger
}

// Run processes files and emits their results in input order. Contract
// violations surface here, before any file is dispatched; per-file
// failures never abort the batch and are reported in the summary
// instead. A sink write failure does abort, since continuing would
// silently drop output.
func (s *Scheduler) Run(files []string) (*Summary, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := s.logger()
	log.Info("batch starting", "files", len(files), "workers", s.Workers)

	summary := &Summary{Files: len(files), Sequential: s.Workers == 1}

	var err error
	if summary.Sequential {
		err = s.runSequential(files, summary)
	} else {
		err = s.runPool(files, summary)
	}

	summary.Elapsed = time.Since(start)
	summary.Counters = s.Counters.Snapshot()
	if err != nil {
		return summary, err
	}

	log.Info("batch finished",
		"files", summary.Files,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// runSequential is the single-worker path: strict submission order,
// immediate emission, no reordering work.
func (s *Scheduler) runSequential(files []string, summary *Summary) error {
	for i, path := range files {
		if err := s.emit(s.processOne(path, i), summary); err != nil {
			return err
		}
	}
	return nil
}

// runPool dispatches every file to the worker pool, collects results in
// completion order, reorders by input index, and only then emits.
func (s *Scheduler) runPool(files []string, summary *Summary) error {
	collected := make(chan *FileResult, len(files))

	var g errgroup.Group
	g.SetLimit(s.Workers)
	for i, path := range files {
		g.Go(func() error {
			collected <- s.processOne(path, i)
			return nil
		})
	}
	// Workers report failures inside their results, never as errors.
	_ = g.Wait()
	close(collected)

	results := make([]*FileResult, 0, len(files))
	for r := range collected {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].InputIndex < results[j].InputIndex
	})

	for _, r := range results {
		if err := s.emit(r, summary); err != nil {
			return err
		}
	}
	return nil
}

// processOne never lets a file abort the batch: any processing error
// becomes a failed result slot that keeps the file's input index.
func (s *Scheduler) processOne(path string, index int) *FileResult {
	result, err := s.Processor.Process(path, index)
	if err == nil {
		return result
	}

	var fe *FileError
	if !errors.As(err, &fe) {
		fe = &FileError{Path: path, Index: index, Reason: err.Error()}
	}
	s.Counters.Increment(omr.CounterFailed)
	s.logger().Error("file failed", "file", path, "index", index, "reason", fe.Reason)
	return &FileResult{InputIndex: index, FilePath: path, Err: fe}
}

// emit hands one result to the sink and updates the summary tallies.
func (s *Scheduler) emit(r *FileResult, summary *Summary) error {
	if r.Failed() {
		summary.Failed++
	} else {
		summary.Succeeded++
	}
	if err := s.Sink.Append(r); err != nil {
		return fmt.Errorf("failed to emit result for %s: %w", r.FilePath, err)
	}
	return nil
}

func (s *Scheduler) validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", s.Workers)
	}
	if s.Processor == nil {
		return fmt.Errorf("scheduler needs a file processor")
	}
	if s.Sink == nil {
		return fmt.Errorf("scheduler needs an output sink")
	}
	if s.Counters == nil {
		return fmt.Errorf("scheduler needs a batch counter store")
	}
	if v, ok := s.Processor.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("processor contract: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
