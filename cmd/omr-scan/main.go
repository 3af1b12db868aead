package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sheetscan/omr-engine/internal/batch"
	"github.com/sheetscan/omr-engine/internal/config"
	"github.com/sheetscan/omr-engine/internal/evaluation"
	"github.com/sheetscan/omr-engine/internal/imaging"
	"github.com/sheetscan/omr-engine/internal/omr"
	"github.com/sheetscan/omr-engine/internal/report"
	"github.com/sheetscan/omr-engine/internal/results"
	"github.com/sheetscan/omr-engine/internal/template"
	"github.com/sheetscan/omr-engine/internal/web"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// sheetExtensions are the scan formats the engine accepts.
var sheetExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".pdf":  true,
}

func main() {
	output := flag.String("output", "outputs", "directory for results, review copies, and the report")
	templatePath := flag.String("template", "", "sheet layout file (default: template.json in the first input directory)")
	configPath := flag.String("config", "", "tuning config file (default: built-in values)")
	keyPath := flag.String("key", "", "evaluation key for scoring (optional)")
	workers := flag.Int("workers", 0, "worker pool override (default: from config)")
	review := flag.Bool("review", false, "sequential review mode: one worker, annotated copies always on")
	serve := flag.Bool("serve", false, "serve the stored results dashboard instead of scanning")
	addr := flag.String("addr", ":8877", "dashboard listen address")
	version := flag.Bool("version", false, "print version information")

	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("omr-scan %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Error loading .env file", "err", err)
	}
	setupLogging()

	dbPath := filepath.Join(*output, "results.db")

	if *serve {
		store, err := results.Open(dbPath)
		if err != nil {
			fatal("Failed to open results store", err)
		}
		if err := web.New(store).Run(*addr); err != nil {
			fatal("Dashboard failed", err)
		}
		return
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"inputs"}
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatal("Failed to load config", err)
		}
	}

	layoutPath := *templatePath
	if layoutPath == "" {
		layoutPath = filepath.Join(inputs[0], "template.json")
	}
	tmpl, err := template.Load(layoutPath)
	if err != nil {
		fatal("Failed to load template", err)
	}

	var key *evaluation.Key
	if *keyPath != "" {
		if key, err = evaluation.Load(*keyPath); err != nil {
			fatal("Failed to load evaluation key", err)
		}
	}

	files, err := scanInputs(inputs)
	if err != nil {
		fatal("Failed to scan inputs", err)
	}
	if len(files) == 0 {
		slog.Warn("no sheet files found", "inputs", strings.Join(inputs, ", "))
	}

	workerCount := cfg.Processing.WorkerCount
	if *workers > 0 {
		workerCount = *workers
	}
	if workerCount > config.MaxWorkers {
		workerCount = config.MaxWorkers
	}
	if *review {
		workerCount = 1
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		fatal("Failed to create output directory", err)
	}

	counters := omr.NewBatchAggregate()
	proc := &batch.Processor{
		Template:          tmpl,
		Accessor:          batch.CacheAccessor{Cache: imaging.NewImageCache()},
		FieldConfig:       cfg.ThresholdConfig(),
		PageConfig:        cfg.PageThresholdConfig(),
		ConfidenceMetrics: cfg.Outputs.ShowConfidenceMetrics,
		Counters:          counters,
		Gamma:             cfg.Thresholding.GammaLow,
		Key:               key,
		Logger:            slog.Default(),
	}
	if cfg.Outputs.SaveAnnotated || *review {
		dir := filepath.Join(*output, "annotated")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatal("Failed to create review directory", err)
		}
		proc.Annotate = &batch.AnnotateOptions{Dir: dir}
	}

	csvSink, err := results.NewCSVSink(results.CSVOptions{
		Dir:              *output,
		Columns:          tmpl.Columns(),
		SplitMultiMarked: cfg.Outputs.FilterMultiMarked,
	})
	if err != nil {
		fatal("Failed to open CSV outputs", err)
	}
	store, err := results.Open(dbPath)
	if err != nil {
		fatal("Failed to open results store", err)
	}
	run, err := store.BeginRun()
	if err != nil {
		fatal("Failed to begin run", err)
	}

	scheduler := &batch.Scheduler{
		Workers:   workerCount,
		Processor: proc,
		Sink:      results.Multi{csvSink, run},
		Counters:  counters,
		Logger:    slog.Default(),
	}

	summary, err := scheduler.Run(files)
	closeErr := csvSink.Close()
	if err != nil {
		fatal("Batch failed", err)
	}
	if closeErr != nil {
		slog.Error("Failed to close CSV outputs", "err", closeErr)
	}
	if err := run.Finish(summary); err != nil {
		slog.Error("Failed to record run summary", "err", err)
	}

	writeReport(store, run.RunID, filepath.Join(*output, report.FileName))

	fmt.Printf("%d files: %d ok, %d failed, %d multi-marked (%s)\n",
		summary.Files, summary.Succeeded, summary.Failed,
		summary.Counters[omr.CounterMultiMarked], summary.Elapsed.Round(time.Millisecond))
	fmt.Printf("results: %s\n", *output)

	if err := store.Close(); err != nil {
		slog.Error("Failed to close results store", "err", err)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// setupLogging routes structured logs to stderr; stdout stays for the
// batch summary.
func setupLogging() {
	level := slog.LevelInfo
	if os.Getenv("OMR_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// scanInputs collects sheet files from each input directory. os.ReadDir
// returns names sorted, keeping input index assignment stable across
// runs.
func scanInputs(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read input directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if !sheetExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// writeReport renders the HTML report from the rows just stored. Report
// failures never fail the batch.
func writeReport(store *results.Store, runID, path string) {
	rec, err := store.Run(runID)
	if err != nil {
		slog.Error("Failed to load run for report", "err", err)
		return
	}
	files, err := store.Results(runID)
	if err != nil {
		slog.Error("Failed to load results for report", "err", err)
		return
	}
	if err := report.Generate(path, rec, files); err != nil {
		slog.Error("Failed to write report", "err", err)
		return
	}
	slog.Info("report written", "path", path)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: omr-scan [options] [input-dir ...]\n\n")
	fmt.Fprintf(out, "Reads marked bubble sheets from the input directories (default: inputs)\n")
	fmt.Fprintf(out, "and writes results plus an HTML report to the output directory.\n\n")
	fmt.Fprintf(out, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(out, "\nEnvironment variables:\n")
	fmt.Fprintf(out, "  OMR_LOG_LEVEL=debug    Enable debug logging\n")
}
