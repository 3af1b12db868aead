// Package report renders the static HTML review page for a finished
// batch run: read outcomes, field quality tallies, and score and
// threshold-confidence histograms, charted with go-echarts.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/sheetscan/omr-engine/internal/batch"
	"github.com/sheetscan/omr-engine/internal/results"
)

// FileName is the report's name inside the batch output directory.
const FileName = "report.html"

const (
	chartWidth  = "900px"
	chartHeight = "420px"

	scoreBins      = 10
	confidenceBins = 10
)

// Generate renders the run report to a new file at path.
func Generate(path string, rec *results.RunRecord, files []*batch.FileResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Write(f, rec, files); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write renders the run report to w. The record may be nil when the run
// was not persisted; the score chart is omitted when no file carries a
// score.
func Write(w io.Writer, rec *results.RunRecord, files []*batch.FileResult) error {
	page := components.NewPage()
	page.AddCharts(outcomeChart(rec, files), qualityChart(files))
	if bar := scoreChart(files); bar != nil {
		page.AddCharts(bar)
	}
	page.AddCharts(confidenceChart(files))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func outcomeChart(rec *results.RunRecord, files []*batch.FileResult) *charts.Pie {
	var clean, multi, failed int
	for _, fr := range files {
		switch {
		case fr.Failed():
			failed++
		case fr.MultiMarked:
			multi++
		default:
			clean++
		}
	}

	subtitle := fmt.Sprintf("files=%d", len(files))
	if rec != nil {
		started := time.Unix(rec.StartedAt, 0).Format("2006-01-02 15:04:05")
		subtitle = fmt.Sprintf("run=%s files=%d started=%s", rec.RunID, len(files), started)
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Read Outcomes", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("outcomes", []opts.PieData{
		{Name: "clean", Value: clean},
		{Name: "multi-marked", Value: multi},
		{Name: "failed", Value: failed},
	}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}))
	return pie
}

func qualityChart(files []*batch.FileResult) *charts.Bar {
	var sum batch.QualitySummary
	for _, fr := range files {
		sum.Excellent += fr.Quality.Excellent
		sum.Good += fr.Quality.Good
		sum.Acceptable += fr.Quality.Acceptable
		sum.Poor += fr.Quality.Poor
	}
	total := sum.Excellent + sum.Good + sum.Acceptable + sum.Poor

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Field Quality", Subtitle: fmt.Sprintf("fields=%d", total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"excellent", "good", "acceptable", "poor"}).
		AddSeries("fields", []opts.BarData{
			{Value: sum.Excellent},
			{Value: sum.Good},
			{Value: sum.Acceptable},
			{Value: sum.Poor},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// scoreChart returns nil when the run carried no answer key.
func scoreChart(files []*batch.FileResult) *charts.Bar {
	var scores []float64
	for _, fr := range files {
		if fr.Score != nil {
			scores = append(scores, fr.Score.Total)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	sort.Float64s(scores)

	labels, counts := histogram(scores, scoreBins, scores[0], scores[len(scores)-1])
	subtitle := fmt.Sprintf("scored=%d mean=%.2f median=%.2f",
		len(scores), stat.Mean(scores, nil), stat.Quantile(0.5, stat.Empirical, scores, nil))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Score Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("files", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func confidenceChart(files []*batch.FileResult) *charts.Bar {
	var conf []float64
	for _, fr := range files {
		if fr.Failed() {
			continue
		}
		for _, fi := range fr.Fields {
			conf = append(conf, fi.Threshold.Confidence)
		}
	}
	sort.Float64s(conf)

	labels, counts := histogram(conf, confidenceBins, 0, 1)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Threshold Confidence", Subtitle: fmt.Sprintf("fields=%d", len(conf))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("fields", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// histogram buckets sorted values into equal-width bins over [lo, hi]
// and returns the axis labels beside the per-bin tallies.
func histogram(sorted []float64, bins int, lo, hi float64) ([]string, []opts.BarData) {
	if hi <= lo {
		// Degenerate spread: one bin holds everything.
		return []string{fmt.Sprintf("%.4g", lo)}, []opts.BarData{{Value: len(sorted)}}
	}

	width := (hi - lo) / float64(bins)
	dividers := make([]float64, bins+1)
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	// The top divider is exclusive; nudge it so values sitting exactly
	// on hi still land in the last bin.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(make([]float64, bins), dividers, sorted, nil)

	labels := make([]string, bins)
	data := make([]opts.BarData, bins)
	for i, c := range counts {
		labels[i] = fmt.Sprintf("%.4g-%.4g", lo+float64(i)*width, lo+float64(i+1)*width)
		data[i] = opts.BarData{Value: int(c)}
	}
	return labels, data
}
