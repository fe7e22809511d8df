// Package pipeline wires the processing stages into a single surveillance
// report run: ingest, normalize, derive, classify, validate, then the four
// windowed metrics in parallel over read-only snapshots.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"epipulse/internal/classify"
	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/derive"
	"epipulse/internal/exporter"
	"epipulse/internal/loader"
	"epipulse/internal/metrics"
	"epipulse/internal/normalize"
	"epipulse/internal/quality"
)

// Report is the outcome of one pipeline run.
type Report struct {
	RunID   string
	Dataset *dataset.Dataset
	Quality *quality.Report
	Metrics map[string]metrics.Result
	Stats   *dataset.RunStats
}

// Service orchestrates the pipeline stages.
type Service struct {
	cfg        *config.Config
	loader     *loader.Loader
	deriver    *derive.Engine
	classifier *classify.Classifier
	validator  *quality.Validator
	metrics    *metrics.Engine
	writer     *exporter.CSVWriter
	cache      *SnapshotCache
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a fully wired pipeline service. A nil logger falls back to
// slog.Default.
func New(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		loader:     loader.New(cfg.Data, normalize.New(logger), logger),
		deriver:    derive.NewEngine(logger),
		classifier: classify.New(cfg.Classify, logger),
		validator:  quality.New(cfg.Validation, logger),
		metrics:    metrics.New(cfg.Metrics, logger),
		writer:     exporter.NewCSVWriter(cfg.Paths, logger),
		cache:      NewSnapshotCache(cfg.Cache),
		logger:     logger,
		now:        time.Now,
	}
}

// RunReport executes one full report run. An empty sourcePath uses the
// configured source; a zero ref anchors metrics at the window end when set,
// otherwise at the current time. Fatal ingestion errors propagate; all other
// stage failures degrade to partial results.
func (s *Service) RunReport(ctx context.Context, sourcePath string, window dataset.DateWindow, ref time.Time) (*Report, error) {
	runID := uuid.New().String()
	logger := s.logger.With("run_id", runID)

	if sourcePath == "" {
		sourcePath = s.cfg.Data.SourcePath
	}
	if ref.IsZero() {
		if !window.End.IsZero() {
			ref = window.End
		} else {
			ref = s.now()
		}
	}

	logger.InfoContext(ctx, "starting report run",
		"source", sourcePath, "window", window.String(), "reference", ref.Format("2006-01-02"))

	ds, stats, err := s.processedDataset(ctx, logger, sourcePath, window)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	qualityReport := s.validator.Validate(ds, stats)

	results, err := s.computeMetrics(ctx, ds, ref)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	runsTotal.WithLabelValues("success").Inc()
	recordsProcessed.Add(float64(stats.RowsKept))
	rowsSkipped.Add(float64(stats.RowsSkipped))

	logger.InfoContext(ctx, "report run complete",
		"records", ds.Len(),
		"quality_score", qualityReport.Score,
		"metrics", len(results),
	)

	return &Report{
		RunID:   runID,
		Dataset: ds,
		Quality: qualityReport,
		Metrics: results,
		Stats:   stats,
	}, nil
}

// processedDataset returns the normalized, derived and classified dataset
// for a window, from the snapshot cache when possible.
func (s *Service) processedDataset(ctx context.Context, logger *slog.Logger, sourcePath string, window dataset.DateWindow) (*dataset.Dataset, *dataset.RunStats, error) {
	if ds, stats, ok := s.cache.Get(window); ok {
		cacheHits.Inc()
		logger.InfoContext(ctx, "snapshot cache hit", "window", window.String())
		return ds, stats, nil
	}
	cacheMisses.Inc()

	ds, stats, err := s.load(ctx, sourcePath, window)
	if err != nil {
		return nil, nil, err
	}

	s.deriver.Apply(ds)
	s.classifier.Apply(ds)

	s.cache.Put(window, ds, stats)
	return ds, stats, nil
}

// load dispatches on the source extension: .xlsx workbooks go through the
// sheet-probing path, everything else is treated as delimited text.
func (s *Service) load(ctx context.Context, sourcePath string, window dataset.DateWindow) (*dataset.Dataset, *dataset.RunStats, error) {
	if strings.EqualFold(filepath.Ext(sourcePath), ".xlsx") {
		return s.loader.LoadWorkbook(ctx, sourcePath, window)
	}
	return s.loader.Load(ctx, sourcePath, window)
}

// computeMetrics fans the four metric computations out in parallel. Each
// computation receives its own clone of the dataset, so no synchronization
// on the records is needed.
func (s *Service) computeMetrics(ctx context.Context, ds *dataset.Dataset, ref time.Time) (map[string]metrics.Result, error) {
	computations := []struct {
		name string
		fn   func(*dataset.Dataset, time.Time) (metrics.Result, error)
	}{
		{metrics.MetricCaseTrend, s.metrics.CaseTrend},
		{metrics.MetricMortality, s.metrics.MortalityRate},
		{metrics.MetricICU, s.metrics.ICURate},
		{metrics.MetricVaccination, s.metrics.VaccinationRate},
	}

	results := make([]metrics.Result, len(computations))
	g, _ := errgroup.WithContext(ctx)
	for i, c := range computations {
		i, c := i, c
		g.Go(func() error {
			snapshot := ds.Clone()
			result, err := c.fn(snapshot, ref)
			if err != nil {
				metricFailures.WithLabelValues(c.name).Inc()
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]metrics.Result, len(results))
	for _, r := range results {
		out[r.Metric] = r
	}
	return out, nil
}

// ExportProcessed writes the run's processed dataset as CSV. Relative paths
// resolve under the configured reports directory.
func (s *Service) ExportProcessed(report *Report, path string) error {
	return s.writer.WriteDataset(path, report.Dataset)
}

// ExportValidation writes the run's quality report as a JSON document. An
// empty path auto-names the file under the reports directory.
func (s *Service) ExportValidation(report *Report, path string) (string, error) {
	return s.validator.Export(report.Quality, s.cfg.Paths.ReportsDir, path)
}
