package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/pipeline"
)

func main() {
	source := flag.String("source", "", "path to the surveillance source file (defaults to the configured source)")
	start := flag.String("start", "", "window start date (YYYY-MM-DD, optional)")
	end := flag.String("end", "", "window end date (YYYY-MM-DD, optional)")
	ref := flag.String("ref", "", "metric reference date (YYYY-MM-DD, defaults to window end or today)")
	exportPath := flag.String("export", "", "write the processed dataset CSV to this path")
	reportPath := flag.String("report", "", "write the validation report JSON to this path (empty auto-names it)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	window, err := parseWindow(*start, *end)
	if err != nil {
		slog.Error("invalid date window", "error", err)
		os.Exit(1)
	}
	refDate, err := parseDate(*ref)
	if err != nil {
		slog.Error("invalid reference date", "error", err)
		os.Exit(1)
	}

	svc := pipeline.New(cfg, logger)
	report, err := svc.RunReport(context.Background(), *source, window, refDate)
	if err != nil {
		slog.Error("report run failed", "error", err)
		os.Exit(1)
	}

	printSummary(report)

	if *exportPath != "" {
		if err := svc.ExportProcessed(report, *exportPath); err != nil {
			slog.Error("failed to export processed dataset", "error", err)
			os.Exit(1)
		}
	}

	path, err := svc.ExportValidation(report, *reportPath)
	if err != nil {
		slog.Error("failed to export validation report", "error", err)
		os.Exit(1)
	}
	slog.Info("validation report written", "path", path)
}

func parseWindow(start, end string) (dataset.DateWindow, error) {
	var window dataset.DateWindow
	var err error
	if window.Start, err = parseDate(start); err != nil {
		return window, err
	}
	if window.End, err = parseDate(end); err != nil {
		return window, err
	}
	return window, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func printSummary(report *pipeline.Report) {
	fmt.Printf("run %s: %d records, quality score %.2f\n",
		report.RunID, report.Dataset.Len(), report.Quality.Score)
	for _, name := range []string{"case_trend", "mortality_rate", "icu_rate", "vaccination_rate"} {
		result, ok := report.Metrics[name]
		if !ok {
			continue
		}
		fmt.Printf("  %-17s %8.2f  %s (%d/%d, %s to %s)\n",
			result.Metric, result.Rate, result.Interpretation,
			result.Numerator, result.Denominator,
			result.PeriodStart.Format("2006-01-02"), result.PeriodEnd.Format("2006-01-02"))
	}
}
