package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
)

// CSVWriter writes processed datasets as CSV files under the configured
// reports directory.
type CSVWriter struct {
	paths  config.PathsConfig
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer. A nil logger falls back to slog.Default.
func NewCSVWriter(paths config.PathsConfig, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{paths: paths, logger: logger}
}

// WriteDataset renders a processed dataset as CSV through the stream writer:
// one column per registered field in registration order, missing values as
// empty cells. Rows are written one at a time, so the dataset is never
// materialized a second time.
func (w *CSVWriter) WriteDataset(filePath string, ds *dataset.Dataset) error {
	fields := ds.Fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = string(f)
	}

	w.logger.Info("writing processed dataset",
		"path", filePath,
		"records", ds.Len(),
		"columns", len(fields))

	sw, err := w.CreateStreamWriter(filePath, headers)
	if err != nil {
		return err
	}

	row := make([]string, len(fields))
	for _, rec := range ds.Records {
		for j, f := range fields {
			row[j] = rec[f].Render()
		}
		if err := sw.WriteRecord(row); err != nil {
			sw.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return sw.Close()
}

// StreamWriter writes CSV rows incrementally, for datasets too large to
// materialize as [][]string.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter opens a streaming CSV writer with the headers already
// written. The UTF-8 BOM keeps the output loadable in Excel alongside the
// upstream exports. Relative paths resolve under the reports directory.
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	fullPath := w.resolvePath(filePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single record to the stream.
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the stream writer.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(w.paths.ReportsDir, filePath)
}
