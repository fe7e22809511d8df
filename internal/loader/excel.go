package loader

import (
	"context"
	"os"

	"github.com/xuri/excelize/v2"

	apperrors "epipulse/internal/errors"

	"epipulse/internal/dataset"
)

// LoadWorkbook ingests an XLSX export of the surveillance source. The sheet
// carrying notification data is discovered by probing each sheet's first row
// for the notification date column; the rows then flow through the same
// column selection, normalization and window filter as the CSV path.
func (l *Loader) LoadWorkbook(ctx context.Context, path string, window dataset.DateWindow) (*dataset.Dataset, *dataset.RunStats, error) {
	stats := dataset.NewRunStats()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, stats, apperrors.NewNotFoundError("data source").
			WithContext("path", path).
			WithContext("window", window.String())
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, stats, apperrors.NewUnreadableError("open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	rows, sheetName, err := l.findDataSheet(f)
	if err != nil {
		return nil, stats, err
	}

	l.logger.InfoContext(ctx, "found notification data sheet",
		"path", path, "sheet", sheetName, "total_rows", len(rows))

	bindings, err := l.selectColumns(rows[0])
	if err != nil {
		return nil, stats, err
	}
	stats.ColumnsTouched = len(bindings)

	ds := dataset.New(fieldsOf(bindings)...)
	fields := fieldsOf(bindings)

	// Workbook rows are already materialized; the chunk cap still bounds
	// how much of an oversized sheet is processed.
	maxRows := l.cfg.MaxChunks * l.cfg.ChunkSize
	body := rows[1:]
	if len(body) > maxRows {
		stats.ChunkCapHit = true
		l.logger.WarnContext(ctx, "row cap reached, truncating workbook ingestion",
			"max_rows", maxRows, "sheet_rows", len(body))
		body = body[:maxRows]
	}

	for start := 0; start < len(body); start += l.cfg.ChunkSize {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}
		end := start + l.cfg.ChunkSize
		if end > len(body) {
			end = len(body)
		}
		stats.ChunksProcessed++
		stats.RowsLoaded += end - start
		l.accumulateChunk(body[start:end], bindings, fields, window, ds, stats)
	}

	l.logger.InfoContext(ctx, "workbook ingestion complete",
		"rows_loaded", stats.RowsLoaded,
		"rows_kept", stats.RowsKept,
		"rows_skipped", stats.RowsSkipped,
	)
	return ds, stats, nil
}

// findDataSheet probes each sheet for a first row containing the
// notification date column.
func (l *Loader) findDataSheet(f *excelize.File) ([][]string, string, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 1 {
			continue
		}
		for _, cell := range rows[0] {
			if cell == string(dataset.FieldNotificationDate) {
				return rows, name, nil
			}
		}
	}
	return nil, "", apperrors.NewStructuralError("no sheet with a notification date column found in workbook")
}
