// Package loader ingests the delimited surveillance source under a bounded
// memory budget: the delimiter is auto-detected from the header, columns are
// selected by availability, and rows are read in fixed-size chunks that are
// normalized before accumulation.
package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	apperrors "epipulse/internal/errors"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/normalize"
)

// Loader reads a delimited tabular source into a normalized dataset.
type Loader struct {
	cfg    config.DataConfig
	norm   *normalize.Normalizer
	logger *slog.Logger
}

// New creates a loader. A nil logger falls back to slog.Default.
func New(cfg config.DataConfig, norm *normalize.Normalizer, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cfg: cfg, norm: norm, logger: logger}
}

// columnBinding ties a selected field to its position in the source row.
type columnBinding struct {
	field dataset.Field
	index int
}

// Load reads the CSV source, filters to the requested notification-date
// window and returns the normalized dataset together with run statistics.
// Zero surviving rows is a valid empty result, never an error.
func (l *Loader) Load(ctx context.Context, path string, window dataset.DateWindow) (*dataset.Dataset, *dataset.RunStats, error) {
	stats := dataset.NewRunStats()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, apperrors.NewNotFoundError("data source").
				WithContext("path", path).
				WithContext("window", window.String())
		}
		return nil, stats, apperrors.NewUnreadableError("open data source", err).WithContext("path", path)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	header, delim, err := l.readHeader(reader)
	if err != nil {
		return nil, stats, err
	}

	bindings, err := l.selectColumns(header)
	if err != nil {
		return nil, stats, err
	}
	stats.ColumnsTouched = len(bindings)

	l.logger.InfoContext(ctx, "loading source in chunks",
		"path", path,
		"delimiter", string(delim),
		"columns_selected", len(bindings),
		"columns_available", len(header),
		"chunk_size", l.cfg.ChunkSize,
	)

	ds := dataset.New(fieldsOf(bindings)...)

	cr := csv.NewReader(reader)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if err := l.readChunks(ctx, cr, bindings, window, ds, stats); err != nil {
		return nil, stats, err
	}

	if ds.IsEmpty() {
		// Callers widen the query window on an empty result; this is not an
		// error condition.
		l.logger.WarnContext(ctx, "no rows survived ingestion",
			"path", path, "window", window.String(), "rows_loaded", stats.RowsLoaded)
	}

	l.logger.InfoContext(ctx, "ingestion complete",
		"rows_loaded", stats.RowsLoaded,
		"rows_kept", stats.RowsKept,
		"rows_skipped", stats.RowsSkipped,
		"chunks", stats.ChunksProcessed,
		"chunk_cap_hit", stats.ChunkCapHit,
	)
	return ds, stats, nil
}

// readChunks pulls fixed-size chunks from the reader, normalizing each chunk
// before accumulation so raw and normalized copies never coexist beyond one
// chunk. A hard cap on chunk count bounds time on pathological sources.
func (l *Loader) readChunks(
	ctx context.Context,
	cr *csv.Reader,
	bindings []columnBinding,
	window dataset.DateWindow,
	ds *dataset.Dataset,
	stats *dataset.RunStats,
) error {
	fields := fieldsOf(bindings)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if stats.ChunksProcessed >= l.cfg.MaxChunks {
			stats.ChunkCapHit = true
			l.logger.WarnContext(ctx, "chunk cap reached, stopping ingestion",
				"max_chunks", l.cfg.MaxChunks, "rows_kept", stats.RowsKept)
			return nil
		}

		chunk, eof := l.readChunk(cr, stats)
		if len(chunk) > 0 {
			stats.ChunksProcessed++
			l.accumulateChunk(chunk, bindings, fields, window, ds, stats)
		}
		if eof {
			return nil
		}
	}
}

// readChunk reads up to ChunkSize raw rows. Malformed rows are skipped and
// counted rather than aborting the read.
func (l *Loader) readChunk(cr *csv.Reader, stats *dataset.RunStats) ([][]string, bool) {
	chunk := make([][]string, 0, l.cfg.ChunkSize)
	for len(chunk) < l.cfg.ChunkSize {
		row, err := cr.Read()
		if err == io.EOF {
			return chunk, true
		}
		if err != nil {
			stats.RowsLoaded++
			stats.RowsSkipped++
			l.logger.Debug("skipping malformed row", "error", err)
			continue
		}
		stats.RowsLoaded++
		chunk = append(chunk, row)
	}
	return chunk, false
}

// accumulateChunk normalizes one chunk and appends the surviving records.
func (l *Loader) accumulateChunk(
	chunk [][]string,
	bindings []columnBinding,
	fields []dataset.Field,
	window dataset.DateWindow,
	ds *dataset.Dataset,
	stats *dataset.RunStats,
) {
	projected := make([]string, len(bindings))
	for _, row := range chunk {
		for i, b := range bindings {
			if b.index < len(row) {
				projected[i] = row[b.index]
			} else {
				projected[i] = ""
			}
		}

		rec := l.norm.Row(fields, projected, stats)

		v, ok := rec.Get(dataset.FieldNotificationDate)
		if !ok {
			stats.RowsSkipped++
			continue
		}
		if !window.Contains(v.Time) {
			stats.RowsSkipped++
			continue
		}

		ds.Append(rec)
		stats.RowsKept++
	}
}

// readHeader reads and splits the header line, detecting the delimiter. An
// undecodable header degrades to a warning and a manual split; the essential
// column list is the last resort.
func (l *Loader) readHeader(reader *bufio.Reader) ([]string, rune, error) {
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, 0, apperrors.NewUnreadableError("read header line", err)
	}
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimPrefix(line, "\ufeff")

	if !utf8.ValidString(line) {
		l.logger.Warn("header is not valid UTF-8, sanitizing")
		line = strings.ToValidUTF8(line, "")
	}

	delim := DetectDelimiter(line)

	cells := splitHeader(line, delim)
	if len(cells) == 0 || (len(cells) == 1 && strings.TrimSpace(cells[0]) == "") {
		l.logger.Warn("unreadable header, falling back to default essential column list")
		return append([]string(nil), l.cfg.EssentialColumns...), delim, nil
	}
	return cells, delim, nil
}

func splitHeader(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	cells, err := r.Read()
	if err != nil {
		// Quoting damage in the header only; fall back to a plain split.
		cells = strings.Split(line, string(delim))
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// DetectDelimiter counts candidate separators in the header line and picks
// the most frequent, preferring earlier candidates on ties.
func DetectDelimiter(header string) rune {
	best := config.DelimiterCandidates[0]
	bestCount := 0
	for _, cand := range config.DelimiterCandidates {
		if n := strings.Count(header, string(cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

// selectColumns maps the essential and useful column lists onto the header.
// Individually missing essential columns are tolerated; a source without the
// notification date column is structurally unusable.
func (l *Loader) selectColumns(header []string) ([]columnBinding, error) {
	indexByName := make(map[string]int, len(header))
	for i, name := range header {
		indexByName[name] = i
	}

	var bindings []columnBinding
	seen := make(map[string]bool)
	for _, name := range append(append([]string(nil), l.cfg.EssentialColumns...), l.cfg.UsefulColumns...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		if idx, ok := indexByName[name]; ok {
			bindings = append(bindings, columnBinding{field: dataset.Field(name), index: idx})
		}
	}

	missingEssential := 0
	for _, name := range l.cfg.EssentialColumns {
		if _, ok := indexByName[name]; !ok {
			missingEssential++
		}
	}
	if missingEssential > 0 {
		l.logger.Warn("essential columns missing from source",
			"missing", missingEssential, "total_essential", len(l.cfg.EssentialColumns))
	}

	if _, ok := indexByName[string(dataset.FieldNotificationDate)]; !ok {
		return nil, apperrors.NewStructuralError(
			fmt.Sprintf("notification date column %q absent from source", dataset.FieldNotificationDate))
	}
	return bindings, nil
}

func fieldsOf(bindings []columnBinding) []dataset.Field {
	fields := make([]dataset.Field, len(bindings))
	for i, b := range bindings {
		fields[i] = b.field
	}
	return fields
}
