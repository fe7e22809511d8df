// Package normalize performs per-record type coercion of raw surveillance
// rows: dual-calendar date parsing, categorical cleanup and numeric coercion
// with sentinel handling. Coercion failures always degrade to missing values;
// normalization never aborts a row.
package normalize

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"epipulse/internal/dataset"
)

// canonicalDateLayout is the rendering format of normalized date values.
// Re-normalizing a rendered value must round-trip, so every date field also
// accepts this layout; its separator is distinct from the source layouts,
// which keeps the calendar dispatch unambiguous.
const canonicalDateLayout = "2006-01-02"

// fieldKind drives per-field coercion.
type fieldKind int

const (
	kindCategorical fieldKind = iota
	kindNumeric
	kindPrimaryDate
	kindDoseDate
)

// dateLayoutByKind is the static calendar dispatch table. The primary field
// group is year-month-day; the vaccination dose-date group is day-month-year.
// Dispatch is by field identity only — content sniffing here would silently
// corrupt vaccination metrics.
var dateLayoutByKind = map[fieldKind]string{
	kindPrimaryDate: "2006-01-02",
	kindDoseDate:    "02/01/2006",
}

var kindByField = map[dataset.Field]fieldKind{
	dataset.FieldNotificationDate: kindPrimaryDate,
	dataset.FieldOutcomeDate:      kindPrimaryDate,
	dataset.FieldAdmissionDate:    kindPrimaryDate,
	dataset.FieldFirstSymptomDate: kindPrimaryDate,

	dataset.FieldDose1Date:    kindDoseDate,
	dataset.FieldDose2Date:    kindDoseDate,
	dataset.FieldBoosterDate:  kindDoseDate,
	dataset.FieldBooster2Date: kindDoseDate,

	dataset.FieldAge:         kindNumeric,
	dataset.FieldSymptomWeek: kindNumeric,
	dataset.FieldNotifWeek:   kindNumeric,
}

// sentinelTokens map to missing after trimming. Matching is exact: category
// values are never case-folded, so only the sentinel spellings seen in real
// extracts are listed.
var sentinelTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"NAN":  true,
	"none": true,
	"None": true,
	"null": true,
	"NULL": true,
	"NA":   true,
}

const (
	ageMin = 0
	ageMax = 120
)

// Normalizer coerces raw text cells into typed dataset values.
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a normalizer. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// Value normalizes one raw cell for the given field, recording nulled cells
// in stats. The result of normalizing a rendered normalized value is the
// value itself (idempotence).
func (n *Normalizer) Value(field dataset.Field, raw string, stats *dataset.RunStats) dataset.Value {
	trimmed := strings.TrimSpace(raw)
	if sentinelTokens[trimmed] {
		return dataset.Missing
	}

	switch kindByField[field] {
	case kindPrimaryDate, kindDoseDate:
		return n.normalizeDate(field, trimmed, stats)
	case kindNumeric:
		return n.normalizeNumber(field, trimmed, stats)
	default:
		// Categorical: trim only. Case changes have historically caused
		// category mismatches, so no case transformation is applied.
		return dataset.String(trimmed)
	}
}

// Row normalizes one raw row against the selected header fields. Cells
// beyond the header are dropped; short rows yield missing trailing fields.
func (n *Normalizer) Row(fields []dataset.Field, raw []string, stats *dataset.RunStats) dataset.Record {
	rec := make(dataset.Record, len(fields))
	for i, field := range fields {
		if i >= len(raw) {
			break
		}
		rec.Set(field, n.Value(field, raw[i], stats))
	}
	return rec
}

func (n *Normalizer) normalizeDate(field dataset.Field, trimmed string, stats *dataset.RunStats) dataset.Value {
	layout := dateLayoutByKind[kindByField[field]]

	t, err := time.Parse(layout, trimmed)
	if err != nil && layout != canonicalDateLayout {
		t, err = time.Parse(canonicalDateLayout, trimmed)
	}
	if err != nil {
		n.countNulled(field, stats)
		return dataset.Missing
	}

	// A notification date beyond today is a data error, not a valid record.
	if field == dataset.FieldNotificationDate && t.After(n.now()) {
		n.countNulled(field, stats)
		return dataset.Missing
	}
	return dataset.Time(t)
}

func (n *Normalizer) normalizeNumber(field dataset.Field, trimmed string, stats *dataset.RunStats) dataset.Value {
	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		n.countNulled(field, stats)
		return dataset.Missing
	}
	if field == dataset.FieldAge && (num < ageMin || num > ageMax) {
		n.countNulled(field, stats)
		return dataset.Missing
	}
	return dataset.Number(num)
}

func (n *Normalizer) countNulled(field dataset.Field, stats *dataset.RunStats) {
	if stats != nil {
		stats.CountNulled(field)
	}
}
