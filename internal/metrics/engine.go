// Package metrics computes the windowed surveillance rates: case trend,
// mortality, ICU occupancy and vaccination coverage. Every computation is a
// deterministic function of the dataset, the reference date and the
// configured window lengths, and never mutates the dataset it reads.
package metrics

import (
	"log/slog"
	"math"
	"time"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/derive"
	apperrors "epipulse/internal/errors"
)

// Metric names as reported in results.
const (
	MetricCaseTrend   = "case_trend"
	MetricMortality   = "mortality_rate"
	MetricICU         = "icu_rate"
	MetricVaccination = "vaccination_rate"
)

// Interpretation labels.
const (
	InterpNoData   = "no data in window"
	InterpStable   = "stable"
	InterpNewCases = "new cases"
	InterpIncrease = "increasing"
	InterpDecrease = "decreasing"
	InterpMortLow  = "low mortality"
	InterpMortMod  = "moderate mortality"
	InterpMortHigh = "high mortality"
	InterpICULow   = "normal ICU occupancy"
	InterpICUMod   = "elevated ICU occupancy"
	InterpICUHigh  = "critical ICU occupancy"
	InterpVaccLow  = "low vaccination coverage"
	InterpVaccMod  = "moderate vaccination coverage"
	InterpVaccHigh = "high vaccination coverage"

	// InterpVaccUnknown marks a window whose records carry no dose-date
	// columns at all, which is not the same as a measured zero coverage.
	InterpVaccUnknown = "vaccination status unknown"
)

// Vaccination breakdown tiers.
const (
	TierDose1      = "dose_1"
	TierDose2      = "dose_2"
	TierBooster    = "booster"
	TierAdditional = "additional"
	TierUnknown    = "unknown_status"
)

// Result is one computed metric, fully reproducible from identical inputs.
type Result struct {
	Metric         string         `json:"metric"`
	Rate           float64        `json:"rate"`
	Interpretation string         `json:"interpretation"`
	Numerator      int            `json:"numerator"`
	Denominator    int            `json:"denominator"`
	PeriodStart    time.Time      `json:"period_start"`
	PeriodEnd      time.Time      `json:"period_end"`
	Breakdown      map[string]int `json:"breakdown,omitempty"`

	// OutOfExpectedRange flags a rate outside its plausibility limits. The
	// rate itself is reported unaltered.
	OutOfExpectedRange bool `json:"out_of_expected_range,omitempty"`
}

// plausibility bounds per metric. A rate outside them is flagged, not fixed.
type plausibility struct {
	min float64
	max float64
}

var plausibilityLimits = map[string]plausibility{
	MetricCaseTrend:   {-99, 1000},
	MetricMortality:   {0, 50},
	MetricICU:         {0, 100},
	MetricVaccination: {0, 100},
}

// Engine computes the surveillance metrics.
type Engine struct {
	cfg    config.MetricsConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates a metrics engine. A nil logger falls back to slog.Default.
func New(cfg config.MetricsConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger, now: time.Now}
}

// resolveWindowEnd decides the effective window end for a requested
// reference date. When the dataset's newest notification is more than the
// configured number of years older than the requested reference, the window
// re-anchors to the dataset's own maximum (historical mode). Otherwise the
// reference is honored, clamped so it never lies in the future.
func (e *Engine) resolveWindowEnd(ds *dataset.Dataset, requested time.Time) time.Time {
	if dsMax, ok := ds.MaxTime(dataset.FieldNotificationDate); ok {
		if requested.After(dsMax.AddDate(e.cfg.HistoricalAnchorYears, 0, 0)) {
			e.logger.Debug("historical dataset detected, re-anchoring window",
				"requested", requested.Format("2006-01-02"),
				"dataset_max", dsMax.Format("2006-01-02"))
			return dsMax
		}
	}
	if now := e.now(); requested.After(now) {
		return now
	}
	return requested
}

// requireDateColumn guards every metric: a dataset without the notification
// date column is structurally unusable, which is distinct from carrying no
// rows in the window.
func requireDateColumn(ds *dataset.Dataset, metric string) error {
	if !ds.Has(dataset.FieldNotificationDate) {
		return apperrors.NewStructuralError("notification date column required for metric computation").
			WithContext("metric", metric)
	}
	return nil
}

// CaseTrend compares notification counts in the trailing window against the
// window immediately before it: [end-N, end] versus [end-2N, end-N).
func (e *Engine) CaseTrend(ds *dataset.Dataset, ref time.Time) (Result, error) {
	if err := requireDateColumn(ds, MetricCaseTrend); err != nil {
		return Result{}, err
	}

	end := e.resolveWindowEnd(ds, ref)
	mid := end.AddDate(0, 0, -e.cfg.CaseTrendDays)
	start := end.AddDate(0, 0, -2*e.cfg.CaseTrendDays)

	current, previous := 0, 0
	for _, rec := range ds.Records {
		t, ok := notificationTime(rec)
		if !ok {
			continue
		}
		switch {
		case !t.Before(mid) && !t.After(end):
			current++
		case !t.Before(start) && t.Before(mid):
			previous++
		}
	}

	result := Result{
		Metric:      MetricCaseTrend,
		Numerator:   current,
		Denominator: previous,
		PeriodStart: mid,
		PeriodEnd:   end,
	}

	switch {
	case ds.IsEmpty():
		result.Interpretation = InterpNoData
	case previous == 0 && current == 0:
		result.Interpretation = InterpStable
	case previous == 0:
		result.Rate = 100
		result.Interpretation = InterpNewCases
	default:
		result.Rate = round2(float64(current-previous) / float64(previous) * 100)
		switch {
		case result.Rate > 0:
			result.Interpretation = InterpIncrease
		case result.Rate < 0:
			result.Interpretation = InterpDecrease
		default:
			result.Interpretation = InterpStable
		}
	}

	return e.finish(result), nil
}

// MortalityRate is the share of in-window notifications that ended in death,
// disease-related or otherwise.
func (e *Engine) MortalityRate(ds *dataset.Dataset, ref time.Time) (Result, error) {
	return e.flagRate(ds, ref, MetricMortality, e.cfg.MortalityDays, deathPredicate, interpretMortality)
}

// ICURate is the share of in-window notifications admitted to intensive
// care. The denominator is all in-window notifications.
func (e *Engine) ICURate(ds *dataset.Dataset, ref time.Time) (Result, error) {
	return e.flagRate(ds, ref, MetricICU, e.cfg.ICUDays, icuPredicate, interpretICU)
}

// flagRate computes one share-of-window metric over a per-record predicate.
func (e *Engine) flagRate(
	ds *dataset.Dataset,
	ref time.Time,
	metric string,
	days int,
	buildPredicate func(*dataset.Dataset) (func(dataset.Record) bool, bool),
	interpret func(float64) string,
) (Result, error) {
	if err := requireDateColumn(ds, metric); err != nil {
		return Result{}, err
	}

	end := e.resolveWindowEnd(ds, ref)
	start := end.AddDate(0, 0, -days)
	result := Result{Metric: metric, PeriodStart: start, PeriodEnd: end}

	predicate, ok := buildPredicate(ds)
	if !ok {
		result.Interpretation = InterpNoData
		return e.finish(result), nil
	}

	for _, rec := range ds.Records {
		t, present := notificationTime(rec)
		if !present || t.Before(start) || t.After(end) {
			continue
		}
		result.Denominator++
		if predicate(rec) {
			result.Numerator++
		}
	}

	if result.Denominator == 0 {
		result.Interpretation = InterpNoData
		return e.finish(result), nil
	}

	result.Rate = round2(float64(result.Numerator) / float64(result.Denominator) * 100)
	result.Interpretation = interpret(result.Rate)
	return e.finish(result), nil
}

// VaccinationRate is the share of in-window notifications carrying at least
// one dose date, with a per-tier breakdown of each record's highest tier.
// A source without any dose-date column cannot distinguish "never vaccinated"
// from "not recorded", so the window is reported as unknown status rather
// than a measured zero.
func (e *Engine) VaccinationRate(ds *dataset.Dataset, ref time.Time) (Result, error) {
	if err := requireDateColumn(ds, MetricVaccination); err != nil {
		return Result{}, err
	}

	end := e.resolveWindowEnd(ds, ref)
	start := end.AddDate(0, 0, -e.cfg.VaccinationDays)
	result := Result{
		Metric:      MetricVaccination,
		PeriodStart: start,
		PeriodEnd:   end,
		Breakdown: map[string]int{
			TierDose1: 0, TierDose2: 0, TierBooster: 0, TierAdditional: 0,
		},
	}

	hasDose := false
	for _, f := range dataset.DoseDateFields {
		if ds.Has(f) {
			hasDose = true
			break
		}
	}

	for _, rec := range ds.Records {
		t, present := notificationTime(rec)
		if !present || t.Before(start) || t.After(end) {
			continue
		}
		result.Denominator++
		if !hasDose {
			continue
		}

		switch derive.VaccinationStatus(rec) {
		case derive.StatusFirstDose:
			result.Numerator++
			result.Breakdown[TierDose1]++
		case derive.StatusCompleteScheme:
			result.Numerator++
			result.Breakdown[TierDose2]++
		case derive.StatusBooster:
			result.Numerator++
			result.Breakdown[TierBooster]++
		case derive.StatusAdditionalBoost:
			result.Numerator++
			result.Breakdown[TierAdditional]++
		}
	}

	if result.Denominator == 0 {
		result.Interpretation = InterpNoData
		return e.finish(result), nil
	}
	if !hasDose {
		result.Breakdown = map[string]int{TierUnknown: result.Denominator}
		result.Interpretation = InterpVaccUnknown
		return e.finish(result), nil
	}

	result.Rate = round2(float64(result.Numerator) / float64(result.Denominator) * 100)
	result.Interpretation = interpretVaccination(result.Rate)
	return e.finish(result), nil
}

// finish applies the plausibility flag and logs the outcome.
func (e *Engine) finish(result Result) Result {
	if limits, ok := plausibilityLimits[result.Metric]; ok {
		result.OutOfExpectedRange = result.Rate < limits.min || result.Rate > limits.max
	}
	e.logger.Debug("metric computed",
		"metric", result.Metric,
		"rate", result.Rate,
		"interpretation", result.Interpretation,
		"numerator", result.Numerator,
		"denominator", result.Denominator,
	)
	return result
}

// deathPredicate prefers the derived death flag and falls back to the raw
// outcome code. Without either column the metric has no data source.
func deathPredicate(ds *dataset.Dataset) (func(dataset.Record) bool, bool) {
	if ds.Has(dataset.FieldHadDeath) {
		return func(rec dataset.Record) bool {
			v, ok := rec.Get(dataset.FieldHadDeath)
			return ok && v.Num == 1
		}, true
	}
	if ds.Has(dataset.FieldOutcome) {
		return func(rec dataset.Record) bool {
			simple := derive.SimplifyOutcome(rec)
			return simple == derive.OutcomeDeathDisease || simple == derive.OutcomeDeathOther
		}, true
	}
	return nil, false
}

// icuPredicate prefers the derived ICU flag and falls back to the raw code.
func icuPredicate(ds *dataset.Dataset) (func(dataset.Record) bool, bool) {
	if ds.Has(dataset.FieldHadICU) {
		return func(rec dataset.Record) bool {
			v, ok := rec.Get(dataset.FieldHadICU)
			return ok && v.Num == 1
		}, true
	}
	if ds.Has(dataset.FieldICU) {
		strategy := derive.DetectColumnStrategy(ds.Column(dataset.FieldICU))
		return func(rec dataset.Record) bool {
			return strategy.Matches(rec[dataset.FieldICU], "1")
		}, true
	}
	return nil, false
}

func notificationTime(rec dataset.Record) (time.Time, bool) {
	v, ok := rec.Get(dataset.FieldNotificationDate)
	if !ok || v.Kind != dataset.KindTime {
		return time.Time{}, false
	}
	return v.Time, true
}

func interpretMortality(rate float64) string {
	switch {
	case rate < 5:
		return InterpMortLow
	case rate < 15:
		return InterpMortMod
	default:
		return InterpMortHigh
	}
}

func interpretICU(rate float64) string {
	switch {
	case rate < 20:
		return InterpICULow
	case rate < 40:
		return InterpICUMod
	default:
		return InterpICUHigh
	}
}

func interpretVaccination(rate float64) string {
	switch {
	case rate < 30:
		return InterpVaccLow
	case rate < 70:
		return InterpVaccMod
	default:
		return InterpVaccHigh
	}
}

func round2(n float64) float64 {
	return math.Round(n*100) / 100
}
