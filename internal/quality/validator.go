// Package quality runs the data quality checks over a processed dataset and
// produces a serializable report with a composite score. Checks never mutate
// the dataset and the whole validation is deterministic: the same dataset
// always yields the same report.
package quality

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
)

// requiredFields must exist as columns; their absence is a structural error.
var requiredFields = []dataset.Field{dataset.FieldNotificationDate}

// rangeCheck bounds one numeric column.
type rangeCheck struct {
	field dataset.Field
	min   float64
	max   float64
}

var defaultRangeChecks = []rangeCheck{
	{dataset.FieldAge, 0, 120},
	{dataset.FieldLengthOfStay, 0, 365},
	{dataset.FieldSymptomCount, 0, 7},
}

// categoricalDomain is the allow-list for one coded column.
type categoricalDomain struct {
	field   dataset.Field
	allowed []string
}

var defaultDomains = []categoricalDomain{
	{dataset.FieldSex, []string{"M", "F", "I"}},
	{dataset.FieldOutcome, []string{"1", "2", "3", "9"}},
	{dataset.FieldICU, []string{"1", "2", "9"}},
	{dataset.FieldVentSupport, []string{"1", "2", "9"}},
	{dataset.FieldVaccineCode, []string{"1", "2", "9"}},
}

// temporalPair is one (earlier, later) ordering constraint.
type temporalPair struct {
	earlier dataset.Field
	later   dataset.Field
}

var defaultTemporalPairs = []temporalPair{
	{dataset.FieldNotificationDate, dataset.FieldOutcomeDate},
	{dataset.FieldFirstSymptomDate, dataset.FieldNotificationDate},
	{dataset.FieldNotificationDate, dataset.FieldAdmissionDate},
}

// Validator runs the quality checks using the configured thresholds.
type Validator struct {
	cfg    config.ValidationConfig
	rules  []BusinessRule
	logger *slog.Logger
}

// New creates a validator with the default business-rule registry. A nil
// logger falls back to slog.Default.
func New(cfg config.ValidationConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, rules: DefaultRules(), logger: logger}
}

// Validate runs every check and scores the dataset. stats may be nil when no
// ingestion statistics are available.
func (v *Validator) Validate(ds *dataset.Dataset, stats *dataset.RunStats) *Report {
	report := &Report{
		TotalRecords:      ds.Len(),
		FieldCompleteness: make(map[dataset.Field]float64),
		RuleViolations:    make(map[string]int),
		Errors:            []string{},
		Warnings:          []string{},
	}

	v.checkCompleteness(ds, report)
	v.checkCoercions(stats, report)
	v.checkRanges(ds, report)
	v.checkCategoricalDomains(ds, report)
	v.checkTemporalConsistency(ds, report)
	v.checkOutliers(ds, report)
	v.checkDuplicates(ds, report)
	v.runBusinessRules(ds, report)

	report.Score = computeScore(
		report.ErrorCount(),
		report.WarningCount(),
		averageCompleteness(report.FieldCompleteness),
		report.Duplicates.KeyRatio,
	)
	report.Passed = report.ErrorCount() == 0

	v.logger.Info("dataset validation complete",
		"records", report.TotalRecords,
		"score", report.Score,
		"errors", report.ErrorCount(),
		"warnings", report.WarningCount(),
	)
	return report
}

// checkCompleteness computes per-field presence percentages, flags missing
// required columns as errors and mostly-missing optional columns as warnings.
func (v *Validator) checkCompleteness(ds *dataset.Dataset, report *Report) {
	for _, f := range requiredFields {
		if !ds.Has(f) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("required field %s is missing from the dataset", f))
		}
	}

	total := ds.Len()
	for _, f := range ds.SortedFields() {
		completeness := 100.0
		if total > 0 {
			present := 0
			for _, rec := range ds.Records {
				if _, ok := rec.Get(f); ok {
					present++
				}
			}
			completeness = float64(present) / float64(total) * 100
		}
		report.FieldCompleteness[f] = completeness

		if total > 0 && !isRequired(f) && 100-completeness > v.cfg.MissingWarnPercent {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("field %s is %.1f%% missing", f, 100-completeness))
		}
	}
}

func isRequired(f dataset.Field) bool {
	for _, r := range requiredFields {
		if r == f {
			return true
		}
	}
	return false
}

// checkCoercions copies the normalizer's parse-failure counters into the
// report. Coercion failures are informational only.
func (v *Validator) checkCoercions(stats *dataset.RunStats, report *Report) {
	if stats == nil || len(stats.CoercionFailures) == 0 {
		return
	}
	report.CoercionFailures = make(map[dataset.Field]int, len(stats.CoercionFailures))
	for f, n := range stats.CoercionFailures {
		report.CoercionFailures[f] = n
	}
}

func (v *Validator) checkRanges(ds *dataset.Dataset, report *Report) {
	for _, rc := range defaultRangeChecks {
		if !ds.Has(rc.field) {
			continue
		}
		finding := RangeFinding{Field: rc.field, Min: rc.min, Max: rc.max}
		for _, rec := range ds.Records {
			val, ok := rec.Get(rc.field)
			if !ok || val.Kind != dataset.KindNumber {
				continue
			}
			switch {
			case val.Num < rc.min:
				finding.BelowCount++
			case val.Num > rc.max:
				finding.AboveCount++
			}
		}
		if finding.BelowCount+finding.AboveCount > 0 {
			report.RangeFindings = append(report.RangeFindings, finding)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("field %s has %d values below %.0f and %d above %.0f",
					rc.field, finding.BelowCount, rc.min, finding.AboveCount, rc.max))
		}
	}
}

// checkCategoricalDomains compares observed values against each column's
// allow-list. Case is normalized for the comparison only; stored values are
// never altered. Missing is always allowed.
func (v *Validator) checkCategoricalDomains(ds *dataset.Dataset, report *Report) {
	for _, domain := range defaultDomains {
		if !ds.Has(domain.field) {
			continue
		}

		allowed := make(map[string]bool, len(domain.allowed))
		for _, a := range domain.allowed {
			allowed[strings.ToUpper(a)] = true
		}

		finding := CategoricalFinding{
			Field:    domain.field,
			Allowed:  domain.allowed,
			Examples: []string{},
		}
		for _, rec := range ds.Records {
			val, ok := rec.Get(domain.field)
			if !ok {
				continue
			}
			rendered := val.Render()
			if allowed[strings.ToUpper(rendered)] {
				continue
			}
			finding.ViolationCount++
			if len(finding.Examples) < v.cfg.MaxCategoricalSample {
				finding.Examples = append(finding.Examples, rendered)
			}
		}
		if finding.ViolationCount > 0 {
			report.CategoricalFindings = append(report.CategoricalFindings, finding)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("field %s has %d values outside its domain", domain.field, finding.ViolationCount))
		}
	}
}

func (v *Validator) checkTemporalConsistency(ds *dataset.Dataset, report *Report) {
	for _, pair := range defaultTemporalPairs {
		if !ds.HasAll(pair.earlier, pair.later) {
			continue
		}

		finding := TemporalFinding{EarlierField: pair.earlier, LaterField: pair.later}
		for _, rec := range ds.Records {
			earlier, ok1 := rec.Get(pair.earlier)
			later, ok2 := rec.Get(pair.later)
			if !ok1 || !ok2 || earlier.Kind != dataset.KindTime || later.Kind != dataset.KindTime {
				continue
			}
			finding.CheckedCount++
			if later.Time.Before(earlier.Time) {
				finding.ViolationCount++
			}
		}

		finding.ConsistencyRate = 100.0
		if finding.CheckedCount > 0 {
			finding.ConsistencyRate = round2(float64(finding.CheckedCount-finding.ViolationCount) /
				float64(finding.CheckedCount) * 100)
		}
		report.TemporalFindings = append(report.TemporalFindings, finding)
		if finding.ViolationCount > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d records have %s before %s", finding.ViolationCount, pair.later, pair.earlier))
		}
	}
}

// checkOutliers runs the IQR method over the configured numeric columns.
func (v *Validator) checkOutliers(ds *dataset.Dataset, report *Report) {
	for _, f := range []dataset.Field{dataset.FieldAge, dataset.FieldLengthOfStay} {
		if !ds.Has(f) {
			continue
		}

		var values []float64
		for _, rec := range ds.Records {
			if val, ok := rec.Get(f); ok && val.Kind == dataset.KindNumber {
				values = append(values, val.Num)
			}
		}
		if len(values) < 4 {
			continue
		}

		sort.Float64s(values)
		q1 := quantile(values, 0.25)
		q3 := quantile(values, 0.75)
		iqr := q3 - q1
		lower := q1 - v.cfg.OutlierIQRFactor*iqr
		upper := q3 + v.cfg.OutlierIQRFactor*iqr

		finding := OutlierFinding{Field: f, LowerBound: lower, UpperBound: upper, Samples: []float64{}}
		for _, n := range values {
			if n < lower || n > upper {
				finding.OutlierCount++
				if len(finding.Samples) < v.cfg.MaxOutlierSample {
					finding.Samples = append(finding.Samples, n)
				}
			}
		}
		if finding.OutlierCount > 0 {
			report.OutlierFindings = append(report.OutlierFindings, finding)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("field %s has %d statistical outliers", f, finding.OutlierCount))
		}
	}
}

// quantile interpolates linearly over an already-sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// checkDuplicates counts exact full-row duplicates and, separately,
// duplicates over the configured key subset.
func (v *Validator) checkDuplicates(ds *dataset.Dataset, report *Report) {
	report.Duplicates.KeyFields = append([]string(nil), v.cfg.KeyFields...)
	if ds.IsEmpty() {
		return
	}

	allFields := ds.SortedFields()
	keyFields := make([]dataset.Field, len(v.cfg.KeyFields))
	for i, name := range v.cfg.KeyFields {
		keyFields[i] = dataset.Field(name)
	}

	exactSeen := make(map[string]bool, ds.Len())
	keySeen := make(map[string]bool, ds.Len())
	for _, rec := range ds.Records {
		exactKey := rec.RowKey(allFields)
		if exactSeen[exactKey] {
			report.Duplicates.ExactCount++
		}
		exactSeen[exactKey] = true

		key := rec.RowKey(keyFields)
		if keySeen[key] {
			report.Duplicates.KeyCount++
		}
		keySeen[key] = true
	}

	report.Duplicates.KeyRatio = float64(report.Duplicates.KeyCount) / float64(ds.Len())
	if report.Duplicates.ExactCount > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d exact duplicate records detected", report.Duplicates.ExactCount))
	}
	if report.Duplicates.KeyCount > report.Duplicates.ExactCount {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d records repeat the key fields (%s) without being exact duplicates",
				report.Duplicates.KeyCount, strings.Join(v.cfg.KeyFields, ", ")))
	}
}

// runBusinessRules evaluates every registered rule. A panicking rule is
// logged and skipped; the remaining rules still run.
func (v *Validator) runBusinessRules(ds *dataset.Dataset, report *Report) {
	for _, rule := range v.rules {
		violations, err := evaluateRule(rule, ds)
		if err != nil {
			v.logger.Error("business rule evaluation failed",
				"rule", rule.Name, "error", err)
			continue
		}
		report.RuleViolations[rule.Name] = violations
		if violations > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("rule %s violated by %d records", rule.Name, violations))
		}
	}
}

func averageCompleteness(completeness map[dataset.Field]float64) float64 {
	if len(completeness) == 0 {
		return 100
	}
	sum := 0.0
	for _, pct := range completeness {
		sum += pct
	}
	return sum / float64(len(completeness))
}
