package quality

import "epipulse/internal/dataset"

// Report is the dataset-level quality aggregate for one run. It is
// serializable and deterministic: validating the same dataset twice yields
// an identical report.
type Report struct {
	TotalRecords int     `json:"total_records"`
	Score        float64 `json:"score"`
	Passed       bool    `json:"passed"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	// FieldCompleteness maps each column to its percentage of non-missing
	// values, lexically ordered on export.
	FieldCompleteness map[dataset.Field]float64 `json:"field_completeness"`

	// CoercionFailures surfaces the normalizer's per-field parse failures.
	// Rows survived with the field nulled; the counts are for visibility.
	CoercionFailures map[dataset.Field]int `json:"coercion_failures,omitempty"`

	RangeFindings       []RangeFinding       `json:"range_findings,omitempty"`
	CategoricalFindings []CategoricalFinding `json:"categorical_findings,omitempty"`
	TemporalFindings    []TemporalFinding    `json:"temporal_findings,omitempty"`
	OutlierFindings     []OutlierFinding     `json:"outlier_findings,omitempty"`

	// RuleViolations maps business rule name to its violation count. Every
	// evaluated rule appears, violated or not; rules that panicked are absent.
	RuleViolations map[string]int `json:"rule_violations"`

	Duplicates DuplicateFinding `json:"duplicates"`
}

// RangeFinding counts out-of-range values for one numeric column, split by
// bound.
type RangeFinding struct {
	Field      dataset.Field `json:"field"`
	Min        float64       `json:"min"`
	Max        float64       `json:"max"`
	BelowCount int           `json:"below_count"`
	AboveCount int           `json:"above_count"`
}

// CategoricalFinding records values outside a column's allowed domain.
type CategoricalFinding struct {
	Field          dataset.Field `json:"field"`
	Allowed        []string      `json:"allowed"`
	ViolationCount int           `json:"violation_count"`
	Examples       []string      `json:"examples"`
}

// TemporalFinding reports ordering violations for one (earlier, later) date
// pair. ConsistencyRate is the percentage of both-present records in order.
type TemporalFinding struct {
	EarlierField    dataset.Field `json:"earlier_field"`
	LaterField      dataset.Field `json:"later_field"`
	CheckedCount    int           `json:"checked_count"`
	ViolationCount  int           `json:"violation_count"`
	ConsistencyRate float64       `json:"consistency_rate"`
}

// OutlierFinding reports IQR outliers for one numeric column.
type OutlierFinding struct {
	Field        dataset.Field `json:"field"`
	LowerBound   float64       `json:"lower_bound"`
	UpperBound   float64       `json:"upper_bound"`
	OutlierCount int           `json:"outlier_count"`
	Samples      []float64     `json:"samples"`
}

// DuplicateFinding reports exact and key-subset duplicates. The key count
// may exceed the exact count.
type DuplicateFinding struct {
	ExactCount int      `json:"exact_count"`
	KeyCount   int      `json:"key_count"`
	KeyRatio   float64  `json:"key_ratio"`
	KeyFields  []string `json:"key_fields"`
}

// ErrorCount returns the number of structural errors.
func (r *Report) ErrorCount() int { return len(r.Errors) }

// WarningCount returns the number of warnings.
func (r *Report) WarningCount() int { return len(r.Warnings) }
