// Package classify assigns per-record risk and severity labels on top of the
// derived indicator columns. It runs after derivation and never reads raw
// source encodings directly, with the single exception of the comorbidity
// flag columns.
package classify

import (
	"log/slog"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/derive"
)

// Age risk labels.
const (
	AgeRiskHigh = "high"
	AgeRiskLow  = "low"
)

// Symptom severity labels.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// Composite risk levels.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Disposition labels.
const (
	DispositionRecovered     = "recovered"
	DispositionDeceased      = "deceased"
	DispositionUnderFollowUp = "under_follow_up"
)

// Classifier labels records using the configured thresholds.
type Classifier struct {
	cfg    config.ClassifyConfig
	logger *slog.Logger
}

// New creates a classifier. A nil logger falls back to slog.Default.
func New(cfg config.ClassifyConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Apply appends every classification column whose inputs exist. Like the
// derivation stage, absent inputs skip the label rather than failing the run.
func (c *Classifier) Apply(ds *dataset.Dataset) {
	c.applyAgeRisk(ds)
	c.applySymptomSeverity(ds)
	c.applyCompositeRisk(ds)
	c.applyDisposition(ds)
}

// applyAgeRisk flags the age extremes. Both the very young and the elderly
// carry elevated clinical risk for respiratory infection.
func (c *Classifier) applyAgeRisk(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldAge) {
		return
	}
	ds.AddField(dataset.FieldAgeRiskGroup)
	for _, rec := range ds.Records {
		v, ok := rec.Get(dataset.FieldAge)
		if !ok {
			continue
		}
		rec.Set(dataset.FieldAgeRiskGroup, dataset.String(c.ageRisk(v.Num)))
	}
}

func (c *Classifier) ageRisk(age float64) string {
	if age >= float64(c.cfg.ElderAgeThreshold) || age < float64(c.cfg.YoungAgeThreshold) {
		return AgeRiskHigh
	}
	return AgeRiskLow
}

func (c *Classifier) applySymptomSeverity(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldSymptomCount) {
		return
	}
	ds.AddField(dataset.FieldSymptomSeverity)
	for _, rec := range ds.Records {
		v, ok := rec.Get(dataset.FieldSymptomCount)
		if !ok {
			continue
		}
		rec.Set(dataset.FieldSymptomSeverity, dataset.String(c.symptomSeverity(int(v.Num))))
	}
}

func (c *Classifier) symptomSeverity(count int) string {
	switch {
	case count >= c.cfg.SymptomSevereMin:
		return SeveritySevere
	case count >= c.cfg.SymptomModerateMin:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// applyCompositeRisk scores one point per independent risk factor: high age
// risk, any positive comorbidity flag, and absent vaccination. The score and
// its level band are both recorded.
func (c *Classifier) applyCompositeRisk(ds *dataset.Dataset) {
	var comorbidities []dataset.Field
	for _, name := range config.ComorbidityColumns {
		f := dataset.Field(name)
		if ds.Has(f) {
			comorbidities = append(comorbidities, f)
		}
	}

	hasAgeRisk := ds.Has(dataset.FieldAgeRiskGroup)
	hasVaccination := ds.Has(dataset.FieldVaccinationStatus)
	if !hasAgeRisk && !hasVaccination && len(comorbidities) == 0 {
		return
	}

	ds.AddField(dataset.FieldRiskScore)
	ds.AddField(dataset.FieldRiskLevel)

	for _, rec := range ds.Records {
		score := 0
		if hasAgeRisk {
			if v, ok := rec.Get(dataset.FieldAgeRiskGroup); ok && v.Str == AgeRiskHigh {
				score++
			}
		}
		if anyComorbidity(rec, comorbidities) {
			score++
		}
		if hasVaccination {
			if v, ok := rec.Get(dataset.FieldVaccinationStatus); ok && v.Str == derive.StatusNotVaccinated {
				score++
			}
		}
		rec.Set(dataset.FieldRiskScore, dataset.Number(float64(score)))
		rec.Set(dataset.FieldRiskLevel, dataset.String(riskLevel(score)))
	}
}

// anyComorbidity reports whether any comorbidity flag carries code 1. The
// flag columns use the same inconsistent encodings as the other code columns,
// so numeric equivalence is accepted.
func anyComorbidity(rec dataset.Record, fields []dataset.Field) bool {
	for _, f := range fields {
		if derive.CompareNumeric.Matches(rec[f], "1") {
			return true
		}
	}
	return false
}

func riskLevel(score int) string {
	switch {
	case score >= 3:
		return RiskHigh
	case score == 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// applyDisposition maps the simplified outcome onto a case disposition. Open
// and unknown outcomes stay under follow-up.
func (c *Classifier) applyDisposition(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldOutcomeSimple) {
		return
	}
	ds.AddField(dataset.FieldDisposition)
	for _, rec := range ds.Records {
		disposition := DispositionUnderFollowUp
		if v, ok := rec.Get(dataset.FieldOutcomeSimple); ok {
			switch v.Str {
			case derive.OutcomeCured:
				disposition = DispositionRecovered
			case derive.OutcomeDeathDisease, derive.OutcomeDeathOther:
				disposition = DispositionDeceased
			}
		}
		rec.Set(dataset.FieldDisposition, dataset.String(disposition))
	}
}
