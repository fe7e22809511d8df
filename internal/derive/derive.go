// Package derive computes the indicator columns of the surveillance dataset:
// age bracket, simplified outcome, critical-care and hospitalization flags,
// severity, vaccination status, symptom count, calendar parts and length of
// stay. Indicators are appended as columns and recomputed from scratch on
// every run; they carry no identity of their own.
package derive

import (
	"fmt"
	"log/slog"

	"epipulse/internal/dataset"
)

// Simplified outcome labels.
const (
	OutcomeCured        = "cured"
	OutcomeDeathDisease = "death_disease"
	OutcomeDeathOther   = "death_other"
	OutcomeUnknown      = "unknown"
)

// Age bracket labels; lower bound inclusive.
const (
	BracketInfant     = "infant"     // [0, 2)
	BracketChild      = "child"      // [2, 12)
	BracketAdolescent = "adolescent" // [12, 18)
	BracketAdult      = "adult"      // [18, 60)
	BracketElderly    = "elderly"    // [60, 120]
)

// Vaccination status tiers, lowest to highest.
const (
	StatusNotVaccinated   = "not_vaccinated"
	StatusFirstDose       = "first_dose"
	StatusCompleteScheme  = "complete_scheme"
	StatusBooster         = "booster"
	StatusAdditionalBoost = "additional_booster"
	StatusUnknown         = "unknown"
)

// Flag codes of the source encoding.
const (
	codeYes          = "1"
	codeCured        = "1"
	codeDeathDisease = "2"
	codeDeathOther   = "3"
)

// Engine appends derived indicator columns to a normalized dataset.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a derivation engine. A nil logger falls back to
// slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply computes every derivable indicator in place. Indicators whose input
// columns are absent are skipped, and a failure in one optional derivation
// never aborts the remaining ones.
func (e *Engine) Apply(ds *dataset.Dataset) {
	steps := []struct {
		name string
		fn   func(*dataset.Dataset)
	}{
		{"age_bracket", e.applyAgeBracket},
		{"outcome", e.applyOutcome},
		{"critical_care", e.applyCriticalCare},
		{"hospitalization", e.applyHospitalization},
		{"severe_case", e.applySevereCase},
		{"vaccination_status", e.applyVaccinationStatus},
		{"symptom_count", e.applySymptomCount},
		{"calendar", e.applyCalendar},
		{"length_of_stay", e.applyLengthOfStay},
	}

	for _, step := range steps {
		e.runStep(ds, step.name, step.fn)
	}
}

// runStep isolates one derivation: a panic is absorbed and logged, leaving
// that indicator partial or absent for this run.
func (e *Engine) runStep(ds *dataset.Dataset, name string, fn func(*dataset.Dataset)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("derived field computation failed",
				"indicator", name, "error", fmt.Sprint(r))
		}
	}()
	fn(ds)
}

func (e *Engine) applyAgeBracket(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldAge) {
		return
	}
	ds.AddField(dataset.FieldAgeBracket)
	for _, rec := range ds.Records {
		v, ok := rec.Get(dataset.FieldAge)
		if !ok {
			continue
		}
		if bracket, ok := AgeBracket(v.Num); ok {
			rec.Set(dataset.FieldAgeBracket, dataset.String(bracket))
		}
	}
}

// AgeBracket maps an age in years onto its bracket. Ages outside [0,120]
// have no bracket.
func AgeBracket(age float64) (string, bool) {
	switch {
	case age < 0 || age > 120:
		return "", false
	case age < 2:
		return BracketInfant, true
	case age < 12:
		return BracketChild, true
	case age < 18:
		return BracketAdolescent, true
	case age < 60:
		return BracketAdult, true
	default:
		return BracketElderly, true
	}
}

func (e *Engine) applyOutcome(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldOutcome) {
		return
	}
	ds.AddField(dataset.FieldOutcomeSimple)
	ds.AddField(dataset.FieldHadDeath)
	for _, rec := range ds.Records {
		simple := SimplifyOutcome(rec)
		rec.Set(dataset.FieldOutcomeSimple, dataset.String(simple))
		rec.Set(dataset.FieldHadDeath, boolValue(simple == OutcomeDeathDisease || simple == OutcomeDeathOther))
	}
}

// SimplifyOutcome maps the raw 4-valued outcome code onto the simplified
// label set. Unknown and missing codes are "unknown", never "cured".
func SimplifyOutcome(rec dataset.Record) string {
	v, ok := rec.Get(dataset.FieldOutcome)
	if !ok {
		return OutcomeUnknown
	}
	switch v.Render() {
	case codeCured:
		return OutcomeCured
	case codeDeathDisease:
		return OutcomeDeathDisease
	case codeDeathOther:
		return OutcomeDeathOther
	default:
		return OutcomeUnknown
	}
}

func (e *Engine) applyCriticalCare(ds *dataset.Dataset) {
	e.applyFlagColumn(ds, dataset.FieldICU, dataset.FieldHadICU)
}

func (e *Engine) applyHospitalization(ds *dataset.Dataset) {
	e.applyFlagColumn(ds, dataset.FieldHospitalized, dataset.FieldWasHospitalized)
}

// applyFlagColumn derives a 0/1 indicator from a flag-code column, choosing
// the comparison strategy once per column.
func (e *Engine) applyFlagColumn(ds *dataset.Dataset, src, dst dataset.Field) {
	if !ds.Has(src) {
		return
	}
	strategy := DetectColumnStrategy(ds.Column(src))
	e.logger.Debug("flag column strategy selected",
		"column", string(src), "text_compare", strategy == CompareText)

	ds.AddField(dst)
	for _, rec := range ds.Records {
		rec.Set(dst, boolValue(strategy.Matches(rec[src], codeYes)))
	}
}

func (e *Engine) applySevereCase(ds *dataset.Dataset) {
	hasICU := ds.Has(dataset.FieldHadICU)
	hasVent := ds.Has(dataset.FieldVentSupport)
	if !hasICU && !hasVent {
		return
	}

	var ventStrategy Strategy
	if hasVent {
		ventStrategy = DetectColumnStrategy(ds.Column(dataset.FieldVentSupport))
	}

	ds.AddField(dataset.FieldSevereCase)
	for _, rec := range ds.Records {
		severe := false
		if hasICU {
			if v, ok := rec.Get(dataset.FieldHadICU); ok && v.Num == 1 {
				severe = true
			}
		}
		// Ventilatory support code 1 is invasive (assisted) ventilation.
		if !severe && hasVent && ventStrategy.Matches(rec[dataset.FieldVentSupport], codeYes) {
			severe = true
		}
		rec.Set(dataset.FieldSevereCase, boolValue(severe))
	}
}

func (e *Engine) applyVaccinationStatus(ds *dataset.Dataset) {
	var present []dataset.Field
	for _, f := range dataset.DoseDateFields {
		if ds.Has(f) {
			present = append(present, f)
		}
	}

	ds.AddField(dataset.FieldVaccinationStatus)

	// A source without any dose-date column cannot distinguish "never
	// vaccinated" from "not recorded": every record is unknown.
	if len(present) == 0 {
		for _, rec := range ds.Records {
			rec.Set(dataset.FieldVaccinationStatus, dataset.String(StatusUnknown))
		}
		return
	}

	for _, rec := range ds.Records {
		rec.Set(dataset.FieldVaccinationStatus, dataset.String(VaccinationStatus(rec)))
	}
}

// VaccinationStatus derives the status exclusively from dose-date presence;
// the separate yes/no vaccination code is unreliable and never consulted.
// Tiers are evaluated lowest to highest and the highest satisfied tier wins.
func VaccinationStatus(rec dataset.Record) string {
	status := StatusNotVaccinated
	if _, ok := rec.Get(dataset.FieldDose1Date); ok {
		status = StatusFirstDose
	}
	if _, ok := rec.Get(dataset.FieldDose2Date); ok {
		status = StatusCompleteScheme
	}
	if _, ok := rec.Get(dataset.FieldBoosterDate); ok {
		status = StatusBooster
	}
	if _, ok := rec.Get(dataset.FieldBooster2Date); ok {
		status = StatusAdditionalBoost
	}
	return status
}

func (e *Engine) applySymptomCount(ds *dataset.Dataset) {
	var present []dataset.Field
	strategies := make(map[dataset.Field]Strategy)
	for _, f := range dataset.SymptomFields {
		if ds.Has(f) {
			present = append(present, f)
			strategies[f] = DetectColumnStrategy(ds.Column(f))
		}
	}
	if len(present) == 0 {
		return
	}

	ds.AddField(dataset.FieldSymptomCount)
	for _, rec := range ds.Records {
		count := 0
		for _, f := range present {
			if strategies[f].Matches(rec[f], codeYes) {
				count++
			}
		}
		rec.Set(dataset.FieldSymptomCount, dataset.Number(float64(count)))
	}
}

func (e *Engine) applyCalendar(ds *dataset.Dataset) {
	if !ds.Has(dataset.FieldNotificationDate) {
		return
	}
	for _, f := range []dataset.Field{
		dataset.FieldYear, dataset.FieldMonth, dataset.FieldWeekday,
		dataset.FieldEpiWeek, dataset.FieldQuarter,
	} {
		ds.AddField(f)
	}

	for _, rec := range ds.Records {
		v, ok := rec.Get(dataset.FieldNotificationDate)
		if !ok {
			continue
		}
		t := v.Time
		_, isoWeek := t.ISOWeek()
		rec.Set(dataset.FieldYear, dataset.Number(float64(t.Year())))
		rec.Set(dataset.FieldMonth, dataset.Number(float64(t.Month())))
		rec.Set(dataset.FieldWeekday, dataset.Number(float64(t.Weekday())))
		rec.Set(dataset.FieldEpiWeek, dataset.Number(float64(isoWeek)))
		rec.Set(dataset.FieldQuarter, dataset.Number(float64((int(t.Month())-1)/3+1)))
	}
}

func (e *Engine) applyLengthOfStay(ds *dataset.Dataset) {
	if !ds.HasAll(dataset.FieldOutcomeDate, dataset.FieldAdmissionDate) {
		return
	}
	ds.AddField(dataset.FieldLengthOfStay)
	for _, rec := range ds.Records {
		outcome, ok1 := rec.Get(dataset.FieldOutcomeDate)
		admission, ok2 := rec.Get(dataset.FieldAdmissionDate)
		if !ok1 || !ok2 {
			continue
		}
		days := outcome.Time.Sub(admission.Time).Hours() / 24
		if days < 0 {
			// Outcome before admission is a data error; the value is nulled,
			// never negated.
			continue
		}
		rec.Set(dataset.FieldLengthOfStay, dataset.Number(days))
	}
}

func boolValue(b bool) dataset.Value {
	if b {
		return dataset.Number(1)
	}
	return dataset.Number(0)
}
