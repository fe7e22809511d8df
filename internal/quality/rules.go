package quality

import (
	"fmt"

	"epipulse/internal/dataset"
	"epipulse/internal/derive"
)

// BusinessRule is a named predicate over the full dataset returning how many
// records violate it. Rules read derived columns when present and fall back
// to the raw source codes, so they work on partially processed datasets too.
type BusinessRule struct {
	Name        string
	Description string
	Check       func(*dataset.Dataset) int
}

// DefaultRules returns the standard epidemiological consistency rules.
func DefaultRules() []BusinessRule {
	return []BusinessRule{
		{
			Name:        "icu_requires_hospital",
			Description: "an ICU admission implies a hospitalization",
			Check:       checkICURequiresHospital,
		},
		{
			Name:        "death_without_symptoms",
			Description: "a disease death with zero recorded symptoms is implausible",
			Check:       checkDeathWithoutSymptoms,
		},
		{
			Name:        "second_dose_without_first",
			Description: "a second dose date requires a first dose date",
			Check:       checkSecondDoseWithoutFirst,
		},
		{
			Name:        "booster_without_complete_scheme",
			Description: "a booster date requires a completed primary scheme",
			Check:       checkBoosterWithoutCompleteScheme,
		},
	}
}

// evaluateRule runs one rule, converting a panic into an error so a broken
// rule never takes down the validation run.
func evaluateRule(rule BusinessRule, ds *dataset.Dataset) (violations int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Check(ds), nil
}

func checkICURequiresHospital(ds *dataset.Dataset) int {
	icu, okICU := flagReader(ds, dataset.FieldHadICU, dataset.FieldICU)
	hospital, okHosp := flagReader(ds, dataset.FieldWasHospitalized, dataset.FieldHospitalized)
	if !okICU || !okHosp {
		return 0
	}

	violations := 0
	for _, rec := range ds.Records {
		if icu(rec) && !hospital(rec) {
			violations++
		}
	}
	return violations
}

func checkDeathWithoutSymptoms(ds *dataset.Dataset) int {
	if !ds.Has(dataset.FieldSymptomCount) {
		return 0
	}
	death, ok := deathReader(ds)
	if !ok {
		return 0
	}

	violations := 0
	for _, rec := range ds.Records {
		if !death(rec) {
			continue
		}
		if v, present := rec.Get(dataset.FieldSymptomCount); present && v.Num == 0 {
			violations++
		}
	}
	return violations
}

func checkSecondDoseWithoutFirst(ds *dataset.Dataset) int {
	return countDoseWithoutPrerequisite(ds, dataset.FieldDose2Date, dataset.FieldDose1Date)
}

func checkBoosterWithoutCompleteScheme(ds *dataset.Dataset) int {
	return countDoseWithoutPrerequisite(ds, dataset.FieldBoosterDate, dataset.FieldDose2Date)
}

func countDoseWithoutPrerequisite(ds *dataset.Dataset, dose, prerequisite dataset.Field) int {
	if !ds.HasAll(dose, prerequisite) {
		return 0
	}
	violations := 0
	for _, rec := range ds.Records {
		_, hasDose := rec.Get(dose)
		_, hasPre := rec.Get(prerequisite)
		if hasDose && !hasPre {
			violations++
		}
	}
	return violations
}

// flagReader builds a yes/no accessor preferring the derived 0/1 column and
// falling back to the raw flag-code column.
func flagReader(ds *dataset.Dataset, derived, raw dataset.Field) (func(dataset.Record) bool, bool) {
	if ds.Has(derived) {
		return func(rec dataset.Record) bool {
			v, ok := rec.Get(derived)
			return ok && v.Num == 1
		}, true
	}
	if ds.Has(raw) {
		strategy := derive.DetectColumnStrategy(ds.Column(raw))
		return func(rec dataset.Record) bool {
			return strategy.Matches(rec[raw], "1")
		}, true
	}
	return nil, false
}

// deathReader prefers the derived death flag and falls back to the raw
// outcome codes for disease and other-cause death.
func deathReader(ds *dataset.Dataset) (func(dataset.Record) bool, bool) {
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
