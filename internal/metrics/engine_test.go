package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	apperrors "epipulse/internal/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(config.Default().Metrics, nil)
	// Pin the clock so future-date clamping is deterministic.
	e.now = func() time.Time {
		return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	}
	return e
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// notifications builds a dataset of n records all notified on the given day.
func notifications(n int, t time.Time) *dataset.Dataset {
	ds := dataset.New(dataset.FieldNotificationDate)
	for i := 0; i < n; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(t)})
	}
	return ds
}

func TestMortalityRate_ScenarioHundredRecords(t *testing.T) {
	ds := dataset.New(dataset.FieldNotificationDate, dataset.FieldOutcome)
	ref := day(2024, 6, 1)
	for i := 0; i < 100; i++ {
		code := "1"
		if i < 20 {
			code = "2"
		}
		ds.Append(dataset.Record{
			dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -i%60)),
			dataset.FieldOutcome:          dataset.String(code),
		})
	}

	result, err := newTestEngine(t).MortalityRate(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 20.0, result.Rate)
	assert.Equal(t, 20, result.Numerator)
	assert.Equal(t, 100, result.Denominator)
	assert.Equal(t, InterpMortHigh, result.Interpretation)
	assert.False(t, result.OutOfExpectedRange)
}

func TestMortalityRate_PrefersDerivedFlag(t *testing.T) {
	ds := dataset.New(dataset.FieldNotificationDate, dataset.FieldOutcome, dataset.FieldHadDeath)
	ref := day(2024, 6, 1)
	// Raw outcome says death but the derived flag says otherwise; the derived
	// column wins.
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldOutcome:          dataset.String("2"),
		dataset.FieldHadDeath:         dataset.Number(0),
	})

	result, err := newTestEngine(t).MortalityRate(ds, ref)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Rate)
}

func TestMortalityRate_NoDeathSourceColumn(t *testing.T) {
	ds := notifications(5, day(2024, 6, 1))

	result, err := newTestEngine(t).MortalityRate(ds, day(2024, 6, 1))
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Rate)
	assert.Equal(t, InterpNoData, result.Interpretation)
}

func TestICURate_RawCodeFallback(t *testing.T) {
	ds := dataset.New(dataset.FieldNotificationDate, dataset.FieldICU)
	ref := day(2024, 6, 1)
	for _, code := range []string{"1", "2", "1", "9"} {
		ds.Append(dataset.Record{
			dataset.FieldNotificationDate: dataset.Time(ref),
			dataset.FieldICU:              dataset.String(code),
		})
	}

	result, err := newTestEngine(t).ICURate(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.Rate)
	assert.Equal(t, 2, result.Numerator)
	assert.Equal(t, 4, result.Denominator)
	assert.Equal(t, InterpICUHigh, result.Interpretation)
}

func TestVaccinationRate_ScenarioFirstDoseOnly(t *testing.T) {
	ds := dataset.New(dataset.FieldNotificationDate, dataset.FieldDose1Date, dataset.FieldDose2Date)
	ref := day(2024, 6, 1)
	for i := 0; i < 100; i++ {
		rec := dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref)}
		if i < 60 {
			rec[dataset.FieldDose1Date] = dataset.Time(day(2021, 3, 1))
		}
		ds.Append(rec)
	}

	result, err := newTestEngine(t).VaccinationRate(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 60.0, result.Rate)
	assert.Equal(t, 60, result.Numerator)
	assert.Equal(t, 100, result.Denominator)
	assert.Equal(t, InterpVaccMod, result.Interpretation)
	assert.Equal(t, 60, result.Breakdown[TierDose1])
	assert.Equal(t, 0, result.Breakdown[TierDose2])
	assert.Equal(t, 0, result.Breakdown[TierBooster])
}

func TestVaccinationRate_NoDoseColumnsIsUnknown(t *testing.T) {
	// In-window rows but no dose-date columns: the window cannot distinguish
	// unvaccinated from unrecorded, so a measured 0% would be misleading.
	ref := day(2024, 6, 1)
	ds := notifications(10, ref)

	result, err := newTestEngine(t).VaccinationRate(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Rate)
	assert.Equal(t, 0, result.Numerator)
	assert.Equal(t, 10, result.Denominator)
	assert.Equal(t, InterpVaccUnknown, result.Interpretation)
	assert.Equal(t, map[string]int{TierUnknown: 10}, result.Breakdown)
}

func TestVaccinationRate_TierBreakdown(t *testing.T) {
	ds := dataset.New(append([]dataset.Field{dataset.FieldNotificationDate}, dataset.DoseDateFields...)...)
	ref := day(2024, 6, 1)
	d := dataset.Time(day(2021, 3, 1))

	ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref)})
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldDose1Date:        d,
	})
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldDose1Date:        d,
		dataset.FieldDose2Date:        d,
	})
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldDose1Date:        d,
		dataset.FieldDose2Date:        d,
		dataset.FieldBoosterDate:      d,
	})
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldDose1Date:        d,
		dataset.FieldDose2Date:        d,
		dataset.FieldBoosterDate:      d,
		dataset.FieldBooster2Date:     d,
	})

	result, err := newTestEngine(t).VaccinationRate(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 80.0, result.Rate)
	assert.Equal(t, map[string]int{
		TierDose1: 1, TierDose2: 1, TierBooster: 1, TierAdditional: 1,
	}, result.Breakdown)
}

func TestCaseTrend_ScenarioNewCases(t *testing.T) {
	ref := day(2024, 6, 1)
	ds := notifications(5, ref.AddDate(0, 0, -3))

	result, err := newTestEngine(t).CaseTrend(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Rate)
	assert.Equal(t, InterpNewCases, result.Interpretation)
	assert.Equal(t, 5, result.Numerator)
	assert.Equal(t, 0, result.Denominator)
}

func TestCaseTrend_IncreaseAndDecrease(t *testing.T) {
	ref := day(2024, 6, 1)

	ds := dataset.New(dataset.FieldNotificationDate)
	// 10 in the current window, 5 in the previous one.
	for i := 0; i < 10; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -5))})
	}
	for i := 0; i < 5; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -45))})
	}

	result, err := newTestEngine(t).CaseTrend(ds, ref)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Rate)
	assert.Equal(t, InterpIncrease, result.Interpretation)

	// Reversed proportions trend down.
	ds = dataset.New(dataset.FieldNotificationDate)
	for i := 0; i < 5; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -5))})
	}
	for i := 0; i < 10; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -45))})
	}

	result, err = newTestEngine(t).CaseTrend(ds, ref)
	require.NoError(t, err)
	assert.Equal(t, -50.0, result.Rate)
	assert.Equal(t, InterpDecrease, result.Interpretation)
}

func TestCaseTrend_BothWindowsEmptyIsStable(t *testing.T) {
	// Records exist but none fall inside either comparison window.
	ds := notifications(3, day(2020, 1, 1))
	// Dataset max is 2020-01-01 and the reference is within 3 years, so the
	// window is not re-anchored.
	result, err := newTestEngine(t).CaseTrend(ds, day(2021, 6, 1))
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Rate)
	assert.Equal(t, InterpStable, result.Interpretation)
}

func TestResolveWindowEnd_HistoricalReanchor(t *testing.T) {
	ds := notifications(10, day(2024, 6, 1))

	result, err := newTestEngine(t).MortalityRate(ds, day(2099, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, day(2024, 6, 1), result.PeriodEnd)
	assert.Equal(t, 10, result.Denominator)
}

func TestResolveWindowEnd_FutureReferenceClamped(t *testing.T) {
	e := newTestEngine(t)
	// Dataset max is recent, so no re-anchor; the future reference clamps to
	// the injected "today".
	ds := notifications(3, day(2024, 6, 20))

	result, err := e.CaseTrend(ds, day(2024, 8, 15))
	require.NoError(t, err)

	assert.Equal(t, day(2024, 7, 1), result.PeriodEnd)
}

func TestMetrics_EmptyDataset(t *testing.T) {
	ds := dataset.New(dataset.FieldNotificationDate)
	e := newTestEngine(t)
	ref := day(2024, 6, 1)

	for name, compute := range map[string]func(*dataset.Dataset, time.Time) (Result, error){
		"case_trend":  e.CaseTrend,
		"mortality":   e.MortalityRate,
		"icu":         e.ICURate,
		"vaccination": e.VaccinationRate,
	} {
		result, err := compute(ds, ref)
		require.NoError(t, err, name)
		assert.Equal(t, 0.0, result.Rate, name)
		assert.Equal(t, InterpNoData, result.Interpretation, name)
	}
}

func TestMetrics_ZeroInWindow(t *testing.T) {
	// Dataset carries rows, but none inside the metric window.
	ds := dataset.New(
		dataset.FieldNotificationDate, dataset.FieldOutcome,
		dataset.FieldICU, dataset.FieldDose1Date,
	)
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(day(2023, 1, 1)),
		dataset.FieldOutcome:          dataset.String("2"),
		dataset.FieldICU:              dataset.String("1"),
	})

	e := newTestEngine(t)
	ref := day(2024, 6, 1)

	for name, compute := range map[string]func(*dataset.Dataset, time.Time) (Result, error){
		"mortality":   e.MortalityRate,
		"icu":         e.ICURate,
		"vaccination": e.VaccinationRate,
	} {
		result, err := compute(ds, ref)
		require.NoError(t, err, name)
		assert.Equal(t, 0.0, result.Rate, name)
		assert.Equal(t, InterpNoData, result.Interpretation, name)
	}
}

func TestMetrics_MissingDateColumnIsStructural(t *testing.T) {
	ds := dataset.New(dataset.FieldOutcome)
	ds.Append(dataset.Record{dataset.FieldOutcome: dataset.String("1")})

	e := newTestEngine(t)
	ref := day(2024, 6, 1)

	for name, compute := range map[string]func(*dataset.Dataset, time.Time) (Result, error){
		"case_trend":  e.CaseTrend,
		"mortality":   e.MortalityRate,
		"icu":         e.ICURate,
		"vaccination": e.VaccinationRate,
	} {
		_, err := compute(ds, ref)
		require.Error(t, err, name)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStructural), name)
	}
}

func TestCaseTrend_PlausibilityFlag(t *testing.T) {
	ref := day(2024, 6, 1)
	ds := dataset.New(dataset.FieldNotificationDate)
	// 120 current vs 1 previous: +11900%, far beyond the expected range.
	for i := 0; i < 120; i++ {
		ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -5))})
	}
	ds.Append(dataset.Record{dataset.FieldNotificationDate: dataset.Time(ref.AddDate(0, 0, -45))})

	result, err := newTestEngine(t).CaseTrend(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, 11900.0, result.Rate)
	assert.True(t, result.OutOfExpectedRange)
}

func TestMetrics_DoNotMutateDataset(t *testing.T) {
	ref := day(2024, 6, 1)
	ds := dataset.New(dataset.FieldNotificationDate, dataset.FieldOutcome)
	ds.Append(dataset.Record{
		dataset.FieldNotificationDate: dataset.Time(ref),
		dataset.FieldOutcome:          dataset.String("2"),
	})
	before := ds.Clone()

	e := newTestEngine(t)
	_, err := e.MortalityRate(ds, ref)
	require.NoError(t, err)
	_, err = e.CaseTrend(ds, ref)
	require.NoError(t, err)

	assert.Equal(t, before.Fields(), ds.Fields())
	assert.Equal(t, before.Records, ds.Records)
}
