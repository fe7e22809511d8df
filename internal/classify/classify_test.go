package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	"epipulse/internal/derive"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return New(config.Default().Classify, nil)
}

func strField(t *testing.T, rec dataset.Record, f dataset.Field) string {
	t.Helper()
	v, ok := rec.Get(f)
	require.True(t, ok, "expected %s to be present", f)
	return v.Str
}

func TestAgeRisk(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		age  float64
		want string
	}{
		{0, AgeRiskHigh},
		{1, AgeRiskHigh},
		{2, AgeRiskLow},
		{35, AgeRiskLow},
		{59, AgeRiskLow},
		{60, AgeRiskHigh},
		{95, AgeRiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.ageRisk(tt.age), "age %v", tt.age)
	}
}

func TestSymptomSeverity(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		count int
		want  string
	}{
		{0, SeverityMild},
		{2, SeverityMild},
		{3, SeverityModerate},
		{4, SeverityModerate},
		{5, SeveritySevere},
		{7, SeveritySevere},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.symptomSeverity(tt.count), "count %d", tt.count)
	}
}

func TestApply_CompositeRisk(t *testing.T) {
	ds := dataset.New(
		dataset.FieldAge,
		dataset.Field("CARDIOPATI"),
		dataset.FieldDose1Date,
		dataset.FieldDose2Date,
	)

	// All three factors: elderly, comorbidity positive, never vaccinated.
	ds.Append(dataset.Record{
		dataset.FieldAge:            dataset.Number(72),
		dataset.Field("CARDIOPATI"): dataset.String("1"),
	})
	// Two factors: elderly, never vaccinated.
	ds.Append(dataset.Record{
		dataset.FieldAge:            dataset.Number(72),
		dataset.Field("CARDIOPATI"): dataset.String("2"),
	})
	// One factor: never vaccinated only.
	ds.Append(dataset.Record{
		dataset.FieldAge: dataset.Number(40),
	})
	// No factors: adult, vaccinated.
	ds.Append(dataset.Record{
		dataset.FieldAge:       dataset.Number(40),
		dataset.FieldDose1Date: dataset.Time(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)),
		dataset.FieldDose2Date: dataset.Time(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)),
	})

	derive.NewEngine(nil).Apply(ds)
	newTestClassifier(t).Apply(ds)

	wantScore := []float64{3, 2, 1, 0}
	wantLevel := []string{RiskHigh, RiskMedium, RiskLow, RiskLow}
	for i, rec := range ds.Records {
		v, ok := rec.Get(dataset.FieldRiskScore)
		require.True(t, ok, "record %d", i)
		assert.Equal(t, wantScore[i], v.Num, "record %d score", i)
		assert.Equal(t, wantLevel[i], strField(t, rec, dataset.FieldRiskLevel), "record %d level", i)
	}
}

func TestApply_Disposition(t *testing.T) {
	ds := dataset.New(dataset.FieldOutcome)
	for _, code := range []string{"1", "2", "3", "9"} {
		ds.Append(dataset.Record{dataset.FieldOutcome: dataset.String(code)})
	}
	ds.Append(dataset.Record{}) // missing outcome

	derive.NewEngine(nil).Apply(ds)
	newTestClassifier(t).Apply(ds)

	want := []string{
		DispositionRecovered,
		DispositionDeceased,
		DispositionDeceased,
		DispositionUnderFollowUp,
		DispositionUnderFollowUp,
	}
	for i, rec := range ds.Records {
		assert.Equal(t, want[i], strField(t, rec, dataset.FieldDisposition), "record %d", i)
	}
}

func TestApply_SkipsLabelsWithoutInputs(t *testing.T) {
	ds := dataset.New(dataset.FieldSex)
	ds.Append(dataset.Record{dataset.FieldSex: dataset.String("F")})

	newTestClassifier(t).Apply(ds)

	assert.False(t, ds.Has(dataset.FieldAgeRiskGroup))
	assert.False(t, ds.Has(dataset.FieldSymptomSeverity))
	assert.False(t, ds.Has(dataset.FieldDisposition))
}

func TestApply_CustomThresholds(t *testing.T) {
	cfg := config.Default().Classify
	cfg.ElderAgeThreshold = 65
	cfg.SymptomModerateMin = 2
	cfg.SymptomSevereMin = 4
	c := New(cfg, nil)

	assert.Equal(t, AgeRiskLow, c.ageRisk(62))
	assert.Equal(t, AgeRiskHigh, c.ageRisk(65))
	assert.Equal(t, SeverityModerate, c.symptomSeverity(2))
	assert.Equal(t, SeveritySevere, c.symptomSeverity(4))
}
