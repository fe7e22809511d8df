package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Render(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"missing", Missing, ""},
		{"string", String("M"), "M"},
		{"integer number", Number(42), "42"},
		{"fractional number", Number(1.5), "1.5"},
		{"time", Time(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)), "2024-03-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Render())
		})
	}
}

func TestRecord_GetSet(t *testing.T) {
	r := Record{}
	r.Set(FieldSex, String("F"))
	r.Set(FieldAge, Number(34))

	v, ok := r.Get(FieldSex)
	require.True(t, ok)
	assert.Equal(t, "F", v.Str)

	_, ok = r.Get(FieldICU)
	assert.False(t, ok, "absent field must read as missing")

	// Storing Missing removes the key entirely.
	r.Set(FieldAge, Missing)
	_, ok = r.Get(FieldAge)
	assert.False(t, ok)
	_, exists := r[FieldAge]
	assert.False(t, exists)
}

func TestDataset_FieldPresence(t *testing.T) {
	ds := New(FieldNotificationDate, FieldSex)

	assert.True(t, ds.Has(FieldNotificationDate))
	assert.False(t, ds.Has(FieldICU))
	assert.True(t, ds.HasAll(FieldNotificationDate, FieldSex))
	assert.False(t, ds.HasAll(FieldNotificationDate, FieldICU))

	ds.AddField(FieldICU)
	ds.AddField(FieldICU) // idempotent
	assert.Equal(t, []Field{FieldNotificationDate, FieldSex, FieldICU}, ds.Fields())
}

func TestDataset_Clone_IsDeep(t *testing.T) {
	ds := New(FieldNotificationDate, FieldSex)
	ds.Append(Record{
		FieldNotificationDate: Time(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		FieldSex:              String("M"),
	})

	clone := ds.Clone()
	clone.Records[0].Set(FieldSex, String("F"))
	clone.AddField(FieldICU)

	v, _ := ds.Records[0].Get(FieldSex)
	assert.Equal(t, "M", v.Str, "mutating the clone must not touch the original")
	assert.False(t, ds.Has(FieldICU))
}

func TestDataset_MaxTime(t *testing.T) {
	ds := New(FieldNotificationDate)
	_, ok := ds.MaxTime(FieldNotificationDate)
	assert.False(t, ok, "empty dataset has no max date")

	dates := []time.Time{
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range dates {
		ds.Append(Record{FieldNotificationDate: Time(d)})
	}
	ds.Append(Record{}) // record with missing date must be ignored

	max, ok := ds.MaxTime(FieldNotificationDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), max)
}

func TestRecord_RowKey(t *testing.T) {
	a := Record{
		FieldNotificationDate: Time(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		FieldState:            String("SP"),
		FieldAge:              Number(40),
	}
	b := a.Clone()
	c := a.Clone()
	c.Set(FieldAge, Number(41))

	key := []Field{FieldNotificationDate, FieldState, FieldAge}
	assert.Equal(t, a.RowKey(key), b.RowKey(key))
	assert.NotEqual(t, a.RowKey(key), c.RowKey(key))
}

func TestRunStats(t *testing.T) {
	s := NewRunStats()
	s.CountNulled(FieldAge)
	s.CountNulled(FieldAge)
	s.CountNulled(FieldSex)

	assert.Equal(t, 3, s.NulledFields)
	assert.Equal(t, 2, s.CoercionFailures[FieldAge])

	other := NewRunStats()
	other.RowsLoaded = 10
	other.RowsSkipped = 2
	other.CountNulled(FieldAge)

	s.Merge(other)
	assert.Equal(t, 10, s.RowsLoaded)
	assert.Equal(t, 2, s.RowsSkipped)
	assert.Equal(t, 3, s.CoercionFailures[FieldAge])
}
