package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
	apperrors "epipulse/internal/errors"
	"epipulse/internal/normalize"
)

func newTestLoader(t *testing.T, mutate func(*config.DataConfig)) *Loader {
	t.Helper()
	cfg := config.Default().Data
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, normalize.New(nil), nil)
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "srag.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   rune
	}{
		{"semicolon", "DT_NOTIFIC;SG_UF;CS_SEXO", ';'},
		{"comma", "DT_NOTIFIC,SG_UF,CS_SEXO", ','},
		{"tab", "DT_NOTIFIC\tSG_UF\tCS_SEXO", '\t'},
		{"pipe", "DT_NOTIFIC|SG_UF|CS_SEXO", '|'},
		{"mixed prefers majority", "DT_NOTIFIC;SG_UF;CS_SEXO,extra", ';'},
		{"no separator defaults to semicolon", "DT_NOTIFIC", ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDelimiter(tt.header))
		})
	}
}

func TestLoad_BasicIngestion(t *testing.T) {
	src := writeSource(t,
		"DT_NOTIFIC;CS_SEXO;NU_IDADE_N;UTI\n"+
			"2024-01-10;M;45;1\n"+
			"2024-01-11;F;62;2\n")

	l := newTestLoader(t, nil)
	ds, stats, err := l.Load(context.Background(), src, dataset.DateWindow{})
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, 2, stats.RowsKept)
	assert.True(t, ds.Has(dataset.FieldNotificationDate))
	assert.True(t, ds.Has(dataset.FieldICU))
	assert.False(t, ds.Has(dataset.FieldOutcome), "absent source column must not be registered")

	v, ok := ds.Records[0].Get(dataset.FieldAge)
	require.True(t, ok)
	assert.Equal(t, 45.0, v.Num)
}

func TestLoad_WindowFilterAndSkips(t *testing.T) {
	src := writeSource(t,
		"DT_NOTIFIC;CS_SEXO\n"+
			"2024-01-10;M\n"+
			"2024-02-20;F\n"+ // outside window
			"garbage-date;F\n"+ // unparsable notification date
			";M\n") // missing notification date

	window := dataset.DateWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	l := newTestLoader(t, nil)
	ds, stats, err := l.Load(context.Background(), src, window)
	require.NoError(t, err)

	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 4, stats.RowsLoaded)
	assert.Equal(t, 3, stats.RowsSkipped)
}

func TestLoad_EmptyResultIsNotAnError(t *testing.T) {
	src := writeSource(t, "DT_NOTIFIC;CS_SEXO\n2024-01-10;M\n")

	window := dataset.DateWindow{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	l := newTestLoader(t, nil)
	ds, _, err := l.Load(context.Background(), src, window)
	require.NoError(t, err)
	assert.True(t, ds.IsEmpty())
	assert.True(t, ds.Has(dataset.FieldNotificationDate), "empty result still carries the column set")
}

func TestLoad_MissingSourceIsFatal(t *testing.T) {
	l := newTestLoader(t, nil)
	_, _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), dataset.DateWindow{})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestLoad_MissingDateColumnIsFatal(t *testing.T) {
	src := writeSource(t, "SG_UF;CS_SEXO\nSP;M\n")

	l := newTestLoader(t, nil)
	_, _, err := l.Load(context.Background(), src, dataset.DateWindow{})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStructural))
}

func TestLoad_MissingEssentialColumnsTolerated(t *testing.T) {
	// Only two of the essential columns are present; that is fine as long as
	// the date column is one of them.
	src := writeSource(t, "DT_NOTIFIC;FEBRE\n2024-01-10;1\n")

	l := newTestLoader(t, nil)
	ds, _, err := l.Load(context.Background(), src, dataset.DateWindow{})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, []dataset.Field{dataset.FieldNotificationDate, dataset.FieldFever}, ds.Fields())
}

func TestLoad_MalformedRowsSkipped(t *testing.T) {
	src := writeSource(t,
		"DT_NOTIFIC;CS_SEXO\n"+
			"2024-01-10;M\n"+
			"\"broken;row\n"+
			"2024-01-11;F\n")

	l := newTestLoader(t, nil)
	ds, stats, err := l.Load(context.Background(), src, dataset.DateWindow{})
	require.NoError(t, err)

	// LazyQuotes may still salvage the damaged line's shape; what matters is
	// that valid rows around it always survive.
	assert.GreaterOrEqual(t, ds.Len(), 2)
	assert.Equal(t, 3, stats.RowsLoaded)
}

func TestLoad_ChunkCap(t *testing.T) {
	content := "DT_NOTIFIC;CS_SEXO\n"
	for i := 0; i < 10; i++ {
		content += "2024-01-10;M\n"
	}
	src := writeSource(t, content)

	l := newTestLoader(t, func(c *config.DataConfig) {
		c.ChunkSize = 2
		c.MaxChunks = 1
	})

	ds, stats, err := l.Load(context.Background(), src, dataset.DateWindow{})
	require.NoError(t, err)

	assert.True(t, stats.ChunkCapHit)
	assert.Equal(t, 1, stats.ChunksProcessed)
	assert.Equal(t, 2, ds.Len())
}

func TestLoad_CommaDelimitedSource(t *testing.T) {
	src := writeSource(t,
		"DT_NOTIFIC,CS_SEXO,NU_IDADE_N\n"+
			"2024-01-10,F,30\n")

	l := newTestLoader(t, nil)
	ds, _, err := l.Load(context.Background(), src, dataset.DateWindow{})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	v, ok := ds.Records[0].Get(dataset.FieldSex)
	require.True(t, ok)
	assert.Equal(t, "F", v.Str)
}
