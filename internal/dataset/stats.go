package dataset

// RunStats accumulates per-run counters across the loading and normalization
// stages. One RunStats value is scoped to a single pipeline run and threaded
// through explicitly; it is never shared across runs.
type RunStats struct {
	RowsLoaded       int
	RowsKept         int
	RowsSkipped      int
	ChunksProcessed  int
	ChunkCapHit      bool
	NulledFields     int
	ColumnsTouched   int
	CoercionFailures map[Field]int
}

// NewRunStats returns an empty accumulator.
func NewRunStats() *RunStats {
	return &RunStats{CoercionFailures: make(map[Field]int)}
}

// CountNulled records a field value that normalization turned into Missing.
func (s *RunStats) CountNulled(field Field) {
	s.NulledFields++
	s.CoercionFailures[field]++
}

// Merge folds other into s.
func (s *RunStats) Merge(other *RunStats) {
	if other == nil {
		return
	}
	s.RowsLoaded += other.RowsLoaded
	s.RowsKept += other.RowsKept
	s.RowsSkipped += other.RowsSkipped
	s.ChunksProcessed += other.ChunksProcessed
	s.ChunkCapHit = s.ChunkCapHit || other.ChunkCapHit
	s.NulledFields += other.NulledFields
	if s.ColumnsTouched < other.ColumnsTouched {
		s.ColumnsTouched = other.ColumnsTouched
	}
	for f, n := range other.CoercionFailures {
		s.CoercionFailures[f] += n
	}
}
