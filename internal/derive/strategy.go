package derive

import (
	"strconv"
	"strings"

	"epipulse/internal/dataset"
)

// Strategy selects how a flag-code column is compared against a code value.
// Upstream batches inconsistently encode flag columns as bare numbers or as
// formatted numeric strings ("1" vs "1.0"), so the comparison mode is chosen
// per column, from the data, in exactly one place.
type Strategy int

const (
	// CompareNumeric parses both sides as numbers before comparing.
	CompareNumeric Strategy = iota
	// CompareText compares trimmed strings verbatim.
	CompareText
)

// DetectColumnStrategy inspects a column's present values: when more than
// half of them fail plain-numeric parsing the column is treated as text,
// otherwise it is compared numerically. An empty column defaults to numeric.
func DetectColumnStrategy(values []dataset.Value) Strategy {
	present := 0
	failures := 0
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		present++
		if !parsesAsNumber(v) {
			failures++
		}
	}
	if present == 0 {
		return CompareNumeric
	}
	if float64(failures)/float64(present) > 0.5 {
		return CompareText
	}
	return CompareNumeric
}

// Matches compares one value against a flag code under the given strategy.
// Missing values never match.
func (s Strategy) Matches(v dataset.Value, code string) bool {
	if v.IsMissing() {
		return false
	}
	switch s {
	case CompareText:
		return strings.TrimSpace(v.Render()) == code
	default:
		got, ok := numberOf(v)
		if !ok {
			return false
		}
		want, err := strconv.ParseFloat(code, 64)
		if err != nil {
			return false
		}
		return got == want
	}
}

func parsesAsNumber(v dataset.Value) bool {
	_, ok := numberOf(v)
	return ok
}

func numberOf(v dataset.Value) (float64, bool) {
	switch v.Kind {
	case dataset.KindNumber:
		return v.Num, true
	case dataset.KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
