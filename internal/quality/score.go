package quality

import "math"

// computeScore folds the check results into the composite quality score.
// The order of operations is fixed and must not be rearranged: downstream
// consumers compare scores across runs and systems.
func computeScore(errors, warnings int, avgCompleteness, keyDupRatio float64) float64 {
	score := 100.0
	score -= float64(errors) * 10
	score -= float64(warnings) * 2
	score *= avgCompleteness / 100

	dupPenalty := keyDupRatio * 20
	if dupPenalty > 20 {
		dupPenalty = 20
	}
	score -= dupPenalty

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return round2(score)
}

func round2(n float64) float64 {
	return math.Round(n*100) / 100
}
