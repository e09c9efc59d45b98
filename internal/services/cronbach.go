package services

// CronbachAlpha estimates the internal consistency of a scale from a
// [respondents][items] matrix. Population variance is used throughout so
// perfectly correlated items give 1. Ragged input, fewer than two items or
// zero total variance yield 0; the result is clamped to [0, 1].
func CronbachAlpha(matrix [][]float64) float64 {
	if len(matrix) == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}
	totals := make([]float64, len(matrix))
	column := make([]float64, len(matrix))
	var itemVar float64
	for j := 0; j < k; j++ {
		for i, row := range matrix {
			if len(row) != k {
				return 0
			}
			column[i] = row[j]
			totals[i] += row[j]
		}
		itemVar += variance(column)
	}
	totalVar := variance(totals)
	if totalVar == 0 {
		return 0
	}
	kf := float64(k)
	alpha := kf / (kf - 1) * (1 - itemVar/totalVar)
	return min(max(alpha, 0), 1)
}

func variance(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return ss / float64(len(xs))
}
