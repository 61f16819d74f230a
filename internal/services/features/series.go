package features

import (
	"math"

	"FinSignal/internal/domain/models"
)

// Highs extracts the high series.
func Highs(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low series.
func Lows(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Closes extracts the close series.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// Tail returns the last n candles, or all of them when fewer exist.
func Tail(candles []models.Candle, n int) []models.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// LinearFit returns the least-squares slope and intercept of ys against
// x = 0..len(ys)-1.
func LinearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if len(ys) == 0 {
		return 0, 0
	}
	if len(ys) == 1 {
		return 0, ys[0]
	}
	var sx, sy, sxx, sxy float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// RSquared is the coefficient of determination of ys against the line.
// It is 0 when ys has no variance.
func RSquared(ys []float64, slope, intercept float64) float64 {
	mean, _ := MeanStd(ys)
	var ssRes, ssTot float64
	for i, y := range ys {
		pred := slope*float64(i) + intercept
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot <= 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// LocalMaxima returns indices strictly greater than every neighbour within
// order samples. Neighbour indices are clipped to the series bounds, so the
// first and last points never qualify.
func LocalMaxima(xs []float64, order int) []int {
	return extrema(xs, order, func(a, b float64) bool { return a > b })
}

// LocalMinima is the mirror of LocalMaxima.
func LocalMinima(xs []float64, order int) []int {
	return extrema(xs, order, func(a, b float64) bool { return a < b })
}

func extrema(xs []float64, order int, cmp func(a, b float64) bool) []int {
	if order < 1 || len(xs) == 0 {
		return nil
	}
	last := len(xs) - 1
	var out []int
	for i := range xs {
		ok := true
		for shift := 1; shift <= order && ok; shift++ {
			lo := i - shift
			if lo < 0 {
				lo = 0
			}
			hi := i + shift
			if hi > last {
				hi = last
			}
			ok = cmp(xs[i], xs[lo]) && cmp(xs[i], xs[hi])
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// MeanStd returns the mean and population standard deviation.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(v / float64(len(xs)))
}

// Linspace returns n evenly spaced points over [start, stop] inclusive.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}
