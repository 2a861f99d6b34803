package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"rsi-divergence/internal/model"
)

// Attach recomputes RSI and Bollinger values for the whole series and
// returns them on a new slice. The input is not modified.
func Attach(series []model.Candle, cfg Config) []model.Candle {
	out := make([]model.Candle, len(series))
	copy(out, series)

	closes := make([]float64, len(series))
	for i := range series {
		closes[i] = series[i].Close
	}

	rsi, rsiOK := RSISeries(closes, cfg.RSIPeriod)
	upper, lower, bandsOK := BollingerSeries(closes, cfg.BBPeriod, cfg.BBStdDev)
	for i := range out {
		out[i].RSI, out[i].RSIReady = rsi[i], rsiOK[i]
		out[i].UpperBand, out[i].LowerBand, out[i].BandsReady = upper[i], lower[i], bandsOK[i]
	}
	return out
}

// RSISeries computes Wilder's RSI for every close. ok[i] is false during
// warm-up (the first period closes).
func RSISeries(closes []float64, period int) (rsi []float64, ok []bool) {
	n := len(closes)
	rsi = make([]float64, n)
	ok = make([]bool, n)
	if period < 1 || n <= period {
		return rsi, ok
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		gains[i], losses[i] = splitDelta(closes[i] - closes[i-1])
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	rsi[period], ok[period] = rsiFromAverages(avgGain, avgLoss), true

	p := float64(period)
	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
		rsi[i], ok[i] = rsiFromAverages(avgGain, avgLoss), true
	}
	return rsi, ok
}

// BollingerSeries computes the bands for every close with gonum's mean and
// second central moment over each trailing window.
func BollingerSeries(closes []float64, period int, k float64) (upper, lower []float64, ok []bool) {
	n := len(closes)
	upper = make([]float64, n)
	lower = make([]float64, n)
	ok = make([]bool, n)
	if period < 1 {
		return upper, lower, ok
	}

	for i := period - 1; i < n; i++ {
		w := closes[i-period+1 : i+1]
		mean := stat.Mean(w, nil)
		sigma := math.Sqrt(stat.MomentAbout(2, w, mean, nil))
		upper[i] = mean + k*sigma
		lower[i] = mean - k*sigma
		ok[i] = true
	}
	return upper, lower, ok
}
