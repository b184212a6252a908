package indicators

import (
	"fmt"
	"math"
)

// MACD returns the line, signal and histogram.
func MACD(x []float64, fast, slow, signal int) (line, sig, hist []float64, err error) {
	if fast >= slow {
		return nil, nil, nil, fmt.Errorf("macd: fast %d must be below slow %d", fast, slow)
	}
	f, err := EMA(x, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := EMA(x, slow)
	if err != nil {
		return nil, nil, nil, err
	}
	line = make([]float64, len(x))
	for i := range x {
		line[i] = f[i] - s[i]
	}
	if sig, err = EMA(line, signal); err != nil {
		return nil, nil, nil, err
	}
	hist = make([]float64, len(x))
	for i := range x {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist, nil
}

// Stochastic returns %K over kPeriod and its dPeriod mean. A flat window
// (high == low) yields NaN.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) (k, d []float64, err error) {
	lo, err := RollingMin(low, kPeriod)
	if err != nil {
		return nil, nil, err
	}
	hi, err := RollingMax(high, kPeriod)
	if err != nil {
		return nil, nil, err
	}
	k = nans(len(close))
	for i := range close {
		if rng := hi[i] - lo[i]; rng != 0 && !math.IsNaN(rng) {
			k[i] = 100 * (close[i] - lo[i]) / rng
		}
	}
	if d, err = SMA(k, dPeriod); err != nil {
		return nil, nil, err
	}
	return k, d, nil
}

// RSI is the short-window relative strength index built from summed
// gains and losses of one-bar returns.
func RSI(x []float64, period int) ([]float64, error) {
	r, err := PctChange(x, 1)
	if err != nil {
		return nil, err
	}
	up := make([]float64, len(r))
	down := make([]float64, len(r))
	for i, v := range r {
		switch {
		case math.IsNaN(v):
			up[i], down[i] = v, v
		case v > 0:
			up[i] = v
		default:
			down[i] = -v
		}
	}
	su, err := RollingSum(up, period)
	if err != nil {
		return nil, err
	}
	sd, err := RollingSum(down, period)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i := range out {
		rs := su[i] / (sd[i] + 1e-9)
		out[i] = 100 - 100/(1+rs)
	}
	return out, nil
}
