package indicators

import "math"

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); NaN at 0.
func TrueRange(high, low, close []float64) []float64 {
	out := nans(len(close))
	for i := 1; i < len(close); i++ {
		pc := close[i-1]
		out[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
	}
	return out
}

// ATR is the simple moving average of the true range.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkPeriod("atr", period); err != nil {
		return nil, err
	}
	return SMA(TrueRange(high, low, close), period)
}

// Bollinger returns the upper and lower bands at k sample deviations.
func Bollinger(x []float64, period int, k float64) (upper, lower []float64, err error) {
	mid, err := SMA(x, period)
	if err != nil {
		return nil, nil, err
	}
	sd, err := RollingStd(x, period)
	if err != nil {
		return nil, nil, err
	}
	upper = make([]float64, len(x))
	lower = make([]float64, len(x))
	for i := range x {
		upper[i] = mid[i] + k*sd[i]
		lower[i] = mid[i] - k*sd[i]
	}
	return upper, lower, nil
}
