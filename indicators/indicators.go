// Package indicators computes rolling technical indicators over float64
// price slices. Every function returns a slice aligned with its input;
// positions inside the warmup window hold NaN.
package indicators

import (
	"fmt"
	"math"
)

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s: period must be positive, got %d", name, period)
	}
	return nil
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// PctChange is x[i]/x[i-lag] - 1.
func PctChange(x []float64, lag int) ([]float64, error) {
	if err := checkPeriod("pct_change", lag); err != nil {
		return nil, err
	}
	out := nans(len(x))
	for i := lag; i < len(x); i++ {
		if x[i-lag] != 0 {
			out[i] = x[i]/x[i-lag] - 1
		}
	}
	return out, nil
}

// rolling applies fn to each full window; a window containing NaN yields NaN.
func rolling(x []float64, period int, fn func(w []float64) float64) []float64 {
	out := nans(len(x))
	for i := period - 1; i < len(x); i++ {
		w := x[i-period+1 : i+1]
		ok := true
		for _, v := range w {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			out[i] = fn(w)
		}
	}
	return out
}

func SMA(x []float64, period int) ([]float64, error) {
	if err := checkPeriod("sma", period); err != nil {
		return nil, err
	}
	return rolling(x, period, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s / float64(len(w))
	}), nil
}

// RollingSum sums each full window.
func RollingSum(x []float64, period int) ([]float64, error) {
	if err := checkPeriod("sum", period); err != nil {
		return nil, err
	}
	return rolling(x, period, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s
	}), nil
}

// RollingStd is the sample standard deviation (n-1 denominator).
func RollingStd(x []float64, period int) ([]float64, error) {
	if err := checkPeriod("std", period); err != nil {
		return nil, err
	}
	if period < 2 {
		return nans(len(x)), nil
	}
	return rolling(x, period, func(w []float64) float64 {
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(len(w))
		ss := 0.0
		for _, v := range w {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(len(w)-1))
	}), nil
}

func RollingMin(x []float64, period int) ([]float64, error) {
	if err := checkPeriod("min", period); err != nil {
		return nil, err
	}
	return rolling(x, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m
	}), nil
}

func RollingMax(x []float64, period int) ([]float64, error) {
	if err := checkPeriod("max", period); err != nil {
		return nil, err
	}
	return rolling(x, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m
	}), nil
}

// EMA seeds with the first value and smooths with alpha = 2/(span+1).
// It is defined from index 0; NaN inputs before the first finite value
// stay NaN.
func EMA(x []float64, span int) ([]float64, error) {
	if err := checkPeriod("ema", span); err != nil {
		return nil, err
	}
	alpha := 2.0 / float64(span+1)
	out := nans(len(x))
	seeded := false
	prev := 0.0
	for i, v := range x {
		if math.IsNaN(v) {
			if seeded {
				out[i] = prev
			}
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out, nil
}
