package features

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/forecaster/indicators"
	"github.com/rustyeddy/forecaster/market"
)

// Columns produced by Default, in matrix order.
var Columns = []string{
	"ret_1", "ret_5", "ret_10", "volatility_10", "volatility_20", "atr_pct",
	"sma_fast_rel", "sma_slow_rel", "macd_hist", "stoch_k", "stoch_d", "bb_width", "rsi2",
}

// DefaultLabelThreshold is the forward return a bar must reach to be
// labeled positive.
const DefaultLabelThreshold = 0.02

// Default is the stock momentum/volatility feature set.
type Default struct {
	LabelThreshold float64
}

func NewDefault(labelThreshold float64) *Default {
	if labelThreshold <= 0 {
		labelThreshold = DefaultLabelThreshold
	}
	return &Default{LabelThreshold: labelThreshold}
}

func (d *Default) Columns() []string {
	out := make([]string, len(Columns))
	copy(out, Columns)
	return out
}

// Compute labels row t with close[t+h]/close[t]-1 >= LabelThreshold and
// drops rows with any missing feature or no bar h steps ahead.
func (d *Default) Compute(s market.Series, horizon int) (*Frame, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	cols, err := matrix(s)
	if err != nil {
		return nil, err
	}
	closes := s.Closes()
	f := &Frame{Columns: d.Columns()}
	for i := 0; i+horizon < len(closes); i++ {
		row, ok := rowAt(cols, i)
		if !ok || closes[i] <= 0 {
			continue
		}
		fwd := closes[i+horizon]/closes[i] - 1
		label := 0
		if fwd >= d.LabelThreshold {
			label = 1
		}
		f.Dates = append(f.Dates, s.Candles[i].Date)
		f.Closes = append(f.Closes, closes[i])
		f.X = append(f.X, row)
		f.Labels = append(f.Labels, label)
	}
	return f, nil
}

// Latest returns the feature row of the final bar.
func (d *Default) Latest(s market.Series) (time.Time, []float64, error) {
	if s.Len() == 0 {
		return time.Time{}, nil, ErrNoFeatures
	}
	cols, err := matrix(s)
	if err != nil {
		return time.Time{}, nil, err
	}
	last := s.Len() - 1
	row, ok := rowAt(cols, last)
	if !ok {
		return time.Time{}, nil, fmt.Errorf("%w: %s", ErrNoFeatures, s.Symbol)
	}
	return s.Candles[last].Date, row, nil
}

func rowAt(cols [][]float64, i int) ([]float64, bool) {
	row := make([]float64, len(cols))
	for j, c := range cols {
		v := c[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		row[j] = v
	}
	return row, true
}

// matrix returns one slice per column in Columns order.
func matrix(s market.Series) ([][]float64, error) {
	n := s.Len()
	closes := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	for i, c := range s.Candles {
		closes[i] = c.Close
		high[i], low[i] = c.High, c.Low
		if high[i] == 0 {
			high[i] = c.Close
		}
		if low[i] == 0 {
			low[i] = c.Close
		}
	}

	ret1, err := indicators.PctChange(closes, 1)
	if err != nil {
		return nil, err
	}
	ret5, _ := indicators.PctChange(closes, 5)
	ret10, _ := indicators.PctChange(closes, 10)
	vol10, _ := indicators.RollingStd(ret1, 10)
	vol20, _ := indicators.RollingStd(ret1, 20)
	atr, err := indicators.ATR(high, low, closes, 14)
	if err != nil {
		return nil, err
	}
	smaFast, _ := indicators.SMA(closes, 10)
	smaSlow, _ := indicators.SMA(closes, 50)
	_, _, hist, err := indicators.MACD(closes, 12, 26, 9)
	if err != nil {
		return nil, err
	}
	k, dd, err := indicators.Stochastic(high, low, closes, 14, 3)
	if err != nil {
		return nil, err
	}
	upper, lower, err := indicators.Bollinger(closes, 20, 2)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.RSI(closes, 2)
	if err != nil {
		return nil, err
	}

	atrPct := make([]float64, n)
	fastRel := make([]float64, n)
	slowRel := make([]float64, n)
	bbWidth := make([]float64, n)
	for i := 0; i < n; i++ {
		atrPct[i] = atr[i] / closes[i]
		fastRel[i] = smaFast[i]/closes[i] - 1
		slowRel[i] = smaSlow[i]/closes[i] - 1
		mid := (upper[i] + lower[i]) / 2
		bbWidth[i] = (upper[i] - lower[i]) / mid
	}

	return [][]float64{
		ret1, ret5, ret10, vol10, vol20, atrPct,
		fastRel, slowRel, hist, k, dd, bbWidth, rsi,
	}, nil
}
