package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes() []float64 {
	return []float64{102, 105, 106, 108, 110, 111, 113, 114, 116, 118}
}

func TestSMA(t *testing.T) {
	out, err := SMA(closes(), 5)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[3]))
	// Last 5 closes: 111,113,114,116,118 => 572/5 = 114.4
	assert.InDelta(t, 114.4, out[9], 1e-9)

	_, err = SMA(closes(), 0)
	assert.Error(t, err)
}

func TestEMA(t *testing.T) {
	out, err := EMA([]float64{1, 2, 3}, 3)
	require.NoError(t, err)
	// alpha = 0.5
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, out, 1e-12)
}

func TestPctChange(t *testing.T) {
	out, err := PctChange([]float64{100, 110, 99}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 0.1, out[1], 1e-12)
	assert.InDelta(t, -0.1, out[2], 1e-12)
}

func TestRollingStdIsSample(t *testing.T) {
	out, err := RollingStd([]float64{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5.0/3.0), out[3], 1e-12)
}

func TestATR(t *testing.T) {
	high := []float64{10, 11, 12, 11, 12, 13}
	low := []float64{8, 9, 10, 9, 10, 11}
	cl := []float64{9, 10, 11, 10, 11, 12}

	tr := TrueRange(high, low, cl)
	assert.True(t, math.IsNaN(tr[0]))
	assert.Equal(t, 2.0, tr[1])

	atr, err := ATR(high, low, cl, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(atr[2]))
	assert.InDelta(t, 2.0, atr[3], 1e-12)
}

func TestStochasticFlatWindowIsNaN(t *testing.T) {
	flat := []float64{5, 5, 5, 5}
	k, d, err := Stochastic(flat, flat, flat, 3, 2)
	require.NoError(t, err)
	for i := range k {
		assert.True(t, math.IsNaN(k[i]))
		assert.True(t, math.IsNaN(d[i]))
	}

	k, _, err = Stochastic([]float64{2, 3, 4}, []float64{1, 1, 1}, []float64{1.5, 2, 4}, 3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, k[2], 1e-12)
}

func TestMACDAndBollinger(t *testing.T) {
	_, _, hist, err := MACD(closes(), 3, 6, 2)
	require.NoError(t, err)
	assert.Len(t, hist, 10)
	assert.InDelta(t, 0, hist[0], 1e-12)

	_, _, _, err = MACD(closes(), 6, 3, 2)
	assert.Error(t, err)

	up, lo, err := Bollinger(closes(), 5, 2)
	require.NoError(t, err)
	assert.Greater(t, up[9], lo[9])
}

func TestRSIBounds(t *testing.T) {
	out, err := RSI(closes(), 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[1]))
	for _, v := range out[2:] {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}
