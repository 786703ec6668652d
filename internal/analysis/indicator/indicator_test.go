package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantra/internal/market"
)

func bars(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Timestamp: int64(i+1) * 60000,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestShortInputReturnsNotOK(t *testing.T) {
	short := bars(1, 2)
	_, ok := ATR(short, 14)
	assert.False(t, ok)
	_, ok = EMA(short, 14)
	assert.False(t, ok)
	_, ok = RSI(short, 14)
	assert.False(t, ok)
	_, ok = Slope(short, 14)
	assert.False(t, ok)
	_, _, ok = VWAP(nil, 10)
	assert.False(t, ok)
	_, ok = ComputeLevels(nil, 10, 2)
	assert.False(t, ok)
}

func TestSlopeSignTracksDirection(t *testing.T) {
	rising := bars(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	up, ok := Slope(rising, 10)
	require.True(t, ok)
	assert.Positive(t, up)

	falling := bars(10, 9, 8, 7, 6, 5, 4, 3, 2, 1)
	down, ok := Slope(falling, 10)
	require.True(t, ok)
	assert.Negative(t, down)
}

func TestVWAPDeviation(t *testing.T) {
	candles := bars(10, 10, 10, 20)
	vwap, dev, ok := VWAP(candles, 4)
	require.True(t, ok)
	assert.Greater(t, 20.0, vwap)
	assert.Positive(t, dev, "close above vwap must yield positive deviation")
}

func TestRollingMedian(t *testing.T) {
	med, ok := RollingMedian([]float64{0, 3, 1, 2}, 3)
	require.True(t, ok)
	assert.Equal(t, 2.0, med)

	_, ok = RollingMedian(nil, 5)
	assert.False(t, ok)
}

func TestComputeLevelsSwingScan(t *testing.T) {
	// Peak at index 5, trough at index 10.
	closes := []float64{10, 11, 12, 13, 14, 20, 14, 13, 12, 11, 5, 11, 12, 13, 14}
	candles := bars(closes...)
	lv, ok := ComputeLevels(candles, len(candles), 2)
	require.True(t, ok)
	assert.Equal(t, 21.0, lv.SwingHigh) // high = close + 1
	assert.Equal(t, 4.0, lv.SwingLow)   // low = close - 1
	assert.Equal(t, 21.0, lv.RangeHigh)
	assert.Equal(t, 4.0, lv.RangeLow)
	assert.Equal(t, lv.DayHigh, lv.RangeHigh, "all bars share one UTC day")
}

func TestTightRange(t *testing.T) {
	flat := bars(100, 100.1, 99.9, 100.05)
	assert.True(t, TightRange(flat, 4, 0.01))

	wide := bars(100, 110, 90, 105)
	assert.False(t, TightRange(wide, 4, 0.01))
}
