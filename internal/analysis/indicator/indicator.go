package indicator

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"quantra/internal/market"
)

// All functions here tolerate short or empty input by returning ok=false (or a
// neutral value) instead of panicking, so the decision engine can degrade to a
// no-action tick.

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func sanitize(series []float64) []float64 {
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			series[i] = 0
		}
	}
	return series
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 && !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// ATR returns the latest average true range.
func ATR(candles []market.Candle, period int) (float64, bool) {
	series, ok := ATRSeries(candles, period)
	if !ok {
		return 0, false
	}
	return lastValid(series)
}

// ATRSeries returns the talib ATR series (leading warm-up entries are zero).
func ATRSeries(candles []market.Candle, period int) ([]float64, bool) {
	if period <= 0 || len(candles) <= period {
		return nil, false
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	cls := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		cls[i] = c.Close
	}
	return sanitize(talib.Atr(highs, lows, cls, period)), true
}

// EMA returns the latest exponential moving average of closes.
func EMA(candles []market.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period {
		return 0, false
	}
	return lastValid(sanitize(talib.Ema(closes(candles), period)))
}

// RSI returns the latest relative strength index of closes.
func RSI(candles []market.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) <= period {
		return 0, false
	}
	return lastValid(sanitize(talib.Rsi(closes(candles), period)))
}

// Slope returns the linear-regression slope of the last period closes,
// normalized by the last close so it is comparable across price scales.
func Slope(candles []market.Candle, period int) (float64, bool) {
	if period <= 1 || len(candles) < period {
		return 0, false
	}
	cls := closes(candles)
	series := talib.LinearRegSlope(cls, period)
	raw := series[len(series)-1]
	last := cls[len(cls)-1]
	if math.IsNaN(raw) || last == 0 {
		return 0, false
	}
	return raw / last, true
}

// VWAP returns the volume-weighted average price over the last window candles
// and the relative deviation of the current close from it.
func VWAP(candles []market.Candle, window int) (vwap, deviation float64, ok bool) {
	if len(candles) == 0 {
		return 0, 0, false
	}
	if window <= 0 || window > len(candles) {
		window = len(candles)
	}
	sub := candles[len(candles)-window:]
	var pv, vol float64
	for _, c := range sub {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, 0, false
	}
	vwap = pv / vol
	last := sub[len(sub)-1].Close
	if vwap != 0 {
		deviation = (last - vwap) / vwap
	}
	return vwap, deviation, true
}

// RollingMedian returns the median of the last window non-zero values.
func RollingMedian(series []float64, window int) (float64, bool) {
	if len(series) == 0 || window <= 0 {
		return 0, false
	}
	start := len(series) - window
	if start < 0 {
		start = 0
	}
	vals := make([]float64, 0, window)
	for _, v := range series[start:] {
		if v != 0 && !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid], true
	}
	return (vals[mid-1] + vals[mid]) / 2, true
}

// Levels holds the price-level snapshot consumed by setup predicates.
type Levels struct {
	DayHigh     float64
	DayLow      float64
	PrevDayHigh float64
	PrevDayLow  float64
	RangeHigh   float64
	RangeLow    float64
	SwingHigh   float64
	SwingLow    float64
}

const dayMillis = int64(24 * 60 * 60 * 1000)

// ComputeLevels derives day/previous-day extremes from the slice (bucketed by
// UTC day of the candle timestamp), a rolling range over rangeWindow bars, and
// the most recent swing high/low via a local-extremum scan.
func ComputeLevels(candles []market.Candle, rangeWindow, swingLookaround int) (Levels, bool) {
	if len(candles) == 0 {
		return Levels{}, false
	}
	var lv Levels
	nowDay := candles[len(candles)-1].Timestamp / dayMillis
	prevDay := nowDay - 1
	for _, c := range candles {
		switch c.Timestamp / dayMillis {
		case nowDay:
			if lv.DayHigh == 0 || c.High > lv.DayHigh {
				lv.DayHigh = c.High
			}
			if lv.DayLow == 0 || c.Low < lv.DayLow {
				lv.DayLow = c.Low
			}
		case prevDay:
			if lv.PrevDayHigh == 0 || c.High > lv.PrevDayHigh {
				lv.PrevDayHigh = c.High
			}
			if lv.PrevDayLow == 0 || c.Low < lv.PrevDayLow {
				lv.PrevDayLow = c.Low
			}
		}
	}

	if rangeWindow <= 0 || rangeWindow > len(candles) {
		rangeWindow = len(candles)
	}
	for _, c := range candles[len(candles)-rangeWindow:] {
		if lv.RangeHigh == 0 || c.High > lv.RangeHigh {
			lv.RangeHigh = c.High
		}
		if lv.RangeLow == 0 || c.Low < lv.RangeLow {
			lv.RangeLow = c.Low
		}
	}

	lv.SwingHigh, lv.SwingLow = swingPoints(candles, swingLookaround)
	return lv, true
}

// swingPoints scans backwards for the most recent local extremes: a bar whose
// high (low) dominates its lookaround neighbors on both sides.
func swingPoints(candles []market.Candle, lookaround int) (high, low float64) {
	if lookaround <= 0 {
		lookaround = 2
	}
	for i := len(candles) - 1 - lookaround; i >= lookaround; i-- {
		c := candles[i]
		if high == 0 && isSwingHigh(candles, i, lookaround) {
			high = c.High
		}
		if low == 0 && isSwingLow(candles, i, lookaround) {
			low = c.Low
		}
		if high != 0 && low != 0 {
			break
		}
	}
	return high, low
}

func isSwingHigh(candles []market.Candle, i, n int) bool {
	for j := i - n; j <= i+n; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= candles[i].High {
			return false
		}
	}
	return true
}

func isSwingLow(candles []market.Candle, i, n int) bool {
	for j := i - n; j <= i+n; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= candles[i].Low {
			return false
		}
	}
	return true
}

// TightRange reports whether the close-to-close span of the last window bars
// stays within maxPct of the last close.
func TightRange(candles []market.Candle, window int, maxPct float64) bool {
	if window <= 1 || len(candles) < window || maxPct <= 0 {
		return false
	}
	sub := candles[len(candles)-window:]
	lo, hi := sub[0].Close, sub[0].Close
	for _, c := range sub[1:] {
		if c.Close < lo {
			lo = c.Close
		}
		if c.Close > hi {
			hi = c.Close
		}
	}
	last := sub[len(sub)-1].Close
	if last == 0 {
		return false
	}
	return (hi-lo)/last <= maxPct
}
