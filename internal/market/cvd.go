package market

import "github.com/shopspring/decimal"

// CVDMetrics summarizes the cumulative volume delta series of a candle slice.
type CVDMetrics struct {
	Value      decimal.Decimal
	Momentum   decimal.Decimal
	Normalized decimal.Decimal
	Trend      string // rising | falling | flat
	Divergence string // bullish | bearish | neutral
}

// Rising reports whether the delta flow is net positive over the recent window.
func (m CVDMetrics) Rising() bool { return m.Trend == "rising" }

// Falling reports whether the delta flow is net negative over the recent window.
func (m CVDMetrics) Falling() bool { return m.Trend == "falling" }

// ComputeCVD builds the cumulative volume delta over the slice and classifies
// its trend and its divergence against price. Per-side taker volume is not
// available on plain OHLCV bars, so the per-bar delta is the full volume
// signed by bar direction. Returns ok=false on empty input.
func ComputeCVD(candles []Candle) (CVDMetrics, bool) {
	if len(candles) == 0 {
		return CVDMetrics{}, false
	}
	cvd := make([]decimal.Decimal, 0, len(candles))
	cumulative := decimal.Zero
	for _, c := range candles {
		cumulative = cumulative.Add(decimal.NewFromFloat(c.Delta()))
		cvd = append(cvd, cumulative)
	}

	last := cvd[len(cvd)-1]
	momentum := decimal.Zero
	if len(cvd) > 6 {
		momentum = last.Sub(cvd[len(cvd)-6])
	}

	minVal, maxVal := cvd[0], cvd[0]
	for _, v := range cvd[1:] {
		if v.LessThan(minVal) {
			minVal = v
		}
		if v.GreaterThan(maxVal) {
			maxVal = v
		}
	}
	norm := decimal.NewFromFloat(0.5)
	if maxVal.GreaterThan(minVal) {
		norm = last.Sub(minVal).Div(maxVal.Sub(minVal))
	}

	trend := "flat"
	if momentum.IsPositive() {
		trend = "rising"
	} else if momentum.IsNegative() {
		trend = "falling"
	}

	priceNow := decimal.NewFromFloat(candles[len(candles)-1].Close)
	pricePrev := decimal.NewFromFloat(candles[0].Close)
	cvdPrev := cvd[0]
	if len(candles) > 6 {
		pricePrev = decimal.NewFromFloat(candles[len(candles)-6].Close)
		cvdPrev = cvd[len(cvd)-6]
	}
	divergence := "neutral"
	if priceNow.GreaterThan(pricePrev) && last.LessThan(cvdPrev) {
		divergence = "bearish"
	} else if priceNow.LessThan(pricePrev) && last.GreaterThan(cvdPrev) {
		divergence = "bullish"
	}

	return CVDMetrics{
		Value:      last,
		Momentum:   momentum,
		Normalized: norm,
		Trend:      trend,
		Divergence: divergence,
	}, true
}
